//go:build !unix

package transport

import "syscall"

func reuseAddrPort(network, address string, c syscall.RawConn) error {
	return nil
}
