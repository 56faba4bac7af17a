package main

import "github.com/andresmejia3/roverlink/cmd"

func main() {
	cmd.Execute()
}
