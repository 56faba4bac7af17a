package utils

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"

	"github.com/andresmejia3/roverlink/internal/types"
)

// --- 2. Video Engine ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// maxJpegSize bounds a single frame in the MJPEG stream.
const maxJpegSize = 16 << 20

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// NewFFmpegCmd creates a standard decoder pipe
// It configures FFmpeg to output raw MJPEG frames to Stdout for ingestion.
// Extra input options (e.g. "-re" to play a file in real time) go before -i.
func NewFFmpegCmd(inputPath string, inputOpts ...string) *exec.Cmd {
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, inputOpts...)
	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	args = append(args, "-i", inputPath, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
	return exec.Command("ffmpeg", args...)
}

// JpegDecoder turns one JPEG into a frame.
type JpegDecoder interface {
	Decode(data []byte) (types.Frame, error)
}

// JpegStream yields frames from a concatenated MJPEG byte stream.
type JpegStream struct {
	scanner *bufio.Scanner
	dec     JpegDecoder
}

func NewJpegStream(r io.Reader, dec JpegDecoder) *JpegStream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxJpegSize)
	scanner.Split(SplitJpeg)
	return &JpegStream{scanner: scanner, dec: dec}
}

// Read returns io.EOF when the stream ends.
func (s *JpegStream) Read() (types.Frame, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return types.Frame{}, fmt.Errorf("mjpeg stream: %w", err)
		}
		return types.Frame{}, io.EOF
	}
	return s.dec.Decode(s.scanner.Bytes())
}

// FFmpegSource decodes any input ffmpeg understands (file, RTSP URL, device) into frames.
type FFmpegSource struct {
	*JpegStream
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func OpenFFmpeg(input string, dec JpegDecoder, inputOpts ...string) (*FFmpegSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	cmd := NewFFmpegCmd(input, inputOpts...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	return &FFmpegSource{JpegStream: NewJpegStream(stdout, dec), cmd: cmd, stdout: stdout}, nil
}

func (s *FFmpegSource) Close() error {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.stdout.Close()
	s.cmd.Wait() // reap; the kill makes the exit status meaningless
	return nil
}
