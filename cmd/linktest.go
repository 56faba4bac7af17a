package cmd

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/gift"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/roverlink/internal/link"
	"github.com/andresmejia3/roverlink/internal/transport"
	"github.com/andresmejia3/roverlink/internal/types"
	"github.com/andresmejia3/roverlink/internal/utils"
	"github.com/andresmejia3/roverlink/internal/vision"
)

var (
	linktestOpts  Options
	linktestImage string
)

var linktestCmd = &cobra.Command{
	Use:   "linktest",
	Short: "Exercise every wire primitive between two hosts",
	Long: `Runs a fixed exchange of greetings, integers, large buffers and one frame.
Start "linktest serve" on one host, then "linktest dial" on the other.`,
}

var linktestServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept one peer and run the acceptor side",
	Run: func(cmd *cobra.Command, args []string) {
		if err := applyLinkFlags(cmd, &linktestOpts, cfg); err != nil {
			utils.Die("Invalid link flags", err)
		}
		ctx := cmd.Context()

		acc, err := transport.Listen(ctx, cfg.Link.Port, cfg.Timeout(), logger.Named("link"))
		if err != nil {
			utils.Die("Failed to listen", err)
		}
		defer acc.Close()
		fmt.Fprintf(os.Stderr, "📡 Waiting for a peer on port %d...\n", acc.Port())

		ch, err := acc.Accept(ctx)
		if err != nil {
			utils.Die("Failed to accept peer", err)
		}
		codec := transport.NewCodec(ch, vision.JPEG{})
		codec.SetQuality(cfg.Link.Quality)

		f, err := link.ServeSelfTest(codec, logger.Named("linktest"))
		if err != nil {
			acc.Close()
			utils.Die("Link test failed", err)
		}
		fmt.Fprintf(os.Stderr, "✅ Link test passed, received a %dx%d frame\n", f.Cols, f.Rows)
	},
}

var linktestDialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Connect to a serving peer and run the initiator side",
	Run: func(cmd *cobra.Command, args []string) {
		if err := applyLinkFlags(cmd, &linktestOpts, cfg); err != nil {
			utils.Die("Invalid link flags", err)
		}
		ctx := cmd.Context()

		img := gradientFrame(cfg.Camera.Height, cfg.Camera.Width)
		if linktestImage != "" {
			src, err := loadTemplate(linktestImage)
			if err != nil {
				utils.Die("Failed to load test image", err)
			}
			img = imageToFrame(src, cfg.Camera.Width, cfg.Camera.Height)
		}

		ch, err := transport.Dial(ctx, cfg.Link.Host, cfg.Link.Port, logger.Named("link"))
		if err != nil {
			utils.Die("Failed to connect", err)
		}
		defer ch.Close()
		ch.SetTimeout(cfg.Timeout())
		codec := transport.NewCodec(ch, vision.JPEG{})
		codec.SetQuality(cfg.Link.Quality)

		echo, err := link.DialSelfTest(codec, img, logger.Named("linktest"))
		if err != nil {
			ch.Close()
			utils.Die("Link test failed", err)
		}
		fmt.Fprintf(os.Stderr, "✅ Link test passed, echo is %dx%d\n", echo.Cols, echo.Rows)
	},
}

func init() {
	for _, c := range []*cobra.Command{linktestServeCmd, linktestDialCmd} {
		addLinkFlags(c, &linktestOpts)
		linktestCmd.AddCommand(c)
	}
	linktestDialCmd.Flags().StringVarP(&linktestOpts.Host, "host", "H", "127.0.0.1", "Address of the serving peer")
	linktestDialCmd.Flags().StringVarP(&linktestImage, "image", "i", "", "Image to send (default: a generated gradient)")
	rootCmd.AddCommand(linktestCmd)
}

// gradientFrame draws a BGR test card that survives JPEG compression recognizably.
func gradientFrame(rows, cols int) types.Frame {
	f := types.NewFrame(rows, cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := y*f.Stride + x*3
			f.Pix[i] = byte(x * 255 / max(cols-1, 1))
			f.Pix[i+1] = byte(y * 255 / max(rows-1, 1))
			f.Pix[i+2] = byte((x + y) * 255 / max(rows+cols-2, 1))
		}
	}
	return f
}

// imageToFrame resizes img to cols x rows and packs it as BGR.
func imageToFrame(img image.Image, cols, rows int) types.Frame {
	g := gift.New(gift.Resize(cols, rows, gift.LinearResampling))
	dst := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)

	b := dst.Bounds()
	f := types.NewFrame(b.Dy(), b.Dx())
	for y := 0; y < f.Rows; y++ {
		for x := 0; x < f.Cols; x++ {
			s := dst.PixOffset(b.Min.X+x, b.Min.Y+y)
			i := y*f.Stride + x*3
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = dst.Pix[s+2], dst.Pix[s+1], dst.Pix[s]
		}
	}
	return f
}
