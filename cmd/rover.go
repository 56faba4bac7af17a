package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/roverlink/internal/actuator"
	"github.com/andresmejia3/roverlink/internal/config"
	"github.com/andresmejia3/roverlink/internal/link"
	"github.com/andresmejia3/roverlink/internal/motor"
	"github.com/andresmejia3/roverlink/internal/transport"
	"github.com/andresmejia3/roverlink/internal/utils"
	"github.com/andresmejia3/roverlink/internal/vision"
)

var roverOpts Options

var roverCmd = &cobra.Command{
	Use:   "rover",
	Short: "Run the onboard end: stream the camera to the base and drive the motors",
	Long: `Connects to the base, sends one compressed frame per iteration and executes
the command or velocity that comes back. Motors are stopped on every exit path.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := applyLinkFlags(cmd, &roverOpts, cfg); err != nil {
			utils.Die("Invalid link flags", err)
		}
		if err := applyRoverFlags(cmd, &roverOpts, cfg); err != nil {
			utils.Die("Invalid rover flags", err)
		}
		runRover(cmd)
	},
}

func init() {
	addRoverFlags(roverCmd, &roverOpts)
	rootCmd.AddCommand(roverCmd)
}

func addRoverFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVarP(&opts.Host, "host", "H", "127.0.0.1", "Address of the base")
	addLinkFlags(cmd, opts)
	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "Frame source instead of the camera: ffmpeg:<input>")
	cmd.Flags().IntVar(&opts.Camera, "camera", 0, "Camera device index")
	cmd.Flags().StringVarP(&opts.Motor, "motor", "m", "log", "Motor driver: serial or log")
	cmd.Flags().StringVar(&opts.Device, "device", "/dev/ttyUSB0", "Serial device of the motor controller")
	cmd.Flags().IntVar(&opts.Baud, "baud", 115200, "Serial baud rate")
	cmd.Flags().IntVar(&opts.Duty, "duty", actuator.DefaultDuty, "Drive duty for manual directions (0-100)")
}

// applyLinkFlags copies explicitly set link flags over c and validates the result.
func applyLinkFlags(cmd *cobra.Command, opts *Options, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		c.Link.Host = opts.Host
	}
	if flags.Changed("port") {
		c.Link.Port = opts.Port
	}
	if flags.Changed("timeout") {
		d, err := time.ParseDuration(opts.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", opts.Timeout, err)
		}
		if d < 0 {
			return fmt.Errorf("timeout must not be negative")
		}
		c.Link.TimeoutMS = int(d / time.Millisecond)
	}
	if flags.Changed("profile") {
		c.Link.Profile = opts.Profile
	}
	if flags.Changed("quality") {
		c.Link.Quality = min(max(opts.Quality, 0), 100)
	}
	return c.Validate()
}

func applyRoverFlags(cmd *cobra.Command, opts *Options, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("source") {
		c.Camera.Source = opts.Source
	}
	if flags.Changed("camera") {
		c.Camera.Device = opts.Camera
	}
	if flags.Changed("motor") {
		c.Motor.Driver = opts.Motor
	}
	if flags.Changed("device") {
		c.Motor.Device = opts.Device
	}
	if flags.Changed("baud") {
		if opts.Baud <= 0 {
			return fmt.Errorf("baud rate must be positive")
		}
		c.Motor.Baud = opts.Baud
	}
	if flags.Changed("duty") {
		if opts.Duty < 0 || opts.Duty > motor.MaxDuty {
			return fmt.Errorf("duty %d out of range 0-%d", opts.Duty, motor.MaxDuty)
		}
		c.Motor.Duty = opts.Duty
	}
	if c.Camera.Source != "" && !strings.HasPrefix(c.Camera.Source, "ffmpeg:") {
		return fmt.Errorf("unsupported source %q (want ffmpeg:<input>)", c.Camera.Source)
	}
	return c.Validate()
}

func openDriver(c *config.Config) (motor.Driver, error) {
	if c.Motor.Driver == "serial" {
		return motor.OpenSerial(c.Motor.Device, c.Motor.Baud, logger.Named("motor"))
	}
	return motor.NewLogDriver(logger.Named("motor")), nil
}

// openSource opens the camera, or an ffmpeg input when the source says so. Regular files are
// read at their native rate so the rover does not outrun the link.
func openSource(c *config.Config) (link.FrameSource, error) {
	input, ok := strings.CutPrefix(c.Camera.Source, "ffmpeg:")
	if !ok {
		return vision.OpenCamera(c.Camera.Device, c.Camera.Width, c.Camera.Height)
	}
	var inputOpts []string
	if info, err := os.Stat(input); err == nil && info.Mode().IsRegular() {
		inputOpts = append(inputOpts, "-re")
	}
	return utils.OpenFFmpeg(input, vision.JPEG{}, inputOpts...)
}

func runRover(cmd *cobra.Command) {
	ctx := cmd.Context()
	m := startMetrics(ctx)

	driver, err := openDriver(cfg)
	if err != nil {
		utils.Die("Failed to open motor driver", err)
	}
	table, err := cfg.ManeuverTable()
	if err != nil {
		utils.Die("Invalid maneuver table", err)
	}
	act := actuator.New(driver, table, cfg.ActuatorOptions(actuator.Options{
		Logger: logger.Named("actuator"),
		OnExecute: func(o actuator.Order) {
			m.OrderExecuted(o.Command.String())
		},
	}))
	if err := driver.Init(); err != nil {
		driver.Close()
		utils.Die("Failed to initialize motor driver", err)
	}
	act.Start()

	// Close stops the motors, then the port can go.
	stopMotors := func() {
		act.Close()
		driver.Close()
	}

	src, err := openSource(cfg)
	if err != nil {
		utils.Die("Failed to open frame source", err, stopMotors)
	}
	defer src.Close()

	fmt.Fprintf(os.Stderr, "🛰️  Connecting to base at %s:%d...\n", cfg.Link.Host, cfg.Link.Port)
	ch, err := transport.Dial(ctx, cfg.Link.Host, cfg.Link.Port, logger.Named("link"))
	if err != nil {
		src.Close()
		utils.Die("Failed to connect to base", err, stopMotors)
	}
	ch.SetTimeout(cfg.Timeout())
	codec := transport.NewCodec(ch, vision.JPEG{})
	codec.SetQuality(cfg.Link.Quality)

	rover := link.NewRover(codec, src, act, link.RoverOptions{
		Profile: cfg.Profile(),
		Logger:  logger.Named("rover"),
		Metrics: m,
	})
	err = rover.Run(ctx)
	ch.Close()
	if err != nil {
		src.Close()
		utils.Die("Link failed", err, stopMotors)
	}
	stopMotors()
	fmt.Fprintln(os.Stderr, "✅ Link closed, motors stopped.")
}
