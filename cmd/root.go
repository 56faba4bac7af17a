package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/roverlink/internal/config"
	"github.com/andresmejia3/roverlink/internal/metrics"
	"github.com/andresmejia3/roverlink/internal/store"
	"github.com/andresmejia3/roverlink/internal/transport"
)

// Options holds the link, rover and base flags. Flags that are set explicitly override the
// configuration file.
type Options struct {
	Host    string
	Port    int
	Timeout string
	Profile string
	Quality int

	// rover
	Source string
	Camera int
	Motor  string
	Device string
	Baud   int
	Duty   int

	// base
	Template   string
	Backend    string
	Threshold  float64
	Classifier string
	Model      string
	Manual     bool
	Pad        bool
}

// The db annotation tells PersistentPreRunE whether a command needs the mission log.
const (
	dbAnnotation = "db"
	dbRequired   = "required"
	dbOptional   = "optional"
)

var (
	// DB is the mission log shared by subcommands; nil when no database is configured
	DB *store.Store
	// dbURL is the connection string
	dbURL string

	cfgFile     string
	logLevel    string
	metricsAddr string

	// cfg is the loaded configuration, defaults when --config is not given
	cfg *config.Config
	// logger is the root logger; components take named sub-loggers
	logger hclog.Logger
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "roverlink",
	Short:   "Camera rover link: video up, commands down, autonomous target navigation",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:   "roverlink",
			Level:  hclog.LevelFromString(logLevel),
			Output: os.Stderr,
		})

		var err error
		if cfgFile != "" {
			if cfg, err = config.Load(cfgFile); err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}

		mode := cmd.Annotations[dbAnnotation]
		if mode == "" {
			return nil
		}

		// If no flag was provided, try to build the connection string from the environment
		if dbURL == "" {
			if host := os.Getenv("POSTGRES_HOST"); host != "" {
				user := os.Getenv("POSTGRES_USER")
				pass := os.Getenv("POSTGRES_PASSWORD")
				name := os.Getenv("POSTGRES_DB")
				port := os.Getenv("POSTGRES_PORT")
				if port == "" {
					port = "5432"
				}
				dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
			} else if mode == dbRequired {
				// Fallback to local default if no env vars are present
				dbURL = "postgres://localhost:5432/roverlink"
			} else {
				logger.Debug("no database configured, mission log disabled")
				return nil
			}
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), dbURL)
		if err != nil {
			if mode == dbOptional {
				fmt.Fprintf(os.Stderr, "⚠️  Mission log disabled: %v\n", err)
				DB = nil
				return nil
			}
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// startMetrics serves Prometheus metrics when --metrics-addr is set. It returns nil otherwise,
// which every recorder accepts.
func startMetrics(ctx context.Context) *metrics.Metrics {
	if metricsAddr == "" {
		return nil
	}
	m := metrics.New()
	go func() {
		if err := metrics.Serve(ctx, metricsAddr, m, logger.Named("metrics")); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return m
}

// addLinkFlags registers the flags shared by the rover and the base.
func addLinkFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 5000, "TCP port of the link")
	cmd.Flags().StringVarP(&opts.Timeout, "timeout", "t", "5s", "Receive timeout ('0' blocks forever)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "command", "What the base sends per frame: command, velocity or command+velocity")
	cmd.Flags().IntVarP(&opts.Quality, "quality", "q", transport.DefaultQuality, "JPEG quality of the video stream (0-100)")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the mission log (default: $POSTGRES_* or postgres://localhost:5432/roverlink)")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
}
