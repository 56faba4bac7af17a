package cmd

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/andresmejia3/roverlink/internal/config"
	"github.com/andresmejia3/roverlink/internal/detect"
	"github.com/andresmejia3/roverlink/internal/link"
	"github.com/andresmejia3/roverlink/internal/metrics"
	"github.com/andresmejia3/roverlink/internal/nav"
	"github.com/andresmejia3/roverlink/internal/store"
	"github.com/andresmejia3/roverlink/internal/transport"
	"github.com/andresmejia3/roverlink/internal/utils"
	"github.com/andresmejia3/roverlink/internal/vision"
	"github.com/andresmejia3/roverlink/internal/worker"
)

var baseOpts Options

var baseCmd = &cobra.Command{
	Use:   "base",
	Short: "Run the decision end: detect the target, navigate, answer every frame",
	Long: `Listens for the rover, searches every received frame for the template and
answers with a command chosen by the navigation state machine or the operator.
Missions are recorded when a database is reachable.`,
	Annotations: map[string]string{dbAnnotation: dbOptional},
	Run: func(cmd *cobra.Command, args []string) {
		if err := applyLinkFlags(cmd, &baseOpts, cfg); err != nil {
			utils.Die("Invalid link flags", err)
		}
		if err := applyBaseFlags(cmd, &baseOpts, cfg); err != nil {
			utils.Die("Invalid base flags", err)
		}
		runBase(cmd)
	},
}

func init() {
	addBaseFlags(baseCmd, &baseOpts)
	rootCmd.AddCommand(baseCmd)
}

func addBaseFlags(cmd *cobra.Command, opts *Options) {
	addLinkFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Template, "template", "template.png", "Image of the target")
	cmd.Flags().StringVar(&opts.Backend, "backend", "opencv", "Correlation backend: opencv or go")
	cmd.Flags().Float64Var(&opts.Threshold, "threshold", detect.DefaultThreshold, "Minimum match score to act on")
	cmd.Flags().StringVar(&opts.Classifier, "classifier", "none", "Symbol classifier: onnx, process or none")
	cmd.Flags().StringVar(&opts.Model, "model", "digits.onnx", "ONNX model of the onnx classifier")
	cmd.Flags().BoolVar(&opts.Manual, "manual", false, "Start in manual mode")
	cmd.Flags().BoolVar(&opts.Pad, "pad", false, "Read pad keys from stdin (qweasdzxc drive, m toggles the mode)")
}

func applyBaseFlags(cmd *cobra.Command, opts *Options, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("template") {
		c.Detect.Template = opts.Template
	}
	if flags.Changed("backend") {
		c.Detect.Backend = opts.Backend
	}
	if flags.Changed("threshold") {
		if opts.Threshold < -1 || opts.Threshold > 1 {
			return fmt.Errorf("threshold %g out of range [-1, 1]", opts.Threshold)
		}
		c.Detect.Threshold = opts.Threshold
	}
	if flags.Changed("classifier") {
		c.Classifier.Kind = opts.Classifier
	}
	if flags.Changed("model") {
		c.Classifier.Model = opts.Model
	}
	if _, err := os.Stat(c.Detect.Template); err != nil {
		return fmt.Errorf("template %s: %w", c.Detect.Template, err)
	}
	return c.Validate()
}

func loadTemplate(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", path, err)
	}
	return img, nil
}

func newCorrelator(backend string) detect.Correlator {
	if backend == "go" {
		return detect.NCC{}
	}
	return vision.Correlator{}
}

// openClassifier returns a nil interface for kind none so the base falls back on every
// symbol. The cleanup releases the classifier and is never nil.
func openClassifier(c config.ClassifierConfig) (detect.Classifier, func(), error) {
	switch c.Kind {
	case "onnx":
		cls, err := vision.LoadONNX(c.Model)
		if err != nil {
			return nil, func() {}, err
		}
		return cls, func() { cls.Close() }, nil
	case "process":
		p, err := worker.Start(c.Command[0], c.Command[1:]...)
		if err != nil {
			return nil, func() {}, err
		}
		return p, func() {
			if p.Close() != nil {
				utils.DumpLogs("CLASSIFIER", p.Cmd)()
			}
		}, nil
	}
	return nil, func() {}, nil
}

// missionLog records transitions of one mission. A nil store makes every call a no-op.
type missionLog struct {
	db *store.Store
	id uuid.UUID
}

func startMission(ctx context.Context, db *store.Store, peer, profile string) *missionLog {
	if db == nil {
		return &missionLog{}
	}
	id, err := db.CreateMission(ctx, peer, profile)
	if err != nil {
		logger.Warn("mission will not be recorded", "error", err)
		return &missionLog{}
	}
	logger.Info("mission started", "id", id.String()[:8])
	return &missionLog{db: db, id: id}
}

func (ml *missionLog) transition(t nav.Transition) {
	if ml.db == nil {
		return
	}
	ev := store.Event{At: t.At, From: t.From.String(), To: t.To.String(), Maneuver: t.Maneuver.String()}
	// Bounded: the hook runs inside the control loop.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := ml.db.RecordTransition(ctx, ml.id, ev); err != nil {
		logger.Warn("failed to record transition", "error", err)
	}
}

func (ml *missionLog) end(frames int) {
	if ml.db == nil {
		return
	}
	if err := ml.db.EndMission(context.Background(), ml.id, frames); err != nil {
		logger.Warn("failed to close mission", "error", err)
	}
}

// transitionHook logs and counts a state change, then records it.
func transitionHook(m *metrics.Metrics, ml *missionLog) func(nav.Transition) {
	l := logger.Named("nav")
	return func(t nav.Transition) {
		l.Info("state change", "from", t.From.String(), "to", t.To.String(), "maneuver", t.Maneuver.String())
		m.Transition(t.From.String(), t.To.String(), int(t.To))
		ml.transition(t)
	}
}

func runBase(cmd *cobra.Command) {
	ctx := cmd.Context()
	m := startMetrics(ctx)

	tmpl, err := loadTemplate(cfg.Detect.Template)
	if err != nil {
		utils.Die("Failed to load template", err)
	}
	engine, err := detect.NewEngine(tmpl, cfg.Scales(), newCorrelator(cfg.Detect.Backend), cfg.Detect.Threshold)
	if err != nil {
		utils.Die("Failed to prepare templates", err)
	}
	fmt.Fprintf(os.Stderr, "🎯 Prepared %d template scales (%s backend)\n", len(engine.Templates()), cfg.Detect.Backend)

	cls, closeClassifier, err := openClassifier(cfg.Classifier)
	if err != nil {
		utils.Die("Failed to start classifier", err)
	}
	defer closeClassifier()

	navCfg, _ := cfg.NavConfig()
	table, _ := cfg.ManeuverTable()

	acc, err := transport.Listen(ctx, cfg.Link.Port, cfg.Timeout(), logger.Named("link"))
	if err != nil {
		utils.Die("Failed to listen", err, closeClassifier)
	}
	defer acc.Close()
	fmt.Fprintf(os.Stderr, "📡 Waiting for the rover on port %d...\n", acc.Port())

	ch, err := acc.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		utils.Die("Failed to accept rover", err, closeClassifier)
	}
	codec := transport.NewCodec(ch, vision.JPEG{})
	codec.SetQuality(cfg.Link.Quality)

	ml := startMission(ctx, DB, ch.RemoteAddr().String(), cfg.Link.Profile)
	fsm := nav.New(navCfg, nav.WithTransitionHook(transitionHook(m, ml)))

	var input link.InputSource
	if baseOpts.Pad {
		pad := link.NewPad()
		go func() {
			if err := pad.ReadKeys(ctx, os.Stdin); err != nil {
				logger.Warn("pad input stopped", "error", err)
			}
		}()
		input = pad
	}

	mode := link.Autonomous
	if baseOpts.Manual {
		mode = link.Manual
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Linked"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
	)

	frames := 0
	base := link.NewBase(codec, engine, fsm, cls, input, link.BaseOptions{
		Profile: cfg.Profile(),
		Mode:    mode,
		Duty:    cfg.Motor.Duty,
		Table:   table,
		Logger:  logger.Named("base"),
		Metrics: m,
		OnReport: func(r link.Report) {
			frames = r.Frame
			bar.Describe(fmt.Sprintf("%s %-8s %-22s score %.2f", r.Mode, r.State, r.Command, r.Detection.Confidence))
			bar.Add(1)
		},
	})
	err = base.Run(ctx)
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	ml.end(frames)
	if err != nil {
		utils.Die("Link failed", err, closeClassifier)
	}
	fmt.Fprintf(os.Stderr, "✅ Link closed after %d frames.\n", frames)
}
