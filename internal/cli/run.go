package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/proxysync/internal/backend"
	"github.com/roach88/proxysync/internal/config"
	"github.com/roach88/proxysync/internal/dispatch"
	"github.com/roach88/proxysync/internal/game"
	"github.com/roach88/proxysync/internal/journal"
	"github.com/roach88/proxysync/internal/reclaim"
	"github.com/roach88/proxysync/internal/renderer"
	"github.com/roach88/proxysync/internal/renderqueue"
	"github.com/roach88/proxysync/internal/scene"
)

// progressEvery is how often, in frames, the game reports to the main role.
const progressEvery = 60

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config  string
	Journal string
	Frames  uint64
	Inline  bool
}

// RunSummary is the result of a finished run.
type RunSummary struct {
	RunID          string `json:"run_id,omitempty"`
	Frames         uint64 `json:"frames"`
	BuffersCreated int    `json:"buffers_created"`
	BuffersFreed   int    `json:"buffers_freed"`
	LiveBuffers    int    `json:"live_buffers"`
}

// String renders the summary for text output.
func (s RunSummary) String() string {
	out := fmt.Sprintf("Ran %d frames (buffers: %d created, %d freed, %d live)",
		s.Frames, s.BuffersCreated, s.BuffersFreed, s.LiveBuffers)
	if s.RunID != "" {
		out += "\nRun: " + s.RunID
	}
	return out
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo scene",
		Long: `Run the game loop over the built-in demo scene.

The game goroutine drives behaviors and node updates and submits one render
task per frame to the render queue. With --journal every lifecycle event is
recorded to a SQLite file for the trace command.

Flags override the matching config file keys.

Examples:
  proxysync run --frames 600
  proxysync run --config proxysync.yaml --journal ./run.db
  proxysync run --inline --frames 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGame(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal")
	cmd.Flags().Uint64Var(&opts.Frames, "frames", 0, "stop after this many frames (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.Inline, "inline", false, "render on the game goroutine")

	return cmd
}

func runGame(opts *RunOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	flags := cmd.Flags()
	if flags.Changed("journal") {
		cfg.Journal = opts.Journal
	}
	if flags.Changed("frames") {
		cfg.MaxFrames = opts.Frames
	}
	if flags.Changed("inline") {
		cfg.Inline = opts.Inline
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Level(), opts.Verbose)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	bg := context.WithoutCancel(ctx)

	var (
		j     *journal.Journal
		runID string
	)
	if cfg.Journal != "" {
		j, err = journal.Open(cfg.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		runID = uuid.Must(uuid.NewV7()).String()
		if err := j.BeginRun(ctx, runID, "demo"); err != nil {
			return WrapExitError(ExitCommandError, "failed to begin run", err)
		}
		logger.Info("journal ready", "path", cfg.Journal, "run", runID)
	}

	reg := dispatch.NewRegistry(dispatch.WithLogger(logger), dispatch.WithStrict(cfg.Strict))
	if err := reg.BindCurrent(dispatch.RoleMain); err != nil {
		return WrapExitError(ExitCommandError, "failed to bind main role", err)
	}
	defer reg.ReleaseRoleThread(dispatch.RoleMain)
	mainbox := dispatch.NewMailbox()
	reg.Bind(dispatch.RoleMain, reg.MailboxSubmitter(dispatch.RoleMain, mainbox))

	dev := backend.NewHeadless(backend.WithHeadlessLogger(logger))
	sceneOpts := []scene.Option{
		scene.WithLogger(logger),
		scene.WithGPU(scene.GPU{Device: dev, Buffers: reclaim.New(cfg.FramesInFlight, dev.DestroyBuffer)}),
	}
	if j != nil {
		sceneOpts = append(sceneOpts, scene.WithObserver(j.Observer()))
	}
	s := scene.New(reg, sceneOpts...)
	q := renderqueue.New(reg, renderqueue.WithLogger(logger), renderqueue.WithInline(cfg.Inline))
	r := renderer.New(s,
		renderer.WithLogger(logger),
		renderer.WithFrameSize(float32(cfg.Frame.Width), float32(cfg.Frame.Height)))

	g := game.New(reg, q, s, r,
		game.WithLogger(logger),
		game.WithFramesInFlight(cfg.FramesInFlight),
		game.WithMaxFrameRate(cfg.MaxFrameRate),
		game.WithMaxFrames(cfg.MaxFrames),
		game.WithFrameHook(func(fi game.FrameInfo) {
			if j != nil {
				if err := j.Flush(bg, fi); err != nil {
					logger.Warn("journal flush failed", "frame", fi.Frame, "error", err)
				}
			}
			if fi.Frame%progressEvery == 0 {
				_ = reg.Submit(dispatch.RoleMain, func() {
					formatter.VerboseLog("frame %d: %d nodes (+%d -%d) dt=%.4f",
						fi.Frame, fi.Nodes, fi.Added, fi.Removed, fi.DeltaTime)
				})
			}
		}),
	)

	demo := buildDemo(cfg.Demo)
	if err := g.Submit(func() { demo.install(g) }); err != nil {
		return WrapExitError(ExitCommandError, "failed to install demo behaviors", err)
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		return g.Run(gctx, demo.root)
	})
	eg.Go(func() error {
		return watchSignals(gctx, logger, cancel)
	})

	done := make(chan error, 1)
	go func() { done <- eg.Wait() }()
	runErr := pumpMain(mainbox, done)
	mainbox.Close()
	mainbox.Drain()

	if j != nil {
		if err := j.EndRun(bg, g.Frame()); err != nil {
			logger.Error("failed to end journal run", "run", runID, "error", err)
		}
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "game error", runErr)
	}

	created, freed := dev.Stats()
	summary := RunSummary{
		RunID:          runID,
		Frames:         g.Frame(),
		BuffersCreated: created,
		BuffersFreed:   freed,
		LiveBuffers:    dev.Live(),
	}
	if opts.Format == "json" {
		return encodeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: summary, RunID: runID})
	}
	return formatter.Success(summary)
}

// pumpMain runs main-role tasks until the game group finishes.
func pumpMain(m *dispatch.Mailbox, done <-chan error) error {
	for {
		select {
		case <-m.Wait():
			m.Drain()
		case err := <-done:
			m.Drain()
			return err
		}
	}
}

// watchSignals cancels the run on SIGINT or SIGTERM.
func watchSignals(ctx context.Context, logger *slog.Logger, cancel context.CancelFunc) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	case <-ctx.Done():
	}
	return nil
}
