package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-mix/capture"
	"github.com/RyanBlaney/sonido-mix/config"
	"github.com/RyanBlaney/sonido-mix/console"
	"github.com/RyanBlaney/sonido-mix/features"
	"github.com/RyanBlaney/sonido-mix/logging"
	"github.com/RyanBlaney/sonido-mix/policy"
	"github.com/RyanBlaney/sonido-mix/reward"
	"github.com/RyanBlaney/sonido-mix/session"
	"github.com/RyanBlaney/sonido-mix/store"
)

type runOptions struct {
	wavPath  string
	bpm      float64
	duration time.Duration
	mode     string
	seed     uint64
	realtime bool
	noSave   bool
	jsonOut  bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a mixing session against a WAV file or the synthetic track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg, &opts)
			if err := cfg.Validate(); err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.duration > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, opts.duration)
				defer cancel()
			}

			summary, err := runSession(runCtx, cfg, opts.duration)
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), summary, opts.jsonOut)
		},
	}

	cmd.Flags().StringVar(&opts.wavPath, "wav", "", "WAV file to replay instead of the synthetic track")
	cmd.Flags().Float64Var(&opts.bpm, "bpm", 0, "Tempo of the synthetic track")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Decision strategy: heuristic, classifier or reinforcement")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Seed for the policy and synthetic source")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", true, "Pace capture to the source sample rate")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not load or save learned models")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the session summary as JSON")
	return cmd
}

// applyRunFlags layers explicitly set flags over the loaded configuration
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, opts *runOptions) {
	flags := cmd.Flags()
	if flags.Changed("wav") {
		cfg.Audio.WAVPath = strings.TrimSpace(opts.wavPath)
		if expanded, err := config.ExpandPath(cfg.Audio.WAVPath); err == nil {
			cfg.Audio.WAVPath = expanded
		}
	}
	if flags.Changed("bpm") {
		cfg.Audio.SyntheticBPM = opts.bpm
	}
	if flags.Changed("mode") {
		cfg.Policy.Mode = strings.ToLower(strings.TrimSpace(opts.mode))
	}
	if flags.Changed("seed") {
		cfg.Policy.Seed = opts.seed
		cfg.Audio.Seed = opts.seed
	}
	if flags.Changed("realtime") {
		cfg.Audio.Realtime = opts.realtime
	}
	if opts.noSave {
		cfg.Persistence.Enabled = false
	}
}

func openSource(cfg *config.Config, duration time.Duration) (capture.Source, error) {
	if cfg.Audio.WAVPath != "" {
		src, err := capture.NewWAVSource(cfg.Audio.WAVPath, cfg.WAVConfig())
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return capture.NewSyntheticSource(cfg.SyntheticConfig(duration)), nil
}

func runSession(ctx context.Context, cfg *config.Config, duration time.Duration) (session.Summary, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "cli",
	})

	source, err := openSource(cfg, duration)
	if err != nil {
		return session.Summary{}, fmt.Errorf("open source: %w", err)
	}

	extCfg, err := cfg.ExtractorConfig(source.SampleRate())
	if err != nil {
		return session.Summary{}, err
	}
	extractor, err := features.NewExtractor(extCfg)
	if err != nil {
		return session.Summary{}, err
	}

	polCfg, err := cfg.PolicyConfig()
	if err != nil {
		return session.Summary{}, err
	}
	pol, err := policy.New(cfg.PolicyMode(), polCfg, nil)
	if err != nil {
		return session.Summary{}, err
	}

	engine, err := reward.NewEngine(cfg.RewardConfig())
	if err != nil {
		return session.Summary{}, err
	}

	deps := session.Deps{
		Extractor:  extractor,
		Policy:     pol,
		Engine:     engine,
		Controller: console.NewSimulated(console.DefaultState()),
		Source:     source,
		Logger:     logger,
	}

	sesCfg := cfg.SessionConfig()
	if sesCfg.PersistenceEnabled {
		st, err := store.Open(sesCfg.ModelDir)
		if err != nil {
			// The session starts from empty state and saves nothing
			logger.Warn("Model store unavailable, continuing without persistence", logging.Fields{
				"model_dir": sesCfg.ModelDir,
				"error":     err.Error(),
			})
			sesCfg.PersistenceEnabled = false
		} else {
			defer st.Close()
			deps.Store = st
		}
	}

	sess, err := session.New(sesCfg, deps)
	if err != nil {
		return session.Summary{}, err
	}

	logger.Info("Starting session", logging.Fields{
		"session_id": sess.ID(),
		"mode":       string(cfg.PolicyMode()),
		"source":     sourceLabel(cfg),
	})

	if err := sess.Run(ctx); err != nil {
		return session.Summary{}, err
	}
	return sess.Summary(), nil
}

func sourceLabel(cfg *config.Config) string {
	if cfg.Audio.WAVPath != "" {
		return cfg.Audio.WAVPath
	}
	return fmt.Sprintf("synthetic %.1f BPM", cfg.Audio.SyntheticBPM)
}

func printSummary(out io.Writer, sum session.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	rows := [][]string{
		{"Session", sum.SessionID},
		{"Mode", string(sum.Mode)},
		{"Duration", sum.Duration.Round(time.Millisecond).String()},
		{"Cycles", fmt.Sprintf("%d", sum.Cycles)},
		{"Dispatch failures", fmt.Sprintf("%d", sum.DispatchFailures)},
		{"Average reward", fmt.Sprintf("%.4f", sum.AvgReward)},
		{"Last reward", fmt.Sprintf("%.4f", sum.LastReward)},
		{"Samples ingested", fmt.Sprintf("%d", sum.Extractor.Ingested)},
		{"Beats detected", fmt.Sprintf("%d", sum.Extractor.Beats)},
	}
	if sum.Mode == policy.ModeReinforcement {
		rows = append(rows,
			[]string{"Q-table states", fmt.Sprintf("%d", sum.Policy.TableSize)},
			[]string{"Exploration rate", fmt.Sprintf("%.4f", sum.Policy.ExplorationRate)},
			[]string{"Reward trend", fmt.Sprintf("%+.4f", sum.Policy.RewardTrend)},
		)
	}
	if sum.Mode == policy.ModeClassifier {
		rows = append(rows, []string{"Fallbacks", fmt.Sprintf("%d", sum.Policy.Fallbacks)})
	}
	rows = append(rows, []string{"Model saved", yesNo(sum.SnapshotID != "")})
	if sum.SnapshotID != "" {
		rows = append(rows, []string{"Snapshot", sum.SnapshotID})
	}
	if sum.CaptureErr != "" {
		rows = append(rows, []string{"Capture error", sum.CaptureErr})
	}

	fmt.Fprintln(out, "Session summary")
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	return nil
}
