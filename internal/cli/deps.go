package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"clipcut/internal/config"
	"clipcut/internal/deps"
	"clipcut/internal/ports/adapters/whisperx"
	"clipcut/internal/state"
)

func newDepsCommand(ctx *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check and prefetch transcription model dependencies",
	}
	cmd.AddCommand(newDepsCheckCommand(ctx))
	cmd.AddCommand(newDepsEnsureCommand(ctx))
	return cmd
}

func depsSetup(cfg *config.Config, log *logrus.Logger, model string, languages []string) (*deps.Manager, []deps.Spec) {
	fetcher := whisperx.New(whisperx.Options{
		Bin:         cfg.Transcription.Bin,
		HubBin:      cfg.Transcription.HubBin,
		ModelSize:   model,
		Device:      cfg.Transcription.Device,
		ComputeType: cfg.Transcription.ComputeType,
		OutputDir:   filepath.Join(cfg.Paths.OutputDir, "transcripts"),
		Logger:      log,
	})
	manager := deps.NewManager(filepath.Join(cfg.Paths.OutputDir, ".deps"))
	specs := manager.BuildRequired(fetcher, model, languages, cfg.Transcription.Device, cfg.Transcription.ComputeType)
	return manager, specs
}

func newDepsCheckCommand(ctx *appContext) *cobra.Command {
	var model string
	var languages []string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report which model weights are already installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, log *logrus.Logger, store *state.Store) error {
				if model == "" {
					model = cfg.Transcription.Model
				}
				_, specs := depsSetup(cfg, log, model, languages)

				rows := make([][]string, 0, len(specs))
				for _, spec := range specs {
					status := "missing"
					if spec.Check != nil && spec.Check() {
						status = "installed"
					}
					rows = append(rows, []string{spec.Key, spec.Description, status})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Dependency", "Status"}, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Whisper model size (default: from config)")
	cmd.Flags().StringSliceVar(&languages, "languages", nil, "Alignment model languages")
	return cmd
}

func newDepsEnsureCommand(ctx *appContext) *cobra.Command {
	var model string
	var languages []string
	var attempts int
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Download any missing model weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, log *logrus.Logger, store *state.Store) error {
				if model == "" {
					model = cfg.Transcription.Model
				}
				manager, specs := depsSetup(cfg, log, model, languages)

				res := manager.EnsureAll(cmd.Context(), specs, newConsoleReporter(log), consoleOnError(log), attempts)
				if !res.OK() {
					return fmt.Errorf("dependencies unmet: %s", deps.Summary(res))
				}
				log.Info(deps.Summary(res))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Whisper model size (default: from config)")
	cmd.Flags().StringSliceVar(&languages, "languages", nil, "Alignment model languages")
	cmd.Flags().IntVar(&attempts, "attempts", 3, "Max download attempts per dependency")
	return cmd
}

// consoleReporter logs ensure progress. Cancellation comes from the command
// context, not the reporter, so IsCancelled always answers false here.
type consoleReporter struct {
	log *logrus.Logger
}

func newConsoleReporter(log *logrus.Logger) *consoleReporter {
	return &consoleReporter{log: log}
}

func (r *consoleReporter) Report(p deps.Progress) {
	entry := r.log.WithFields(logrus.Fields{
		"dependency": p.Key,
		"step":       fmt.Sprintf("%d/%d", p.Index, p.Total),
	})
	switch p.Status {
	case deps.StatusError:
		entry.WithField("attempt", p.Attempt).Warnf("%s: %s", p.Description, p.Message)
	case deps.StatusSkipped:
		entry.Debugf("%s: %s", p.Description, p.Message)
	case deps.StatusDownloading:
		entry.Infof("downloading %s (attempt %d)", p.Description, p.Attempt)
	case deps.StatusDone:
		entry.Infof("%s ready", p.Description)
	default:
		entry.Debugf("checking %s", p.Description)
	}
}

func (r *consoleReporter) IsCancelled() bool { return false }

// consoleOnError asks the user what to do after a failed download when
// attached to a terminal; otherwise it cancels, which is the safe default
// for unattended runs.
func consoleOnError(log *logrus.Logger) deps.OnErrorFunc {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return nil
	}
	reader := bufio.NewReader(os.Stdin)
	return func(p deps.Progress, err error) deps.Decision {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n[r]etry, [s]kip, [c]ancel? ", p.Description, err)
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			return deps.DecisionCancel
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "r", "retry":
			return deps.DecisionRetry
		case "s", "skip":
			return deps.DecisionSkip
		default:
			return deps.DecisionCancel
		}
	}
}
