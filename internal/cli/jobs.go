package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"clipcut/internal/config"
	"clipcut/internal/core"
	"clipcut/internal/deps"
	"clipcut/internal/export"
	"clipcut/internal/logging"
	"clipcut/internal/ports/adapters/openrouter"
	"clipcut/internal/ports/adapters/reframer"
	"clipcut/internal/ports/adapters/whisperx"
	"clipcut/internal/state"
	"clipcut/internal/subtitles"
)

func newJobsCommand(ctx *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue, inspect and run pipeline jobs",
	}
	cmd.AddCommand(newJobsEnqueueCommand(ctx))
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsRunCommand(ctx))
	return cmd
}

type enqueueFlags struct {
	videos          []string
	steps           []string
	language        string
	minClips        int
	maxClips        int
	aspectRatio     string
	subtitlesOn     bool
	subtitleStyle   string
	organizeByStyle bool
	faceTracking    bool
	logo            string
	logoPosition    string
	logoScale       float64
	trimStartMS     int
	trimEndMS       int
	crf             int
	threads         int
	shortFilename   string
	rerun           bool
}

func newJobsEnqueueCommand(ctx *appContext) *cobra.Command {
	var f enqueueFlags
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a job over registered videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, log *logrus.Logger, store *state.Store) error {
				spec, err := buildJobSpec(cmd.Context(), cfg, store, f)
				if err != nil {
					return err
				}
				if err := store.EnqueueJob(cmd.Context(), spec); err != nil {
					return err
				}
				log.WithField("job", spec.JobID).Info("job enqueued")
				fmt.Fprintln(cmd.OutOrStdout(), spec.JobID)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&f.videos, "videos", nil, "Video IDs to process (required)")
	cmd.Flags().StringSliceVar(&f.steps, "steps", []string{"transcribe", "generate_clips", "export_clips"}, "Ordered pipeline steps")
	cmd.Flags().StringVar(&f.language, "language", "", "Transcription language (default: auto-detect)")
	cmd.Flags().IntVar(&f.minClips, "min-clips", 3, "Minimum clips to request")
	cmd.Flags().IntVar(&f.maxClips, "max-clips", 10, "Maximum clips to request")
	cmd.Flags().StringVar(&f.aspectRatio, "aspect-ratio", "", "Target aspect ratio: 16:9, 9:16 or 1:1")
	cmd.Flags().BoolVar(&f.subtitlesOn, "subtitles", false, "Burn subtitles into exported clips")
	cmd.Flags().StringVar(&f.subtitleStyle, "subtitle-style", "", "Subtitle style preset")
	cmd.Flags().BoolVar(&f.organizeByStyle, "organize-by-style", false, "Group exported clips into per-style directories")
	cmd.Flags().BoolVar(&f.faceTracking, "face-tracking", false, "Use face-tracking reframe for 9:16 exports")
	cmd.Flags().StringVar(&f.logo, "logo", "", "Overlay logo image path")
	cmd.Flags().StringVar(&f.logoPosition, "logo-position", "", "Logo corner: top-left, top-right, bottom-left, bottom-right")
	cmd.Flags().Float64Var(&f.logoScale, "logo-scale", 0, "Logo width as a fraction of video width")
	cmd.Flags().IntVar(&f.trimStartMS, "trim-start-ms", 0, "Max leading silence to keep, in milliseconds")
	cmd.Flags().IntVar(&f.trimEndMS, "trim-end-ms", 0, "Max trailing silence to keep, in milliseconds")
	cmd.Flags().IntVar(&f.crf, "crf", 0, "x264 CRF override")
	cmd.Flags().IntVar(&f.threads, "threads", 0, "ffmpeg thread count (0 = auto, negative = cores+n)")
	cmd.Flags().StringVar(&f.shortFilename, "short-filename", "", "Output filename for export_shorts")
	cmd.Flags().BoolVar(&f.rerun, "rerun", false, "Redo steps whose artifacts already exist")
	_ = cmd.MarkFlagRequired("videos")
	return cmd
}

// buildJobSpec validates the requested steps and videos and folds config
// defaults under the flag values.
func buildJobSpec(ctx context.Context, cfg *config.Config, store *state.Store, f enqueueFlags) (core.JobSpec, error) {
	if len(f.videos) == 0 {
		return core.JobSpec{}, errors.New("at least one video is required")
	}
	steps := make([]core.JobStep, 0, len(f.steps))
	for _, raw := range f.steps {
		step, err := core.ParseStep(strings.TrimSpace(raw))
		if err != nil {
			return core.JobSpec{}, err
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return core.JobSpec{}, errors.New("at least one step is required")
	}
	for _, videoID := range f.videos {
		if _, ok, err := store.GetVideoState(ctx, videoID); err != nil {
			return core.JobSpec{}, err
		} else if !ok {
			return core.JobSpec{}, fmt.Errorf("video %q is not registered; run videos add first", videoID)
		}
	}

	aspect := f.aspectRatio
	if aspect == "" {
		aspect = cfg.Export.AspectRatio
	}
	style := f.subtitleStyle
	if style == "" {
		style = cfg.Export.SubtitleStyle
	}
	logoPath := f.logo
	if logoPath == "" {
		logoPath = cfg.Export.LogoPath
	}
	logoPosition := f.logoPosition
	if logoPosition == "" {
		logoPosition = cfg.Export.LogoPosition
	}
	logoScale := f.logoScale
	if logoScale == 0 {
		logoScale = cfg.Export.LogoScale
	}
	crf := f.crf
	if crf == 0 {
		crf = cfg.Export.VideoCRF
	}
	threads := f.threads
	if threads == 0 {
		threads = cfg.Export.Threads
	}

	var skipDone *bool
	if f.rerun {
		no := false
		skipDone = &no
	}

	settings := core.JobSettings{
		Transcribe: core.TranscribeSettings{
			Model:       cfg.Transcription.Model,
			Device:      cfg.Transcription.Device,
			ComputeType: cfg.Transcription.ComputeType,
			Language:    f.language,
			SkipDone:    skipDone,
		},
		Clips: core.ClipSettings{
			MinClips: f.minClips,
			MaxClips: f.maxClips,
			SkipDone: skipDone,
		},
		Export: core.ExportSettings{
			AspectRatio:            aspect,
			AddSubtitles:           f.subtitlesOn,
			SubtitleStyle:          style,
			OrganizeByStyle:        f.organizeByStyle,
			EnableFaceTracking:     f.faceTracking,
			FaceTrackingStrategy:   cfg.FaceTracking.Strategy,
			FaceTrackingSampleRate: cfg.FaceTracking.SampleRate,
			AddLogo:                f.logo != "" || (f.logoPosition != "" && cfg.Export.LogoPath != ""),
			LogoPath:               logoPath,
			LogoPosition:           logoPosition,
			LogoScale:              logoScale,
			TrimStartMS:            f.trimStartMS,
			TrimEndMS:              f.trimEndMS,
			VideoCRF:               crf,
			FFmpegThreads:          threads,
			SkipDone:               skipDone,
		},
		Shorts: core.ShortsSettings{
			Filename:      f.shortFilename,
			AddSubtitles:  f.subtitlesOn,
			SubtitleStyle: style,
			AddLogo:       f.logo != "",
			LogoPath:      logoPath,
			LogoPosition:  logoPosition,
			LogoScale:     logoScale,
			TrimStartMS:   f.trimStartMS,
			TrimEndMS:     f.trimEndMS,
			SkipDone:      skipDone,
		},
	}

	return core.JobSpec{
		JobID:    uuid.NewString(),
		VideoIDs: f.videos,
		Steps:    steps,
		Settings: settings,
	}, nil
}

func newJobsListCommand(ctx *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued and finished jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, log *logrus.Logger, store *state.Store) error {
				jobs, err := store.ListJobs(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(jobs))
				for _, rec := range jobs {
					stepNames := make([]string, 0, len(rec.Spec.Steps))
					for _, s := range rec.Spec.Steps {
						stepNames = append(stepNames, string(s))
					}
					rows = append(rows, []string{
						rec.Spec.JobID,
						strings.Join(rec.Spec.VideoIDs, ","),
						strings.Join(stepNames, ","),
						string(rec.Status.State),
						fmt.Sprintf("%d/%d", rec.Status.ProgressCurrent, rec.Status.ProgressTotal),
						rec.Status.Error,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "Videos", "Steps", "State", "Progress", "Error"}, rows))
				return nil
			})
		},
	}
}

func newJobsRunCommand(ctx *appContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "run [job-id]",
		Short: "Run the next pending job, a specific job, or the whole queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("--all cannot be combined with a job id")
			}
			return ctx.withStore(func(cfg *config.Config, log *logrus.Logger, store *state.Store) error {
				runner := buildRunner(cfg, log, store)

				if len(args) == 1 {
					rec, err := store.GetJob(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if rec.Status.State.Terminal() {
						return fmt.Errorf("job %s already finished (%s)", args[0], rec.Status.State)
					}
					return reportJob(runner.RunJob(cmd.Context(), rec.Spec))
				}

				ran := 0
				for {
					spec, ok, err := store.DequeueNextJob(cmd.Context())
					if err != nil {
						return err
					}
					if !ok {
						if ran == 0 {
							log.Info("job queue is empty")
						}
						return nil
					}
					if err := reportJob(runner.RunJob(cmd.Context(), spec)); err != nil {
						return err
					}
					ran++
					if !all {
						return nil
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Drain the queue, running jobs in FIFO order")
	return cmd
}

func reportJob(status core.JobStatus) error {
	if status.State == core.StateFailed {
		return fmt.Errorf("job failed: %s", status.Error)
	}
	return nil
}

// buildRunner assembles the pipeline from config: sqlite state store, the
// whisperx transcriber (which doubles as the model fetcher), the OpenRouter
// detector, the ffmpeg render engine and the dependency gate.
func buildRunner(cfg *config.Config, log *logrus.Logger, store *state.Store) *core.Runner {
	transcriber := whisperx.New(whisperx.Options{
		Bin:         cfg.Transcription.Bin,
		HubBin:      cfg.Transcription.HubBin,
		ModelSize:   cfg.Transcription.Model,
		Device:      cfg.Transcription.Device,
		ComputeType: cfg.Transcription.ComputeType,
		OutputDir:   filepath.Join(cfg.Paths.OutputDir, "transcripts"),
		Logger:      log,
	})
	detector := openrouter.New(openrouter.Options{
		APIKey:            cfg.Detector.APIKey,
		Model:             cfg.Detector.Model,
		BaseURL:           cfg.Detector.BaseURL,
		MinClipSeconds:    cfg.Detector.MinClipSeconds,
		MaxClipSeconds:    cfg.Detector.MaxClipSeconds,
		RequestsPerMinute: cfg.Detector.RequestsPerMinute,
		Logger:            log,
	})
	reframe := reframer.New(cfg.FaceTracking.Bin, cfg.FaceTracking.Strategy, cfg.FaceTracking.SampleRate)
	engine := export.New(cfg.Export.FFmpegBin, cfg.Export.FFprobeBin, subtitles.NewWriter(), reframe, log)

	manager := deps.NewManager(filepath.Join(cfg.Paths.OutputDir, ".deps"))
	gate := deps.NewTranscriptionGate(manager, transcriber, newConsoleReporter(log), consoleOnError(log), 3)

	return core.NewRunner(core.RunnerOptions{
		Store:       store,
		Exporter:    engine,
		Gate:        gate,
		Transcriber: transcriber,
		Detector:    detector,
		Emit:        logging.EventSink(log),
		OutputDir:   cfg.Paths.OutputDir,
	})
}
