package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"clipcut/internal/config"
	"clipcut/internal/state"
)

func newVideosCommand(ctx *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "videos",
		Short: "Register and inspect source videos",
	}
	cmd.AddCommand(newVideosAddCommand(ctx))
	cmd.AddCommand(newVideosListCommand(ctx))
	return cmd
}

func newVideosAddCommand(ctx *appContext) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Register local video files for processing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id != "" && len(args) > 1 {
				return fmt.Errorf("--id can only be used with a single path")
			}
			return ctx.withStore(func(cfg *config.Config, log *logrus.Logger, store *state.Store) error {
				for _, arg := range args {
					path, err := filepath.Abs(arg)
					if err != nil {
						return err
					}
					info, err := os.Stat(path)
					if err != nil {
						return fmt.Errorf("video file: %w", err)
					}
					if info.IsDir() {
						return fmt.Errorf("%s is a directory", path)
					}

					videoID := id
					if videoID == "" {
						videoID = videoIDFromPath(path)
					}
					filename := filepath.Base(path)
					contentType := mime.TypeByExtension(filepath.Ext(path))
					if err := store.RegisterVideo(cmd.Context(), videoID, filename, path, contentType); err != nil {
						return err
					}
					log.WithFields(logrus.Fields{"video": videoID, "path": path}).Info("video registered")
					fmt.Fprintln(cmd.OutOrStdout(), videoID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Video ID (default: derived from filename)")
	return cmd
}

// videoIDFromPath turns "My Talk (final).mp4" into "my_talk_final".
func videoIDFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(stem) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "video"
	}
	return out
}

func newVideosListCommand(ctx *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered videos and their pipeline progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, log *logrus.Logger, store *state.Store) error {
				videos, err := store.ListVideos(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(videos))
				for _, v := range videos {
					rows = append(rows, []string{
						v.VideoID,
						v.Filename,
						yesNo(v.Transcribed),
						strconv.Itoa(len(v.Clips)),
						strconv.Itoa(len(v.ExportedClips)),
						yesNo(v.ShortsExported),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "File", "Transcribed", "Clips", "Exported", "Short"}, rows))
				return nil
			})
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
