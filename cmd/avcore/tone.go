package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zsiec/avcore/internal/pipeline"
)

func newToneCmd(a *app) *cobra.Command {
	var (
		workers   int
		duration  time.Duration
		outputDir string
		codec     string
		frameSize int
	)

	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Encode a generated sine tone into WebM files",
		Long: "Encode a generated sine tone into WebM files, one per worker.\n" +
			"Each worker drives its own encoder, so chunk_size != frame_size exercises the rechunker.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(); err != nil {
				return err
			}
			p := &a.cfg.Pipeline
			flags := cmd.Flags()
			if flags.Changed("workers") {
				p.Workers = workers
			}
			if flags.Changed("duration") {
				p.Duration = duration
			}
			if flags.Changed("output-dir") {
				p.OutputDir = outputDir
			}
			if flags.Changed("codec") {
				p.Codec = codec
			}
			if flags.Changed("frame-size") {
				p.FrameSize = frameSize
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.tone(ctx, cmd)
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of parallel jobs")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "tone length per job")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for the WebM files")
	cmd.Flags().StringVar(&codec, "codec", "", "encoder codec, e.g. pcm_s16le or pcm_f32le")
	cmd.Flags().IntVar(&frameSize, "frame-size", 0, "fixed encoder frame size; 0 accepts any size")
	return cmd
}

func (a *app) tone(ctx context.Context, cmd *cobra.Command) error {
	store, _, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	runner, err := pipeline.New(&a.cfg.Pipeline, a.engine(), pipeline.Options{
		Logger: a.log,
		Store:  store,
		Coder:  a.cfg.Coder,
		Muxer:  a.cfg.Muxer,
	})
	if err != nil {
		return err
	}

	results, runErr := runner.Run(ctx)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}
	return runErr
}
