// Package pipeline runs tone transcode jobs: a generated sine tone is
// encoded by a Coder, stamped by a Muxer and written to a WebM file. Each
// worker owns its Coder and container.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/avcore/internal/coder"
	"github.com/zsiec/avcore/internal/coder/pcm"
	"github.com/zsiec/avcore/internal/config"
	"github.com/zsiec/avcore/internal/logger"
	"github.com/zsiec/avcore/internal/media/types"
	"github.com/zsiec/avcore/internal/metrics"
	"github.com/zsiec/avcore/internal/muxer"
	"github.com/zsiec/avcore/internal/muxer/webm"
	"github.com/zsiec/avcore/internal/registry"
)

// Options carry the collaborators of a Runner.
type Options struct {
	Logger *logrus.Logger
	// Store receives container snapshots. Optional.
	Store registry.Store
	Coder config.CoderConfig
	Muxer config.MuxerConfig
}

// Result describes one finished job.
type Result struct {
	Worker      int           `json:"worker"`
	ContainerID string        `json:"container_id"`
	Path        string        `json:"path"`
	Samples     int64         `json:"samples"`
	Packets     int64         `json:"packets"`
	Bytes       int64         `json:"bytes"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Runner fans tone jobs out over cfg.Workers goroutines.
type Runner struct {
	cfg    config.PipelineConfig
	engine coder.CodecEngine
	opts   Options
	clamp  muxer.ClampPolicy
	repair muxer.RepairPolicy
	log    *logrus.Entry
}

// New validates cfg and creates a Runner encoding with engine.
func New(cfg *config.PipelineConfig, engine coder.CodecEngine, opts Options) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if engine == nil {
		return nil, fmt.Errorf("codec engine required")
	}
	if !engine.ProbeEncode(types.CodecID(cfg.Codec)) {
		return nil, fmt.Errorf("engine cannot encode %s", cfg.Codec)
	}

	clamp := muxer.ClampOnCollision
	if opts.Muxer.ClampPolicy != "" {
		p, err := muxer.ParseClampPolicy(opts.Muxer.ClampPolicy)
		if err != nil {
			return nil, err
		}
		clamp = p
	}
	repair, err := muxer.ParseRepairPolicy(opts.Muxer.RepairPolicy)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetLevel(logrus.PanicLevel)
	}

	return &Runner{
		cfg:    *cfg,
		engine: engine,
		opts:   opts,
		clamp:  clamp,
		repair: repair,
		log:    logger.WithComponent(opts.Logger, "pipeline"),
	}, nil
}

// Run executes one job per worker and waits for all of them. The first
// failing job cancels the others. Results are indexed by worker.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	results := make([]Result, r.cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			res, err := r.runJob(gctx, worker)
			results[worker] = res
			if err != nil {
				return fmt.Errorf("worker %d: %w", worker, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) runJob(ctx context.Context, worker int) (Result, error) {
	start := time.Now()
	metrics.IncrementWorkersActive()
	defer metrics.DecrementWorkersActive()

	ctx = logger.WithEntry(ctx, r.log.WithField("worker", worker))
	res, err := r.transcode(ctx, worker)
	res.Elapsed = time.Since(start)

	status := "ok"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
	case err != nil:
		status = "error"
	}
	metrics.RecordPipelineJob(status, res.Elapsed.Seconds())

	entry := logger.FromContext(ctx).WithFields(logrus.Fields{
		"container_id": res.ContainerID,
		"packets":      res.Packets,
		"samples":      res.Samples,
		"duration_ms":  res.Elapsed.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("Tone job failed")
	} else {
		entry.Info("Tone job finished")
	}
	return res, err
}

func (r *Runner) transcode(ctx context.Context, worker int) (res Result, err error) {
	res.Worker = worker
	log := logger.NewLogrusAdapter(logger.FromContext(ctx))

	codec := types.CodecID(r.cfg.Codec)
	format, ok := pcm.SampleFormatFor(codec)
	if !ok {
		format = types.SampleFormatS16
	}
	tb, err := types.SampleTimeBase(r.cfg.SampleRate)
	if err != nil {
		return res, err
	}

	enc, err := coder.NewEncoder(r.engine, coder.CodecParams{
		Codec:        codec,
		Kind:         types.MediaKindAudio,
		TimeBase:     tb,
		SampleRate:   r.cfg.SampleRate,
		Channels:     r.cfg.Channels,
		SampleFormat: format,
	}, coder.Options{
		Logger:               log,
		PCMFallbackFrameSize: r.opts.Coder.PCMFallbackFrameSize,
		RechunkerMaxSamples:  r.opts.Coder.RechunkerMaxSamples,
	})
	if err != nil {
		return res, err
	}
	defer enc.Close()

	options := map[string]string{}
	if r.cfg.FrameSize > 0 {
		options[pcm.OptionFrameSize] = strconv.Itoa(r.cfg.FrameSize)
	}
	unset, err := enc.Open(options)
	if err != nil {
		return res, err
	}
	if len(unset) > 0 {
		log.WithField("options", unset).Debug("Engine ignored options")
	}

	res.Path = filepath.Join(r.cfg.OutputDir, fmt.Sprintf("tone_%d.webm", worker))
	f, err := os.Create(res.Path)
	if err != nil {
		return res, fmt.Errorf("create output: %w", err)
	}

	mux, err := muxer.New(webm.NewWriter(f, r.opts.Logger), muxer.Options{
		Output:           res.Path,
		Logger:           log,
		ClampPolicy:      r.clamp,
		RepairPolicy:     r.repair,
		RepairLogRate:    r.opts.Muxer.RepairLogRate,
		Store:            r.opts.Store,
		SnapshotInterval: r.opts.Muxer.SnapshotInterval,
	})
	if err != nil {
		f.Close()
		return res, err
	}
	res.ContainerID = mux.ID()

	// The snapshot published on close must survive a cancelled job.
	closeCtx := context.WithoutCancel(ctx)
	defer func() {
		if cerr := mux.Close(closeCtx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	info := muxer.InfoFromCoder(enc)
	info.TimeBase = webm.TimeBase
	index, err := mux.AddStream(info)
	if err != nil {
		return res, err
	}
	if err := mux.WriteHeader(ctx); err != nil {
		return res, err
	}

	total := int64(r.cfg.Duration) * int64(r.cfg.SampleRate) / int64(time.Second)
	src, err := NewToneSource(r.cfg.SampleRate, r.cfg.Channels, format, r.cfg.ToneHz, r.cfg.ChunkSize, total)
	if err != nil {
		return res, err
	}
	frame, err := types.NewAudioFrame(r.cfg.SampleRate, r.cfg.Channels, format, r.cfg.ChunkSize)
	if err != nil {
		return res, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		more, err := src.Next(frame)
		if err != nil {
			return res, err
		}
		var unit types.MediaUnit
		if more {
			unit = frame
		}
		if _, err := enc.Send(unit); err != nil {
			return res, err
		}
		res.Samples = src.Generated()

		eos, err := drain(ctx, enc, mux, index, &res)
		if err != nil {
			return res, err
		}
		if eos {
			return res, nil
		}
	}
}

// drain receives packets into the muxer until the encoder wants input or
// reaches end of stream. It reports whether end of stream was reached.
func drain(ctx context.Context, enc *coder.Coder, mux *muxer.Muxer, index int, res *Result) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		// The container may still reference the payload, so each packet is fresh.
		pkt := types.NewPacket()
		outcome, err := enc.Receive(pkt)
		if err != nil {
			return false, err
		}
		switch outcome {
		case coder.ReceiveAwaitingInput:
			return false, nil
		case coder.ReceiveEndOfStream:
			return true, nil
		}

		pkt.StreamIndex = index
		n := len(pkt.Data)
		status, err := mux.WritePacket(ctx, pkt)
		if err != nil {
			return false, err
		}
		switch status {
		case coder.StatusOK:
			res.Packets++
			res.Bytes += int64(n)
		case coder.StatusEOF:
			return false, fmt.Errorf("container output closed")
		default:
			return false, fmt.Errorf("container writer returned %s", status)
		}
	}
}
