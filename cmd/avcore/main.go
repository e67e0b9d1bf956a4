package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zsiec/avcore/internal/coder"
	"github.com/zsiec/avcore/internal/coder/pcm"
	"github.com/zsiec/avcore/internal/config"
	"github.com/zsiec/avcore/internal/health"
	"github.com/zsiec/avcore/internal/logger"
	"github.com/zsiec/avcore/internal/media/types"
	"github.com/zsiec/avcore/internal/registry"
	"github.com/zsiec/avcore/pkg/version"
)

// app holds what every subcommand needs once the config is loaded.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "avcore",
		Short:         "Audio/video coding core: coder state machine, rechunking and timestamp stamping",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(newServeCmd(a), newToneCmd(a), newVersionCmd())
	return root
}

// load reads the config and builds the logger. Subcommands call it first.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return err
		}
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.log = log

	log.WithFields(version.GetInfo().Fields()).Info("Starting avcore")
	if a.configPath != "" {
		log.WithField("config_path", a.configPath).Debug("Configuration loaded")
	}
	return nil
}

// openStore returns the Redis registry when enabled and an in-memory one
// otherwise. The client is nil for the memory store.
func (a *app) openStore(ctx context.Context) (registry.Store, *redis.Client, error) {
	if !a.cfg.Redis.Enabled {
		a.log.Info("Redis disabled, using in-memory container registry")
		return registry.NewMemoryStore(), nil, nil
	}
	client := registry.NewRedisClient(&a.cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.log.WithField("addresses", a.cfg.Redis.Addresses).Info("Connected to Redis")
	return registry.NewRedisStore(client, a.log, a.cfg.Redis.KeyPrefix, a.cfg.Redis.TTL), client, nil
}

func (a *app) engine() *pcm.Engine {
	return pcm.NewEngine(
		pcm.WithLogger(logger.FromLogrus(a.log)),
		pcm.WithQueueDepth(a.cfg.Coder.PacketQueueDepth),
	)
}

// engineChecker requires the pipeline codec and smoke-encodes its layout.
func (a *app) engineChecker(engine coder.CodecEngine) *health.EngineChecker {
	p := a.cfg.Pipeline
	codec := types.CodecID(p.Codec)
	checker := health.NewEngineChecker("codec_engine", engine, codec)

	format, ok := pcm.SampleFormatFor(codec)
	if !ok {
		return checker
	}
	tb, err := types.SampleTimeBase(p.SampleRate)
	if err != nil {
		return checker
	}
	return checker.WithSmokeEncode(coder.CodecParams{
		Codec:        codec,
		Kind:         types.MediaKindAudio,
		TimeBase:     tb,
		SampleRate:   p.SampleRate,
		Channels:     p.Channels,
		SampleFormat: format,
	})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
