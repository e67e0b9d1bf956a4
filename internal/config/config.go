package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Coder    CoderConfig    `mapstructure:"coder"`
	Muxer    MuxerConfig    `mapstructure:"muxer"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DebugEndpoints  bool          `mapstructure:"debug_endpoints"`
	// RateLimit is the API request budget per second; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	TTL          time.Duration `mapstructure:"ttl"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CoderConfig tunes the encode/decode state machine.
type CoderConfig struct {
	// PCMFallbackFrameSize replaces engine frame sizes of 0 or 1 for audio
	// encoders that still require fixed frames.
	PCMFallbackFrameSize int `mapstructure:"pcm_fallback_frame_size"`
	// RechunkerMaxSamples caps the rechunker accumulation buffer, per channel.
	RechunkerMaxSamples int `mapstructure:"rechunker_max_samples"`
	// PacketQueueDepth bounds the reference PCM engine's output queue.
	PacketQueueDepth int `mapstructure:"packet_queue_depth"`
}

// MuxerConfig tunes timestamp stamping and registry snapshots.
type MuxerConfig struct {
	// ClampPolicy is "on_collision" (default) or "always".
	ClampPolicy string `mapstructure:"clamp_policy"`
	// RepairPolicy is "monotonic" (default, repair any non-increasing dts)
	// or "on_collision" (repair only a repeated dts).
	RepairPolicy string `mapstructure:"repair_policy"`
	// SnapshotInterval is the number of written packets between registry
	// snapshots; 0 disables periodic snapshots.
	SnapshotInterval int `mapstructure:"snapshot_interval"`
	// RepairLogRate limits monotonicity repair log lines per second.
	RepairLogRate float64 `mapstructure:"repair_log_rate"`
}

// PipelineConfig drives the tone transcode job.
type PipelineConfig struct {
	Workers    int           `mapstructure:"workers"`
	SampleRate int           `mapstructure:"sample_rate"`
	Channels   int           `mapstructure:"channels"`
	Codec      string        `mapstructure:"codec"`
	FrameSize  int           `mapstructure:"frame_size"`
	ChunkSize  int           `mapstructure:"chunk_size"`
	Duration   time.Duration `mapstructure:"duration"`
	ToneHz     float64       `mapstructure:"tone_hz"`
	OutputDir  string        `mapstructure:"output_dir"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix("AVCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen_addr", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug_endpoints", false)
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.key_prefix", "avcore:containers:")
	v.SetDefault("redis.ttl", "10m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Coder defaults
	v.SetDefault("coder.pcm_fallback_frame_size", 576)
	v.SetDefault("coder.rechunker_max_samples", 1<<20)
	v.SetDefault("coder.packet_queue_depth", 8)

	// Muxer defaults
	v.SetDefault("muxer.clamp_policy", "on_collision")
	v.SetDefault("muxer.repair_policy", "monotonic")
	v.SetDefault("muxer.snapshot_interval", 500)
	v.SetDefault("muxer.repair_log_rate", 1.0)

	// Pipeline defaults
	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.sample_rate", 48000)
	v.SetDefault("pipeline.channels", 2)
	v.SetDefault("pipeline.codec", "pcm_s16le")
	v.SetDefault("pipeline.frame_size", 1024)
	v.SetDefault("pipeline.chunk_size", 441)
	v.SetDefault("pipeline.duration", "1500ms")
	v.SetDefault("pipeline.tone_hz", 440.0)
	v.SetDefault("pipeline.output_dir", "out")
}
