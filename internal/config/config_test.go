package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:         true,
			ListenAddr:      "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{Enabled: false},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Coder: CoderConfig{
			PCMFallbackFrameSize: 576,
			RechunkerMaxSamples:  1 << 20,
			PacketQueueDepth:     8,
		},
		Muxer: MuxerConfig{
			ClampPolicy:      "on_collision",
			SnapshotInterval: 500,
			RepairLogRate:    1,
		},
		Pipeline: PipelineConfig{
			Workers:    2,
			SampleRate: 48000,
			Channels:   2,
			Codec:      "pcm_s16le",
			FrameSize:  1024,
			ChunkSize:  441,
			Duration:   1500 * time.Millisecond,
			ToneHz:     440,
			OutputDir:  "out",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server config",
		},
		{
			name:    "rate limit without burst",
			mutate:  func(c *Config) { c.Server.RateLimit = 10; c.Server.RateBurst = 0 },
			wantErr: "rate_burst",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging config",
		},
		{
			name:    "fallback frame size too small",
			mutate:  func(c *Config) { c.Coder.PCMFallbackFrameSize = 1 },
			wantErr: "coder config",
		},
		{
			name:    "unknown clamp policy",
			mutate:  func(c *Config) { c.Muxer.ClampPolicy = "never" },
			wantErr: "muxer config",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Pipeline.Workers = 0 },
			wantErr: "pipeline config",
		},
		{
			name: "metrics without server",
			mutate: func(c *Config) {
				c.Server.Enabled = false
			},
			wantErr: "metrics are served by the HTTP server",
		},
		{
			name: "server disabled with metrics off",
			mutate: func(c *Config) {
				c.Server.Enabled = false
				c.Metrics.Enabled = false
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 576, cfg.Coder.PCMFallbackFrameSize)
	assert.Equal(t, "on_collision", cfg.Muxer.ClampPolicy)
	assert.Equal(t, "monotonic", cfg.Muxer.RepairPolicy)
	assert.Equal(t, 48000, cfg.Pipeline.SampleRate)
	assert.Equal(t, 1500*time.Millisecond, cfg.Pipeline.Duration)
	assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addresses)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avcore.yaml")
	configContent := `
server:
  port: 9090

logging:
  level: "debug"
  format: "text"

muxer:
  clamp_policy: "always"

pipeline:
  workers: 4
  sample_rate: 44100
  duration: "2s"
`
	require.NoError(t, os.WriteFile(path, []byte(configContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "always", cfg.Muxer.ClampPolicy)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 44100, cfg.Pipeline.SampleRate)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.Duration)
	// Untouched sections keep their defaults.
	assert.Equal(t, 2, cfg.Pipeline.Channels)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("coder:\n  pcm_fallback_frame_size: 0\n"), 0o644))

	cfg, err := Load(path)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("AVCORE_PIPELINE_WORKERS", "7")
	t.Setenv("AVCORE_MUXER_CLAMP_POLICY", "always")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.Workers)
	assert.Equal(t, "always", cfg.Muxer.ClampPolicy)
}
