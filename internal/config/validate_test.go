package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedisConfigValidate(t *testing.T) {
	valid := RedisConfig{
		Enabled:      true,
		Addresses:    []string{"localhost:6379"},
		MaxRetries:   3,
		PoolSize:     20,
		MinIdleConns: 2,
		KeyPrefix:    "avcore:containers:",
		TTL:          time.Minute,
	}

	tests := []struct {
		name    string
		mutate  func(*RedisConfig)
		wantErr bool
		errMsg  string
	}{
		{name: "valid config", mutate: func(r *RedisConfig) {}},
		{
			name:   "disabled skips checks",
			mutate: func(r *RedisConfig) { r.Enabled = false; r.Addresses = nil },
		},
		{
			name:    "missing addresses",
			mutate:  func(r *RedisConfig) { r.Addresses = []string{} },
			wantErr: true,
			errMsg:  "at least one Redis address is required",
		},
		{
			name:    "negative DB",
			mutate:  func(r *RedisConfig) { r.DB = -1 },
			wantErr: true,
			errMsg:  "invalid Redis database number",
		},
		{
			name:    "zero pool size",
			mutate:  func(r *RedisConfig) { r.PoolSize = 0; r.MinIdleConns = 0 },
			wantErr: true,
			errMsg:  "pool_size must be positive",
		},
		{
			name:    "min idle conns greater than pool size",
			mutate:  func(r *RedisConfig) { r.MinIdleConns = 50 },
			wantErr: true,
			errMsg:  "min_idle_conns cannot be greater than pool_size",
		},
		{
			name:    "empty key prefix",
			mutate:  func(r *RedisConfig) { r.KeyPrefix = "" },
			wantErr: true,
			errMsg:  "key_prefix cannot be empty",
		},
		{
			name:    "zero ttl",
			mutate:  func(r *RedisConfig) { r.TTL = 0 },
			wantErr: true,
			errMsg:  "ttl must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoggingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  LoggingConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid stdout",
			config: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name:   "valid file",
			config: LoggingConfig{Level: "debug", Format: "text", Output: "/var/log/avcore.log", MaxSize: 10},
		},
		{
			name:    "invalid level",
			config:  LoggingConfig{Level: "loud", Format: "json", Output: "stdout"},
			wantErr: true,
			errMsg:  "invalid log level",
		},
		{
			name:    "invalid format",
			config:  LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
			wantErr: true,
			errMsg:  "log format must be",
		},
		{
			name:    "file output without max size",
			config:  LoggingConfig{Level: "info", Format: "json", Output: "/tmp/avcore.log"},
			wantErr: true,
			errMsg:  "max_size must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetricsConfigValidate(t *testing.T) {
	assert.NoError(t, (&MetricsConfig{Enabled: true, Path: "/metrics"}).Validate())
	assert.NoError(t, (&MetricsConfig{Enabled: false}).Validate())
	assert.Error(t, (&MetricsConfig{Enabled: true}).Validate())
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		wantErr bool
	}{
		{"valid", ServerConfig{Enabled: true, Port: 8080, ShutdownTimeout: time.Second}, false},
		{"disabled", ServerConfig{Enabled: false}, false},
		{"port zero", ServerConfig{Enabled: true, Port: 0, ShutdownTimeout: time.Second}, true},
		{"negative read timeout", ServerConfig{Enabled: true, Port: 80, ReadTimeout: -1, ShutdownTimeout: time.Second}, true},
		{"no shutdown timeout", ServerConfig{Enabled: true, Port: 80}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCoderConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  CoderConfig
		wantErr string
	}{
		{"valid", CoderConfig{PCMFallbackFrameSize: 576, RechunkerMaxSamples: 4096, PacketQueueDepth: 4}, ""},
		{"fallback of one", CoderConfig{PCMFallbackFrameSize: 1, RechunkerMaxSamples: 4096, PacketQueueDepth: 4}, "greater than 1"},
		{"ceiling below fallback", CoderConfig{PCMFallbackFrameSize: 576, RechunkerMaxSamples: 100, PacketQueueDepth: 4}, "cannot be smaller"},
		{"zero ceiling", CoderConfig{PCMFallbackFrameSize: 576, PacketQueueDepth: 4}, "rechunker_max_samples must be positive"},
		{"zero queue", CoderConfig{PCMFallbackFrameSize: 576, RechunkerMaxSamples: 4096}, "packet_queue_depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMuxerConfigValidate(t *testing.T) {
	assert.NoError(t, (&MuxerConfig{ClampPolicy: "on_collision", RepairLogRate: 1}).Validate())
	assert.NoError(t, (&MuxerConfig{ClampPolicy: "always", SnapshotInterval: 10, RepairLogRate: 0.5}).Validate())
	assert.Error(t, (&MuxerConfig{ClampPolicy: "", RepairLogRate: 1}).Validate())
	assert.Error(t, (&MuxerConfig{ClampPolicy: "always", SnapshotInterval: -1, RepairLogRate: 1}).Validate())
	assert.Error(t, (&MuxerConfig{ClampPolicy: "always"}).Validate())
	assert.NoError(t, (&MuxerConfig{ClampPolicy: "always", RepairPolicy: "on_collision", RepairLogRate: 1}).Validate())
	assert.NoError(t, (&MuxerConfig{ClampPolicy: "always", RepairPolicy: "monotonic", RepairLogRate: 1}).Validate())
	assert.Error(t, (&MuxerConfig{ClampPolicy: "always", RepairPolicy: "sometimes", RepairLogRate: 1}).Validate())
}

func TestPipelineConfigValidate(t *testing.T) {
	base := PipelineConfig{
		Workers:    1,
		SampleRate: 48000,
		Channels:   2,
		Codec:      "pcm_s16le",
		ChunkSize:  100,
		Duration:   time.Second,
		ToneHz:     440,
		OutputDir:  "out",
	}
	assert.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
	}{
		{"no workers", func(p *PipelineConfig) { p.Workers = 0 }},
		{"no sample rate", func(p *PipelineConfig) { p.SampleRate = 0 }},
		{"too many channels", func(p *PipelineConfig) { p.Channels = 9 }},
		{"empty codec", func(p *PipelineConfig) { p.Codec = "" }},
		{"negative frame size", func(p *PipelineConfig) { p.FrameSize = -1 }},
		{"zero chunk", func(p *PipelineConfig) { p.ChunkSize = 0 }},
		{"zero duration", func(p *PipelineConfig) { p.Duration = 0 }},
		{"tone above nyquist", func(p *PipelineConfig) { p.ToneHz = 24000 }},
		{"no output dir", func(p *PipelineConfig) { p.OutputDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
