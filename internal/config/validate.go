package config

import (
	"fmt"
)

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Coder.Validate(); err != nil {
		return fmt.Errorf("coder config: %w", err)
	}

	if err := c.Muxer.Validate(); err != nil {
		return fmt.Errorf("muxer config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if c.Metrics.Enabled && !c.Server.Enabled {
		return fmt.Errorf("metrics are served by the HTTP server, which is disabled")
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", s.Port)
	}

	if s.ReadTimeout < 0 || s.WriteTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	if s.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}

	if s.RateLimit > 0 && s.RateBurst < 1 {
		return fmt.Errorf("rate_burst must be at least 1 when rate limiting")
	}

	return nil
}

func (r *RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if len(r.Addresses) == 0 {
		return fmt.Errorf("at least one Redis address is required")
	}

	if r.DB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.DB)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if r.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}

	if r.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}

	if r.MinIdleConns > r.PoolSize {
		return fmt.Errorf("min_idle_conns cannot be greater than pool_size")
	}

	if r.KeyPrefix == "" {
		return fmt.Errorf("key_prefix cannot be empty")
	}

	if r.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Path == "" {
		return fmt.Errorf("metrics path cannot be empty")
	}

	return nil
}

func (c *CoderConfig) Validate() error {
	if c.PCMFallbackFrameSize <= 1 {
		return fmt.Errorf("pcm_fallback_frame_size must be greater than 1")
	}

	if c.RechunkerMaxSamples <= 0 {
		return fmt.Errorf("rechunker_max_samples must be positive")
	}

	if c.RechunkerMaxSamples < c.PCMFallbackFrameSize {
		return fmt.Errorf("rechunker_max_samples (%d) cannot be smaller than pcm_fallback_frame_size (%d)",
			c.RechunkerMaxSamples, c.PCMFallbackFrameSize)
	}

	if c.PacketQueueDepth <= 0 {
		return fmt.Errorf("packet_queue_depth must be positive")
	}

	return nil
}

func (m *MuxerConfig) Validate() error {
	if m.ClampPolicy != "on_collision" && m.ClampPolicy != "always" {
		return fmt.Errorf("clamp_policy must be 'on_collision' or 'always', got %q", m.ClampPolicy)
	}

	switch m.RepairPolicy {
	case "", "monotonic", "on_collision":
	default:
		return fmt.Errorf("repair_policy must be 'monotonic' or 'on_collision', got %q", m.RepairPolicy)
	}

	if m.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot_interval cannot be negative")
	}

	if m.RepairLogRate <= 0 {
		return fmt.Errorf("repair_log_rate must be positive")
	}

	return nil
}

func (p *PipelineConfig) Validate() error {
	if p.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	if p.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", p.SampleRate)
	}

	if p.Channels <= 0 || p.Channels > 8 {
		return fmt.Errorf("channels must be between 1 and 8, got %d", p.Channels)
	}

	if p.Codec == "" {
		return fmt.Errorf("codec cannot be empty")
	}

	if p.FrameSize < 0 {
		return fmt.Errorf("frame_size cannot be negative")
	}

	if p.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}

	if p.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}

	if p.ToneHz <= 0 || p.ToneHz >= float64(p.SampleRate)/2 {
		return fmt.Errorf("tone_hz must be between 0 and the Nyquist frequency")
	}

	if p.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	return nil
}
