package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Coder metrics
	coderStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avcore_coder_state_transitions_total",
		Help: "Coder lifecycle transitions",
	}, []string{"role", "from", "to"})

	coderUnitsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avcore_coder_units_sent_total",
		Help: "Units submitted to coders by outcome",
	}, []string{"role", "outcome"})

	coderUnitsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avcore_coder_units_received_total",
		Help: "Units drained from coders by outcome",
	}, []string{"role", "outcome"})

	codecFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avcore_codec_failures_total",
		Help: "Codec engine failures that moved a coder into the error state",
	}, []string{"role", "codec"})

	coderOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "avcore_coders_open",
		Help: "Coders currently opened or flushing",
	}, []string{"role"})

	// Rechunker metrics
	rechunkerBufferedSamples = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "avcore_rechunker_buffered_samples",
		Help: "Samples per channel held by audio rechunkers",
	}, []string{"codec"})

	rechunkerChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avcore_rechunker_chunks_total",
		Help: "Fixed-size chunks emitted by audio rechunkers",
	}, []string{"codec", "kind"})

	// Muxer metrics
	muxerPacketsStamped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avcore_muxer_packets_stamped_total",
		Help: "Packets stamped into output stream time bases",
	}, []string{"stream"})

	muxerTimestampRepairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avcore_muxer_timestamp_repairs_total",
		Help: "Monotonicity repairs applied to output timestamps",
	}, []string{"stream", "kind"})

	muxerBytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avcore_muxer_bytes_written_total",
		Help: "Payload bytes handed to container writers",
	}, []string{"format"})

	muxerWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avcore_muxer_write_errors_total",
		Help: "Container writer failures",
	}, []string{"format"})

	// Registry metrics
	registryOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avcore_registry_operations_total",
		Help: "Stream state registry operations by result",
	}, []string{"backend", "operation", "result"})

	// Pipeline metrics
	pipelineJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avcore_pipeline_jobs_total",
		Help: "Pipeline jobs by final status",
	}, []string{"status"})

	pipelineJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "avcore_pipeline_job_duration_seconds",
		Help:    "Wall time of pipeline jobs",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~262s
	})

	pipelineWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "avcore_pipeline_workers_active",
		Help: "Pipeline workers currently running",
	})
)

// RecordCoderTransition counts a state change and tracks open coders.
func RecordCoderTransition(role, from, to string) {
	coderStateTransitions.WithLabelValues(role, from, to).Inc()

	wasOpen := from == "opened" || from == "flushing"
	isOpen := to == "opened" || to == "flushing"
	switch {
	case !wasOpen && isOpen:
		coderOpen.WithLabelValues(role).Inc()
	case wasOpen && !isOpen:
		coderOpen.WithLabelValues(role).Dec()
	}
}

// IncrementCoderSend counts a Send outcome.
func IncrementCoderSend(role, outcome string) {
	coderUnitsSent.WithLabelValues(role, outcome).Inc()
}

// IncrementCoderReceive counts a Receive outcome.
func IncrementCoderReceive(role, outcome string) {
	coderUnitsReceived.WithLabelValues(role, outcome).Inc()
}

// IncrementCodecFailure counts an engine failure.
func IncrementCodecFailure(role, codec string) {
	codecFailuresTotal.WithLabelValues(role, codec).Inc()
}

// AddRechunkerBuffered adjusts the buffered sample gauge by delta.
func AddRechunkerBuffered(codec string, delta int) {
	rechunkerBufferedSamples.WithLabelValues(codec).Add(float64(delta))
}

// IncrementRechunkerChunk counts an emitted chunk; kind is "full" or "tail".
func IncrementRechunkerChunk(codec, kind string) {
	rechunkerChunksTotal.WithLabelValues(codec, kind).Inc()
}

// IncrementPacketsStamped counts a stamped packet.
func IncrementPacketsStamped(streamIndex int) {
	muxerPacketsStamped.WithLabelValues(strconv.Itoa(streamIndex)).Inc()
}

// IncrementTimestampRepair counts a monotonicity repair.
func IncrementTimestampRepair(streamIndex int, kind string) {
	muxerTimestampRepairs.WithLabelValues(strconv.Itoa(streamIndex), kind).Inc()
}

// AddBytesWritten counts payload bytes written by a container format.
func AddBytesWritten(format string, n int) {
	muxerBytesWritten.WithLabelValues(format).Add(float64(n))
}

// IncrementWriteError counts a container writer failure.
func IncrementWriteError(format string) {
	muxerWriteErrors.WithLabelValues(format).Inc()
}

// IncrementRegistryOperation counts a registry call.
func IncrementRegistryOperation(backend, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	registryOperations.WithLabelValues(backend, operation, result).Inc()
}

// RecordPipelineJob counts a finished job and its duration.
func RecordPipelineJob(status string, seconds float64) {
	pipelineJobsTotal.WithLabelValues(status).Inc()
	pipelineJobDuration.Observe(seconds)
}

// IncrementWorkersActive marks a pipeline worker as started.
func IncrementWorkersActive() {
	pipelineWorkersActive.Inc()
}

// DecrementWorkersActive marks a pipeline worker as finished.
func DecrementWorkersActive() {
	pipelineWorkersActive.Dec()
}
