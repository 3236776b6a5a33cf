// Package metrics exports orchestrator activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the studio metrics. A nil *Collector records nothing, so
// callers never need to check whether metrics are enabled.
type Collector struct {
	framesTotal          *prometheus.CounterVec
	framesSkipped        prometheus.Counter
	pathTracerSamples    prometheus.Gauge
	mirrorRebuilds       *prometheus.CounterVec
	mirrorRebuildSeconds prometheus.Histogram
	pathTracerFaults     *prometheus.CounterVec
	trackedObjects       prometheus.Gauge
	environmentLoads     *prometheus.CounterVec
	captures             *prometheus.CounterVec
	captureSeconds       prometheus.Histogram

	logger *zap.Logger
}

// NewCollector registers the metrics on reg. A nil reg uses the default
// registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.framesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames rendered, by renderer mode",
		},
		[]string{"mode"},
	)
	c.framesSkipped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_skipped_total",
		Help:      "Render loop ticks skipped while the path tracer mirror was rebuilding",
	})
	c.pathTracerSamples = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "path_tracer_samples",
		Help:      "Samples accumulated by the path tracer for the current view",
	})
	c.mirrorRebuilds = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_rebuilds_total",
			Help:      "Path tracer mirror rebuilds, by result",
		},
		[]string{"result"},
	)
	c.mirrorRebuildSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "mirror_rebuild_duration_seconds",
		Help:      "Time spent building and ingesting the path tracer mirror",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
	c.pathTracerFaults = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_tracer_faults_total",
			Help:      "Path tracer failures that forced the rasterized view, by operation",
		},
		[]string{"op"},
	)
	c.trackedObjects = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_objects",
		Help:      "Objects currently tracked in the scene",
	})
	c.environmentLoads = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "environment_loads_total",
			Help:      "Environment and background loads, by kind and result",
		},
		[]string{"kind", "result"},
	)
	c.captures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Screenshot captures, by result",
		},
		[]string{"result"},
	)
	c.captureSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "capture_duration_seconds",
		Help:      "Screenshot capture duration in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	return c
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordFrame counts a rendered frame for mode.
func (c *Collector) RecordFrame(mode string) {
	if c == nil {
		return
	}
	c.framesTotal.WithLabelValues(mode).Inc()
}

func (c *Collector) RecordSkippedFrame() {
	if c == nil {
		return
	}
	c.framesSkipped.Inc()
}

func (c *Collector) SetSamples(n int) {
	if c == nil {
		return
	}
	c.pathTracerSamples.Set(float64(n))
}

// RecordRebuild records one mirror rebuild and its duration.
func (c *Collector) RecordRebuild(err error, d time.Duration) {
	if c == nil {
		return
	}
	c.mirrorRebuilds.WithLabelValues(result(err)).Inc()
	c.mirrorRebuildSeconds.Observe(d.Seconds())
}

func (c *Collector) RecordFault(op string) {
	if c == nil {
		return
	}
	c.pathTracerFaults.WithLabelValues(op).Inc()
	c.logger.Debug("path tracer fault recorded", zap.String("op", op))
}

func (c *Collector) SetTrackedObjects(n int) {
	if c == nil {
		return
	}
	c.trackedObjects.Set(float64(n))
}

// RecordEnvironmentLoad counts a load of kind "hdri", "background" or "reset".
func (c *Collector) RecordEnvironmentLoad(kind string, err error) {
	if c == nil {
		return
	}
	c.environmentLoads.WithLabelValues(kind, result(err)).Inc()
}

func (c *Collector) RecordCapture(err error, d time.Duration) {
	if c == nil {
		return
	}
	c.captures.WithLabelValues(result(err)).Inc()
	c.captureSeconds.Observe(d.Seconds())
}
