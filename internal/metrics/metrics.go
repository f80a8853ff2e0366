// Package metrics exposes the controller rounds as Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
	"github.com/hcran/rrh-channel-controller/internal/protocol"
)

const namespace = "rrh"

// Collectors records controller rounds. It implements controller.Recorder.
type Collectors struct {
	rounds        prometheus.Counter
	replies       prometheus.Counter
	violations    *prometheus.CounterVec
	cellChannels  *prometheus.GaugeVec
	cellLoad      *prometheus.GaugeVec
	totalLoad     prometheus.Gauge
	roundDuration prometheus.Histogram
}

// NewCollectors creates unregistered collectors.
func NewCollectors() *Collectors {
	return &Collectors{
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Number of completed poll rounds.",
		}),
		replies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Number of accepted load replies.",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Number of discarded messages and timers, by reason.",
		}, []string{"reason"}),
		cellChannels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cell_channels",
			Help:      "Channels allocated to a cell after the last completed round.",
		}, []string{"cell", "tier"}),
		cellLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cell_load",
			Help:      "Load reported by a cell in the last completed round.",
		}, []string{"cell", "tier"}),
		totalLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_load",
			Help:      "Sum of the loads reported in the last completed round.",
		}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Time from the poll broadcast to the last reply of a round.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
}

// Register registers every collector with reg.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	var errs []error
	for _, col := range []prometheus.Collector{
		c.rounds, c.replies, c.violations, c.cellChannels, c.cellLoad, c.totalLoad, c.roundDuration,
	} {
		if err := reg.Register(col); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("registering rrh metrics: %w", err)
	}
	return nil
}

// PollIssued implements controller.Recorder.
func (c *Collectors) PollIssued(context.Context, int64, int) {}

// ReplyReceived implements controller.Recorder.
func (c *Collectors) ReplyReceived(context.Context, int64, v1alpha1.CellRef, int, int) {
	c.replies.Inc()
}

// RoundCompleted implements controller.Recorder.
func (c *Collectors) RoundCompleted(_ context.Context, status *v1alpha1.AllocationStatus, duration time.Duration) {
	c.rounds.Inc()
	c.totalLoad.Set(float64(status.TotalLoad))
	c.roundDuration.Observe(duration.Seconds())
	for _, cell := range status.Cells {
		labels := prometheus.Labels{"cell": cell.Cell.String(), "tier": string(cell.Cell.Tier)}
		c.cellChannels.With(labels).Set(float64(cell.Channels))
		c.cellLoad.With(labels).Set(float64(cell.Load))
	}
}

// ViolationObserved implements controller.Recorder.
func (c *Collectors) ViolationObserved(_ context.Context, v *protocol.ProtocolViolation) {
	c.violations.WithLabelValues(string(v.Reason)).Inc()
}
