// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports transfer counters. A nil *Metrics records nothing.
type Metrics struct {
	transfers *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inflight  *prometheus.GaugeVec
}

// NewMetrics registers the relay collectors on reg (default registerer when
// nil). Collectors already registered by a previous call are reused.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "filerelay"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Finished transfers by direction, effective mode and result.",
		}, []string{"direction", "mode", "result"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transferred_bytes_total",
			Help:      "Payload bytes moved through the relay.",
		}, []string{"direction", "mode"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Transfer latency, headers to last byte.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"direction", "mode"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfers_in_flight",
			Help:      "Transfers currently running.",
		}, []string{"direction"}),
	}

	var err error
	if m.transfers, err = register(reg, m.transfers); err != nil {
		return nil, err
	}
	if m.bytes, err = register(reg, m.bytes); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.inflight, err = register(reg, m.inflight); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register relay collector: %w", err)
	}
	return c, nil
}

// begin marks a transfer in flight; the returned func ends it.
func (m *Metrics) begin(direction Direction) func() {
	if m == nil {
		return func() {}
	}
	g := m.inflight.WithLabelValues(string(direction))
	g.Inc()
	return g.Dec
}

func (m *Metrics) observe(o Outcome) {
	if m == nil {
		return
	}
	result := "ok"
	if o.Err != nil {
		result = string(o.Err.Kind)
	}
	m.transfers.WithLabelValues(string(o.Direction), string(o.Mode), result).Inc()
	m.bytes.WithLabelValues(string(o.Direction), string(o.Mode)).Add(float64(o.BytesTransferred))
	m.duration.WithLabelValues(string(o.Direction), string(o.Mode)).Observe(o.Duration.Seconds())
}
