// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package passthrough

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ncq"
)

const (
	outcomeOK        = "ok"
	outcomeDevice    = "device_error"
	outcomeTimeout   = "timeout"
	outcomeTransport = "transport_error"
	outcomeInvalid   = "invalid"
	outcomeCanceled  = "canceled"
)

var mTags = prometheus.NewDesc(
	"ata_passthrough_ncq_tags",
	"Number of NCQ tags by state",
	[]string{"state"}, nil,
)

type metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
	tags     *tagCollector
}

func newMetrics(tags *ncq.Allocator) *metrics {
	return &metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ata_passthrough_commands_total",
			Help: "ATA PASS-THROUGH commands by protocol and outcome",
		}, []string{"protocol", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ata_passthrough_command_duration_seconds",
			Help:    "Time spent in the SG_IO call",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"protocol"}),
		tags: &tagCollector{tags: tags},
	}
}

// register registers all collectors or none of them.
func (m *metrics) register(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{m.commands, m.duration, m.tags}
	for i, c := range collectors {
		if err := r.Register(c); err != nil {
			for _, done := range collectors[:i] {
				r.Unregister(done)
			}
			return err
		}
	}
	return nil
}

func (m *metrics) observe(protocol, outcome string, d time.Duration) {
	m.commands.WithLabelValues(protocol, outcome).Inc()
	if d > 0 {
		m.duration.WithLabelValues(protocol).Observe(d.Seconds())
	}
}

// tagCollector reports the allocator state at scrape time.
type tagCollector struct {
	tags *ncq.Allocator
}

func (tc *tagCollector) Describe(c chan<- *prometheus.Desc) {
	c <- mTags
}

func (tc *tagCollector) Collect(c chan<- prometheus.Metric) {
	inUse := tc.tags.InUse()
	quarantined := tc.tags.Quarantined()
	free := tc.tags.Depth() - inUse - quarantined
	c <- prometheus.MustNewConstMetric(mTags, prometheus.GaugeValue, float64(inUse), ncq.StateInUse.String())
	c <- prometheus.MustNewConstMetric(mTags, prometheus.GaugeValue, float64(quarantined), ncq.StateQuarantined.String())
	c <- prometheus.MustNewConstMetric(mTags, prometheus.GaugeValue, float64(free), ncq.StateFree.String())
}
