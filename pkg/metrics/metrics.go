// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes Prometheus instrumentation for drive discovery
// state and session method-call activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opalhost/go-opal/pkg/core"
	"github.com/opalhost/go-opal/pkg/drive"
)

var (
	methodCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tcg_storage_method_calls_total",
		Help: "Count of TCG method invocations, by outcome status.",
	}, []string{"status"})

	methodCallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tcg_storage_method_call_duration_seconds",
		Help:    "Duration of TCG method invocations.",
		Buckets: prometheus.DefBuckets,
	})
)

// Register adds the session-activity collectors to reg.
func Register(reg prometheus.Registerer) error {
	if err := reg.Register(methodCallsTotal); err != nil {
		return err
	}
	return reg.Register(methodCallDuration)
}

// SessionObserver is called by core.Session.Invoke on every method
// completion, whether it succeeded or returned a MethodFailedError.
type SessionObserver struct{}

// Observe records one method invocation's outcome and latency.
func (SessionObserver) Observe(status string, d time.Duration) {
	methodCallsTotal.WithLabelValues(status).Inc()
	methodCallDuration.Observe(d.Seconds())
}

// deviceCollector renders a single Level0Discovery snapshot into
// Prometheus gauges, the OpenMetrics counterpart of cmd/tcgdiskstat's
// table/JSON output.
type deviceCollector struct {
	device   string
	identity *drive.Identity
	d0       *core.Level0Discovery
}

// NewDeviceCollector builds a prometheus.Collector describing one drive's
// discovery state, ready to register into a Registry.
func NewDeviceCollector(device string, identity *drive.Identity, d0 *core.Level0Discovery) prometheus.Collector {
	return &deviceCollector{device: device, identity: identity, d0: d0}
}

var (
	descDriveInfo = prometheus.NewDesc(
		"tcg_storage_drive_info",
		"Info metric regarding the detected drive.",
		[]string{"device", "model", "serial", "firmware", "protocol"}, nil)
	descSupported = prometheus.NewDesc(
		"tcg_storage_supported",
		"Whether the drive supports any TCG storage standard.",
		[]string{"device"}, nil)
	descSSCSupported = prometheus.NewDesc(
		"tcg_storage_ssc_supported",
		"Whether a particular SSC is supported by the drive.",
		[]string{"device", "ssc"}, nil)
	descLockingEnabled = prometheus.NewDesc(
		"tcg_storage_locking_enabled",
		"Whether the drive reports range locking is enabled.",
		[]string{"device"}, nil)
	descSIDAuthBlocked = prometheus.NewDesc(
		"tcg_storage_sid_authentication_blocked",
		"Whether the Block SID feature has blocked SID authentication.",
		[]string{"device"}, nil)
	descDefaultSIDPIN = prometheus.NewDesc(
		"tcg_storage_default_sid_pin_detected",
		"Whether the Block SID feature reports the default SID PIN is still in use.",
		[]string{"device"}, nil)
)

func (c *deviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descDriveInfo
	ch <- descSupported
	ch <- descSSCSupported
	ch <- descLockingEnabled
	ch <- descSIDAuthBlocked
	ch <- descDefaultSIDPIN
}

func (c *deviceCollector) Collect(ch chan<- prometheus.Metric) {
	if c.identity != nil {
		ch <- prometheus.MustNewConstMetric(descDriveInfo, prometheus.GaugeValue, 1,
			c.device, c.identity.Model, c.identity.SerialNumber, c.identity.Firmware, c.identity.Protocol)
	}

	supported := 0.0
	if c.d0 != nil {
		supported = 1
	}
	ch <- prometheus.MustNewConstMetric(descSupported, prometheus.GaugeValue, supported, c.device)
	if c.d0 == nil {
		return
	}

	for _, ssc := range sscNames(c.d0) {
		ch <- prometheus.MustNewConstMetric(descSSCSupported, prometheus.GaugeValue, 1, c.device, ssc)
	}

	lockEn := 0.0
	if l := c.d0.Locking; l != nil && l.LockingEnabled {
		lockEn = 1
	}
	ch <- prometheus.MustNewConstMetric(descLockingEnabled, prometheus.GaugeValue, lockEn, c.device)

	if b := c.d0.BlockSID; b != nil {
		authBlocked, defaultPIN := 0.0, 0.0
		if b.SIDAuthenticationBlockedState {
			authBlocked = 1
		}
		if !b.SIDValueState {
			defaultPIN = 1
		}
		ch <- prometheus.MustNewConstMetric(descSIDAuthBlocked, prometheus.GaugeValue, authBlocked, c.device)
		ch <- prometheus.MustNewConstMetric(descDefaultSIDPIN, prometheus.GaugeValue, defaultPIN, c.device)
	}
}

func sscNames(d0 *core.Level0Discovery) []string {
	var names []string
	add := func(present bool, name string) {
		if present {
			names = append(names, name)
		}
	}
	add(d0.Enterprise != nil, "Enterprise")
	add(d0.OpalV1 != nil, "Opal 1")
	add(d0.OpalV2 != nil, "Opal 2")
	add(d0.Opalite != nil, "Opalite")
	add(d0.PyriteV1 != nil, "Pyrite 1")
	add(d0.PyriteV2 != nil, "Pyrite 2")
	add(d0.RubyV1 != nil, "Ruby 1")
	return names
}
