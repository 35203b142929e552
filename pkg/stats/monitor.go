// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/frostbyte73/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Durations are in seconds
var (
	// durBucketsCall lists histogram buckets for a whole call, including the ring hold.
	durBucketsCall = []float64{
		0.5, 1, 2, 3, 5, 10, 20, 30, 60,
	}
)

// AuthStage tells which INVITE of the call is sent.
type AuthStage string

const (
	AuthNone   = AuthStage("none")
	AuthDigest = AuthStage("digest")
)

type Monitor struct {
	reg prometheus.Registerer

	triggers       prometheus.Counter
	inviteReq      *prometheus.CounterVec
	challenges     prometheus.Counter
	cancelReq      prometheus.Counter
	callsActive    prometheus.Gauge
	callsCompleted prometheus.Counter
	callsFailed    *prometheus.CounterVec
	durCall        prometheus.Histogram
	available      prometheus.GaugeFunc

	metrics  []prometheus.Collector
	started  core.Fuse
	shutdown core.Fuse
}

// NewMonitor creates a monitor registering its metrics on reg, or on the default registry if reg is nil.
func NewMonitor(reg prometheus.Registerer) *Monitor {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Monitor{reg: reg}
}

func mustRegister[T prometheus.Collector](m *Monitor, c T) T {
	err := m.reg.Register(c)
	if err != nil {
		var e prometheus.AlreadyRegisteredError
		if errors.As(err, &e) {
			return e.ExistingCollector.(T)
		} else {
			panic(err)
		}
	}
	m.metrics = append(m.metrics, c)
	return c
}

func (m *Monitor) Start() error {
	m.triggers = mustRegister(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sipbell",
		Subsystem: "trigger",
		Name:      "fired",
		Help:      "Number of trigger events received",
	}))

	m.inviteReq = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sipbell",
		Subsystem: "sip",
		Name:      "invite_requests",
		Help:      "Number of SIP INVITE requests sent",
	}, []string{"auth"}))

	m.challenges = mustRegister(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sipbell",
		Subsystem: "sip",
		Name:      "challenges",
		Help:      "Number of digest challenges received",
	}))

	m.cancelReq = mustRegister(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sipbell",
		Subsystem: "sip",
		Name:      "cancel_requests",
		Help:      "Number of SIP CANCEL requests sent",
	}))

	m.callsActive = mustRegister(m, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sipbell",
		Subsystem: "sip",
		Name:      "calls_active",
		Help:      "Number of calls in progress",
	}))

	m.callsCompleted = mustRegister(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sipbell",
		Subsystem: "sip",
		Name:      "calls_completed",
		Help:      "Number of calls that rang and were cancelled",
	}))

	m.callsFailed = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sipbell",
		Subsystem: "sip",
		Name:      "calls_failed",
		Help:      "Number of calls aborted by an error",
	}, []string{"state"}))

	m.durCall = mustRegister(m, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sipbell",
		Subsystem: "sip",
		Name:      "dur_call_sec",
		Help:      "Call duration (from connect to closed)",
		Buckets:   durBucketsCall,
	}))

	m.available = mustRegister(m, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sipbell",
		Subsystem: "node",
		Name:      "available",
		Help:      "Whether the service accepts new triggers",
	}, func() float64 {
		if m.CanAccept() {
			return 1
		}
		return 0
	}))

	m.started.Break()

	return nil
}

func (m *Monitor) Shutdown() {
	m.shutdown.Break()
}

func (m *Monitor) Stop() {
	for _, c := range m.metrics {
		m.reg.Unregister(c)
	}
	m.metrics = nil
}

func (m *Monitor) CanAccept() bool {
	return m.started.IsBroken() && !m.shutdown.IsBroken()
}

func (m *Monitor) TriggerFired() {
	m.triggers.Inc()
}

func (m *Monitor) NewCall() *CallMonitor {
	return &CallMonitor{m: m}
}

type CallMonitor struct {
	m        *Monitor
	started  atomic.Bool
	finished atomic.Bool
}

func (c *CallMonitor) CallStart() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.m.callsActive.Inc()
}

func (c *CallMonitor) CallEnd() {
	if !c.started.CompareAndSwap(true, false) {
		return
	}
	c.m.callsActive.Dec()
}

func (c *CallMonitor) InviteReq(stage AuthStage) {
	c.m.inviteReq.WithLabelValues(string(stage)).Inc()
}

func (c *CallMonitor) ChallengeReceived() {
	c.m.challenges.Inc()
}

func (c *CallMonitor) CancelReq() {
	c.m.cancelReq.Inc()
}

func (c *CallMonitor) CallComplete() {
	if !c.finished.CompareAndSwap(false, true) {
		return
	}
	c.m.callsCompleted.Inc()
}

func (c *CallMonitor) CallFailed(state string) {
	if !c.finished.CompareAndSwap(false, true) {
		return
	}
	c.m.callsFailed.WithLabelValues(state).Inc()
}

func (c *CallMonitor) CallDur() func() time.Duration {
	return prometheus.NewTimer(c.m.durCall).ObserveDuration
}
