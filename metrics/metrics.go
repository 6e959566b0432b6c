/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics exposes the engine's shared EngineData counters and the command
// channel's heartbeat counters as Prometheus metrics (SPEC_FULL.md DOMAIN STACK:
// observability). It is a from-scratch wrapper over promauto/client_golang, since the
// teacher's own prometheus/metrics and prometheus/types packages vendor only test files
// in this pack, with no NewMetrics/Collector implementation to port.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/antmuse/AntEngine-sub001/slab"
)

// Registry holds every Prometheus collector the engine registers, and satisfies
// cmdchannel.Counters so a Channel can increment heartbeat metrics directly.
//
// SampleEngineData/SamplePoolStats are meant to be driven by a single periodic sampler
// goroutine (e.g. one timer handle on the reactor loop); the last-seen cumulative totals
// they reconcile against are plain fields, not atomics, on that assumption.
type Registry struct {
	reg *prometheus.Registry

	openHandles   prometheus.Gauge
	closedHandles prometheus.Counter
	inFlightReqs  prometheus.Gauge
	bytesIn       prometheus.Counter
	bytesOut      prometheus.Counter
	packetsIn     prometheus.Counter
	packetsOut    prometheus.Counter

	lastClosed     int64
	lastBytesIn    int64
	lastBytesOut   int64
	lastPacketsIn  int64
	lastPacketsOut int64

	heartbeatSent  prometheus.Counter
	heartbeatAcked prometheus.Counter
	heartbeatRecv  prometheus.Counter

	slabPagesUsed  *prometheus.GaugeVec
	slabPagesTotal *prometheus.GaugeVec
	slabRequests   *prometheus.CounterVec
	slabFails      *prometheus.CounterVec
	lastSlabReqs   map[string]int64
	lastSlabFails  map[string]int64

	workersAlive prometheus.Gauge
}

// New builds a Registry with all collectors registered against a fresh
// prometheus.Registry (not the global DefaultRegisterer, so multiple engine instances in
// one test binary never collide on metric names).
func New() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	r := &Registry{
		reg: reg,

		openHandles: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "antengine", Name: "open_handles",
			Help: "Handles currently open across the engine.",
		}),
		closedHandles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "antengine", Name: "closed_handles_total",
			Help: "Handles closed since start.",
		}),
		inFlightReqs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "antengine", Name: "in_flight_requests",
			Help: "Requests currently in flight across the engine.",
		}),
		bytesIn: f.NewCounter(prometheus.CounterOpts{
			Namespace: "antengine", Name: "bytes_in_total",
			Help: "Bytes read from peers since start.",
		}),
		bytesOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: "antengine", Name: "bytes_out_total",
			Help: "Bytes written to peers since start.",
		}),
		packetsIn: f.NewCounter(prometheus.CounterOpts{
			Namespace: "antengine", Name: "packets_in_total",
			Help: "Packets read from peers since start.",
		}),
		packetsOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: "antengine", Name: "packets_out_total",
			Help: "Packets written to peers since start.",
		}),

		heartbeatSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: "antengine", Subsystem: "cmdchannel", Name: "heartbeat_sent_total",
			Help: "HEARTBEAT frames sent on the command channel.",
		}),
		heartbeatAcked: f.NewCounter(prometheus.CounterOpts{
			Namespace: "antengine", Subsystem: "cmdchannel", Name: "heartbeat_acked_total",
			Help: "HEARTBEAT_RESP frames received on the command channel.",
		}),
		heartbeatRecv: f.NewCounter(prometheus.CounterOpts{
			Namespace: "antengine", Subsystem: "cmdchannel", Name: "heartbeat_recv_total",
			Help: "HEARTBEAT frames received on the command channel.",
		}),

		slabPagesUsed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "antengine", Subsystem: "slab", Name: "pages_used",
			Help: "Chunks currently allocated, per size class slot.",
		}, []string{"slot"}),
		slabPagesTotal: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "antengine", Subsystem: "slab", Name: "pages_total",
			Help: "Chunks available on the pages currently held by a size class slot.",
		}, []string{"slot"}),
		slabRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antengine", Subsystem: "slab", Name: "requests_total",
			Help: "Allocation requests served, per size class slot.",
		}, []string{"slot"}),
		slabFails: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antengine", Subsystem: "slab", Name: "alloc_fails_total",
			Help: "Allocation requests that failed, per size class slot.",
		}, []string{"slot"}),

		workersAlive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "antengine", Subsystem: "supervisor", Name: "workers_alive",
			Help: "Worker processes currently alive.",
		}),

		lastSlabReqs:  make(map[string]int64),
		lastSlabFails: make(map[string]int64),
	}
	return r
}

// addDelta adds the non-negative increase of cur over *last to c, then updates *last.
// EngineData's counters are monotonic cross-process totals; a Prometheus Counter can only
// move forward, so the sampler tracks its own last-seen value to compute the increment.
func addDelta(last *int64, c prometheus.Counter, cur int64) {
	if d := cur - *last; d > 0 {
		c.Add(float64(d))
	}
	*last = cur
}

// Gatherer exposes the underlying prometheus.Registry for an HTTP /metrics handler
// (promhttp.HandlerFor(r.Gatherer(), ...)).
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// HeartbeatSent / HeartbeatAcked / HeartbeatRecv satisfy cmdchannel.Counters.
func (r *Registry) HeartbeatSent()  { r.heartbeatSent.Inc() }
func (r *Registry) HeartbeatAcked() { r.heartbeatAcked.Inc() }
func (r *Registry) HeartbeatRecv()  { r.heartbeatRecv.Inc() }

// SetWorkersAlive mirrors supervisor.Supervisor.Alive() into a gauge; the caller is
// expected to sample it on a timer (the supervisor itself has no Prometheus dependency).
func (r *Registry) SetWorkersAlive(n int) { r.workersAlive.Set(float64(n)) }

// SampleEngineData reads the shared region's EngineData counters into the engine-wide
// gauges/counters. Prometheus counters only move forward, so bytes/packets/closedHandles
// are reconciled against the last-seen cumulative total rather than Set.
func (r *Registry) SampleEngineData(d *slab.EngineData) {
	r.openHandles.Set(float64(d.OpenHandles))
	r.inFlightReqs.Set(float64(d.InFlightReqs))
	addDelta(&r.lastClosed, r.closedHandles, d.ClosedHandles)
	addDelta(&r.lastBytesIn, r.bytesIn, d.BytesIn)
	addDelta(&r.lastBytesOut, r.bytesOut, d.BytesOut)
	addDelta(&r.lastPacketsIn, r.packetsIn, d.PacketsIn)
	addDelta(&r.lastPacketsOut, r.packetsOut, d.PacketsOut)
}

// SamplePoolStats reconciles one size-class slot's PageStat snapshot into the slab
// gauge/counter vectors; the caller iterates slab.Pool.SlotCount() slots.
func (r *Registry) SamplePoolStats(slot string, stat slab.PageStat) {
	r.slabPagesUsed.WithLabelValues(slot).Set(float64(stat.Used))
	r.slabPagesTotal.WithLabelValues(slot).Set(float64(stat.Total))

	if d := stat.Requests - r.lastSlabReqs[slot]; d > 0 {
		r.slabRequests.WithLabelValues(slot).Add(float64(d))
	}
	r.lastSlabReqs[slot] = stat.Requests

	if d := stat.Fails - r.lastSlabFails[slot]; d > 0 {
		r.slabFails.WithLabelValues(slot).Add(float64(d))
	}
	r.lastSlabFails[slot] = stat.Fails
}
