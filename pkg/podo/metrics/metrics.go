/*
Copyright 2026 The Podo Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	compbasemetrics "k8s.io/component-base/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const component = "podo"

// Activation results.
const (
	ResultSuccess = "success"
	ResultTimeout = "timeout"
	ResultError   = "error"
)

// Shadow events.
const (
	EventAdd    = "add"
	EventUpdate = "update"
	EventDelete = "delete"
	EventSkip   = "skip"
)

var (
	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "activations_total",
			Help:      helpMsgWithStability("Count of slow-path activations by result.", compbasemetrics.ALPHA),
		},
		[]string{"result"},
	)
	activationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Subsystem: component,
			Name:      "activation_duration_seconds",
			Help:      helpMsgWithStability("Time taken to bring a workload from zero to ready, in seconds.", compbasemetrics.ALPHA),
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		},
	)
	activationRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "activation_retries_total",
			Help:      helpMsgWithStability("Count of scale-and-wait rounds spent waiting for workloads to become ready.", compbasemetrics.ALPHA),
		},
	)
	fastPathTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "fast_path_total",
			Help:      helpMsgWithStability("Count of activation requests answered from the activation store.", compbasemetrics.ALPHA),
		},
	)
	redirectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "redirects_total",
			Help:      helpMsgWithStability("Count of non-activation requests answered with a redirect.", compbasemetrics.ALPHA),
		},
	)
	reapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "reaped_total",
			Help:      helpMsgWithStability("Count of idle workloads scaled back to zero.", compbasemetrics.ALPHA),
		},
	)
	shadowEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "shadow_events_total",
			Help:      helpMsgWithStability("Count of ingress events handled by the reconciliation loop.", compbasemetrics.ALPHA),
		},
		[]string{"event"},
	)
	watchRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "watch_restarts_total",
			Help:      helpMsgWithStability("Count of reconciliation cycles restarted after a watch failure.", compbasemetrics.ALPHA),
		},
	)
	activeWorkloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: component,
			Name:      "active_workloads",
			Help:      helpMsgWithStability("Number of workloads currently held awake by podo.", compbasemetrics.ALPHA),
		},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		metrics.Registry.MustRegister(activationsTotal)
		metrics.Registry.MustRegister(activationDuration)
		metrics.Registry.MustRegister(activationRetries)
		metrics.Registry.MustRegister(fastPathTotal)
		metrics.Registry.MustRegister(redirectsTotal)
		metrics.Registry.MustRegister(reapedTotal)
		metrics.Registry.MustRegister(shadowEventsTotal)
		metrics.Registry.MustRegister(watchRestartsTotal)
		metrics.Registry.MustRegister(activeWorkloads)
	})
}

func helpMsgWithStability(msg string, stability compbasemetrics.StabilityLevel) string {
	return fmt.Sprintf("[%v] %v", stability, msg)
}

// RecordActivation records the result and duration of a slow-path activation.
func RecordActivation(result string, d time.Duration) {
	activationsTotal.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		activationDuration.Observe(d.Seconds())
	}
}

// RecordActivationRetry records one scale-and-wait round.
func RecordActivationRetry() {
	activationRetries.Inc()
}

// RecordFastPath records an activation answered from the store.
func RecordFastPath() {
	fastPathTotal.Inc()
}

// RecordRedirect records a redirected non-activation request.
func RecordRedirect() {
	redirectsTotal.Inc()
}

// RecordReaped records a workload scaled to zero for inactivity.
func RecordReaped() {
	reapedTotal.Inc()
}

// RecordShadowEvent records an ingress event handled by the reconciliation loop.
func RecordShadowEvent(event string) {
	shadowEventsTotal.WithLabelValues(event).Inc()
}

// RecordWatchRestart records a restarted reconciliation cycle.
func RecordWatchRestart() {
	watchRestartsTotal.Inc()
}

// RecordActiveWorkloads sets the number of awake workloads.
func RecordActiveWorkloads(n int) {
	activeWorkloads.Set(float64(n))
}
