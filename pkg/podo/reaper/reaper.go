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

// Package reaper puts idle workloads back to sleep.
package reaper

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "github.com/podo-dev/podo/pkg/common/observability/logging"
	"github.com/podo-dev/podo/pkg/common/observability/tracing"
	"github.com/podo-dev/podo/pkg/podo/datastore"
	"github.com/podo-dev/podo/pkg/podo/metrics"
)

// Restorer points the shadow of a key back at the activation proxy.
type Restorer interface {
	Restore(ctx context.Context, key string) error
}

// Scaler sets the replica count of the workload behind a key.
type Scaler interface {
	Scale(ctx context.Context, key string, replicas int32) error
}

// Reaper periodically scales workloads that have not been used for IdleAfter
// back to zero.
type Reaper struct {
	Datastore datastore.Datastore
	Shadows   Restorer
	Scaler    Scaler
	Clock     clock.WithTicker
	Interval  time.Duration
	IdleAfter time.Duration
}

// Start sweeps every Interval until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) error {
	logger := log.FromContext(ctx).WithValues("interval", r.Interval, "idleAfter", r.IdleAfter)
	ctx = log.IntoContext(ctx, logger)
	logger.Info("Idle reaper started")

	ticker := r.Clock.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Idle reaper stopped")
			return nil
		case <-ticker.C():
			r.Sweep(ctx)
		}
	}
}

// NeedLeaderElection implements manager.LeaderElectionRunnable.
func (r *Reaper) NeedLeaderElection() bool {
	return false
}

// Sweep puts every idle workload to sleep and returns how many it reaped.
// Routing is restored before scaling so no request reaches a workload that
// is going away. Failures are logged.
func (r *Reaper) Sweep(ctx context.Context) int {
	ctx, span := tracing.Tracer().Start(ctx, "podo.reap")
	defer span.End()
	logger := log.FromContext(ctx)

	now := r.Clock.Now()
	var idle []string
	r.Datastore.Range(func(key string, lastUsed time.Time) bool {
		if !lastUsed.Add(r.IdleAfter).After(now) {
			idle = append(idle, key)
		}
		return true
	})

	reaped := 0
	for _, key := range idle {
		keyLogger := logger.WithValues("key", key)
		if err := r.Shadows.Restore(ctx, key); err != nil {
			keyLogger.Error(err, "Failed to restore proxy routing")
		}
		if err := r.Scaler.Scale(ctx, key, 0); err != nil {
			keyLogger.Error(err, "Failed to scale idle workload to zero")
			continue
		}
		reaped++
		metrics.RecordReaped()
		keyLogger.V(logutil.DEFAULT).Info("Idle workload put to sleep")
	}

	metrics.RecordActiveWorkloads(r.Datastore.Len())
	span.SetAttributes(attribute.Int("podo.idle", len(idle)), attribute.Int("podo.reaped", reaped))
	logger.V(logutil.DEBUG).Info("Sweep done", "idle", len(idle), "reaped", reaped, "awake", r.Datastore.Len())
	return reaped
}
