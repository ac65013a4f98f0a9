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

// Package activator implements the activation protocol: bring the workload
// behind an activation key from zero to ready, then route traffic to it
// directly.
package activator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "github.com/podo-dev/podo/pkg/common/observability/logging"
	"github.com/podo-dev/podo/pkg/common/observability/tracing"
	"github.com/podo-dev/podo/pkg/podo/datastore"
	"github.com/podo-dev/podo/pkg/podo/metrics"
	errutil "github.com/podo-dev/podo/pkg/podo/util/error"
)

// Scaler sets the replica count of the workload behind a key.
type Scaler interface {
	Scale(ctx context.Context, key string, replicas int32) error
}

// Prober reports whether the workload behind a key serves traffic.
type Prober interface {
	Ready(ctx context.Context, key string) (bool, error)
}

// Router switches the shadow of a key to direct routing.
type Router interface {
	PatchToDirect(ctx context.Context, key string) error
}

// Config tunes the wait for a workload to come up.
type Config struct {
	// MaxRetries bounds the scale-and-wait rounds of one activation.
	MaxRetries int
	// RetryInterval is the wait between two readiness probes.
	RetryInterval time.Duration
	// SettleDelay gives the ingress controller time to pick up direct
	// routing before the caller is answered.
	SettleDelay time.Duration
}

// Activator runs the activation protocol. Concurrent activations of one key
// share a single run.
type Activator struct {
	datastore datastore.Datastore
	scaler    Scaler
	prober    Prober
	router    Router
	clock     clock.Clock
	config    Config

	group singleflight.Group
}

func NewActivator(ds datastore.Datastore, scaler Scaler, prober Prober, router Router, clk clock.Clock, cfg Config) *Activator {
	return &Activator{
		datastore: ds,
		scaler:    scaler,
		prober:    prober,
		router:    router,
		clock:     clk,
		config:    cfg,
	}
}

// Activate returns nil once the workload behind key is ready to serve
// traffic. Keys already in the activation store are answered without any
// cluster call. Failed API calls only cost a round. A workload that does not
// come up in time, or whose activation is aborted, is scaled back to zero;
// the former returns an ActivationTimeout error.
func (a *Activator) Activate(ctx context.Context, key string) error {
	if a.fastPath(ctx, key) {
		return nil
	}
	_, err, shared := a.group.Do(key, func() (any, error) {
		if a.fastPath(ctx, key) {
			return nil, nil
		}
		return nil, a.activate(ctx, key)
	})
	if shared {
		log.FromContext(ctx).V(logutil.DEBUG).Info("Joined in-flight activation", "key", key)
	}
	return err
}

func (a *Activator) fastPath(ctx context.Context, key string) bool {
	if _, ok := a.datastore.Get(key); !ok {
		return false
	}
	a.datastore.Set(key, a.clock.Now())
	metrics.RecordFastPath()
	log.FromContext(ctx).V(logutil.TRACE).Info("Workload already awake", "key", key)
	return true
}

func (a *Activator) activate(ctx context.Context, key string) error {
	ctx, span := tracing.Tracer().Start(ctx, "podo.activate")
	defer span.End()
	span.SetAttributes(attribute.String("podo.key", key))

	logger := log.FromContext(ctx).WithValues("key", key)
	start := a.clock.Now()

	ready, err := a.probe(ctx, key)
	if err != nil {
		return a.fail(ctx, span, err)
	}
	retries := 0
	for !ready && retries < a.config.MaxRetries {
		if err := a.scaler.Scale(ctx, key, 1); err != nil {
			if !transient(err) {
				return a.abort(ctx, span, key, err)
			}
			logger.V(logutil.DEFAULT).Info("Scale attempt failed, retrying", "retry", retries, "err", err.Error())
		}
		if err := a.sleep(ctx, a.config.RetryInterval); err != nil {
			return a.abort(ctx, span, key, err)
		}
		retries++
		metrics.RecordActivationRetry()
		logger.V(logutil.DEBUG).Info("Waiting for workload", "retry", retries, "maxRetries", a.config.MaxRetries)
		if ready, err = a.probe(ctx, key); err != nil {
			return a.abort(ctx, span, key, err)
		}
	}
	span.SetAttributes(attribute.Int("podo.retries", retries))

	if !ready {
		if err := a.scaler.Scale(ctx, key, 0); err != nil {
			logger.Error(err, "Failed to scale workload back to zero")
		}
		metrics.RecordActivation(metrics.ResultTimeout, a.clock.Since(start))
		metrics.RecordActiveWorkloads(a.datastore.Len())
		err := errutil.Errorf(errutil.ActivationTimeout, "deployment did not come up after %d retries", retries)
		span.SetStatus(codes.Error, err.Error())
		logger.V(logutil.DEFAULT).Info("Workload did not come up", "retries", retries)
		return err
	}

	a.datastore.Set(key, a.clock.Now())
	metrics.RecordActiveWorkloads(a.datastore.Len())
	if err := a.router.PatchToDirect(ctx, key); err != nil {
		logger.Error(err, "Failed to switch to direct routing")
	}
	if err := a.sleep(ctx, a.config.SettleDelay); err != nil {
		return a.fail(ctx, span, err)
	}
	metrics.RecordActivation(metrics.ResultSuccess, a.clock.Since(start))
	logger.V(logutil.DEFAULT).Info("Workload activated", "retries", retries, "duration", a.clock.Since(start))
	return nil
}

// probe treats a failed API call as not ready so the round is retried.
func (a *Activator) probe(ctx context.Context, key string) (bool, error) {
	ready, err := a.prober.Ready(ctx, key)
	if err != nil && transient(err) {
		log.FromContext(ctx).V(logutil.DEFAULT).Info("Readiness probe failed, retrying", "key", key, "err", err.Error())
		return false, nil
	}
	return ready, err
}

func transient(err error) bool {
	return errutil.IsCode(err, errutil.ApiError)
}

// abort gives up on an activation that may already have scaled the workload
// up. The workload is scaled back to zero so that nothing runs without a
// store entry. The scale-down outlives a cancelled ctx.
func (a *Activator) abort(ctx context.Context, span trace.Span, key string, err error) error {
	if serr := a.scaler.Scale(context.WithoutCancel(ctx), key, 0); serr != nil {
		log.FromContext(ctx).Error(serr, "Failed to scale workload back to zero", "key", key)
	}
	metrics.RecordActiveWorkloads(a.datastore.Len())
	return a.fail(ctx, span, err)
}

func (a *Activator) fail(ctx context.Context, span trace.Span, err error) error {
	metrics.RecordActivation(metrics.ResultError, 0)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.FromContext(ctx).Error(err, "Activation failed")
	return err
}

func (a *Activator) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return errutil.Errorf(errutil.Internal, "activation interrupted - %v", ctx.Err())
	case <-a.clock.After(d):
		return nil
	}
}
