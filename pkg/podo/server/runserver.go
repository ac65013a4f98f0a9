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

package server

import (
	"fmt"

	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/podo-dev/podo/internal/runnable"
	"github.com/podo-dev/podo/pkg/podo/activator"
	"github.com/podo-dev/podo/pkg/podo/controller"
	"github.com/podo-dev/podo/pkg/podo/datastore"
	"github.com/podo-dev/podo/pkg/podo/proxy"
	"github.com/podo-dev/podo/pkg/podo/reaper"
	"github.com/podo-dev/podo/pkg/podo/shadow"
	"github.com/podo-dev/podo/pkg/podo/workload"
)

// PodoServerRunner wires the podo components together and registers them
// with a manager.
type PodoServerRunner struct {
	Options   *Options
	Client    client.WithWatch
	Datastore datastore.Datastore
	Clock     clock.WithTicker

	watcher *controller.IngressWatcher
}

func NewPodoServerRunner(opts *Options, c client.WithWatch) *PodoServerRunner {
	clk := clock.RealClock{}
	return &PodoServerRunner{
		Options:   opts,
		Client:    c,
		Datastore: datastore.NewDatastoreWithClock(clk),
		Clock:     clk,
	}
}

// ShadowConfig derives the shadow ingress settings from the options.
func (r *PodoServerRunner) ShadowConfig() shadow.Config {
	return shadow.Config{
		Namespace:        r.Options.Namespace,
		UpstreamClass:    r.Options.UpstreamIngressClass,
		ProxyServiceName: r.Options.ProxyServiceName,
		ProxyServicePort: shadow.ParseServicePort(r.Options.ProxyServicePort),
		ActivationURL:    r.Options.ActivationURL,
	}
}

// SetupWithManager adds the activation proxy, the ingress watcher, the idle
// reaper and the shutdown cleanup to mgr.
func (r *PodoServerRunner) SetupWithManager(mgr ctrl.Manager) error {
	opts := r.Options
	shadows := shadow.NewManager(r.Client, r.Datastore, r.ShadowConfig())
	resolver := workload.NewResolver(r.Client, shadows)
	scaler := workload.NewScaler(r.Client, resolver, r.Datastore)
	prober := workload.NewProber(r.Client, resolver)

	act := activator.NewActivator(r.Datastore, scaler, prober, shadows, r.Clock, activator.Config{
		MaxRetries:    opts.StartupRetryCount,
		RetryInterval: opts.RetryInterval,
		SettleDelay:   opts.SettleDelay,
	})
	if err := mgr.Add(proxy.NewServer(opts.ListenAddress, act, opts.ReadTimeout)); err != nil {
		return fmt.Errorf("failed to add activation proxy - %w", err)
	}

	r.watcher = &controller.IngressWatcher{
		Client:       r.Client,
		Shadows:      shadows,
		Scaler:       scaler,
		Namespace:    opts.Namespace,
		IngressClass: opts.IngressClass,
	}
	if err := r.watcher.SetupWithManager(mgr, opts.WatchRestartDelay, r.Clock); err != nil {
		return fmt.Errorf("failed to add ingress watcher - %w", err)
	}

	if err := mgr.Add(&reaper.Reaper{
		Datastore: r.Datastore,
		Shadows:   shadows,
		Scaler:    scaler,
		Clock:     r.Clock,
		Interval:  opts.ReapInterval,
		IdleAfter: opts.IdleShutdownAfter,
	}); err != nil {
		return fmt.Errorf("failed to add idle reaper - %w", err)
	}

	if err := mgr.Add(runnable.NoLeaderElection(
		runnable.OnShutdown("shadow-cleanup", opts.CleanupTimeout, shadows.DeleteAll))); err != nil {
		return fmt.Errorf("failed to add shadow cleanup - %w", err)
	}
	return nil
}

// Ready reports whether the ingress watcher is following the cluster.
func (r *PodoServerRunner) Ready() bool {
	return r.watcher != nil && r.watcher.Watching()
}
