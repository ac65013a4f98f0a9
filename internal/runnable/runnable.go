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

package runnable

import (
	"context"
	"time"

	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/manager"
)

type noLeaderElection struct {
	manager.Runnable
}

// NoLeaderElection wraps the given runnable, marking it as not requiring
// leader election.
func NoLeaderElection(runnable manager.Runnable) manager.Runnable {
	return noLeaderElection{Runnable: runnable}
}

// NeedLeaderElection implements manager.LeaderElectionRunnable.
func (noLeaderElection) NeedLeaderElection() bool {
	return false
}

// Restarting runs cycle over and over until the manager context is
// cancelled, waiting delay between two cycles. A cycle ends when it returns,
// with or without an error. onRestart, when set, is called before every wait.
func Restarting(name string, delay time.Duration, clk clock.Clock, cycle func(ctx context.Context) error, onRestart func()) manager.Runnable {
	return manager.RunnableFunc(func(ctx context.Context) error {
		logger := log.FromContext(ctx).WithValues("name", name)
		for {
			err := cycle(ctx)
			if ctx.Err() != nil {
				logger.Info("Stopped")
				return nil
			}
			if err != nil {
				logger.Error(err, "Cycle failed, restarting", "delay", delay)
			} else {
				logger.Info("Cycle ended, restarting", "delay", delay)
			}
			if onRestart != nil {
				onRestart()
			}
			select {
			case <-ctx.Done():
				logger.Info("Stopped")
				return nil
			case <-clk.After(delay):
			}
		}
	})
}

// OnShutdown returns a runnable that blocks until the manager context is
// cancelled and then calls cleanup with a fresh context bounded by timeout.
func OnShutdown(name string, timeout time.Duration, cleanup func(ctx context.Context) error) manager.Runnable {
	return manager.RunnableFunc(func(ctx context.Context) error {
		<-ctx.Done()
		logger := log.FromContext(ctx).WithValues("name", name)
		cleanupCtx, cancel := context.WithTimeout(log.IntoContext(context.Background(), logger), timeout)
		defer cancel()
		if err := cleanup(cleanupCtx); err != nil {
			logger.Error(err, "Shutdown cleanup failed")
			return nil
		}
		logger.Info("Shutdown cleanup done")
		return nil
	})
}
