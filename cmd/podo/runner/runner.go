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

package runner

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	healthPb "google.golang.org/grpc/health/grpc_health_v1"
	"k8s.io/client-go/rest"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/metrics/filters"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/podo-dev/podo/internal/runnable"
	logutil "github.com/podo-dev/podo/pkg/common/observability/logging"
	"github.com/podo-dev/podo/pkg/common/observability/profiling"
	"github.com/podo-dev/podo/pkg/common/observability/tracing"
	"github.com/podo-dev/podo/pkg/podo/metrics"
	runserver "github.com/podo-dev/podo/pkg/podo/server"
	"github.com/podo-dev/podo/version"
)

var setupLog = ctrl.Log.WithName("setup")

func NewRunner() *Runner {
	return &Runner{
		executableName: "podo",
	}
}

// Runner is used to run podo.
type Runner struct {
	executableName string
}

// WithExecutableName sets the name of the executable containing the runner.
// The name is used in the version log upon startup and is otherwise opaque.
func (r *Runner) WithExecutableName(exeName string) *Runner {
	r.executableName = exeName
	return r
}

func (r *Runner) Run(ctx context.Context) error {
	logutil.Bootstrap()
	setupLog.Info(r.executableName+" build", "commit-sha", version.CommitSHA, "build-ref", version.BuildRef)

	opts := runserver.NewOptions()
	opts.LoadEnv(setupLog.WithName("env"))
	opts.AddFlags(pflag.CommandLine)
	pflag.Parse()
	if err := opts.Complete(); err != nil {
		setupLog.Error(err, "Failed to complete options")
		return err
	}
	if err := opts.Validate(); err != nil {
		setupLog.Error(err, "Invalid options")
		return err
	}
	logutil.SetLevel(&opts.ZapOptions)

	// Print all flag values
	flags := make(map[string]any)
	pflag.VisitAll(func(f *pflag.Flag) {
		flags[f.Name] = f.Value
	})
	setupLog.Info("Flags processed", "flags", flags)

	if opts.Tracing {
		if err := tracing.InitTracing(ctx, setupLog); err != nil {
			setupLog.Error(err, "Failed to initialize tracing")
			return err
		}
	}

	// Init runtime.
	cfg, err := ctrl.GetConfig()
	if err != nil {
		setupLog.Error(err, "Failed to get rest config")
		return err
	}

	metrics.Register()
	metricsServerOptions := metricsserver.Options{
		BindAddress:   fmt.Sprintf(":%d", opts.MetricsPort),
		SecureServing: opts.SecureServing,
		FilterProvider: func() func(c *rest.Config, httpClient *http.Client) (metricsserver.Filter, error) {
			if opts.MetricsEndpointAuth {
				return filters.WithAuthenticationAndAuthorization
			}

			return nil
		}(),
	}

	mgr, err := ctrl.NewManager(cfg, ctrl.Options{
		Metrics: metricsServerOptions,
		// Shadow cleanup runs after the manager context is cancelled and
		// must be allowed to finish.
		GracefulShutdownTimeout: ptr.To(opts.CleanupTimeout + opts.RetryInterval),
	})
	if err != nil {
		setupLog.Error(err, "Failed to create manager", "config", cfg)
		return err
	}

	if opts.EnablePprof {
		setupLog.Info("Setting pprof handlers")
		if err = profiling.SetupPprofHandlers(mgr); err != nil {
			setupLog.Error(err, "Failed to setup pprof handlers")
			return err
		}
	}

	// Podo reads what it has just written, so it talks to the API server
	// directly instead of through the manager cache.
	c, err := client.NewWithWatch(cfg, client.Options{Scheme: mgr.GetScheme(), Mapper: mgr.GetRESTMapper()})
	if err != nil {
		setupLog.Error(err, "Failed to create client")
		return err
	}

	serverRunner := runserver.NewPodoServerRunner(opts, c)
	if err := serverRunner.SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "Failed to setup podo components")
		return err
	}

	// Register health server.
	if err := registerHealthServer(mgr, opts.GRPCHealthPort, serverRunner.Ready); err != nil {
		return err
	}

	// Start the manager. This blocks until a signal is received.
	setupLog.Info("Manager starting", "namespace", opts.Namespace, "ingressClass", opts.IngressClass, "listenAddress", opts.ListenAddress)
	if err := mgr.Start(ctx); err != nil {
		setupLog.Error(err, "Error starting manager")
		return err
	}
	setupLog.Info("Manager terminated")
	return nil
}

// registerHealthServer adds the Health gRPC server as a Runnable to the given manager.
func registerHealthServer(mgr manager.Manager, port int, ready func() bool) error {
	srv := grpc.NewServer()
	healthPb.RegisterHealthServer(srv, &healthServer{ready: ready})
	if err := mgr.Add(
		runnable.NoLeaderElection(runnable.GRPCServer("health", srv, port))); err != nil {
		setupLog.Error(err, "Failed to register health server")
		return err
	}
	return nil
}
