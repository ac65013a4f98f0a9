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
	"flag"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/podo-dev/podo/pkg/common/observability/logging"
	"github.com/podo-dev/podo/pkg/podo/util/env"
)

const (
	DefaultGrpcHealthPort = 9005
	DefaultMetricsPort    = 9090
	DefaultListenAddress  = "0.0.0.0:8080"
	ZapLogLevelFlagName   = "zap-log-level"
)

// Options contains the command-line configuration for podo.
type Options struct {
	//
	// Cluster.
	//
	Namespace            string // Namespace podo watches and writes to.
	IngressClass         string // Ingress class claimed by podo.
	UpstreamIngressClass string // Ingress class of the controller serving traffic.
	ProxyServiceName     string // Service in front of the activation proxy.
	ProxyServicePort     string // Port name or number of that service.
	ActivationURL        string // Base URL the ingress controller calls for auth subrequests.
	//
	// Activation.
	//
	ListenAddress     string        // TCP address of the activation proxy.
	StartupRetryCount int           // Scale-and-wait rounds before an activation gives up.
	RetryInterval     time.Duration // Wait between two readiness probes.
	SettleDelay       time.Duration // Wait after switching to direct routing.
	ReadTimeout       time.Duration // Deadline for the first chunk of a connection.
	//
	// Lifecycle.
	//
	IdleShutdownAfter time.Duration // Inactivity after which a workload is scaled to zero.
	ReapInterval      time.Duration // Period of the idle sweep.
	WatchRestartDelay time.Duration // Pause before a failed reconciliation cycle restarts.
	CleanupTimeout    time.Duration // Bound on shadow removal at shutdown.
	//
	// Diagnostics.
	//
	LogVerbosity        int         // Number for the log level verbosity.
	ZapOptions          zap.Options // Zap logging options.
	MetricsPort         int         // The metrics port exposed by podo.
	GRPCHealthPort      int         // The port for gRPC liveness and readiness probes.
	EnablePprof         bool        // Enables pprof handlers.
	SecureServing       bool        // Serves metrics over TLS.
	MetricsEndpointAuth bool        // Enables authentication and authorization of the metrics endpoint.
	Tracing             bool        // Enables OpenTelemetry tracing.

	// internal
	fs *pflag.FlagSet // FlagSet used in AddFlags() and consulted in Complete()
}

// NewOptions returns a new Options struct initialized with default values.
func NewOptions() *Options {
	return &Options{
		Namespace:            "default",
		IngressClass:         "podo",
		UpstreamIngressClass: "nginx",
		ProxyServiceName:     "podo",
		ProxyServicePort:     "http",
		ActivationURL:        "http://podo.default.svc.cluster.local:8080",
		ListenAddress:        DefaultListenAddress,
		StartupRetryCount:    60,
		RetryInterval:        5 * time.Second,
		SettleDelay:          4 * time.Second,
		ReadTimeout:          30 * time.Second,
		IdleShutdownAfter:    10 * time.Hour,
		ReapInterval:         15 * time.Minute,
		WatchRestartDelay:    5 * time.Second,
		CleanupTimeout:       30 * time.Second,
		LogVerbosity:         logging.DEFAULT,
		ZapOptions:           zap.Options{Development: true},
		MetricsPort:          DefaultMetricsPort,
		GRPCHealthPort:       DefaultGrpcHealthPort,
		EnablePprof:          true,
		SecureServing:        true,
		MetricsEndpointAuth:  true,
	}
}

// LoadEnv overrides the defaults with the environment variables podo has
// always been configured with. Call it before AddFlags so flags still win.
func (opts *Options) LoadEnv(logger logr.Logger) {
	opts.Namespace = env.GetEnvString("NAMESPACE", opts.Namespace, logger)
	opts.UpstreamIngressClass = env.GetEnvString("UPSTREAM_INGRESS_CLASS_NAME", opts.UpstreamIngressClass, logger)
	opts.IngressClass = env.GetEnvString("PODO_INGRESS_CLASS_NAME", opts.IngressClass, logger)
	opts.ProxyServiceName = env.GetEnvString("PODO_SERVICE_NAME", opts.ProxyServiceName, logger)
	opts.ProxyServicePort = env.GetEnvString("PODO_SERVICE_PORT", opts.ProxyServicePort, logger)
	opts.ActivationURL = env.GetEnvString("PODO_INGRESS_URL", opts.ActivationURL, logger)
	opts.StartupRetryCount = env.GetEnvInt("STARTUP_RETRY_COUNT", opts.StartupRetryCount, logger)
	opts.IdleShutdownAfter = env.GetEnvHours("INACTIVE_DEPLOYMENT_SHUTDOWN_TIME_H", opts.IdleShutdownAfter, logger)
	opts.ListenAddress = env.GetEnvString("PODO_LISTEN_ADDRESS", opts.ListenAddress, logger)
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	opts.fs = fs

	fs.StringVar(&opts.Namespace, "namespace", opts.Namespace,
		"Namespace whose ingresses podo manages.")
	fs.StringVar(&opts.IngressClass, "ingress-class", opts.IngressClass,
		"Ingress class claimed by podo.")
	fs.StringVar(&opts.UpstreamIngressClass, "upstream-ingress-class", opts.UpstreamIngressClass,
		"Ingress class of the controller that serves traffic. Shadow ingresses use it.")
	fs.StringVar(&opts.ProxyServiceName, "proxy-service-name", opts.ProxyServiceName,
		"Name of the service in front of the activation proxy.")
	fs.StringVar(&opts.ProxyServicePort, "proxy-service-port", opts.ProxyServicePort,
		"Port name or number of the activation proxy service.")
	fs.StringVar(&opts.ActivationURL, "activation-url", opts.ActivationURL,
		"Base URL of the activation proxy as seen by the ingress controller.")
	fs.StringVar(&opts.ListenAddress, "listen-address", opts.ListenAddress,
		"TCP address the activation proxy listens on.")
	fs.IntVar(&opts.StartupRetryCount, "startup-retry-count", opts.StartupRetryCount,
		"Number of readiness probes before an activation gives up.")
	fs.DurationVar(&opts.RetryInterval, "retry-interval", opts.RetryInterval,
		"Wait between two readiness probes of an activation.")
	fs.DurationVar(&opts.SettleDelay, "settle-delay", opts.SettleDelay,
		"Wait after switching to direct routing before answering an activation.")
	fs.DurationVar(&opts.ReadTimeout, "read-timeout", opts.ReadTimeout,
		"Deadline for a client to send its request.")
	fs.DurationVar(&opts.IdleShutdownAfter, "idle-shutdown-after", opts.IdleShutdownAfter,
		"Inactivity after which a workload is scaled back to zero.")
	fs.DurationVar(&opts.ReapInterval, "reap-interval", opts.ReapInterval,
		"Period of the idle workload sweep.")
	fs.DurationVar(&opts.WatchRestartDelay, "watch-restart-delay", opts.WatchRestartDelay,
		"Pause before a failed ingress watch is restarted.")
	fs.DurationVar(&opts.CleanupTimeout, "cleanup-timeout", opts.CleanupTimeout,
		"Time allowed for removing shadow ingresses at shutdown.")
	fs.IntVar(&opts.GRPCHealthPort, "grpc-health-port", opts.GRPCHealthPort,
		"The port used for gRPC liveness and readiness probes.")
	fs.IntVar(&opts.MetricsPort, "metrics-port", opts.MetricsPort,
		"The metrics port exposed by podo.")
	fs.BoolVar(&opts.MetricsEndpointAuth, "metrics-endpoint-auth", opts.MetricsEndpointAuth,
		"Enables authentication and authorization of the metrics endpoint.")
	fs.BoolVar(&opts.SecureServing, "secure-serving", opts.SecureServing,
		"Serves the metrics endpoint over TLS.")
	fs.BoolVar(&opts.EnablePprof, "enable-pprof", opts.EnablePprof,
		"Enables pprof handlers. Defaults to true. Set to false to disable pprof handlers.")
	fs.BoolVar(&opts.Tracing, "tracing", opts.Tracing,
		"Enables OpenTelemetry tracing. Exporter settings come from the OTEL_* environment variables.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity,
		"Number for the log level verbosity.")

	// Bind zap flags (zap expects a standard Go FlagSet; pflag.FlagSet is not compatible).
	gofs := flag.NewFlagSet("zap", flag.ExitOnError)
	opts.ZapOptions.BindFlags(gofs)
	fs.AddGoFlagSet(gofs)
}

// Complete performs post-processing of parsed command-line arguments.
func (opts *Options) Complete() error {
	// Derive the zap log level from the -v flag when --zap-log-level is not set explicitly.
	zapLogLevelFlag := opts.fs.Lookup(ZapLogLevelFlagName)
	if zapLogLevelFlag != nil && !zapLogLevelFlag.Changed {
		lvl := -1 * (opts.LogVerbosity)
		opts.ZapOptions.Level = uberzap.NewAtomicLevelAt(zapcore.Level(int8(lvl)))
		zapLogLevelFlag.Changed = true
	}
	return nil
}

// Validate checks the Options for invalid or conflicting values.
func (opts *Options) Validate() error {
	for _, nc := range []struct {
		name  string
		value string
	}{
		{"namespace", opts.Namespace},
		{"ingress-class", opts.IngressClass},
		{"upstream-ingress-class", opts.UpstreamIngressClass},
		{"proxy-service-name", opts.ProxyServiceName},
		{"proxy-service-port", opts.ProxyServicePort},
	} {
		if nc.value == "" {
			return fmt.Errorf("flag %q must not be empty", nc.name)
		}
	}
	if opts.IngressClass == opts.UpstreamIngressClass {
		return fmt.Errorf("ingress-class and upstream-ingress-class must differ, both are %q", opts.IngressClass)
	}

	u, err := url.Parse(opts.ActivationURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid value %q for flag %q: must be an absolute URL", opts.ActivationURL, "activation-url")
	}
	if _, _, err := net.SplitHostPort(opts.ListenAddress); err != nil {
		return fmt.Errorf("invalid value %q for flag %q - %w", opts.ListenAddress, "listen-address", err)
	}

	if opts.StartupRetryCount < 1 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 1", opts.StartupRetryCount, "startup-retry-count")
	}
	for _, dc := range []struct {
		name  string
		value time.Duration
	}{
		{"retry-interval", opts.RetryInterval},
		{"read-timeout", opts.ReadTimeout},
		{"idle-shutdown-after", opts.IdleShutdownAfter},
		{"reap-interval", opts.ReapInterval},
		{"watch-restart-delay", opts.WatchRestartDelay},
		{"cleanup-timeout", opts.CleanupTimeout},
	} {
		if dc.value <= 0 {
			return fmt.Errorf("invalid value %v for flag %q: must be positive", dc.value, dc.name)
		}
	}
	if opts.SettleDelay < 0 {
		return fmt.Errorf("invalid value %v for flag %q: must be >= 0", opts.SettleDelay, "settle-delay")
	}

	for _, pc := range []struct {
		name string
		port int
	}{
		{"grpc-health-port", opts.GRPCHealthPort},
		{"metrics-port", opts.MetricsPort},
	} {
		if pc.port < 1 || pc.port > 65535 {
			return fmt.Errorf("invalid value %d for flag %q: must be between 1 and 65535", pc.port, pc.name)
		}
	}
	if opts.GRPCHealthPort == opts.MetricsPort {
		return fmt.Errorf("port conflict: grpc-health-port and metrics-port must be different, both are %d", opts.MetricsPort)
	}

	if opts.LogVerbosity < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.LogVerbosity, "v")
	}
	return nil
}
