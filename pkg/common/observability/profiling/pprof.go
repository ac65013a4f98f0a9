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

package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"
)

// PathPrefix is where profiles are served on the metrics listener.
const PathPrefix = "/debug/pprof/"

// Profiles lists the runtime profiles exposed. Activation is dominated by
// goroutines parked on the API server, so block and mutex are enabled too.
var Profiles = []string{
	"heap",
	"goroutine",
	"allocs",
	"threadcreate",
	"block",
	"mutex",
}

// HandlerRegistry accepts extra handlers on the metrics server.
// ctrl.Manager satisfies it.
type HandlerRegistry interface {
	AddMetricsServerExtraHandler(path string, handler http.Handler) error
}

// SetupPprofHandlers registers every entry of Profiles under PathPrefix.
func SetupPprofHandlers(reg HandlerRegistry) error {
	for _, p := range Profiles {
		if err := reg.AddMetricsServerExtraHandler(PathPrefix+p, pprof.Handler(p)); err != nil {
			return err
		}
	}

	runtime.SetMutexProfileFraction(1)
	runtime.SetBlockProfileRate(1)

	return nil
}
