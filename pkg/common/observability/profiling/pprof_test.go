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
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type registry struct {
	handlers map[string]http.Handler
	err      error
}

func (r *registry) AddMetricsServerExtraHandler(path string, handler http.Handler) error {
	if r.err != nil {
		return r.err
	}
	r.handlers[path] = handler
	return nil
}

func TestSetupPprofHandlers(t *testing.T) {
	reg := &registry{handlers: map[string]http.Handler{}}
	require.NoError(t, SetupPprofHandlers(reg))
	require.Len(t, reg.handlers, len(Profiles))

	h, ok := reg.handlers["/debug/pprof/goroutine"]
	require.True(t, ok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/goroutine?debug=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "goroutine profile")
}

func TestSetupPprofHandlersError(t *testing.T) {
	reg := &registry{err: errors.New("metrics server already started")}
	require.Error(t, SetupPprofHandlers(reg))
}
