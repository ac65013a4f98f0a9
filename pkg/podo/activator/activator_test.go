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

package activator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"
	testclock "k8s.io/utils/clock/testing"

	logutil "github.com/podo-dev/podo/pkg/common/observability/logging"
	"github.com/podo-dev/podo/pkg/podo/datastore"
	errutil "github.com/podo-dev/podo/pkg/podo/util/error"
)

const key = "0123456789abcdef0123456789abcdef01234567"

var fastConfig = Config{
	MaxRetries:    60,
	RetryInterval: time.Millisecond,
	SettleDelay:   time.Millisecond,
}

type fakeScaler struct {
	mu    sync.Mutex
	calls []int32
	ds    datastore.Datastore
	errs  map[int]error // fails the n-th call, counting from 1
}

func (f *fakeScaler) Scale(_ context.Context, key string, replicas int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, replicas)
	if replicas == 0 {
		f.ds.Delete(key)
	}
	return f.errs[len(f.calls)]
}

func (f *fakeScaler) Calls() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.calls...)
}

// fakeProber answers readiness from a script. The last answer repeats.
type fakeProber struct {
	mu      sync.Mutex
	answers []bool
	err     error
	errs    map[int]error // fails the n-th probe, counting from 1
	probes  int
	gate    chan struct{}
}

func (f *fakeProber) Ready(context.Context, string) (bool, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.err != nil {
		return false, f.err
	}
	if err := f.errs[f.probes]; err != nil {
		return false, err
	}
	i := f.probes - 1
	if i >= len(f.answers) {
		i = len(f.answers) - 1
	}
	return f.answers[i], nil
}

func (f *fakeProber) Probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

type fakeRouter struct {
	mu      sync.Mutex
	patched []string
}

func (f *fakeRouter) PatchToDirect(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched = append(f.patched, key)
	return nil
}

type fixture struct {
	ds        datastore.Datastore
	scaler    *fakeScaler
	prober    *fakeProber
	router    *fakeRouter
	activator *Activator
}

func newFixture(prober *fakeProber, clk clock.Clock, cfg Config) *fixture {
	ds := datastore.NewDatastoreWithClock(clk)
	f := &fixture{
		ds:     ds,
		scaler: &fakeScaler{ds: ds},
		prober: prober,
		router: &fakeRouter{},
	}
	f.activator = NewActivator(ds, f.scaler, f.prober, f.router, clk, cfg)
	return f
}

func TestActivateFastPath(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := testclock.NewFakeClock(start.Add(time.Hour))
	f := newFixture(&fakeProber{answers: []bool{false}}, clk, fastConfig)
	f.ds.Set(key, start)

	require.NoError(t, f.activator.Activate(logutil.NewTestLoggerIntoContext(context.Background()), key))

	require.Zero(t, f.prober.Probes(), "fast path probed the cluster")
	require.Empty(t, f.scaler.Calls(), "fast path scaled the workload")
	lastUsed, ok := f.ds.Get(key)
	require.True(t, ok)
	require.Equal(t, clk.Now(), lastUsed, "fast path did not refresh the timestamp")
}

func TestActivateWakesSleepingWorkload(t *testing.T) {
	f := newFixture(&fakeProber{answers: []bool{false, false, false, true}}, clock.RealClock{}, fastConfig)

	require.NoError(t, f.activator.Activate(logutil.NewTestLoggerIntoContext(context.Background()), key))

	if diff := cmp.Diff([]int32{1, 1, 1}, f.scaler.Calls()); diff != "" {
		t.Errorf("scale calls mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 4, f.prober.Probes())
	_, ok := f.ds.Get(key)
	require.True(t, ok, "activated workload missing from the store")
	require.Equal(t, []string{key}, f.router.patched)
}

func TestActivateAlreadyReadyWorkload(t *testing.T) {
	f := newFixture(&fakeProber{answers: []bool{true}}, clock.RealClock{}, fastConfig)

	require.NoError(t, f.activator.Activate(logutil.NewTestLoggerIntoContext(context.Background()), key))

	require.Empty(t, f.scaler.Calls(), "a ready workload was scaled")
	_, ok := f.ds.Get(key)
	require.True(t, ok)
	require.Equal(t, []string{key}, f.router.patched)
}

func TestActivateTimesOut(t *testing.T) {
	cfg := fastConfig
	cfg.MaxRetries = 3
	f := newFixture(&fakeProber{answers: []bool{false}}, clock.RealClock{}, cfg)

	err := f.activator.Activate(logutil.NewTestLoggerIntoContext(context.Background()), key)

	require.True(t, errutil.IsCode(err, errutil.ActivationTimeout), "unexpected error %v", err)
	if diff := cmp.Diff([]int32{1, 1, 1, 0}, f.scaler.Calls()); diff != "" {
		t.Errorf("scale calls mismatch (-want +got):\n%s", diff)
	}
	_, ok := f.ds.Get(key)
	require.False(t, ok, "failed activation left a store entry")
	require.Empty(t, f.router.patched, "failed activation switched routing")
}

func TestActivateResolutionFailure(t *testing.T) {
	prober := &fakeProber{err: errutil.Errorf(errutil.ResolutionFailed, "no shadow ingress for key %s", key)}
	f := newFixture(prober, clock.RealClock{}, fastConfig)

	err := f.activator.Activate(logutil.NewTestLoggerIntoContext(context.Background()), key)

	require.True(t, errutil.IsCode(err, errutil.ResolutionFailed), "unexpected error %v", err)
	require.Empty(t, f.scaler.Calls())
	_, ok := f.ds.Get(key)
	require.False(t, ok)
}

func TestActivateSharesInFlightActivation(t *testing.T) {
	prober := &fakeProber{answers: []bool{false, true}, gate: make(chan struct{})}
	f := newFixture(prober, clock.RealClock{}, fastConfig)
	ctx := logutil.NewTestLoggerIntoContext(context.Background())

	const callers = 5
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() { errs <- f.activator.Activate(ctx, key) }()
	}
	close(prober.gate)

	for i := 0; i < callers; i++ {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("activation did not complete")
		}
	}
	if diff := cmp.Diff([]int32{1}, f.scaler.Calls()); diff != "" {
		t.Errorf("concurrent activations were not deduplicated (-want +got):\n%s", diff)
	}
	require.Equal(t, 2, prober.Probes())
}

func TestActivateInterrupted(t *testing.T) {
	cfg := fastConfig
	cfg.RetryInterval = time.Hour
	clk := testclock.NewFakeClock(time.Now())
	f := newFixture(&fakeProber{answers: []bool{false}}, clk, cfg)
	ctx, cancel := context.WithCancel(logutil.NewTestLoggerIntoContext(context.Background()))

	done := make(chan error, 1)
	go func() { done <- f.activator.Activate(ctx, key) }()
	require.Eventually(t, clk.HasWaiters, time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	require.True(t, errutil.IsCode(err, errutil.Internal), "unexpected error %v", err)
	if diff := cmp.Diff([]int32{1, 0}, f.scaler.Calls()); diff != "" {
		t.Errorf("interrupted activation was not scaled back (-want +got):\n%s", diff)
	}
}

func TestActivateRetriesTransientProbeFailure(t *testing.T) {
	prober := &fakeProber{
		answers: []bool{false, false, false, true},
		errs:    map[int]error{2: errutil.Errorf(errutil.ApiError, "failed to get endpoints of service shop-svc - etcdserver: request timed out")},
	}
	f := newFixture(prober, clock.RealClock{}, fastConfig)

	require.NoError(t, f.activator.Activate(logutil.NewTestLoggerIntoContext(context.Background()), key))

	if diff := cmp.Diff([]int32{1, 1, 1}, f.scaler.Calls()); diff != "" {
		t.Errorf("scale calls mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 4, prober.Probes())
	_, ok := f.ds.Get(key)
	require.True(t, ok, "activated workload missing from the store")
}

func TestActivateRetriesTransientScaleFailure(t *testing.T) {
	f := newFixture(&fakeProber{answers: []bool{false, false, true}}, clock.RealClock{}, fastConfig)
	f.scaler.errs = map[int]error{1: errutil.Errorf(errutil.ApiError, "failed to scale deployment shop - conflict")}

	require.NoError(t, f.activator.Activate(logutil.NewTestLoggerIntoContext(context.Background()), key))

	if diff := cmp.Diff([]int32{1, 1}, f.scaler.Calls()); diff != "" {
		t.Errorf("scale calls mismatch (-want +got):\n%s", diff)
	}
}

func TestActivateTransientFailuresExhaustRetries(t *testing.T) {
	cfg := fastConfig
	cfg.MaxRetries = 2
	prober := &fakeProber{err: errutil.Errorf(errutil.ApiError, "connection refused")}
	f := newFixture(prober, clock.RealClock{}, cfg)

	err := f.activator.Activate(logutil.NewTestLoggerIntoContext(context.Background()), key)

	require.True(t, errutil.IsCode(err, errutil.ActivationTimeout), "unexpected error %v", err)
	if diff := cmp.Diff([]int32{1, 1, 0}, f.scaler.Calls()); diff != "" {
		t.Errorf("scale calls mismatch (-want +got):\n%s", diff)
	}
}

func TestActivateAbortScalesBackToZero(t *testing.T) {
	prober := &fakeProber{
		answers: []bool{false},
		errs:    map[int]error{2: errutil.Errorf(errutil.ResolutionFailed, "no shadow ingress for key %s", key)},
	}
	f := newFixture(prober, clock.RealClock{}, fastConfig)

	err := f.activator.Activate(logutil.NewTestLoggerIntoContext(context.Background()), key)

	require.True(t, errutil.IsCode(err, errutil.ResolutionFailed), "unexpected error %v", err)
	if diff := cmp.Diff([]int32{1, 0}, f.scaler.Calls()); diff != "" {
		t.Errorf("aborted activation was not scaled back (-want +got):\n%s", diff)
	}
	_, ok := f.ds.Get(key)
	require.False(t, ok, "aborted activation left a store entry")
	require.Empty(t, f.router.patched)
}
