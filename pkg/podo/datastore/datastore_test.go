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

package datastore

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	testclock "k8s.io/utils/clock/testing"
)

const key = "5c3d0d4a9d7c0b1b2f4a6e8d9c0b1a2f3e4d5c6b"

func TestTouchAndGet(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clk := testclock.NewFakePassiveClock(now)
	ds := NewDatastoreWithClock(clk)

	if _, ok := ds.Get(key); ok {
		t.Fatalf("Get(%q) on empty store reported an entry", key)
	}

	ds.Touch(key)
	got, ok := ds.Get(key)
	if !ok || !got.Equal(now) {
		t.Fatalf("Get(%q) = (%v, %v), want (%v, true)", key, got, ok, now)
	}

	later := now.Add(time.Hour)
	clk.SetTime(later)
	ds.Touch(key)
	if got, _ := ds.Get(key); !got.Equal(later) {
		t.Errorf("Touch did not refresh: got %v, want %v", got, later)
	}
	if ds.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ds.Len())
	}
}

func TestDelete(t *testing.T) {
	ds := NewDatastore()
	ds.Set(key, time.Now())
	ds.Delete(key)
	if _, ok := ds.Get(key); ok {
		t.Errorf("Get(%q) after Delete reported an entry", key)
	}
	// Deleting again is a no-op.
	ds.Delete(key)
	if ds.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ds.Len())
	}
}

func TestRange(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := NewDatastore()
	want := map[string]time.Time{
		"a": base,
		"b": base.Add(time.Minute),
		"c": base.Add(time.Hour),
	}
	for k, v := range want {
		ds.Set(k, v)
	}

	got := map[string]time.Time{}
	ds.Range(func(k string, v time.Time) bool {
		got[k] = v
		return true
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Range() mismatch (-want +got):\n%s", diff)
	}

	visited := 0
	ds.Range(func(string, time.Time) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("Range stopped after %d entries, want 1", visited)
	}
}

func TestRangeAllowsDelete(t *testing.T) {
	ds := NewDatastore()
	ds.Set("a", time.Now())
	ds.Set("b", time.Now())

	ds.Range(func(k string, _ time.Time) bool {
		ds.Delete(k)
		return true
	})
	if ds.Len() != 0 {
		t.Errorf("Len() = %d after deleting every entry while ranging, want 0", ds.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	ds := NewDatastore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ds.Touch(key)
			ds.Get(key)
			ds.Range(func(string, time.Time) bool { return true })
			ds.Delete(key)
		}()
	}
	wg.Wait()
}
