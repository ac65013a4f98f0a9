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
	"time"

	"k8s.io/utils/clock"
)

// Datastore is the activation store: a mapping from activation key to the
// instant the workload behind it was last used. A missing key means the
// workload is asleep or was never activated. Entries only live as long as
// the process.
type Datastore interface {
	// Get returns the last-used instant of key.
	Get(key string) (time.Time, bool)
	// Touch records key as used now.
	Touch(key string)
	// Set records key as used at t.
	Set(key string, t time.Time)
	// Delete forgets key. Deleting a missing key is a no-op.
	Delete(key string)
	// Range calls f for a snapshot of the entries until f returns false.
	Range(f func(key string, lastUsed time.Time) bool)
	// Len returns the number of awake workloads.
	Len() int
}

// NewDatastore creates an empty store using the real clock.
func NewDatastore() Datastore {
	return NewDatastoreWithClock(clock.RealClock{})
}

// NewDatastoreWithClock creates an empty store whose Touch reads clk.
func NewDatastoreWithClock(clk clock.PassiveClock) Datastore {
	return &datastore{
		clock:    clk,
		lastUsed: map[string]time.Time{},
	}
}

type datastore struct {
	clock    clock.PassiveClock
	lock     sync.RWMutex
	lastUsed map[string]time.Time
}

func (ds *datastore) Get(key string) (time.Time, bool) {
	ds.lock.RLock()
	defer ds.lock.RUnlock()
	t, ok := ds.lastUsed[key]
	return t, ok
}

func (ds *datastore) Touch(key string) {
	ds.Set(key, ds.clock.Now())
}

func (ds *datastore) Set(key string, t time.Time) {
	ds.lock.Lock()
	defer ds.lock.Unlock()
	ds.lastUsed[key] = t
}

func (ds *datastore) Delete(key string) {
	ds.lock.Lock()
	defer ds.lock.Unlock()
	delete(ds.lastUsed, key)
}

// Range iterates over a copy so f may call back into the store, including
// Delete, without deadlocking.
func (ds *datastore) Range(f func(key string, lastUsed time.Time) bool) {
	ds.lock.RLock()
	snapshot := make(map[string]time.Time, len(ds.lastUsed))
	for k, v := range ds.lastUsed {
		snapshot[k] = v
	}
	ds.lock.RUnlock()

	for k, v := range snapshot {
		if !f(k, v) {
			return
		}
	}
}

func (ds *datastore) Len() int {
	ds.lock.RLock()
	defer ds.lock.RUnlock()
	return len(ds.lastUsed)
}
