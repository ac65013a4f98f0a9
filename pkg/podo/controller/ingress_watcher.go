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

package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/selection"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/utils/clock"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/podo-dev/podo/internal/runnable"
	logutil "github.com/podo-dev/podo/pkg/common/observability/logging"
	"github.com/podo-dev/podo/pkg/podo/metrics"
	"github.com/podo-dev/podo/pkg/podo/shadow"
)

// ShadowManager is the part of the shadow routing manager the watcher drives.
type ShadowManager interface {
	Create(ctx context.Context, original *networkingv1.Ingress) (*networkingv1.Ingress, error)
	Delete(ctx context.Context, originalName string) error
	DeleteAll(ctx context.Context) error
}

// Scaler sets the replica count of the workload behind an activation key.
type Scaler interface {
	Scale(ctx context.Context, key string, replicas int32) error
}

// IngressWatcher keeps one shadow ingress per ingress of the podo class.
// Every cycle starts from a clean slate: it drops all shadows, lists the
// ingresses and then follows their watch stream until it breaks.
type IngressWatcher struct {
	Client       client.WithWatch
	Shadows      ShadowManager
	Scaler       Scaler
	Namespace    string
	IngressClass string

	watching atomic.Bool
}

// SetupWithManager registers the watcher as a runnable restarted delay after
// every failed cycle.
func (w *IngressWatcher) SetupWithManager(mgr ctrl.Manager, delay time.Duration, clk clock.Clock) error {
	return mgr.Add(runnable.NoLeaderElection(
		runnable.Restarting("ingress-watcher", delay, clk, w.Cycle, metrics.RecordWatchRestart)))
}

// Watching reports whether a watch stream is currently established.
func (w *IngressWatcher) Watching() bool {
	return w.watching.Load()
}

// Cycle runs one list+watch cycle. It returns nil once ctx is cancelled and
// an error when the watch stream fails or closes.
func (w *IngressWatcher) Cycle(ctx context.Context) error {
	logger := log.FromContext(ctx)
	defer w.watching.Store(false)

	if err := w.Shadows.DeleteAll(ctx); err != nil {
		logger.Error(err, "Failed to delete stale shadow ingresses")
	}

	selector, err := unmanagedSelector()
	if err != nil {
		return err
	}
	list := &networkingv1.IngressList{}
	if err := w.Client.List(ctx, list, client.InNamespace(w.Namespace), client.MatchingLabelsSelector{Selector: selector}); err != nil {
		return fmt.Errorf("failed to list ingresses - %w", err)
	}
	logger.V(logutil.VERBOSE).Info("Listed ingresses", "count", len(list.Items), "resourceVersion", list.ResourceVersion)
	for i := range list.Items {
		w.onAdd(ctx, &list.Items[i])
	}

	watcher, err := w.Client.Watch(ctx, &networkingv1.IngressList{},
		client.InNamespace(w.Namespace),
		client.MatchingLabelsSelector{Selector: selector},
		&client.ListOptions{Raw: &metav1.ListOptions{ResourceVersion: list.ResourceVersion}})
	if err != nil {
		return fmt.Errorf("failed to watch ingresses - %w", err)
	}
	defer watcher.Stop()
	w.watching.Store(true)
	logger.V(logutil.DEFAULT).Info("Watching ingresses", "namespace", w.Namespace, "class", w.IngressClass)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.ResultChan():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("ingress watch channel closed")
			}
			if err := w.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (w *IngressWatcher) handle(ctx context.Context, ev watch.Event) error {
	if ev.Type == watch.Error {
		return fmt.Errorf("ingress watch failed - %w", apierrors.FromObject(ev.Object))
	}
	ing, ok := ev.Object.(*networkingv1.Ingress)
	if !ok {
		log.FromContext(ctx).V(logutil.DEBUG).Info("Ignoring watch event", "type", ev.Type)
		return nil
	}
	switch ev.Type {
	case watch.Added:
		w.onAdd(ctx, ing)
	case watch.Modified:
		w.onUpdate(ctx, ing)
	case watch.Deleted:
		w.onDelete(ctx, ing)
	}
	return nil
}

// owned reports whether ing is a user ingress of the podo class. Shadows are
// filtered here as well as in the selector.
func (w *IngressWatcher) owned(ing *networkingv1.Ingress) bool {
	if ing.Labels[shadow.ManagedLabel] == "true" {
		return false
	}
	return ptr.Deref(ing.Spec.IngressClassName, "") == w.IngressClass
}

func (w *IngressWatcher) onAdd(ctx context.Context, ing *networkingv1.Ingress) {
	if !w.owned(ing) {
		return
	}
	metrics.RecordShadowEvent(metrics.EventAdd)
	log.FromContext(ctx).V(logutil.VERBOSE).Info("Ingress added", "name", ing.Name)
	w.shadowAndSleep(ctx, ing)
}

func (w *IngressWatcher) onUpdate(ctx context.Context, ing *networkingv1.Ingress) {
	if !w.owned(ing) {
		return
	}
	logger := log.FromContext(ctx).WithValues("name", ing.Name)

	current := &networkingv1.Ingress{}
	err := w.Client.Get(ctx, types.NamespacedName{Namespace: ing.Namespace, Name: shadow.ShadowName(ing.Name)}, current)
	if err == nil && shadow.UpToDate(current, ing) {
		metrics.RecordShadowEvent(metrics.EventSkip)
		logger.V(logutil.DEBUG).Info("Ingress update changes nothing the shadow copies", "generation", ing.Generation)
		return
	}
	if err != nil && !apierrors.IsNotFound(err) {
		logger.Error(err, "Failed to get shadow ingress, recreating it")
	}

	metrics.RecordShadowEvent(metrics.EventUpdate)
	logger.V(logutil.VERBOSE).Info("Ingress updated", "generation", ing.Generation)
	if err := w.Shadows.Delete(ctx, ing.Name); err != nil {
		logger.Error(err, "Failed to delete outdated shadow ingress")
	}
	w.shadowAndSleep(ctx, ing)
}

func (w *IngressWatcher) onDelete(ctx context.Context, ing *networkingv1.Ingress) {
	if !w.owned(ing) {
		return
	}
	metrics.RecordShadowEvent(metrics.EventDelete)
	logger := log.FromContext(ctx).WithValues("name", ing.Name)
	logger.V(logutil.VERBOSE).Info("Ingress deleted")
	if err := w.Shadows.Delete(ctx, ing.Name); err != nil {
		logger.Error(err, "Failed to delete shadow ingress")
	}
}

// shadowAndSleep creates the shadow of ing and scales its workload to zero.
// Failures are logged; the next event for ing retries.
func (w *IngressWatcher) shadowAndSleep(ctx context.Context, ing *networkingv1.Ingress) {
	logger := log.FromContext(ctx).WithValues("name", ing.Name)
	if _, err := w.Shadows.Create(ctx, ing); err != nil {
		logger.Error(err, "Failed to create shadow ingress")
		return
	}
	if err := w.Scaler.Scale(ctx, shadow.ActivationKey(ing.Name), 0); err != nil {
		logger.V(logutil.DEFAULT).Error(err, "Failed to scale workload to zero")
	}
}

func unmanagedSelector() (labels.Selector, error) {
	req, err := labels.NewRequirement(shadow.ManagedLabel, selection.NotEquals, []string{"true"})
	if err != nil {
		return nil, fmt.Errorf("failed to build ingress selector - %w", err)
	}
	return labels.NewSelector().Add(*req), nil
}
