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

package shadow

import (
	"context"

	"go.uber.org/multierr"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "github.com/podo-dev/podo/pkg/common/observability/logging"
	"github.com/podo-dev/podo/pkg/podo/datastore"
	errutil "github.com/podo-dev/podo/pkg/podo/util/error"
)

// Manager creates, rewrites and removes shadow ingresses in one namespace.
type Manager struct {
	client    client.Client
	datastore datastore.Datastore
	config    Config
}

func NewManager(c client.Client, ds datastore.Datastore, cfg Config) *Manager {
	return &Manager{client: c, datastore: ds, config: cfg}
}

// Config returns the derivation config of the manager.
func (m *Manager) Config() Config {
	return m.config
}

// Shadow derives the shadow of original without touching the cluster.
func (m *Manager) Shadow(original *networkingv1.Ingress) *networkingv1.Ingress {
	return m.config.Shadow(original)
}

// Create derives and persists the shadow of original.
func (m *Manager) Create(ctx context.Context, original *networkingv1.Ingress) (*networkingv1.Ingress, error) {
	shadow := m.config.Shadow(original)
	if err := m.client.Create(ctx, shadow); err != nil {
		return nil, errutil.Errorf(errutil.ApiError, "failed to create shadow ingress %s - %v", shadow.Name, err)
	}
	log.FromContext(ctx).V(logutil.DEFAULT).Info("Shadow ingress created",
		"name", shadow.Name, "source", original.Name, "key", shadow.Labels[KeyLabel])
	return shadow, nil
}

// Find returns the shadow ingress labelled with key.
func (m *Manager) Find(ctx context.Context, key string) (*networkingv1.Ingress, error) {
	if !ValidKey(key) {
		return nil, errutil.Errorf(errutil.BadRequest, "invalid activation key %q", key)
	}
	list := &networkingv1.IngressList{}
	if err := m.client.List(ctx, list, client.InNamespace(m.config.Namespace), client.MatchingLabels{KeyLabel: key}); err != nil {
		return nil, errutil.Errorf(errutil.ApiError, "failed to list shadow ingresses for key %s - %v", key, err)
	}
	if len(list.Items) == 0 {
		return nil, errutil.Errorf(errutil.ResolutionFailed, "no shadow ingress for key %s", key)
	}
	return &list.Items[0], nil
}

// Delete removes the shadow of the ingress called originalName and forgets
// its activation key.
func (m *Manager) Delete(ctx context.Context, originalName string) error {
	list := &networkingv1.IngressList{}
	if err := m.client.List(ctx, list, client.InNamespace(m.config.Namespace), client.MatchingLabels{SourceLabel: originalName}); err != nil {
		return errutil.Errorf(errutil.ApiError, "failed to list shadows of %s - %v", originalName, err)
	}
	return m.deleteAll(ctx, list.Items)
}

// DeleteAll removes every shadow ingress in the namespace.
func (m *Manager) DeleteAll(ctx context.Context) error {
	list := &networkingv1.IngressList{}
	if err := m.client.List(ctx, list, client.InNamespace(m.config.Namespace), client.HasLabels{KeyLabel}); err != nil {
		return errutil.Errorf(errutil.ApiError, "failed to list shadow ingresses - %v", err)
	}
	return m.deleteAll(ctx, list.Items)
}

func (m *Manager) deleteAll(ctx context.Context, shadows []networkingv1.Ingress) error {
	logger := log.FromContext(ctx)
	var errs error
	for i := range shadows {
		shadow := &shadows[i]
		m.datastore.Delete(shadow.Labels[KeyLabel])
		if err := m.client.Delete(ctx, shadow); err != nil && !apierrors.IsNotFound(err) {
			errs = multierr.Append(errs, errutil.Errorf(errutil.ApiError, "failed to delete shadow ingress %s - %v", shadow.Name, err))
			continue
		}
		logger.V(logutil.DEFAULT).Info("Shadow ingress deleted", "name", shadow.Name, "key", shadow.Labels[KeyLabel])
	}
	return errs
}

// Restore points the shadow of key back at the activation proxy, re-deriving
// it from the current source ingress so spec drift is picked up.
func (m *Manager) Restore(ctx context.Context, key string) error {
	shadow, original, err := m.pair(ctx, key)
	if err != nil {
		return err
	}
	derived := m.config.Shadow(original)
	patch := client.MergeFrom(shadow.DeepCopy())
	shadow.Labels = derived.Labels
	shadow.Annotations = derived.Annotations
	shadow.Spec = derived.Spec
	if err := m.client.Patch(ctx, shadow, patch); err != nil {
		return errutil.Errorf(errutil.ApiError, "failed to restore shadow ingress %s - %v", shadow.Name, err)
	}
	log.FromContext(ctx).V(logutil.DEFAULT).Info("Shadow ingress restored to proxy routing", "name", shadow.Name, "key", key)
	return nil
}

// PatchToDirect copies the source ingress rules onto the shadow of key, so
// traffic reaches the backend without waiting for a reconciliation.
func (m *Manager) PatchToDirect(ctx context.Context, key string) error {
	shadow, original, err := m.pair(ctx, key)
	if err != nil {
		return err
	}
	patch := client.MergeFrom(shadow.DeepCopy())
	shadow.Spec.Rules = original.DeepCopy().Spec.Rules
	if err := m.client.Patch(ctx, shadow, patch); err != nil {
		return errutil.Errorf(errutil.ApiError, "failed to patch shadow ingress %s to direct routing - %v", shadow.Name, err)
	}
	log.FromContext(ctx).V(logutil.DEFAULT).Info("Shadow ingress patched to direct routing", "name", shadow.Name, "key", key)
	return nil
}

// pair returns the shadow of key and the source ingress it was derived from.
func (m *Manager) pair(ctx context.Context, key string) (*networkingv1.Ingress, *networkingv1.Ingress, error) {
	shadow, err := m.Find(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	source := shadow.Labels[SourceLabel]
	original := &networkingv1.Ingress{}
	if err := m.client.Get(ctx, types.NamespacedName{Namespace: shadow.Namespace, Name: source}, original); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil, errutil.Errorf(errutil.ResolutionFailed, "source ingress %s of key %s not found", source, key)
		}
		return nil, nil, errutil.Errorf(errutil.ApiError, "failed to get source ingress %s - %v", source, err)
	}
	return shadow, original, nil
}
