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

// Package workload resolves activation keys to the deployments behind them,
// drives their replica count and probes their readiness.
package workload

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "github.com/podo-dev/podo/pkg/common/observability/logging"
	"github.com/podo-dev/podo/pkg/podo/shadow"
	errutil "github.com/podo-dev/podo/pkg/podo/util/error"
)

// Binding is the chain of objects an activation key resolves to. It is
// rebuilt on every use.
type Binding struct {
	Shadow     *networkingv1.Ingress
	Service    *corev1.Service
	Deployment *appsv1.Deployment
}

// ShadowFinder looks up the shadow ingress of an activation key.
type ShadowFinder interface {
	Find(ctx context.Context, key string) (*networkingv1.Ingress, error)
}

// Resolver walks shadow -> service -> deployment.
type Resolver struct {
	client  client.Client
	shadows ShadowFinder
}

func NewResolver(c client.Client, shadows ShadowFinder) *Resolver {
	return &Resolver{client: c, shadows: shadows}
}

// Resolve returns the binding of key. Missing objects yield a
// ResolutionFailed error, API failures an ApiError.
func (r *Resolver) Resolve(ctx context.Context, key string) (*Binding, error) {
	logger := log.FromContext(ctx).WithValues("key", key)

	ing, err := r.shadows.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	svc, err := r.service(ctx, ing)
	if err != nil {
		return nil, err
	}
	deploy, err := r.deployment(ctx, svc)
	if err != nil {
		return nil, err
	}

	logger.V(logutil.TRACE).Info("Resolved activation key",
		"shadow", ing.Name, "service", svc.Name, "deployment", deploy.Name)
	return &Binding{Shadow: ing, Service: svc, Deployment: deploy}, nil
}

// ResolveService stops at the service of key, for callers that do not
// touch the deployment.
func (r *Resolver) ResolveService(ctx context.Context, key string) (*corev1.Service, error) {
	ing, err := r.shadows.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	return r.service(ctx, ing)
}

func (r *Resolver) service(ctx context.Context, ing *networkingv1.Ingress) (*corev1.Service, error) {
	name := ing.Labels[shadow.ServiceNameLabel]
	if name == "" {
		return nil, errutil.Errorf(errutil.ResolutionFailed, "shadow ingress %s has no %s label", ing.Name, shadow.ServiceNameLabel)
	}
	svc := &corev1.Service{}
	if err := r.client.Get(ctx, types.NamespacedName{Namespace: ing.Namespace, Name: name}, svc); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, errutil.Errorf(errutil.ResolutionFailed, "service %s not found", name)
		}
		return nil, errutil.Errorf(errutil.ApiError, "failed to get service %s - %v", name, err)
	}
	return svc, nil
}

func (r *Resolver) deployment(ctx context.Context, svc *corev1.Service) (*appsv1.Deployment, error) {
	if len(svc.Spec.Selector) == 0 {
		return nil, errutil.Errorf(errutil.ResolutionFailed, "service %s has no selector", svc.Name)
	}
	list := &appsv1.DeploymentList{}
	if err := r.client.List(ctx, list, client.InNamespace(svc.Namespace), client.MatchingLabels(svc.Spec.Selector)); err != nil {
		return nil, errutil.Errorf(errutil.ApiError, "failed to list deployments for service %s - %v", svc.Name, err)
	}
	if len(list.Items) == 0 {
		return nil, errutil.Errorf(errutil.ResolutionFailed, "no deployment matches the selector of service %s", svc.Name)
	}
	return &list.Items[0], nil
}
