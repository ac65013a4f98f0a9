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

package workload

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "github.com/podo-dev/podo/pkg/common/observability/logging"
	errutil "github.com/podo-dev/podo/pkg/podo/util/error"
)

// Prober reports whether the service behind an activation key has endpoints.
type Prober struct {
	client   client.Client
	resolver *Resolver
}

func NewProber(c client.Client, resolver *Resolver) *Prober {
	return &Prober{client: c, resolver: resolver}
}

// Ready is true iff the first endpoint subset of the backing service holds at
// least one address. Endpoints that do not exist yet are not ready.
func (p *Prober) Ready(ctx context.Context, key string) (bool, error) {
	svc, err := p.resolver.ResolveService(ctx, key)
	if err != nil {
		return false, err
	}

	ep := &corev1.Endpoints{}
	if err := p.client.Get(ctx, types.NamespacedName{Namespace: svc.Namespace, Name: svc.Name}, ep); err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, errutil.Errorf(errutil.ApiError, "failed to get endpoints of service %s - %v", svc.Name, err)
	}
	ready := len(ep.Subsets) > 0 && len(ep.Subsets[0].Addresses) > 0
	log.FromContext(ctx).V(logutil.DEBUG).Info("Probed service endpoints", "key", key, "service", svc.Name, "ready", ready)
	return ready, nil
}
