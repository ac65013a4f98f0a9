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

	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "github.com/podo-dev/podo/pkg/common/observability/logging"
	"github.com/podo-dev/podo/pkg/podo/datastore"
	errutil "github.com/podo-dev/podo/pkg/podo/util/error"
)

// Scaler sets the replica count of the deployment behind an activation key.
type Scaler struct {
	client    client.Client
	resolver  *Resolver
	datastore datastore.Datastore
}

func NewScaler(c client.Client, resolver *Resolver, ds datastore.Datastore) *Scaler {
	return &Scaler{client: c, resolver: resolver, datastore: ds}
}

// Scale patches the deployment of key to replicas. Nothing is written when
// the deployment already has that many. Scaling to zero always forgets key,
// even when the deployment cannot be resolved.
func (s *Scaler) Scale(ctx context.Context, key string, replicas int32) error {
	logger := log.FromContext(ctx).WithValues("key", key, "replicas", replicas)
	if replicas == 0 {
		s.datastore.Delete(key)
	}

	binding, err := s.resolver.Resolve(ctx, key)
	if err != nil {
		return err
	}
	deploy := binding.Deployment
	// An unset replica count defaults to one on the API server.
	if ptr.Deref(deploy.Spec.Replicas, 1) == replicas {
		logger.V(logutil.TRACE).Info("Deployment already at desired scale", "deployment", deploy.Name)
		return nil
	}

	patch := client.MergeFrom(deploy.DeepCopy())
	deploy.Spec.Replicas = ptr.To(replicas)
	if err := s.client.Patch(ctx, deploy, patch); err != nil {
		return errutil.Errorf(errutil.ApiError, "failed to scale deployment %s - %v", deploy.Name, err)
	}
	logger.V(logutil.DEFAULT).Info("Deployment scaled", "deployment", deploy.Name)
	return nil
}
