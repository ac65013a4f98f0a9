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

package testing

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/utils/ptr"
)

// NewScheme returns a scheme with the built-in kubernetes types registered.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	_ = clientgoscheme.AddToScheme(scheme)
	return scheme
}

// IngressWrapper wraps an Ingress.
type IngressWrapper struct {
	networkingv1.Ingress
}

// MakeIngress creates a wrapper for an Ingress.
func MakeIngress(name string) *IngressWrapper {
	return &IngressWrapper{
		networkingv1.Ingress{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: "default",
			},
		},
	}
}

func (i *IngressWrapper) Namespace(ns string) *IngressWrapper {
	i.ObjectMeta.Namespace = ns
	return i
}

func (i *IngressWrapper) Class(class string) *IngressWrapper {
	i.Spec.IngressClassName = ptr.To(class)
	return i
}

func (i *IngressWrapper) Labels(labels map[string]string) *IngressWrapper {
	i.ObjectMeta.Labels = labels
	return i
}

func (i *IngressWrapper) Annotations(annotations map[string]string) *IngressWrapper {
	i.ObjectMeta.Annotations = annotations
	return i
}

func (i *IngressWrapper) Generation(gen int64) *IngressWrapper {
	i.ObjectMeta.Generation = gen
	return i
}

// Rule appends a host rule routing path to the named service port.
func (i *IngressWrapper) Rule(host, path, service string, port int32) *IngressWrapper {
	return i.rule(host, path, service, networkingv1.ServiceBackendPort{Number: port})
}

// RuleNamedPort appends a host rule routing path to the named service port name.
func (i *IngressWrapper) RuleNamedPort(host, path, service, portName string) *IngressWrapper {
	return i.rule(host, path, service, networkingv1.ServiceBackendPort{Name: portName})
}

func (i *IngressWrapper) rule(host, path, service string, port networkingv1.ServiceBackendPort) *IngressWrapper {
	i.Spec.Rules = append(i.Spec.Rules, networkingv1.IngressRule{
		Host: host,
		IngressRuleValue: networkingv1.IngressRuleValue{
			HTTP: &networkingv1.HTTPIngressRuleValue{
				Paths: []networkingv1.HTTPIngressPath{{
					Path:     path,
					PathType: ptr.To(networkingv1.PathTypePrefix),
					Backend: networkingv1.IngressBackend{
						Service: &networkingv1.IngressServiceBackend{Name: service, Port: port},
					},
				}},
			},
		},
	})
	return i
}

// DefaultBackend sets the catch-all backend.
func (i *IngressWrapper) DefaultBackend(service string, port int32) *IngressWrapper {
	i.Spec.DefaultBackend = &networkingv1.IngressBackend{
		Service: &networkingv1.IngressServiceBackend{Name: service, Port: networkingv1.ServiceBackendPort{Number: port}},
	}
	return i
}

// ObjRef returns the wrapped Ingress.
func (i *IngressWrapper) ObjRef() *networkingv1.Ingress {
	return &i.Ingress
}

// ServiceWrapper wraps a Service.
type ServiceWrapper struct {
	corev1.Service
}

// MakeService creates a wrapper for a Service.
func MakeService(name string) *ServiceWrapper {
	return &ServiceWrapper{
		corev1.Service{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: "default",
			},
		},
	}
}

func (s *ServiceWrapper) Namespace(ns string) *ServiceWrapper {
	s.ObjectMeta.Namespace = ns
	return s
}

// Selector sets the pod selector of the service.
func (s *ServiceWrapper) Selector(selector map[string]string) *ServiceWrapper {
	s.Spec.Selector = selector
	return s
}

func (s *ServiceWrapper) ObjRef() *corev1.Service {
	return &s.Service
}

// DeploymentWrapper wraps a Deployment.
type DeploymentWrapper struct {
	appsv1.Deployment
}

// MakeDeployment creates a wrapper for a Deployment.
func MakeDeployment(name string) *DeploymentWrapper {
	return &DeploymentWrapper{
		appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: "default",
			},
			Spec: appsv1.DeploymentSpec{
				Replicas: ptr.To[int32](1),
			},
		},
	}
}

func (d *DeploymentWrapper) Namespace(ns string) *DeploymentWrapper {
	d.ObjectMeta.Namespace = ns
	return d
}

// Labels sets both the deployment labels and its pod template labels.
func (d *DeploymentWrapper) Labels(labels map[string]string) *DeploymentWrapper {
	d.ObjectMeta.Labels = labels
	d.Spec.Template.ObjectMeta.Labels = labels
	d.Spec.Selector = &metav1.LabelSelector{MatchLabels: labels}
	return d
}

func (d *DeploymentWrapper) Replicas(n int32) *DeploymentWrapper {
	d.Spec.Replicas = ptr.To(n)
	return d
}

func (d *DeploymentWrapper) ObjRef() *appsv1.Deployment {
	return &d.Deployment
}

// EndpointsWrapper wraps an Endpoints object.
type EndpointsWrapper struct {
	corev1.Endpoints
}

// MakeEndpoints creates a wrapper for the Endpoints of the named service.
func MakeEndpoints(service string) *EndpointsWrapper {
	return &EndpointsWrapper{
		corev1.Endpoints{
			ObjectMeta: metav1.ObjectMeta{
				Name:      service,
				Namespace: "default",
			},
		},
	}
}

func (e *EndpointsWrapper) Namespace(ns string) *EndpointsWrapper {
	e.ObjectMeta.Namespace = ns
	return e
}

// Subset appends a subset holding the given ready addresses.
func (e *EndpointsWrapper) Subset(ips ...string) *EndpointsWrapper {
	subset := corev1.EndpointSubset{}
	for _, ip := range ips {
		subset.Addresses = append(subset.Addresses, corev1.EndpointAddress{IP: ip})
	}
	e.Subsets = append(e.Subsets, subset)
	return e
}

func (e *EndpointsWrapper) ObjRef() *corev1.Endpoints {
	return &e.Endpoints
}
