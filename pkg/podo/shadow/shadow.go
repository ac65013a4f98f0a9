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
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

// Config holds what a shadow derivation needs to know about the activation
// proxy and the ingress controller in front of it.
type Config struct {
	// Namespace used when the source ingress carries none.
	Namespace string
	// UpstreamClass is the ingress class of the controller that actually
	// serves traffic. Shadows are programmed with it.
	UpstreamClass string
	// ProxyServiceName and ProxyServicePort address the activation proxy.
	ProxyServiceName string
	ProxyServicePort networkingv1.ServiceBackendPort
	// ActivationURL is the externally reachable base URL of the proxy.
	ActivationURL string
}

// ParseServicePort turns "8080" into a numbered port and anything else into a
// named port.
func ParseServicePort(s string) networkingv1.ServiceBackendPort {
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return networkingv1.ServiceBackendPort{Number: int32(n)}
	}
	return networkingv1.ServiceBackendPort{Name: s}
}

// AuthURL returns the proxy endpoint the ingress controller calls for key.
func (c Config) AuthURL(key string) string {
	return strings.TrimRight(c.ActivationURL, "/") + ActivatePath + key
}

// Shadow derives the shadow ingress of original. It does not modify original
// and reads nothing but its arguments.
func (c Config) Shadow(original *networkingv1.Ingress) *networkingv1.Ingress {
	key := ActivationKey(original.Name)
	namespace := original.Namespace
	if namespace == "" {
		namespace = c.Namespace
	}

	annotations := make(map[string]string, len(original.Annotations)+2)
	for k, v := range original.Annotations {
		annotations[k] = v
	}
	delete(annotations, lastAppliedAnnotation)
	annotations[SourceAnnotationsAnnotation] = fingerprint(annotations)
	annotations[AuthURLAnnotation] = c.AuthURL(key)
	annotations[SourceGenerationAnnotation] = strconv.FormatInt(original.Generation, 10)

	labels := map[string]string{
		KeyLabel:     key,
		SourceLabel:  original.Name,
		ManagedLabel: "true",
	}

	spec := original.Spec.DeepCopy()
	spec.IngressClassName = ptr.To(c.UpstreamClass)
	if spec.DefaultBackend != nil {
		c.redirect(spec.DefaultBackend, labels)
	}
	for i := range spec.Rules {
		if spec.Rules[i].HTTP == nil {
			continue
		}
		for j := range spec.Rules[i].HTTP.Paths {
			c.redirect(&spec.Rules[i].HTTP.Paths[j].Backend, labels)
		}
	}

	return &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:        ShadowName(original.Name),
			Namespace:   namespace,
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: *spec,
	}
}

// redirect points backend at the proxy and remembers the original service in
// labels. With several backends the last one wins.
func (c Config) redirect(backend *networkingv1.IngressBackend, labels map[string]string) {
	if backend.Service == nil {
		return
	}
	labels[ServiceNameLabel] = backend.Service.Name
	delete(labels, ServicePortNumber)
	delete(labels, ServicePortName)
	if backend.Service.Port.Number != 0 {
		labels[ServicePortNumber] = strconv.Itoa(int(backend.Service.Port.Number))
	}
	if backend.Service.Port.Name != "" {
		labels[ServicePortName] = backend.Service.Port.Name
	}
	backend.Service = &networkingv1.IngressServiceBackend{
		Name: c.ProxyServiceName,
		Port: c.ProxyServicePort,
	}
}

// SourceGeneration returns the generation recorded on shadow, or -1.
func SourceGeneration(shadow *networkingv1.Ingress) int64 {
	gen, err := strconv.ParseInt(shadow.Annotations[SourceGenerationAnnotation], 10, 64)
	if err != nil {
		return -1
	}
	return gen
}

// UpToDate reports whether shadow was derived from original as it is now:
// same generation and same annotations.
func UpToDate(shadow, original *networkingv1.Ingress) bool {
	if SourceGeneration(shadow) != original.Generation {
		return false
	}
	annotations := make(map[string]string, len(original.Annotations))
	for k, v := range original.Annotations {
		annotations[k] = v
	}
	delete(annotations, lastAppliedAnnotation)
	return shadow.Annotations[SourceAnnotationsAnnotation] == fingerprint(annotations)
}

func fingerprint(annotations map[string]string) string {
	keys := make([]string, 0, len(annotations))
	for k := range annotations {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	d := xxhash.New()
	for _, k := range keys {
		_, _ = d.WriteString(k)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(annotations[k])
		_, _ = d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
