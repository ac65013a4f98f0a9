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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	networkingv1 "k8s.io/api/networking/v1"

	utiltest "github.com/podo-dev/podo/pkg/podo/util/testing"
)

var testConfig = Config{
	Namespace:        "default",
	UpstreamClass:    "nginx",
	ProxyServiceName: "podo",
	ProxyServicePort: networkingv1.ServiceBackendPort{Name: "http"},
	ActivationURL:    "http://podo.default.svc:8080/",
}

func proxyBackend() *networkingv1.IngressServiceBackend {
	return &networkingv1.IngressServiceBackend{Name: "podo", Port: networkingv1.ServiceBackendPort{Name: "http"}}
}

func TestActivationKey(t *testing.T) {
	key := ActivationKey("shop")
	if len(key) != 40 {
		t.Fatalf("ActivationKey() length = %d, want 40", len(key))
	}
	if key != ActivationKey("shop") {
		t.Errorf("ActivationKey is not deterministic")
	}
	if key == ActivationKey("shop2") {
		t.Errorf("ActivationKey collided for different names")
	}
	if !ValidKey(key) {
		t.Errorf("ValidKey(%q) = false for a derived key", key)
	}
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"abc123", true},
		{"deadkey", true},
		{ActivationKey("x"), true},
		{"", false},
		{"ABC", false},
		{"abc,podo.managed=true", false},
		{"abc def", false},
		{"../etc", false},
		{strings.Repeat("a", 64), false},
	}
	for _, tt := range tests {
		if got := ValidKey(tt.key); got != tt.want {
			t.Errorf("ValidKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestParseServicePort(t *testing.T) {
	if got := ParseServicePort("8080"); got != (networkingv1.ServiceBackendPort{Number: 8080}) {
		t.Errorf("ParseServicePort(8080) = %+v", got)
	}
	if got := ParseServicePort("http"); got != (networkingv1.ServiceBackendPort{Name: "http"}) {
		t.Errorf("ParseServicePort(http) = %+v", got)
	}
}

func TestShadow(t *testing.T) {
	original := utiltest.MakeIngress("shop").
		Class("podo").
		Generation(3).
		Labels(map[string]string{"team": "web"}).
		Annotations(map[string]string{
			"nginx.ingress.kubernetes.io/proxy-body-size": "8m",
			lastAppliedAnnotation:                         "{}",
		}).
		Rule("shop.example.com", "/", "shop-svc", 80).
		ObjRef()
	before := original.DeepCopy()

	got := testConfig.Shadow(original)
	key := ActivationKey("shop")

	if diff := cmp.Diff(before, original); diff != "" {
		t.Fatalf("Shadow modified its input (-before +after):\n%s", diff)
	}
	if got.Name != "podo-shop" || got.Namespace != "default" {
		t.Errorf("Shadow name = %s/%s, want default/podo-shop", got.Namespace, got.Name)
	}

	wantLabels := map[string]string{
		KeyLabel:          key,
		SourceLabel:       "shop",
		ManagedLabel:      "true",
		ServiceNameLabel:  "shop-svc",
		ServicePortNumber: "80",
	}
	if diff := cmp.Diff(wantLabels, got.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	wantAnnotations := map[string]string{
		"nginx.ingress.kubernetes.io/proxy-body-size": "8m",
		AuthURLAnnotation:           "http://podo.default.svc:8080/activate/" + key,
		SourceGenerationAnnotation:  "3",
		SourceAnnotationsAnnotation: fingerprint(map[string]string{"nginx.ingress.kubernetes.io/proxy-body-size": "8m"}),
	}
	if diff := cmp.Diff(wantAnnotations, got.Annotations); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}

	if got.Spec.IngressClassName == nil || *got.Spec.IngressClassName != "nginx" {
		t.Errorf("ingress class = %v, want nginx", got.Spec.IngressClassName)
	}
	backend := got.Spec.Rules[0].HTTP.Paths[0].Backend.Service
	if diff := cmp.Diff(proxyBackend(), backend); diff != "" {
		t.Errorf("backend mismatch (-want +got):\n%s", diff)
	}
	if got.Spec.Rules[0].Host != "shop.example.com" || got.Spec.Rules[0].HTTP.Paths[0].Path != "/" {
		t.Errorf("host/path were not preserved: %+v", got.Spec.Rules[0])
	}
}

func TestShadowNamedPortAndDefaultBackend(t *testing.T) {
	original := utiltest.MakeIngress("api").
		Class("podo").
		DefaultBackend("fallback", 8080).
		RuleNamedPort("api.example.com", "/v1", "api-svc", "web").
		ObjRef()

	got := testConfig.Shadow(original)

	if got.Labels[ServiceNameLabel] != "api-svc" || got.Labels[ServicePortName] != "web" {
		t.Errorf("rule backend should win over default backend, labels = %v", got.Labels)
	}
	if _, ok := got.Labels[ServicePortNumber]; ok {
		t.Errorf("stale port number label left behind: %v", got.Labels)
	}
	if diff := cmp.Diff(proxyBackend(), got.Spec.DefaultBackend.Service); diff != "" {
		t.Errorf("default backend mismatch (-want +got):\n%s", diff)
	}
}

func TestShadowKeyIsStable(t *testing.T) {
	originals := []*networkingv1.Ingress{
		utiltest.MakeIngress("shop").Class("podo").Rule("a", "/", "svc", 80).ObjRef(),
		utiltest.MakeIngress("shop").Class("podo").Generation(7).Rule("b", "/x", "other", 81).ObjRef(),
		utiltest.MakeIngress("blog").Class("podo").ObjRef(),
	}
	for _, original := range originals {
		first := testConfig.Shadow(original)

		// Re-deriving from the source fields recorded on the shadow yields the same key.
		source := utiltest.MakeIngress(first.Labels[SourceLabel]).Class("podo").ObjRef()
		second := testConfig.Shadow(source)
		if first.Labels[KeyLabel] != second.Labels[KeyLabel] {
			t.Errorf("key changed across derivations for %s: %s != %s", original.Name, first.Labels[KeyLabel], second.Labels[KeyLabel])
		}
		if first.Name != second.Name {
			t.Errorf("shadow name changed across derivations: %s != %s", first.Name, second.Name)
		}
	}
}

func TestShadowUsesConfigNamespace(t *testing.T) {
	original := utiltest.MakeIngress("shop").Namespace("").Class("podo").ObjRef()
	got := Config{Namespace: "apps", ProxyServiceName: "podo"}.Shadow(original)
	if got.Namespace != "apps" {
		t.Errorf("namespace = %q, want apps", got.Namespace)
	}
	if got.Spec.IngressClassName == nil || *got.Spec.IngressClassName != "" {
		t.Errorf("ingress class = %v, want empty upstream class", got.Spec.IngressClassName)
	}
}

func TestSourceGeneration(t *testing.T) {
	got := testConfig.Shadow(utiltest.MakeIngress("shop").Generation(12).ObjRef())
	if gen := SourceGeneration(got); gen != 12 {
		t.Errorf("SourceGeneration() = %d, want 12", gen)
	}
	if gen := SourceGeneration(utiltest.MakeIngress("bare").ObjRef()); gen != -1 {
		t.Errorf("SourceGeneration() without annotation = %d, want -1", gen)
	}
}

func TestUpToDate(t *testing.T) {
	base := func() *utiltest.IngressWrapper {
		return utiltest.MakeIngress("shop").
			Generation(2).
			Annotations(map[string]string{"nginx.ingress.kubernetes.io/rewrite-target": "/"}).
			Rule("shop.example.com", "/", "shop-svc", 80)
	}
	current := testConfig.Shadow(base().ObjRef())

	tests := []struct {
		name     string
		original *networkingv1.Ingress
		want     bool
	}{
		{
			name:     "unchanged",
			original: base().ObjRef(),
			want:     true,
		},
		{
			name:     "only last-applied changed",
			original: base().Annotations(map[string]string{"nginx.ingress.kubernetes.io/rewrite-target": "/", lastAppliedAnnotation: "{}"}).ObjRef(),
			want:     true,
		},
		{
			name:     "new generation",
			original: base().Generation(3).ObjRef(),
			want:     false,
		},
		{
			name:     "annotation edited",
			original: base().Annotations(map[string]string{"nginx.ingress.kubernetes.io/rewrite-target": "/$2"}).ObjRef(),
			want:     false,
		},
		{
			name:     "annotation removed",
			original: base().Annotations(nil).ObjRef(),
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UpToDate(current, tt.original); got != tt.want {
				t.Errorf("UpToDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFingerprintIgnoresOrder(t *testing.T) {
	a := fingerprint(map[string]string{"a": "1", "b": "2"})
	b := fingerprint(map[string]string{"b": "2", "a": "1"})
	if a != b {
		t.Errorf("fingerprint depends on map order: %s != %s", a, b)
	}
	if a == fingerprint(map[string]string{"a": "12"}) {
		t.Errorf("fingerprint does not separate keys from values")
	}
}
