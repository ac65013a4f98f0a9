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
	"crypto/sha1"
	"encoding/hex"
	"regexp"
)

// Label and annotation keys. These are shared with ingresses created by
// earlier podo releases and must not change.
const (
	KeyLabel          = "podo.key"
	SourceLabel       = "podo.autogenerated.from"
	ManagedLabel      = "podo.managed"
	ServiceNameLabel  = "podo.service.name"
	ServicePortNumber = "podo.service.port.number"
	ServicePortName   = "podo.service.port.name"

	// AuthURLAnnotation makes ingress-nginx ask the activation proxy before
	// forwarding every request.
	AuthURLAnnotation = "nginx.ingress.kubernetes.io/auth-url"
	// SourceGenerationAnnotation records the generation of the ingress the
	// shadow was derived from.
	SourceGenerationAnnotation = "podo.source-generation"
	// SourceAnnotationsAnnotation fingerprints the annotations copied from
	// the source. Annotation edits do not bump the generation.
	SourceAnnotationsAnnotation = "podo.source-annotations"

	lastAppliedAnnotation = "kubectl.kubernetes.io/last-applied-configuration"

	// NamePrefix is prepended to the source name to name its shadow.
	NamePrefix = "podo-"
	// ActivatePath is the proxy path prefix followed by the activation key.
	ActivatePath = "/activate/"
)

var validKey = regexp.MustCompile(`^[a-z0-9]{1,63}$`)

// ActivationKey derives the activation key of the ingress called name. It is
// a pure function of the name, so it is stable across reconciliations.
func ActivationKey(name string) string {
	sum := sha1.Sum([]byte(name))
	return hex.EncodeToString(sum[:])
}

// ValidKey reports whether key is safe to use as a label selector value.
// Keys arrive from untrusted client connections.
func ValidKey(key string) bool {
	return validKey.MatchString(key)
}

// ShadowName returns the name of the shadow ingress of the ingress called name.
func ShadowName(name string) string {
	return NamePrefix + name
}
