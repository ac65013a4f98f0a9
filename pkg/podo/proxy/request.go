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

package proxy

import (
	"bytes"
	"regexp"

	"github.com/podo-dev/podo/pkg/podo/shadow"
)

var (
	activationLine = regexp.MustCompile(`^GET ` + regexp.QuoteMeta(shadow.ActivatePath) + `(\S+) HTTP/1\.[0-9]$`)
	// requestPath only admits URL characters, so the match is safe to echo
	// back in a Location header.
	requestPath = regexp.MustCompile(`^[A-Z]+ ([-a-zA-Z0-9()@:%_+.~#?&/=]*) `)
)

// Request is what the proxy learns from the first chunk of a connection.
// Only the request line is looked at.
type Request struct {
	// Key is set for activation requests carrying a valid activation key.
	Key string
	// Path is the request target of any other request, "/" when none could
	// be parsed.
	Path string
}

// IsActivation reports whether the request asks for a workload activation.
func (r Request) IsActivation() bool {
	return r.Key != ""
}

// ParseRequest sniffs the request line of chunk.
func ParseRequest(chunk []byte) Request {
	line := chunk
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimSuffix(line, []byte("\r"))

	if m := activationLine.FindSubmatch(line); m != nil && shadow.ValidKey(string(m[1])) {
		return Request{Key: string(m[1])}
	}
	if m := requestPath.FindSubmatch(line); m != nil && len(m[1]) > 0 {
		return Request{Path: string(m[1])}
	}
	return Request{Path: "/"}
}
