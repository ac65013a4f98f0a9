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
	"fmt"
	"io"
	"net/http"

	"github.com/podo-dev/podo/version"
)

const (
	bodyActivated = "have fun"
	bodyTimeout   = "deployment did not come up"
	bodyInternal  = "internal server error"
)

// Response is a minimal HTTP/1.1 response. The connection is always closed
// after it is written.
type Response struct {
	Code     int
	Location string
	Body     string
}

func activated() Response {
	return Response{Code: http.StatusOK, Body: bodyActivated}
}

func redirect(path string) Response {
	return Response{Code: http.StatusTemporaryRedirect, Location: path}
}

func failed(body string) Response {
	return Response{Code: http.StatusInternalServerError, Body: body}
}

// WriteTo writes the status line, headers and body to w.
func (r Response) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", r.Code, http.StatusText(r.Code))
	if r.Location != "" {
		fmt.Fprintf(&buf, "Location: %s\r\n", r.Location)
	}
	fmt.Fprintf(&buf, "Server: %s\r\n", version.ServerHeader)
	buf.WriteString("Content-Type: text/plain\r\n")
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(r.Body))
	buf.WriteString("Connection: close\r\n\r\n")
	buf.WriteString(r.Body)
	return buf.WriteTo(w)
}
