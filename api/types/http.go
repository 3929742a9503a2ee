/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is the mutable request value flowing through the dispatch pipeline.
// Handlers write incidental output to Output(); the pipeline decides whether
// it ends up in the response body.
type Request struct {
	method     string
	uri        *url.URL
	basePath   string
	Header     http.Header
	body       []byte
	RemoteAddr string
	ctx        context.Context
	raw        *http.Request
	attributes map[string]interface{}
	output     bytes.Buffer
}

// NewRequest creates a request for method and uri, where uri is a path with
// an optional query string.
func NewRequest(method, uri string, body []byte) (*Request, error) {
	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return nil, err
	}
	return &Request{
		method:     strings.ToUpper(method),
		uri:        u,
		Header:     make(http.Header),
		body:       body,
		attributes: make(map[string]interface{}),
	}, nil
}

// NewRequestFromHTTP reads r into a Request. The body is consumed.
func NewRequestFromHTTP(r *http.Request, basePath string) (*Request, error) {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		body = b
	}
	u := *r.URL
	return &Request{
		method:     r.Method,
		uri:        &u,
		basePath:   basePath,
		Header:     r.Header.Clone(),
		body:       body,
		RemoteAddr: r.RemoteAddr,
		ctx:        r.Context(),
		raw:        r,
		attributes: make(map[string]interface{}),
	}, nil
}

func (r *Request) Method() string {
	return r.method
}

// SetMethod changes the method, invalidating any cached dispatch result.
func (r *Request) SetMethod(method string) {
	r.method = strings.ToUpper(method)
}

// URI returns the path and query of the request.
func (r *Request) URI() string {
	return r.uri.RequestURI()
}

// SetURI changes path and query, invalidating any cached dispatch result.
func (r *Request) SetURI(uri string) error {
	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return err
	}
	r.uri = u
	return nil
}

func (r *Request) Path() string {
	return r.uri.Path
}

// EscapedPath is Path in its escaped form, as routers match it.
func (r *Request) EscapedPath() string {
	return r.uri.EscapedPath()
}

func (r *Request) Query() url.Values {
	return r.uri.Query()
}

func (r *Request) BasePath() string {
	return r.basePath
}

func (r *Request) SetBasePath(basePath string) {
	r.basePath = basePath
}

func (r *Request) Body() []byte {
	return r.body
}

func (r *Request) SetBody(body []byte) {
	r.body = body
}

// Context returns the request context, which carries the worker id when the
// request is served by an engine worker.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

func (r *Request) SetContext(ctx context.Context) {
	r.ctx = ctx
}

// Raw returns the originating *http.Request, nil for synthetic requests.
func (r *Request) Raw() *http.Request {
	return r.raw
}

// HTTPRequest builds a net/http request from the current method, URI,
// headers and body.
func (r *Request) HTTPRequest() (*http.Request, error) {
	hr, err := http.NewRequestWithContext(r.Context(), r.method, r.uri.String(), bytes.NewReader(r.body))
	if err != nil {
		return nil, err
	}
	hr.Header = r.Header.Clone()
	hr.RemoteAddr = r.RemoteAddr
	hr.RequestURI = r.URI()
	if r.raw != nil {
		hr.Host = r.raw.Host
		hr.TLS = r.raw.TLS
	}
	return hr, nil
}

func (r *Request) Attribute(key string) interface{} {
	return r.attributes[key]
}

func (r *Request) SetAttribute(key string, value interface{}) {
	r.attributes[key] = value
}

func (r *Request) RemoveAttribute(key string) {
	delete(r.attributes, key)
}

// Route returns the matched route, nil before dispatch or when none matched.
func (r *Request) Route() Route {
	if route, ok := r.attributes[AttrRoute].(Route); ok {
		return route
	}
	return nil
}

// Param returns the decoded path parameter of the matched route.
func (r *Request) Param(name string) string {
	if route := r.Route(); route != nil {
		return route.Argument(name)
	}
	return ""
}

func (r *Request) Cookie(name string) string {
	c, err := (&http.Request{Header: r.Header}).Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// Output is the incidental output sink of handler code.
func (r *Request) Output() io.Writer {
	return &r.output
}

// OutputLen reports the number of pending output bytes.
func (r *Request) OutputLen() int {
	return r.output.Len()
}

// TakeOutput returns the pending output and clears it.
func (r *Request) TakeOutput() []byte {
	if r.output.Len() == 0 {
		return nil
	}
	b := append([]byte(nil), r.output.Bytes()...)
	r.output.Reset()
	return b
}

// Response is the mutable response value. It implements http.ResponseWriter
// so plain net/http handlers can write into it.
type Response struct {
	status int
	header http.Header
	body   bytes.Buffer
}

// NewResponse creates a 200 response with an HTML content type.
func NewResponse() *Response {
	h := make(http.Header)
	h.Set(HeaderContentType, "text/html; charset=UTF-8")
	return &Response{status: http.StatusOK, header: h}
}

func (r *Response) Status() int {
	return r.status
}

func (r *Response) WithStatus(status int) *Response {
	r.status = status
	return r
}

func (r *Response) Header() http.Header {
	return r.header
}

func (r *Response) WithHeader(key, value string) *Response {
	r.header.Set(key, value)
	return r
}

func (r *Response) WithoutHeader(key string) *Response {
	r.header.Del(key)
	return r
}

func (r *Response) Write(p []byte) (int, error) {
	return r.body.Write(p)
}

func (r *Response) WriteString(s string) (int, error) {
	return r.body.WriteString(s)
}

// WriteHeader sets the status code.
func (r *Response) WriteHeader(status int) {
	r.status = status
}

func (r *Response) Body() []byte {
	return r.body.Bytes()
}

// SetBody replaces the body.
func (r *Response) SetBody(body []byte) *Response {
	r.body.Reset()
	r.body.Write(body)
	return r
}

// Prepend inserts p in front of the body.
func (r *Response) Prepend(p []byte) {
	if len(p) == 0 {
		return
	}
	rest := append([]byte(nil), r.body.Bytes()...)
	r.body.Reset()
	r.body.Write(p)
	r.body.Write(rest)
}

func (r *Response) Len() int {
	return r.body.Len()
}

// IsEmpty reports whether the status forbids a body.
func (r *Response) IsEmpty() bool {
	switch r.status {
	case http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
		return true
	}
	return false
}

// Redirect sets the Location header and status.
func (r *Response) Redirect(location string, status int) *Response {
	r.header.Set(HeaderLocation, location)
	r.status = status
	return r
}
