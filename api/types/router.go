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

// DispatchStatus is the variant tag of a DispatchResult.
type DispatchStatus int

const (
	NotFound DispatchStatus = iota
	Found
	MethodNotAllowed
)

func (s DispatchStatus) String() string {
	switch s {
	case Found:
		return "found"
	case MethodNotAllowed:
		return "methodNotAllowed"
	default:
		return "notFound"
	}
}

// DispatchResult is what a Router returns for a request.
type DispatchResult struct {
	Status DispatchStatus
	// RouteID is set when Status is Found.
	RouteID string
	// Params are the raw path parameters when Status is Found.
	Params map[string]string
	// Allowed are the methods registered for the path when Status is MethodNotAllowed.
	Allowed []string
}

// RouteInfo is the dispatch result cached on a request together with the
// (method, URI) identity that produced it.
type RouteInfo struct {
	DispatchResult
	Method string
	URI    string
}

// Matches reports whether the cached result is still valid for req.
func (ri *RouteInfo) Matches(req *Request) bool {
	return ri != nil && ri.Method == req.Method() && ri.URI == req.URI()
}

// Handler handles a request. Returning nil response keeps the incoming one.
type Handler func(req *Request, res *Response) (*Response, error)

// Middleware runs before or after the route. It must return a non-nil
// request and response.
type Middleware func(req *Request, res *Response) (*Request, *Response, error)

// ErrorHandler renders err into a response.
type ErrorHandler func(req *Request, res *Response, err error) *Response

// NotAllowedHandler renders a method-not-allowed response.
type NotAllowedHandler func(req *Request, res *Response, allowed []string) *Response

// Route is a registered route.
type Route interface {
	ID() string
	Name() string
	SetName(name string) Route
	Pattern() string
	Methods() []string
	// Add appends a route level middleware.
	Add(mw Middleware) Route
	// Prepare returns a per-request copy of the route bound to args.
	Prepare(req *Request, args map[string]string) Route
	Arguments() map[string]string
	Argument(name string) string
	Run(req *Request, res *Response) (*Response, error)
}

// Router is the route collaborator of the dispatch pipeline.
type Router interface {
	Dispatch(req *Request) DispatchResult
	LookupRoute(id string) (Route, error)
	SetBasePath(path string)
	BasePath() string
	// Map registers handler under pattern for methods. handler is resolved
	// with the CallableResolver.
	Map(methods []string, pattern string, handler interface{}) (Route, error)
	PushGroup(pattern string)
	PopGroup()
	Routes() []Route
}

// CallableResolver turns a handler reference into a Handler.
type CallableResolver interface {
	Resolve(v interface{}) (Handler, error)
}

// Container is a capability-keyed service lookup.
type Container interface {
	Get(key string) (interface{}, error)
	Has(key string) bool
}
