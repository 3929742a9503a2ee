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

package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/event"
	"github.com/rulego/hive/utils/runtime"
)

var validMethods = map[string]bool{
	http.MethodConnect: true,
	http.MethodDelete:  true,
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPatch:   true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodTrace:   true,
}

// Attach serves the request events fired on bus.
func (a *App) Attach(bus *event.Bus) {
	event.On(bus, event.Request, a.OnRequest)
}

// OnRequest serves a request event. A returned error leaves the answer to
// the engine.
func (a *App) OnRequest(from interface{}, ev types.RequestEvent) interface{} {
	if err := a.serve(ev.Writer, ev.Request); err != nil {
		return err
	}
	return nil
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := a.serve(w, r); err != nil {
		a.logger().Printf("%s %s: %v", r.Method, r.URL.RequestURI(), err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (a *App) serve(w http.ResponseWriter, r *http.Request) error {
	req, err := types.NewRequestFromHTTP(r, a.basePath)
	if err != nil {
		return err
	}
	res, err := a.Handle(req)
	if err != nil {
		return err
	}
	return a.Respond(w, res)
}

// Handle runs the whole pipeline for req: process, output buffering and
// finalize. Only failures no handler took are returned.
func (a *App) Handle(req *types.Request) (*types.Response, error) {
	req.SetAttribute(types.AttrRequestTime, time.Now())
	id := req.Header.Get(types.HeaderRequestId)
	if id == "" {
		if u, err := uuid.NewV4(); err == nil {
			id = u.String()
		}
	}
	req.SetAttribute(types.AttrRequestId, id)

	res := types.NewResponse()
	if id != "" {
		res.WithHeader(types.HeaderRequestId, id)
	}
	var err error
	if validMethods[req.Method()] {
		res, err = a.Process(req, res)
	} else {
		res, err = a.processInvalidMethod(req, res)
	}
	// closes the capture window
	output := req.TakeOutput()
	if err != nil {
		return nil, err
	}
	if len(output) > 0 {
		switch a.Settings().OutputBuffering {
		case types.OutputBufferingPrepend:
			res.Prepend(output)
		case types.OutputBufferingAppend:
			_, _ = res.Write(output)
		}
	}
	return a.Finalize(req, res)
}

// Process dispatches req, unless its cached dispatch result still matches,
// and runs the middleware chain around the route. Failures are mapped onto
// the registered handlers.
func (a *App) Process(req *types.Request, res *types.Response) (*types.Response, error) {
	r, err := a.Router()
	if err != nil {
		return nil, err
	}
	r.SetBasePath(req.BasePath())
	a.writeRouterCache(r)
	if info, _ := req.Attribute(types.AttrRouteInfo).(*types.RouteInfo); !info.Matches(req) {
		a.dispatchRouterAndPrepareRoute(req, r)
	}

	var out *types.Response
	err = runtime.Call(func() error {
		before, after := a.middleware()
		for _, mw := range before {
			nextReq, nextRes, err := callMiddleware(mw, req, res)
			if err != nil {
				return err
			}
			req, res = nextReq, nextRes
		}
		routed, err := a.invoke(req, res, r)
		if err != nil {
			return err
		}
		res = routed
		for _, mw := range after {
			nextReq, nextRes, err := callMiddleware(mw, req, res)
			if err != nil {
				return err
			}
			req, res = nextReq, nextRes
		}
		out = res
		return nil
	})
	if err != nil {
		return a.handleError(req, res, err)
	}
	return out, nil
}

func callMiddleware(mw types.Middleware, req *types.Request, res *types.Response) (*types.Request, *types.Response, error) {
	nextReq, nextRes, err := mw(req, res)
	if err != nil {
		return nil, nil, err
	}
	if nextReq == nil || nextRes == nil {
		return nil, nil, types.ErrMiddlewareContract
	}
	return nextReq, nextRes, nil
}

// invoke runs the route of req, dispatching again when method or URI
// changed since the cached result.
func (a *App) invoke(req *types.Request, res *types.Response, r types.Router) (*types.Response, error) {
	info, _ := req.Attribute(types.AttrRouteInfo).(*types.RouteInfo)
	if !info.Matches(req) {
		info = a.dispatchRouterAndPrepareRoute(req, r)
	}
	switch info.Status {
	case types.Found:
		route := req.Route()
		if route == nil {
			found, err := r.LookupRoute(info.RouteID)
			if err != nil {
				return nil, err
			}
			route = found.Prepare(req, info.Params)
		}
		out, err := route.Run(req, res)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = res
		}
		return out, nil
	case types.MethodNotAllowed:
		return nil, &types.MethodNotAllowedError{Method: req.Method(), Path: req.Path(), Allowed: info.Allowed}
	}
	return nil, &types.RouteNotFoundError{Method: req.Method(), Path: req.Path()}
}

// dispatchRouterAndPrepareRoute dispatches req and caches the result with
// the identity that produced it. A found route is prepared with the decoded
// parameters and attached to req.
func (a *App) dispatchRouterAndPrepareRoute(req *types.Request, r types.Router) *types.RouteInfo {
	result := r.Dispatch(req)
	req.RemoveAttribute(types.AttrRoute)
	if result.Status == types.Found {
		args := make(map[string]string, len(result.Params))
		for k, v := range result.Params {
			if decoded, err := url.QueryUnescape(v); err == nil {
				v = decoded
			}
			args[k] = v
		}
		result.Params = args
		if route, err := r.LookupRoute(result.RouteID); err == nil {
			req.SetAttribute(types.AttrRoute, route.Prepare(req, args))
		} else {
			a.logger().Printf("dispatch %s %s: %v", req.Method(), req.URI(), err)
			result = types.DispatchResult{Status: types.NotFound}
		}
	}
	info := &types.RouteInfo{DispatchResult: result, Method: req.Method(), URI: req.URI()}
	req.SetAttribute(types.AttrRouteInfo, info)
	return info
}

// processInvalidMethod answers a method outside the known verbs without
// running the chain: not allowed when the path exists under other methods,
// not found otherwise.
func (a *App) processInvalidMethod(req *types.Request, res *types.Response) (*types.Response, error) {
	r, err := a.Router()
	if err != nil {
		return nil, err
	}
	r.SetBasePath(req.BasePath())
	info := a.dispatchRouterAndPrepareRoute(req, r)
	if info.Status == types.MethodNotAllowed {
		return a.handleError(req, res, &types.MethodNotAllowedError{Method: req.Method(), Path: req.Path(), Allowed: info.Allowed})
	}
	return a.handleError(req, res, &types.RouteNotFoundError{Method: req.Method(), Path: req.Path()})
}

// Finalize strips entity headers of bodiless responses and sets
// Content-Length when addContentLengthHeader is on. Output pending on req at
// this point escaped the capture window and fails the request.
func (a *App) Finalize(req *types.Request, res *types.Response) (*types.Response, error) {
	if res.IsEmpty() {
		return res.WithoutHeader(types.HeaderContentType).WithoutHeader(types.HeaderContentLength), nil
	}
	if a.Settings().AddContentLengthHeader {
		if req != nil && req.OutputLen() > 0 {
			return nil, fmt.Errorf("%w: %d bytes", types.ErrUnexpectedOutput, req.OutputLen())
		}
		if res.Header().Get(types.HeaderContentLength) == "" {
			res.WithHeader(types.HeaderContentLength, strconv.Itoa(res.Len()))
		}
	}
	return res, nil
}

// Respond writes res to w, the body in responseChunkSize chunks and bounded
// by Content-Length when it is set.
func (a *App) Respond(w http.ResponseWriter, res *types.Response) error {
	header := w.Header()
	for k, values := range res.Header() {
		header[k] = append([]string(nil), values...)
	}
	w.WriteHeader(res.Status())
	if res.IsEmpty() {
		return nil
	}
	chunkSize := a.Settings().ResponseChunkSize
	body := res.Body()
	amount := len(body)
	if n, err := strconv.Atoi(res.Header().Get(types.HeaderContentLength)); err == nil && n < amount {
		amount = n
	}
	for offset := 0; offset < amount; offset += chunkSize {
		end := offset + chunkSize
		if end > amount {
			end = amount
		}
		if _, err := w.Write(body[offset:end]); err != nil {
			return err
		}
	}
	return nil
}

// SubRequest routes a synthetic request against the registered routes
// without the app middleware. Routing failures are returned, not mapped.
func (a *App) SubRequest(ctx context.Context, method, uri string, header http.Header, body []byte, res *types.Response) (*types.Response, error) {
	req, err := types.NewRequest(method, uri, body)
	if err != nil {
		return nil, err
	}
	req.SetContext(ctx)
	req.SetBasePath(a.basePath)
	for k, values := range header {
		req.Header[k] = append([]string(nil), values...)
	}
	if res == nil {
		res = types.NewResponse()
	}
	r, err := a.Router()
	if err != nil {
		return nil, err
	}
	r.SetBasePath(req.BasePath())
	var out *types.Response
	err = runtime.Call(func() error {
		var err error
		out, err = a.invoke(req, res, r)
		return err
	})
	return out, err
}
