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

package router

import (
	"fmt"

	"github.com/rulego/hive/api/types"
)

var _ types.Route = (*Route)(nil)

// Route is a registered route. Prepare returns a copy bound to the request
// arguments, the registered route itself is never mutated by a request.
type Route struct {
	id         string
	name       string
	pattern    string
	methods    []string
	handler    types.Handler
	groups     []*Group
	middleware []types.Middleware
	arguments  map[string]string
}

func (r *Route) ID() string {
	return r.id
}

func (r *Route) Name() string {
	return r.name
}

func (r *Route) SetName(name string) types.Route {
	r.name = name
	return r
}

func (r *Route) Pattern() string {
	return r.pattern
}

func (r *Route) Methods() []string {
	return append([]string(nil), r.methods...)
}

// Add appends a middleware run after the group middleware.
func (r *Route) Add(mw types.Middleware) types.Route {
	if mw != nil {
		r.middleware = append(r.middleware, mw)
	}
	return r
}

func (r *Route) Prepare(req *types.Request, args map[string]string) types.Route {
	prepared := *r
	prepared.arguments = make(map[string]string, len(args))
	for k, v := range args {
		prepared.arguments[k] = v
	}
	return &prepared
}

func (r *Route) Arguments() map[string]string {
	return r.arguments
}

func (r *Route) Argument(name string) string {
	return r.arguments[name]
}

// Run applies the group middleware, then the route middleware, then the
// handler. A nil handler response keeps res.
func (r *Route) Run(req *types.Request, res *types.Response) (*types.Response, error) {
	var err error
	for _, g := range r.groups {
		for _, mw := range g.middleware {
			if req, res, err = callMiddleware(mw, req, res); err != nil {
				return nil, err
			}
		}
	}
	for _, mw := range r.middleware {
		if req, res, err = callMiddleware(mw, req, res); err != nil {
			return nil, err
		}
	}
	out, err := r.handler(req, res)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return res, nil
	}
	return out, nil
}

func callMiddleware(mw types.Middleware, req *types.Request, res *types.Response) (*types.Request, *types.Response, error) {
	nextReq, nextRes, err := mw(req, res)
	if err != nil {
		return nil, nil, err
	}
	if nextReq == nil || nextRes == nil {
		return nil, nil, fmt.Errorf("route middleware: %w", types.ErrMiddlewareContract)
	}
	return nextReq, nextRes, nil
}

// Group is a route group. Its middleware runs for every route mapped while
// it was pushed.
type Group struct {
	pattern    string
	middleware []types.Middleware
}

func (g *Group) Pattern() string {
	return g.pattern
}

// Add appends a middleware to the group.
func (g *Group) Add(mw types.Middleware) *Group {
	if mw != nil {
		g.middleware = append(g.middleware, mw)
	}
	return g
}
