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

// Package router maps method and path patterns onto routes. Matching is
// done by httprouter trees, one per method; the router adds groups, a base
// path, method-not-allowed detection and a route manifest.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/julienschmidt/httprouter"
	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/container"
	"github.com/rulego/hive/utils/json"
)

// ErrRouteNotFound is returned by LookupRoute for an unknown id.
var ErrRouteNotFound = errors.New("route does not exist")

// AnyMethods are the methods registered by Any.
var AnyMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

var _ types.Router = (*Router)(nil)

// Router is a types.Router over httprouter.
type Router struct {
	lock     sync.RWMutex
	tree     *httprouter.Router
	resolver types.CallableResolver
	routes   map[string]*Route
	order    []*Route
	// methods in first registration order
	methods  []string
	groups   []*Group
	basePath string
	seq      int
}

// New creates a router resolving handlers with resolver. A nil resolver
// accepts handler functions and net/http handlers only.
func New(resolver types.CallableResolver) *Router {
	if resolver == nil {
		resolver = container.NewCallableResolver(nil)
	}
	tree := httprouter.New()
	tree.RedirectTrailingSlash = false
	tree.RedirectFixedPath = false
	return &Router{
		tree:     tree,
		resolver: resolver,
		routes:   make(map[string]*Route),
	}
}

// routeRef receives the id of the route a tree leaf belongs to.
type routeRef struct {
	http.ResponseWriter
	id string
}

// Map registers handler for methods under the pushed groups' prefix plus
// pattern.
func (r *Router) Map(methods []string, pattern string, handler interface{}) (types.Route, error) {
	if len(methods) == 0 {
		return nil, errors.New("route needs at least one method")
	}
	h, err := r.resolver.Resolve(handler)
	if err != nil {
		return nil, err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	var prefix strings.Builder
	for _, g := range r.groups {
		prefix.WriteString(g.pattern)
	}
	full := prefix.String() + pattern
	if full == "" {
		full = "/"
	}
	if !strings.HasPrefix(full, "/") {
		return nil, fmt.Errorf("route pattern %q must begin with /", full)
	}
	route := &Route{
		id:      fmt.Sprintf("route%d", r.seq),
		pattern: full,
		handler: h,
		groups:  append([]*Group(nil), r.groups...),
	}
	// ids are never reused, even by a failed registration
	r.seq++
	for _, m := range methods {
		route.methods = append(route.methods, strings.ToUpper(m))
	}
	for _, m := range route.methods {
		if err := r.handle(m, full, route.id); err != nil {
			return nil, err
		}
		if !contains(r.methods, m) {
			r.methods = append(r.methods, m)
		}
	}
	r.routes[route.id] = route
	r.order = append(r.order, route)
	return route, nil
}

// handle registers a tree leaf, turning httprouter's conflict panics into
// errors.
func (r *Router) handle(method, pattern, id string) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("route %s %s: %v", method, pattern, v)
		}
	}()
	r.tree.Handle(method, pattern, func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.(*routeRef).id = id
	})
	return nil
}

// Dispatch matches the request path, relative to the base path, under the
// request method.
func (r *Router) Dispatch(req *types.Request) types.DispatchResult {
	r.lock.RLock()
	defer r.lock.RUnlock()
	path, ok := r.relative(req.EscapedPath())
	if !ok {
		return types.DispatchResult{Status: types.NotFound}
	}
	if id, params, ok := r.lookup(req.Method(), path); ok {
		return types.DispatchResult{Status: types.Found, RouteID: id, Params: params}
	}
	var allowed []string
	for _, m := range r.methods {
		if m == req.Method() {
			continue
		}
		if _, _, ok := r.lookup(m, path); ok {
			allowed = append(allowed, m)
		}
	}
	if len(allowed) > 0 {
		return types.DispatchResult{Status: types.MethodNotAllowed, Allowed: allowed}
	}
	return types.DispatchResult{Status: types.NotFound}
}

func (r *Router) relative(path string) (string, bool) {
	if r.basePath == "" {
		return path, true
	}
	if !strings.HasPrefix(path, r.basePath) {
		return "", false
	}
	path = path[len(r.basePath):]
	if path == "" {
		return "/", true
	}
	if !strings.HasPrefix(path, "/") {
		return "", false
	}
	return path, true
}

func (r *Router) lookup(method, path string) (string, map[string]string, bool) {
	handle, ps, _ := r.tree.Lookup(method, path)
	if handle == nil {
		return "", nil, false
	}
	ref := &routeRef{}
	handle(ref, nil, nil)
	if _, ok := r.routes[ref.id]; !ok {
		return "", nil, false
	}
	params := make(map[string]string, len(ps))
	for _, p := range ps {
		// catch-all values keep httprouter's leading slash
		params[p.Key] = p.Value
	}
	return ref.id, params, true
}

func (r *Router) LookupRoute(id string) (types.Route, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	route, ok := r.routes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}
	return route, nil
}

// NamedRoute finds a route by the name set with SetName.
func (r *Router) NamedRoute(name string) (types.Route, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, route := range r.order {
		if route.name == name {
			return route, nil
		}
	}
	return nil, fmt.Errorf("%w: named %s", ErrRouteNotFound, name)
}

// PathFor builds the path of the named route, base path included.
func (r *Router) PathFor(name string, params map[string]string) (string, error) {
	route, err := r.NamedRoute(name)
	if err != nil {
		return "", err
	}
	segments := strings.Split(route.Pattern(), "/")
	for i, seg := range segments {
		if seg == "" || (seg[0] != ':' && seg[0] != '*') {
			continue
		}
		v, ok := params[seg[1:]]
		if !ok {
			return "", fmt.Errorf("missing parameter %s for route %s", seg[1:], name)
		}
		segments[i] = strings.TrimPrefix(v, "/")
	}
	return r.BasePath() + strings.Join(segments, "/"), nil
}

// SetBasePath sets the prefix stripped from request paths. A trailing slash
// is dropped.
func (r *Router) SetBasePath(path string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.basePath = strings.TrimSuffix(path, "/")
}

func (r *Router) BasePath() string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.basePath
}

func (r *Router) PushGroup(pattern string) {
	r.Push(pattern)
}

// Push pushes a group and returns it so middleware can be added.
func (r *Router) Push(pattern string) *Group {
	r.lock.Lock()
	defer r.lock.Unlock()
	g := &Group{pattern: strings.TrimSuffix(pattern, "/")}
	r.groups = append(r.groups, g)
	return g
}

func (r *Router) PopGroup() {
	r.lock.Lock()
	defer r.lock.Unlock()
	if n := len(r.groups); n > 0 {
		r.groups = r.groups[:n-1]
	}
}

// Routes returns the routes in registration order.
func (r *Router) Routes() []types.Route {
	r.lock.RLock()
	defer r.lock.RUnlock()
	routes := make([]types.Route, 0, len(r.order))
	for _, route := range r.order {
		routes = append(routes, route)
	}
	return routes
}

// ManifestRoute is a route entry of the manifest.
type ManifestRoute struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Methods []string `json:"methods"`
	Pattern string   `json:"pattern"`
}

// Manifest describes the registered routes.
type Manifest struct {
	BasePath string          `json:"basePath"`
	Routes   []ManifestRoute `json:"routes"`
}

func (r *Router) Manifest() Manifest {
	r.lock.RLock()
	defer r.lock.RUnlock()
	m := Manifest{BasePath: r.basePath, Routes: []ManifestRoute{}}
	for _, route := range r.order {
		m.Routes = append(m.Routes, ManifestRoute{
			ID:      route.id,
			Name:    route.name,
			Methods: route.Methods(),
			Pattern: route.pattern,
		})
	}
	return m
}

// WriteCache writes the manifest to file.
func (r *Router) WriteCache(file string) error {
	data, err := json.MarshalIndent(r.Manifest())
	if err != nil {
		return err
	}
	return os.WriteFile(file, data, 0o644)
}

// ReadCache reads a manifest written by WriteCache.
func ReadCache(file string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(file)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
