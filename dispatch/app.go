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

// Package dispatch is the request pipeline: router dispatch with per-request
// caching, the before and after middleware segments around the route, the
// mapping of failures onto the registered handlers, output buffering,
// finalization and chunked responses.
package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/container"
	"github.com/rulego/hive/router"
)

// App owns the middleware and resolves its collaborators from a container.
type App struct {
	container *container.Container
	basePath  string

	lock   sync.RWMutex
	before []types.Middleware
	after  []types.Middleware

	cacheOnce sync.Once
}

// New creates an app over c, registering the default services for every
// key c does not provide. A nil c gets a fresh container.
func New(c *container.Container, settings types.Settings, logger types.Logger) *App {
	if c == nil {
		c = container.New()
	}
	RegisterDefaults(c, settings, logger)
	return &App{container: c}
}

// SetBasePath sets the effective base path of requests built from net/http
// requests.
func (a *App) SetBasePath(basePath string) *App {
	a.basePath = basePath
	return a
}

func (a *App) BasePath() string {
	return a.basePath
}

func (a *App) Container() *container.Container {
	return a.container
}

// Router returns the router service.
func (a *App) Router() (types.Router, error) {
	v, err := a.container.Get(types.KeyRouter)
	if err != nil {
		return nil, err
	}
	r, ok := v.(types.Router)
	if !ok {
		return nil, fmt.Errorf("service %s is a %T, not a router", types.KeyRouter, v)
	}
	return r, nil
}

// Settings returns the normalized settings service, defaults when it is
// missing.
func (a *App) Settings() types.Settings {
	if v, err := a.container.Get(types.KeySettings); err == nil {
		if s, ok := v.(types.Settings); ok {
			return s.Normalize()
		}
	}
	return types.DefaultSettings()
}

func (a *App) logger() types.Logger {
	if v, err := a.container.Get(types.KeyLogger); err == nil {
		if l, ok := v.(types.Logger); ok {
			return l
		}
	}
	return types.DefaultLogger()
}

// Before appends a middleware run before the route.
func (a *App) Before(mw types.Middleware) *App {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.before = append(a.before, mw)
	return a
}

// After appends a middleware run after the route.
func (a *App) After(mw types.Middleware) *App {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.after = append(a.after, mw)
	return a
}

// Map registers handler for methods under pattern.
func (a *App) Map(methods []string, pattern string, handler interface{}) (types.Route, error) {
	r, err := a.Router()
	if err != nil {
		return nil, err
	}
	return r.Map(methods, pattern, handler)
}

func (a *App) Get(pattern string, handler interface{}) (types.Route, error) {
	return a.Map([]string{http.MethodGet}, pattern, handler)
}

func (a *App) Post(pattern string, handler interface{}) (types.Route, error) {
	return a.Map([]string{http.MethodPost}, pattern, handler)
}

func (a *App) Put(pattern string, handler interface{}) (types.Route, error) {
	return a.Map([]string{http.MethodPut}, pattern, handler)
}

func (a *App) Patch(pattern string, handler interface{}) (types.Route, error) {
	return a.Map([]string{http.MethodPatch}, pattern, handler)
}

func (a *App) Delete(pattern string, handler interface{}) (types.Route, error) {
	return a.Map([]string{http.MethodDelete}, pattern, handler)
}

func (a *App) Options(pattern string, handler interface{}) (types.Route, error) {
	return a.Map([]string{http.MethodOptions}, pattern, handler)
}

// Any registers handler for every method in router.AnyMethods.
func (a *App) Any(pattern string, handler interface{}) (types.Route, error) {
	return a.Map(router.AnyMethods, pattern, handler)
}

// Redirect answers GET from with a redirect to to.
func (a *App) Redirect(from, to string, status int) (types.Route, error) {
	if status == 0 {
		status = http.StatusFound
	}
	return a.Get(from, func(req *types.Request, res *types.Response) (*types.Response, error) {
		return res.Redirect(to, status), nil
	})
}

// Group maps the routes registered by fn under pattern. The returned group
// takes middleware for those routes; it is nil when the router service is
// not a *router.Router.
func (a *App) Group(pattern string, fn func(app *App) error) (*router.Group, error) {
	r, err := a.Router()
	if err != nil {
		return nil, err
	}
	var g *router.Group
	if concrete, ok := r.(*router.Router); ok {
		g = concrete.Push(pattern)
	} else {
		r.PushGroup(pattern)
	}
	defer r.PopGroup()
	if fn != nil {
		if err := fn(a); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (a *App) middleware() ([]types.Middleware, []types.Middleware) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.before, a.after
}

// writeRouterCache writes the route manifest the first time a request is
// processed, when routerCacheFile is set.
func (a *App) writeRouterCache(r types.Router) {
	a.cacheOnce.Do(func() {
		file := a.Settings().RouterCacheFile
		concrete, ok := r.(*router.Router)
		if file == "" || !ok {
			return
		}
		if err := concrete.WriteCache(file); err != nil {
			a.logger().Printf("write router cache %s: %v", file, err)
		}
	})
}

// handlerFor resolves the error handler registered under key.
func (a *App) handlerFor(key string) (types.ErrorHandler, bool) {
	if !a.container.Has(key) {
		return nil, false
	}
	v, err := a.container.Get(key)
	if err != nil {
		return nil, false
	}
	switch h := v.(type) {
	case types.ErrorHandler:
		return h, true
	case func(req *types.Request, res *types.Response, err error) *types.Response:
		return h, true
	}
	return nil, false
}

func (a *App) notAllowedHandler() (types.NotAllowedHandler, bool) {
	if !a.container.Has(types.KeyNotAllowedHandler) {
		return nil, false
	}
	v, err := a.container.Get(types.KeyNotAllowedHandler)
	if err != nil {
		return nil, false
	}
	switch h := v.(type) {
	case types.NotAllowedHandler:
		return h, true
	case func(req *types.Request, res *types.Response, allowed []string) *types.Response:
		return h, true
	}
	return nil, false
}

// handleError maps err onto its handler. Without a handler err is returned.
func (a *App) handleError(req *types.Request, res *types.Response, err error) (*types.Response, error) {
	var (
		stop       *types.StopError
		notAllowed *types.MethodNotAllowedError
		notFound   *types.RouteNotFoundError
		fault      *types.RuntimeFault
	)
	var out *types.Response
	switch {
	case errors.As(err, &stop):
		if stop.Response == nil {
			return res, nil
		}
		return stop.Response, nil
	case errors.As(err, &notAllowed):
		h, ok := a.notAllowedHandler()
		if !ok {
			return nil, err
		}
		out = h(req, res, notAllowed.Allowed)
	case errors.As(err, &notFound):
		h, ok := a.handlerFor(types.KeyNotFoundHandler)
		if !ok {
			return nil, err
		}
		out = h(req, res, err)
	case errors.As(err, &fault), errors.Is(err, types.ErrMiddlewareContract):
		h, ok := a.handlerFor(types.KeyFatalErrorHandler)
		if !ok {
			return nil, err
		}
		out = h(req, res, err)
	default:
		h, ok := a.handlerFor(types.KeyErrorHandler)
		if !ok {
			return nil, err
		}
		out = h(req, res, err)
	}
	if out == nil {
		out = res
	}
	return out, nil
}
