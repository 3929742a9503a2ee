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

package container

import (
	"fmt"
	"net/http"

	"github.com/rulego/hive/api/types"
)

var _ types.CallableResolver = (*CallableResolver)(nil)

// CallableResolver turns route handler references into Handlers. It accepts
// a Handler or a function of the same shape, a net/http handler, or a string
// naming a service that resolves to one of those.
type CallableResolver struct {
	container types.Container
}

// NewCallableResolver creates a resolver. c may be nil, which disables
// string references.
func NewCallableResolver(c types.Container) *CallableResolver {
	return &CallableResolver{container: c}
}

func (r *CallableResolver) Resolve(v interface{}) (types.Handler, error) {
	switch h := v.(type) {
	case nil:
		return nil, fmt.Errorf("nil handler")
	case types.Handler:
		return h, nil
	case func(req *types.Request, res *types.Response) (*types.Response, error):
		return h, nil
	case func(req *types.Request, res *types.Response) *types.Response:
		return func(req *types.Request, res *types.Response) (*types.Response, error) {
			return h(req, res), nil
		}, nil
	case http.Handler:
		return FromHTTP(h), nil
	case func(w http.ResponseWriter, r *http.Request):
		return FromHTTP(http.HandlerFunc(h)), nil
	case string:
		if r.container == nil || !r.container.Has(h) {
			return nil, fmt.Errorf("callable %s is not resolvable", h)
		}
		service, err := r.container.Get(h)
		if err != nil {
			return nil, err
		}
		if _, ok := service.(string); ok {
			return nil, fmt.Errorf("callable %s resolves to a string", h)
		}
		return r.Resolve(service)
	}
	return nil, fmt.Errorf("%T is not a callable", v)
}

// FromHTTP adapts a net/http handler. It writes into the pipeline response.
func FromHTTP(h http.Handler) types.Handler {
	return func(req *types.Request, res *types.Response) (*types.Response, error) {
		r, err := req.HTTPRequest()
		if err != nil {
			return nil, err
		}
		h.ServeHTTP(res, r)
		return res, nil
	}
}
