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
	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/container"
	"github.com/rulego/hive/dispatch/handlers"
	"github.com/rulego/hive/router"
)

// RegisterDefaults registers the default services under every key that is
// not registered yet: settings, logger, callable resolver, router and the
// four error handlers.
func RegisterDefaults(c *container.Container, settings types.Settings, logger types.Logger) {
	settings = settings.Normalize()
	logger = types.NewLogger(logger)
	c.SetDefault(types.KeySettings, settings)
	c.SetDefault(types.KeyLogger, logger)
	c.SetDefaultFactory(types.KeyCallableResolver, func(c *container.Container) (interface{}, error) {
		return container.NewCallableResolver(c), nil
	})
	c.SetDefaultFactory(types.KeyRouter, func(c *container.Container) (interface{}, error) {
		v, err := c.Get(types.KeyCallableResolver)
		if err != nil {
			return nil, err
		}
		resolver, _ := v.(types.CallableResolver)
		return router.New(resolver), nil
	})
	c.SetDefault(types.KeyNotFoundHandler, types.ErrorHandler(handlers.NotFound))
	c.SetDefault(types.KeyNotAllowedHandler, types.NotAllowedHandler(handlers.NotAllowed))
	c.SetDefault(types.KeyErrorHandler, handlers.Error(settings.DisplayErrorDetails, logger))
	c.SetDefault(types.KeyFatalErrorHandler, handlers.Fatal(settings.DisplayErrorDetails, logger))
}
