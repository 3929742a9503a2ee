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

package server

import (
	"github.com/rulego/hive/container"
	"github.com/rulego/hive/task"
)

// Initializer runs custom setup while the server initializes, after the
// container and the bus are wired and before the listener is created.
type Initializer func(s *Server) error

// Option configures a Server.
type Option func(s *Server) error

// WithContainer replaces the service container.
func WithContainer(c *container.Container) Option {
	return func(s *Server) error {
		s.container = c
		return nil
	}
}

// WithInitializer appends an initialization hook.
func WithInitializer(fn Initializer) Option {
	return func(s *Server) error {
		s.initializers = append(s.initializers, fn)
		return nil
	}
}

// WithTaskRegistry sets the registry Class task payloads are built from.
func WithTaskRegistry(registry *task.Registry) Option {
	return func(s *Server) error {
		s.registry = registry
		return nil
	}
}
