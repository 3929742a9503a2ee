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

package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rulego/hive/api/types"
)

// ErrTaskNotRegistered is returned for a Class payload naming an unknown task.
var ErrTaskNotRegistered = errors.New("task not registered")

// Factory builds a task from the data of a Class payload.
type Factory func(data interface{}) (types.Task, error)

// Registry maps task class names to factories.
type Registry struct {
	factories map[string]Factory
	sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds factory under name. Names are unique.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return errors.New("task name and factory are required")
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.factories[name]; ok {
		return errors.New("the task already exists. name=" + name)
	}
	r.factories[name] = factory
	return nil
}

func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()
	delete(r.factories, name)
}

// New builds the task registered under name.
func (r *Registry) New(name string, data interface{}) (types.Task, error) {
	r.RLock()
	factory, ok := r.factories[name]
	r.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotRegistered, name)
	}
	t, err := factory(data)
	if err != nil {
		return nil, fmt.Errorf("new task %s: %w", name, err)
	}
	if t == nil {
		return nil, fmt.Errorf("new task %s: factory returned nil", name)
	}
	return t, nil
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	r.RLock()
	defer r.RUnlock()
	var names []string
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
