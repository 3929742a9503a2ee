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

// Package container is a capability-keyed service container. Services are
// registered as values or as factories built once on first Get.
package container

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rulego/hive/api/types"
)

// ErrServiceNotFound is returned by Get for an unknown key.
var ErrServiceNotFound = errors.New("service not found")

// Factory builds a service. It may look up other services in c.
type Factory func(c *Container) (interface{}, error)

var _ types.Container = (*Container)(nil)

// Container holds services by key. Factories receive a view of the same
// container that remembers which keys are being built on that call chain.
type Container struct {
	*registry
	chain []string
}

type registry struct {
	lock      sync.RWMutex
	values    map[string]interface{}
	factories map[string]Factory
	// closed once the pending build of a key finishes
	pending   map[string]chan struct{}
}

func New() *Container {
	return &Container{registry: &registry{
		values:    make(map[string]interface{}),
		factories: make(map[string]Factory),
		pending:   make(map[string]chan struct{}),
	}}
}

// Set registers value under key, replacing any service.
func (c *Container) Set(key string, value interface{}) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.factories, key)
	c.values[key] = value
}

// SetFactory registers a lazily built service under key.
func (c *Container) SetFactory(key string, factory Factory) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.values, key)
	c.factories[key] = factory
}

// SetDefault registers value unless key is already registered.
func (c *Container) SetDefault(key string, value interface{}) {
	if !c.Has(key) {
		c.Set(key, value)
	}
}

// SetDefaultFactory registers factory unless key is already registered.
func (c *Container) SetDefaultFactory(key string, factory Factory) {
	if !c.Has(key) {
		c.SetFactory(key, factory)
	}
}

func (c *Container) Has(key string) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if _, ok := c.values[key]; ok {
		return true
	}
	_, ok := c.factories[key]
	return ok
}

// Get returns the service under key, building it on first use. Concurrent
// callers of a key being built wait for that build.
func (c *Container) Get(key string) (interface{}, error) {
	for {
		c.lock.Lock()
		if v, ok := c.values[key]; ok {
			c.lock.Unlock()
			return v, nil
		}
		factory, lazy := c.factories[key]
		if !lazy {
			c.lock.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, key)
		}
		for _, k := range c.chain {
			if k == key {
				c.lock.Unlock()
				return nil, fmt.Errorf("service %s depends on itself", key)
			}
		}
		if done, ok := c.pending[key]; ok {
			c.lock.Unlock()
			<-done
			continue
		}
		done := make(chan struct{})
		c.pending[key] = done
		c.lock.Unlock()

		return c.build(key, factory, done)
	}
}

func (c *Container) build(key string, factory Factory, done chan struct{}) (interface{}, error) {
	var (
		v   interface{}
		err error
	)
	defer func() {
		c.lock.Lock()
		delete(c.pending, key)
		close(done)
		c.lock.Unlock()
	}()

	chain := make([]string, len(c.chain), len(c.chain)+1)
	copy(chain, c.chain)
	v, err = factory(&Container{registry: c.registry, chain: append(chain, key)})

	c.lock.Lock()
	defer c.lock.Unlock()
	if err != nil {
		return nil, fmt.Errorf("build service %s: %w", key, err)
	}
	// keep a value set while the factory ran
	if existing, ok := c.values[key]; ok {
		return existing, nil
	}
	c.values[key] = v
	delete(c.factories, key)
	return v, nil
}

// Keys returns the registered keys in order.
func (c *Container) Keys() []string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	var keys []string
	for k := range c.values {
		keys = append(keys, k)
	}
	for k := range c.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
