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

// Package event provides the named-event bus the server fans host engine
// callbacks out through.
//
// Listeners run synchronously in attach order. The bus never recovers
// panics: every subsystem attaching a listener contains its own failures.
package event

import (
	"sync"
)

// Listener receives the emitting context and the fired arguments. A non-nil
// return contributes to the result of Fire.
type Listener func(from interface{}, args ...interface{}) interface{}

// Bus is a named-event register. The zero value is not usable, use NewBus.
type Bus struct {
	lock      sync.RWMutex
	listeners map[string][]Listener
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]Listener)}
}

// Attach appends listener to name. Any name is accepted.
func (b *Bus) Attach(name string, listener Listener) {
	if listener == nil {
		return
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	b.listeners[name] = append(b.listeners[name], listener)
}

// ClearListeners removes every listener of name. The name stays registered.
func (b *Bus) ClearListeners(name string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.listeners[name] = nil
}

// Has reports whether name was ever attached to or cleared.
func (b *Bus) Has(name string) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	_, ok := b.listeners[name]
	return ok
}

// Names returns the registered names.
func (b *Bus) Names() []string {
	b.lock.RLock()
	defer b.lock.RUnlock()
	names := make([]string, 0, len(b.listeners))
	for name := range b.listeners {
		names = append(names, name)
	}
	return names
}

// Listeners returns a snapshot of the listeners of name.
func (b *Bus) Listeners(name string) []Listener {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return append([]Listener(nil), b.listeners[name]...)
}

// Fire invokes the listeners of name in order. It returns nil when no
// listener returned a value, that value when exactly one did, and a
// []interface{} of all non-nil values in order otherwise.
//
// Listeners are snapshotted before the first call, so a listener may attach,
// clear or fire without deadlocking.
func (b *Bus) Fire(name string, from interface{}, args ...interface{}) interface{} {
	var results []interface{}
	for _, l := range b.Listeners(name) {
		if v := l(from, args...); v != nil {
			results = append(results, v)
		}
	}
	switch len(results) {
	case 0:
		return nil
	case 1:
		return results[0]
	default:
		return results
	}
}
