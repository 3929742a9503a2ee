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

package pool

import (
	"context"
	"errors"
	"sync"

	"github.com/rulego/hive/api/types"
)

// ErrPoolClosed is returned by Get on a closed pool.
var ErrPoolClosed = errors.New("pool closed")

var _ types.Pool = (*ObjectPool[int])(nil)

// ObjectPool is a bounded pool of T. Min objects are built up front; more are
// built on demand up to max, after which Get waits for a Put.
type ObjectPool[T any] struct {
	newFn   func() (T, error)
	closeFn func(T) error
	max     int

	lock    sync.Mutex
	idle    chan T
	created int
	closed  bool
}

// NewObjectPool builds a pool of [min, max] objects. closeFn may be nil.
func NewObjectPool[T any](min, max int, newFn func() (T, error), closeFn func(T) error) (*ObjectPool[T], error) {
	p := &ObjectPool[T]{
		newFn:   newFn,
		closeFn: closeFn,
		max:     max,
		idle:    make(chan T, max),
	}
	for i := 0; i < min; i++ {
		obj, err := newFn()
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.created++
		p.idle <- obj
	}
	return p, nil
}

// Get takes an idle object, builds one while under max, or waits until ctx
// is done.
func (p *ObjectPool[T]) Get(ctx context.Context) (T, error) {
	var zero T
	select {
	case obj := <-p.idle:
		return obj, nil
	default:
	}
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return zero, ErrPoolClosed
	}
	if p.created < p.max {
		p.created++
		p.lock.Unlock()
		obj, err := p.newFn()
		if err != nil {
			p.lock.Lock()
			p.created--
			p.lock.Unlock()
			return zero, err
		}
		return obj, nil
	}
	p.lock.Unlock()
	select {
	case obj := <-p.idle:
		return obj, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Put returns obj to the pool.
func (p *ObjectPool[T]) Put(obj T) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		p.destroy(obj)
		return
	}
	select {
	case p.idle <- obj:
	default:
		p.created--
		p.destroy(obj)
	}
}

func (p *ObjectPool[T]) destroy(obj T) {
	if p.closeFn != nil {
		_ = p.closeFn(obj)
	}
}

// Idle is the number of objects waiting in the pool.
func (p *ObjectPool[T]) Idle() int {
	return len(p.idle)
}

// Size is the number of live objects, idle or taken.
func (p *ObjectPool[T]) Size() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.created
}

func (p *ObjectPool[T]) Max() int {
	return p.max
}

// Close destroys the idle objects. Objects put back later are destroyed too.
func (p *ObjectPool[T]) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for {
		select {
		case obj := <-p.idle:
			p.created--
			p.destroy(obj)
		default:
			return nil
		}
	}
}

// ObjectClass is a PoolClass of ObjectPool[T].
type ObjectClass[T any] struct {
	name    string
	newFn   func() (T, error)
	closeFn func(T) error
}

func NewObjectClass[T any](name string, newFn func() (T, error), closeFn func(T) error) *ObjectClass[T] {
	return &ObjectClass[T]{name: name, newFn: newFn, closeFn: closeFn}
}

func (c *ObjectClass[T]) Name() string {
	return c.name
}

func (c *ObjectClass[T]) NewPool(min, max int, key string) (types.Pool, error) {
	return NewObjectPool(min, max, c.newFn, c.closeFn)
}
