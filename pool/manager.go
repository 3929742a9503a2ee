/*
 * Copyright 2023 The RuleGo Authors.
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

// Package pool materializes per-worker resource pools. A pool class is
// registered once with an affinity; every worker whose role matches builds
// its own instance when it starts.
package pool

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rulego/hive/api/types"
)

// Fingerprint is the table key of the pool of class name on workerID.
func Fingerprint(name string, workerID int) string {
	sum := md5.Sum([]byte(name + "#" + strconv.Itoa(workerID)))
	return hex.EncodeToString(sum[:])[8:24]
}

// Registration is a registered pool class.
type Registration struct {
	Class    types.PoolClass
	Min      int
	Max      int
	Affinity types.Affinity
}

// Manager owns the registrations and the materialized pools.
type Manager struct {
	logger types.Logger

	lock          sync.RWMutex
	registrations []Registration
	// key: fingerprint
	pools map[string]types.Pool
}

func NewManager(logger types.Logger) *Manager {
	return &Manager{
		logger: types.NewLogger(logger),
		pools:  make(map[string]types.Pool),
	}
}

// RegisterPool registers class. Registering a class name again replaces the
// previous registration from the next worker start on.
func (m *Manager) RegisterPool(class types.PoolClass, min, max int, affinity types.Affinity) error {
	if class == nil || class.Name() == "" {
		return fmt.Errorf("%w: missing class name", types.ErrInvalidPool)
	}
	if min < 0 || max < 1 || min > max {
		return fmt.Errorf("%w: %s size [%d, %d]", types.ErrInvalidPool, class.Name(), min, max)
	}
	switch affinity {
	case types.OnlyWorker, types.OnlyTaskWorker, types.AllWorker:
	default:
		return fmt.Errorf("%w: %s affinity %d", types.ErrInvalidPool, class.Name(), affinity)
	}
	r := Registration{Class: class, Min: min, Max: max, Affinity: affinity}
	m.lock.Lock()
	defer m.lock.Unlock()
	for i, existing := range m.registrations {
		if existing.Class.Name() == class.Name() {
			m.registrations[i] = r
			return nil
		}
	}
	m.registrations = append(m.registrations, r)
	return nil
}

// Registrations returns the registered classes in registration order.
func (m *Manager) Registrations() []Registration {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return append([]Registration(nil), m.registrations...)
}

// WorkerStartHook builds the pools of workerID. A stale pool under the same
// fingerprint, left by a previous run of the worker, is closed first.
// Classes that fail to build are skipped and reported together.
func (m *Manager) WorkerStartHook(workerID int, isTaskWorker bool) error {
	var result *multierror.Error
	for _, r := range m.Registrations() {
		if !r.Affinity.Match(isTaskWorker) {
			continue
		}
		key := Fingerprint(r.Class.Name(), workerID)
		m.lock.Lock()
		stale, ok := m.pools[key]
		delete(m.pools, key)
		m.lock.Unlock()
		if ok {
			if err := stale.Close(); err != nil {
				m.logger.Printf("close stale pool %s on worker %d: %v", r.Class.Name(), workerID, err)
			}
		}
		p, err := r.Class.NewPool(r.Min, r.Max, key)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("pool %s on worker %d: %w", r.Class.Name(), workerID, err))
			continue
		}
		m.lock.Lock()
		m.pools[key] = p
		m.lock.Unlock()
	}
	return result.ErrorOrNil()
}

// GetPool returns the pool of class name for the worker running ctx. It is
// absent when ctx carries no worker or the worker never matched the class
// affinity.
func (m *Manager) GetPool(ctx context.Context, name string) (types.Pool, bool) {
	workerID, ok := types.WorkerIDFrom(ctx)
	if !ok {
		return nil, false
	}
	return m.GetPoolFor(workerID, name)
}

func (m *Manager) GetPoolFor(workerID int, name string) (types.Pool, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	p, ok := m.pools[Fingerprint(name, workerID)]
	return p, ok
}

// Close closes every materialized pool.
func (m *Manager) Close() error {
	m.lock.Lock()
	pools := m.pools
	m.pools = make(map[string]types.Pool)
	m.lock.Unlock()
	var result *multierror.Error
	for key, p := range pools {
		if err := p.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close pool %s: %w", key, err))
		}
	}
	return result.ErrorOrNil()
}
