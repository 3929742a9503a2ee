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

// Package process supervises out-of-band named processes: external commands
// or in-process functions exchanging bytes with the server.
package process

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rulego/hive/api/types"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	// DefaultReadTimeout is used by ReadByProcessName for a non-positive timeout.
	DefaultReadTimeout = 100 * time.Millisecond
	// MaxReadSize bounds a single read.
	MaxReadSize = 64 * 1024
)

// Key derives the table key of a process name.
func Key(name string) string {
	sum := md5.Sum([]byte(name))
	return hex.EncodeToString(sum[:])
}

func errProcessNotFound(name string) error {
	return fmt.Errorf("%w: %s", types.ErrProcessNotFound, name)
}

type record struct {
	name    string
	key     string
	args    []string
	async   bool
	process types.Process
}

// Manager owns the process table and the pid to key table.
type Manager struct {
	isRunning func() bool
	logger    types.Logger

	lock      sync.RWMutex
	processes map[string]*record
	pids      map[int]string
}

// NewManager creates a manager. isRunning reports whether the server is
// running; registration is refused while it is.
func NewManager(isRunning func() bool, logger types.Logger) *Manager {
	if isRunning == nil {
		isRunning = func() bool { return false }
	}
	return &Manager{
		isRunning: isRunning,
		logger:    types.NewLogger(logger),
		processes: make(map[string]*record),
		pids:      make(map[int]string),
	}
}

// AddProcess constructs and registers a process. It fails without side
// effects when the server is running or name is taken.
func (m *Manager) AddProcess(name string, class types.ProcessClass, args []string, async bool) error {
	if m.isRunning() {
		return types.ErrServerRunning
	}
	if class == nil {
		return fmt.Errorf("process %s: nil class", name)
	}
	key := Key(name)
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.processes[key]; ok {
		return fmt.Errorf("%w: %s", types.ErrProcessExists, name)
	}
	p, err := class(name, args, async)
	if err != nil {
		return fmt.Errorf("process %s: %w", name, err)
	}
	m.processes[key] = &record{name: name, key: key, args: args, async: async, process: p}
	return nil
}

func (m *Manager) GetProcessByName(name string) (types.Process, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	r, ok := m.processes[Key(name)]
	if !ok {
		return nil, false
	}
	return r.process, true
}

// GetProcessByPid scans the pid table.
func (m *Manager) GetProcessByPid(pid int) (types.Process, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	for p, key := range m.pids {
		if p == pid {
			if r, ok := m.processes[key]; ok {
				return r.process, true
			}
		}
	}
	return nil, false
}

// Names returns the registered names in order.
func (m *Manager) Names() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	names := make([]string, 0, len(m.processes))
	for _, r := range m.processes {
		names = append(names, r.name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) WriteByProcessName(name string, data []byte) (int, error) {
	p, ok := m.GetProcessByName(name)
	if !ok {
		return 0, errProcessNotFound(name)
	}
	return p.Write(data)
}

// ReadByProcessName blocks up to timeout for output of the named process. A
// timeout returns nil, nil.
func (m *Manager) ReadByProcessName(name string, timeout time.Duration) ([]byte, error) {
	p, ok := m.GetProcessByName(name)
	if !ok {
		return nil, errProcessNotFound(name)
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return p.Read(timeout, MaxReadSize)
}

// Reboot sends a termination signal to the named process. Restarting it is
// left to whatever supervises it.
func (m *Manager) Reboot(name string) bool {
	p, ok := m.GetProcessByName(name)
	if !ok {
		return false
	}
	pid := p.Pid()
	if pid <= 0 {
		return p.Stop() == nil
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		m.logger.Printf("reboot %s: %v", name, err)
		return false
	}
	if err := proc.Terminate(); err != nil {
		m.logger.Printf("reboot %s: %v", name, err)
		return false
	}
	m.lock.Lock()
	delete(m.pids, pid)
	m.lock.Unlock()
	return true
}

// StartAll starts every registered process and records their pids.
func (m *Manager) StartAll(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	var result *multierror.Error
	for key, r := range m.processes {
		if err := r.process.Start(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("start process %s: %w", r.name, err))
			continue
		}
		if pid := r.process.Pid(); pid > 0 {
			m.pids[pid] = key
		}
	}
	return result.ErrorOrNil()
}

// StopAll stops every process and clears the pid table.
func (m *Manager) StopAll() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	var result *multierror.Error
	for _, r := range m.processes {
		if err := r.process.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop process %s: %w", r.name, err))
		}
	}
	m.pids = make(map[int]string)
	return result.ErrorOrNil()
}
