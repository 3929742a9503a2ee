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

// Package task runs task payloads on task workers and finishes task objects
// on the worker that submitted them.
//
// A task object gets two phases, Run on a task worker and Finish on the
// origin worker, each inside a failure boundary reporting to the task's own
// OnException. A Deferred callable is fire and forget; its failures go to the
// fault sink.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/event"
	"github.com/rulego/hive/utils/runtime"
)

var errNoEngine = errors.New("task manager is not bound to an engine")

// Manager dispatches payloads and hosts the task and finish listeners.
type Manager struct {
	registry *Registry
	onFault  func(err error)
	engine   atomic.Value
}

// NewManager creates a manager resolving Class payloads through registry.
// onFault receives failures without an owning task.
func NewManager(registry *Registry, onFault func(err error)) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if onFault == nil {
		onFault = func(err error) {}
	}
	return &Manager{registry: registry, onFault: onFault}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Bind sets the engine payloads are dispatched to.
func (m *Manager) Bind(engine types.Engine) {
	m.engine.Store(engineHolder{engine})
}

type engineHolder struct {
	types.Engine
}

// Attach registers the task and finish listeners on bus.
func (m *Manager) Attach(bus *event.Bus) {
	event.On(bus, event.Task, m.OnTask)
	event.On(bus, event.Finish, m.OnFinish)
}

// Async dispatches payload to the next task worker.
func (m *Manager) Async(ctx context.Context, payload Payload) (int64, error) {
	return m.Dispatch(ctx, payload, -1)
}

// Dispatch hands payload to task worker dstWorkerID, or to the next task
// worker when dstWorkerID is negative. ctx carries the submitting worker.
func (m *Manager) Dispatch(ctx context.Context, payload Payload, dstWorkerID int) (int64, error) {
	h, ok := m.engine.Load().(engineHolder)
	if !ok {
		return 0, errNoEngine
	}
	switch p := payload.(type) {
	case Object:
		if p.Task == nil {
			return 0, errors.New("task object without task")
		}
	case Class:
		if p.Name == "" {
			return 0, errors.New("task class without name")
		}
	case Deferred:
		if p.Fn == nil {
			return 0, errors.New("deferred task without function")
		}
	default:
		return 0, fmt.Errorf("unsupported task payload %T", payload)
	}
	return h.Task(ctx, payload, dstWorkerID)
}

// OnTask runs a payload on a task worker. It returns the task when a result
// is attached, which finishes it on the origin worker, and nil otherwise.
func (m *Manager) OnTask(from interface{}, ev types.TaskEvent) interface{} {
	switch p := ev.Data.(type) {
	case Object:
		if p.Task == nil {
			return nil
		}
		return m.run(ev, p.Task, p.Task.Data())
	case Class:
		t, err := m.registry.New(p.Name, p.Data)
		if err != nil {
			m.onFault(err)
			return nil
		}
		return m.run(ev, t, p.Data)
	case Deferred:
		err := runtime.Call(func() error {
			return p.Fn(ev.Engine, ev.TaskID, ev.FromWorkerID)
		})
		if err != nil {
			m.onFault(fmt.Errorf("deferred task %d: %w", ev.TaskID, err))
		}
	}
	return nil
}

func (m *Manager) run(ev types.TaskEvent, t types.Task, data interface{}) interface{} {
	var out interface{}
	err := runtime.Call(func() error {
		var err error
		out, err = t.Run(ev.Worker.Context(), data, ev.TaskID, ev.FromWorkerID)
		return err
	})
	if err != nil {
		m.exception(t, err)
		return nil
	}
	if out != nil {
		t.SetResult(out)
	}
	if t.Result() == nil {
		return nil
	}
	return t
}

// OnFinish finishes the tasks carried by a finish event. Results of other
// listeners returned alongside a task are ignored.
func (m *Manager) OnFinish(from interface{}, ev types.FinishEvent) interface{} {
	var tasks []types.Task
	switch v := ev.Data.(type) {
	case types.Task:
		tasks = append(tasks, v)
	case []interface{}:
		for _, item := range v {
			if t, ok := item.(types.Task); ok {
				tasks = append(tasks, t)
			}
		}
	}
	for _, t := range tasks {
		t := t
		err := runtime.Call(func() error {
			return t.Finish(ev.Worker.Context(), t.Result(), ev.TaskID)
		})
		if err != nil {
			m.exception(t, err)
		}
	}
	return nil
}

// exception reports err to t. A panicking exception hook goes to the fault
// sink.
func (m *Manager) exception(t types.Task, err error) {
	if herr := runtime.Call(func() error {
		t.OnException(err)
		return nil
	}); herr != nil {
		m.onFault(herr)
	}
}
