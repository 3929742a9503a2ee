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

package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/utils/runtime"
)

var _ types.Worker = (*Worker)(nil)

// Worker processes its inbox one function at a time, run to completion.
type Worker struct {
	engine *Engine
	id     int
	task   bool
	ctx    context.Context
	name   atomic.Value

	inbox    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newWorker(e *Engine, id int, task bool, inboxSize int) *Worker {
	w := &Worker{
		engine: e,
		id:     id,
		task:   task,
		ctx:    types.WithWorkerID(context.Background(), id),
		inbox:  make(chan func(), inboxSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	w.name.Store("")
	return w
}

func (w *Worker) ID() int {
	return w.id
}

func (w *Worker) IsTaskWorker() bool {
	return w.task
}

func (w *Worker) Name() string {
	return w.name.Load().(string)
}

func (w *Worker) SetName(name string) {
	w.name.Store(name)
}

func (w *Worker) Context() context.Context {
	return w.ctx
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		select {
		case fn := <-w.inbox:
			_ = w.exec(fn)
		case <-w.quit:
			return
		}
	}
}

// exec runs fn, turning a panic into a workerError event.
func (w *Worker) exec(fn func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			fault := &types.RuntimeFault{Value: v, Stack: runtime.Stack()}
			err = fault
			w.engine.workerError(w, fault)
		}
	}()
	fn()
	return nil
}

// post queues fn, blocking while the inbox is full.
func (w *Worker) post(fn func()) error {
	select {
	case <-w.quit:
		return types.ErrEngineStopped
	default:
	}
	select {
	case w.inbox <- fn:
		return nil
	case <-w.quit:
		return types.ErrEngineStopped
	}
}

// postAsync queues fn without blocking the caller, which may be this worker.
func (w *Worker) postAsync(fn func()) error {
	select {
	case <-w.quit:
		return types.ErrEngineStopped
	case w.inbox <- fn:
		return nil
	default:
	}
	go func() {
		_ = w.post(fn)
	}()
	return nil
}

// call runs fn on the worker and waits for it. A panic in fn is returned as
// a *types.RuntimeFault.
func (w *Worker) call(fn func()) error {
	result := make(chan error, 1)
	if err := w.post(func() { result <- w.exec(fn) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-w.done:
		return types.ErrEngineStopped
	}
}

// stop fires workerExit and workerStop on the worker, then ends its loop.
func (w *Worker) stop() {
	w.stopOnce.Do(func() {
		e := w.engine
		_ = w.post(func() {
			defer close(w.quit)
			e.fire(types.EventWorkerExit, types.WorkerExitEvent{Engine: e, Worker: w})
			e.fire(types.EventWorkerStop, types.WorkerStopEvent{Engine: e, Worker: w})
		})
	})
}
