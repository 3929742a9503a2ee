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

// Package engine is the in-process host engine: a set of standard workers and
// task workers, each a goroutine running its inbox run to completion, fed by
// HTTP, websocket, stream and datagram listeners.
//
// Every engine event is delivered to the callback registered with On as a
// single payload struct from api/types.
package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/api/types/metrics"
	"github.com/rulego/hive/utils/pool"
	"github.com/rulego/hive/utils/runtime"
)

var _ types.Engine = (*Engine)(nil)

// Engine hosts the main listener, auxiliary ports and the workers.
type Engine struct {
	config  types.Config
	options Options
	logger  types.Logger
	metrics *metrics.ServerMetrics

	lock      sync.RWMutex
	callbacks map[string]types.Callback

	main    *Port
	ports   []*Port
	workers []*Worker

	nextWorker uint64
	nextTask   uint64
	taskSeq    int64
	connSeq    int64
	conns      sync.Map

	cron     *cron.Cron
	connPool *pool.WorkerPool
	running  atomic.Bool
	started  atomic.Bool
	wg       sync.WaitGroup
}

// New creates an engine for config. Nothing is bound until Start.
func New(config types.Config) (*Engine, error) {
	if config.WorkerNum <= 0 {
		return nil, fmt.Errorf("worker num must be positive, got %d", config.WorkerNum)
	}
	if config.TaskWorkerNum < 0 {
		return nil, fmt.Errorf("task worker num must not be negative, got %d", config.TaskWorkerNum)
	}
	opts, err := DecodeOptions(config.EngineOptions)
	if err != nil {
		return nil, err
	}
	logger := types.NewLogger(config.Logger)
	e := &Engine{
		config:    config,
		options:   opts,
		logger:    logger,
		metrics:   metrics.NewServerMetrics(),
		callbacks: make(map[string]types.Callback),
		cron:      cron.New(cron.WithSeconds(), cron.WithLogger(cron.PrintfLogger(logger))),
	}
	e.connPool = &pool.WorkerPool{
		MaxWorkersCount: opts.MaxCoroutine,
		OnPanic: func(v interface{}) {
			e.logger.Printf("connection goroutine panic: %v", v)
		},
	}
	total := config.WorkerNum + config.TaskWorkerNum
	for id := 0; id < total; id++ {
		e.workers = append(e.workers, newWorker(e, id, id >= config.WorkerNum, opts.InboxSize))
	}
	e.main = &Port{
		engine:     e,
		index:      0,
		Name:       "main",
		Host:       config.Host,
		PortNum:    config.Port,
		SockType:   config.SockType,
		serverType: config.ServerType,
		options:    opts.PortOptions,
	}
	e.main.init()
	e.ports = []*Port{e.main}
	return e, nil
}

// On sets the main listener callback for name. Auxiliary ports fall back to
// it for names they do not set.
func (e *Engine) On(name string, cb types.Callback) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if cb == nil {
		delete(e.callbacks, name)
		return
	}
	e.callbacks[name] = cb
}

func (e *Engine) callback(name string) types.Callback {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.callbacks[name]
}

func (e *Engine) fire(name string, payload interface{}) interface{} {
	if cb := e.callback(name); cb != nil {
		return cb(payload)
	}
	return nil
}

// fireOutside fires an event outside any worker, logging a panic.
func (e *Engine) fireOutside(name string, payload interface{}) {
	err := runtime.Call(func() error {
		e.fire(name, payload)
		return nil
	})
	if err != nil {
		e.logger.Printf("%s callback failed: %v", name, err)
	}
}

// Listen binds an auxiliary port. It must be called before Start.
func (e *Engine) Listen(name, host string, port int, sockType string, configuration types.Configuration) (*Port, error) {
	if e.started.Load() {
		return nil, types.ErrServerRunning
	}
	opts, err := DecodePortOptions(configuration)
	if err != nil {
		return nil, &types.ListenerError{Name: name, Host: host, Port: port, Err: err}
	}
	serverType := types.TypeServer
	if opts.OpenWebSocketProtocol {
		serverType = types.TypeWebSocket
	} else if opts.OpenHTTPProtocol {
		serverType = types.TypeHTTP
	}
	p := &Port{
		engine:     e,
		index:      len(e.ports),
		Name:       name,
		Host:       host,
		PortNum:    port,
		SockType:   sockType,
		serverType: serverType,
		options:    opts,
		callbacks:  make(map[string]types.Callback),
	}
	p.init()
	if err := p.bind(); err != nil {
		return nil, &types.ListenerError{Name: name, Host: host, Port: port, Err: err}
	}
	e.ports = append(e.ports, p)
	return p, nil
}

// Start binds the main listener, starts the workers and begins serving.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return types.ErrServerRunning
	}
	if err := e.main.bind(); err != nil {
		_ = e.closeAuxiliary(ctx)
		return &types.ListenerError{Name: e.main.Name, Host: e.main.Host, Port: e.main.PortNum, Err: err}
	}
	e.running.Store(true)
	e.connPool.Start()

	e.fireOutside(types.EventStart, types.StartEvent{Engine: e})
	e.fireOutside(types.EventManagerStart, types.ManagerStartEvent{Engine: e})

	for _, w := range e.workers {
		w := w
		_ = w.post(func() {
			e.fire(types.EventWorkerStart, types.WorkerStartEvent{Engine: e, Worker: w})
		})
		go w.loop()
	}
	e.cron.Start()

	for _, p := range e.ports {
		p := p
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			p.serve()
		}()
	}
	return nil
}

// Abort releases the auxiliary ports bound by Listen when the engine will
// never be started. The engine cannot be started afterwards.
func (e *Engine) Abort(ctx context.Context) error {
	if e.running.Load() {
		return types.ErrServerRunning
	}
	e.started.Store(true)
	return e.closeAuxiliary(ctx)
}

func (e *Engine) closeAuxiliary(ctx context.Context) error {
	var result *multierror.Error
	for _, p := range e.ports[1:] {
		if err := p.close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("close listener %s: %w", p.Name, err))
		}
	}
	return result.ErrorOrNil()
}

// Shutdown stops the listeners, closes every connection and stops the
// workers after firing workerExit and workerStop on each.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	var result *multierror.Error
	for _, p := range e.ports {
		if err := p.close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("close listener %s: %w", p.Name, err))
		}
	}
	e.conns.Range(func(key, value interface{}) bool {
		_ = value.(types.Conn).Close()
		return true
	})
	cronCtx := e.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	for _, w := range e.workers {
		w.stop()
	}
	for _, w := range e.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			result = multierror.Append(result, fmt.Errorf("worker %d: %w", w.id, ctx.Err()))
		}
	}
	e.fireOutside(types.EventManagerStop, types.ManagerStopEvent{Engine: e})
	e.fireOutside(types.EventShutdown, types.ShutdownEvent{Engine: e})
	e.connPool.Stop()
	e.wg.Wait()
	return result.ErrorOrNil()
}

// IsRunning reports whether the engine is between Start and Shutdown.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

func (e *Engine) Addr() net.Addr {
	return e.main.Addr()
}

// Main returns the main listener.
func (e *Engine) Main() *Port {
	return e.main
}

// Ports returns the main listener followed by the auxiliary ports.
func (e *Engine) Ports() []*Port {
	return append([]*Port(nil), e.ports...)
}

func (e *Engine) Metrics() *metrics.ServerMetrics {
	return e.metrics
}

func (e *Engine) WorkerNum() int {
	return e.config.WorkerNum
}

func (e *Engine) TaskWorkerNum() int {
	return e.config.TaskWorkerNum
}

// Worker returns the worker with the given id.
func (e *Engine) Worker(id int) (*Worker, error) {
	if id < 0 || id >= len(e.workers) {
		return nil, fmt.Errorf("worker %d does not exist", id)
	}
	return e.workers[id], nil
}

// pickWorker selects a standard worker round robin.
func (e *Engine) pickWorker() *Worker {
	n := atomic.AddUint64(&e.nextWorker, 1)
	return e.workers[int((n-1)%uint64(e.config.WorkerNum))]
}

// workerFor pins a connection to a standard worker.
func (e *Engine) workerFor(connID int64) *Worker {
	return e.workers[int(connID%int64(e.config.WorkerNum))]
}

func (e *Engine) pickTaskWorker() *Worker {
	n := atomic.AddUint64(&e.nextTask, 1)
	return e.workers[e.config.WorkerNum+int((n-1)%uint64(e.config.TaskWorkerNum))]
}

// Task hands data to a task worker. A non-nil return of the task callback is
// delivered to the submitting worker as a finish event; submissions from
// outside any worker finish on worker 0.
func (e *Engine) Task(ctx context.Context, data interface{}, dstWorkerID int) (int64, error) {
	if e.config.TaskWorkerNum <= 0 {
		return 0, types.ErrTaskWorkerUnavailable
	}
	if !e.running.Load() {
		return 0, types.ErrEngineStopped
	}
	var tw *Worker
	if dstWorkerID < 0 {
		tw = e.pickTaskWorker()
	} else {
		w, err := e.Worker(dstWorkerID)
		if err != nil {
			return 0, err
		}
		if !w.task {
			return 0, fmt.Errorf("worker %d is not a task worker: %w", dstWorkerID, types.ErrTaskWorkerUnavailable)
		}
		tw = w
	}
	from, ok := types.WorkerIDFrom(ctx)
	if !ok {
		from = -1
	}
	taskID := atomic.AddInt64(&e.taskSeq, 1)
	err := tw.postAsync(func() {
		result := e.fire(types.EventTask, types.TaskEvent{
			Engine: e, Worker: tw, TaskID: taskID, FromWorkerID: from, Data: data,
		})
		if result == nil {
			return
		}
		origin := e.workers[0]
		if from >= 0 && from < len(e.workers) {
			origin = e.workers[from]
		}
		_ = origin.postAsync(func() {
			e.metrics.IncrementTasksFinished()
			e.fire(types.EventFinish, types.FinishEvent{Engine: e, Worker: origin, TaskID: taskID, Data: result})
		})
	})
	if err != nil {
		return 0, err
	}
	e.metrics.IncrementTasksDispatched()
	return taskID, nil
}

// SendMessage delivers message to dstWorkerID as a pipeMessage event.
func (e *Engine) SendMessage(ctx context.Context, message interface{}, dstWorkerID int) error {
	w, err := e.Worker(dstWorkerID)
	if err != nil {
		return err
	}
	from, ok := types.WorkerIDFrom(ctx)
	if !ok {
		from = -1
	}
	return w.postAsync(func() {
		e.fire(types.EventPipeMessage, types.PipeMessageEvent{Engine: e, Worker: w, FromWorkerID: from, Message: message})
	})
}

// Send writes data to a connection of any listener.
func (e *Engine) Send(connID int64, data []byte) error {
	v, ok := e.conns.Load(connID)
	if !ok {
		return types.ErrConnNotFound
	}
	return v.(types.Conn).Send(data)
}

func (e *Engine) CloseConn(connID int64) error {
	v, ok := e.conns.Load(connID)
	if !ok {
		return types.ErrConnNotFound
	}
	return v.(types.Conn).Close()
}

// Conn looks up a connection by id.
func (e *Engine) Conn(connID int64) (types.Conn, bool) {
	v, ok := e.conns.Load(connID)
	if !ok {
		return nil, false
	}
	return v.(types.Conn), true
}

func (e *Engine) newConnID() int64 {
	return atomic.AddInt64(&e.connSeq, 1)
}

func (e *Engine) addConn(c types.Conn) {
	e.conns.Store(c.ID(), c)
	e.metrics.ConnOpened()
}

func (e *Engine) removeConn(c types.Conn) {
	if _, loaded := e.conns.LoadAndDelete(c.ID()); loaded {
		e.metrics.ConnClosed()
	}
}

func (e *Engine) workerError(w *Worker, err error) {
	e.metrics.IncrementWorkerErrors()
	e.logger.Printf("worker %d: %v", w.id, err)
	if ferr := runtime.Call(func() error {
		e.fire(types.EventWorkerError, types.WorkerErrorEvent{Engine: e, Worker: w, Err: err})
		return nil
	}); ferr != nil {
		e.logger.Printf("workerError callback failed: %v", ferr)
	}
}
