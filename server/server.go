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

// Package server is the composition root of a hive application. It owns the
// host engine, the event bus the engine events are fired on, auxiliary
// listener ports, the process table, the pool table and the task subsystem.
//
// A server moves through Constructed, Initializing, ListenerCreated,
// AuxiliaryAttached and Running. There is no way back; reconfiguring
// listeners takes a new server.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr/vm"
	"github.com/hashicorp/go-multierror"
	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/api/types/metrics"
	"github.com/rulego/hive/container"
	"github.com/rulego/hive/engine"
	"github.com/rulego/hive/event"
	"github.com/rulego/hive/pool"
	"github.com/rulego/hive/process"
	"github.com/rulego/hive/task"
)

// State is the lifecycle state of a Server.
type State int32

const (
	Constructed State = iota
	Initializing
	ListenerCreated
	AuxiliaryAttached
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Initializing:
		return "initializing"
	case ListenerCreated:
		return "listenerCreated"
	case AuxiliaryAttached:
		return "auxiliaryAttached"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

var errNotStarted = errors.New("server not started")

// Server is a hive server.
type Server struct {
	config    types.Config
	logger    types.Logger
	container *container.Container
	bus       *event.Bus
	registry  *task.Registry

	processes *process.Manager
	pools     *pool.Manager
	tasks     *task.Manager

	initializers []Initializer

	lock      sync.RWMutex
	state     State
	engine    *engine.Engine
	listeners []*Listener
	handshake *vm.Program
}

// New wires a server for config. Nothing is bound until Start.
func New(config types.Config, opts ...Option) (*Server, error) {
	config.Logger = types.NewLogger(config.Logger)
	s := &Server{
		config: config,
		logger: config.Logger,
		bus:    event.NewBus(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.container == nil {
		s.container = container.New()
	}
	if s.registry == nil {
		s.registry = task.NewRegistry()
	}
	if s.config.OnFault == nil {
		logger := s.logger
		s.config.OnFault = func(err error) {
			logger.Printf("uncaught fault: %v", err)
		}
	}
	s.processes = process.NewManager(s.IsStart, s.logger)
	s.pools = pool.NewManager(s.logger)
	s.tasks = task.NewManager(s.registry, s.config.Fault)
	// ahead of any other workerStart listener: pools exist and the worker
	// is named when those run
	event.On(s.bus, event.WorkerStart, s.onWorkerStartPools)
	event.On(s.bus, event.WorkerStart, s.onWorkerStartName)
	return s, nil
}

func (s *Server) Config() types.Config {
	return s.config
}

func (s *Server) Logger() types.Logger {
	return s.logger
}

func (s *Server) Container() *container.Container {
	return s.container
}

// Bus is the event bus of the main listener.
func (s *Server) Bus() *event.Bus {
	return s.bus
}

func (s *Server) Processes() *process.Manager {
	return s.processes
}

func (s *Server) Pools() *pool.Manager {
	return s.pools
}

func (s *Server) Tasks() *task.Manager {
	return s.tasks
}

// Engine is the host engine, nil before the listener is created.
func (s *Server) Engine() *engine.Engine {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.engine
}

// Metrics are the engine counters, nil before the listener is created.
func (s *Server) Metrics() *metrics.ServerMetrics {
	if e := s.Engine(); e != nil {
		return e.Metrics()
	}
	return nil
}

func (s *Server) State() State {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state
}

// IsStart reports whether the server is running.
func (s *Server) IsStart() bool {
	return s.State() == Running
}

func (s *Server) setState(state State) {
	s.lock.Lock()
	s.state = state
	s.lock.Unlock()
}

// AddListener registers an auxiliary port, bound at start. Attach listeners
// for its events to the returned Listener's bus.
func (s *Server) AddListener(name, host string, port int, sockType string, options types.Configuration) (*Listener, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state >= AuxiliaryAttached {
		return nil, types.ErrServerRunning
	}
	for _, l := range s.listeners {
		if l.Name == name {
			return nil, fmt.Errorf("listener %s already exists", name)
		}
	}
	l := newListener(name, host, port, sockType, options)
	s.listeners = append(s.listeners, l)
	return l, nil
}

// Listener returns the auxiliary listener with the given name.
func (s *Server) Listener(name string) (*Listener, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, l := range s.listeners {
		if l.Name == name {
			return l, true
		}
	}
	return nil, false
}

// AddProcess registers an out-of-band process, spawned at start.
func (s *Server) AddProcess(name string, class types.ProcessClass, args []string, async bool) error {
	return s.processes.AddProcess(name, class, args, async)
}

// RegisterPool registers a pool class materialized on matching workers.
func (s *Server) RegisterPool(class types.PoolClass, min, max int, affinity types.Affinity) error {
	return s.pools.RegisterPool(class, min, max, affinity)
}

// GetPool returns the pool of the worker carried by ctx.
func (s *Server) GetPool(ctx context.Context, name string) (types.Pool, bool) {
	return s.pools.GetPool(ctx, name)
}

// Start runs the lifecycle up to Running. Any failure aborts the start,
// releases the ports bound so far and leaves the server Stopped.
//
// ctx only bounds the start itself; processes and the engine outlive it.
func (s *Server) Start(ctx context.Context) error {
	s.lock.Lock()
	if s.state != Constructed {
		s.lock.Unlock()
		return types.ErrServerRunning
	}
	s.state = Initializing
	s.lock.Unlock()

	if err := s.start(ctx); err != nil {
		if e := s.Engine(); e != nil {
			if aerr := e.Abort(ctx); aerr != nil {
				s.logger.Printf("release listeners: %v", aerr)
			}
		}
		s.setState(Stopped)
		return err
	}
	s.setState(Running)
	return nil
}

func (s *Server) start(ctx context.Context) error {
	for _, fn := range s.initializers {
		if err := fn(s); err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
	}
	if err := s.createListener(); err != nil {
		return err
	}
	s.setState(ListenerCreated)

	s.lock.RLock()
	listeners := append([]*Listener(nil), s.listeners...)
	s.lock.RUnlock()
	for _, l := range listeners {
		if err := l.attach(s, s.engine); err != nil {
			return err
		}
	}
	s.setState(AuxiliaryAttached)

	if err := s.processes.StartAll(context.WithoutCancel(ctx)); err != nil {
		_ = s.processes.StopAll()
		return err
	}
	s.banner()
	if err := s.engine.Start(ctx); err != nil {
		_ = s.processes.StopAll()
		return err
	}
	return nil
}

func (s *Server) createListener() error {
	switch s.config.ServerType {
	case types.TypeServer, types.TypeHTTP, types.TypeWebSocket:
	default:
		return fmt.Errorf("unknown server type %q", s.config.ServerType)
	}
	program, err := compileHandshakeRule(s.config.Settings.HandshakeRule)
	if err != nil {
		return err
	}
	e, err := engine.New(s.config)
	if err != nil {
		return err
	}
	s.lock.Lock()
	s.engine = e
	s.handshake = program
	s.lock.Unlock()

	s.tasks.Bind(e)
	s.attachDefaults()
	for _, name := range types.EventNames {
		e.On(name, s.trampoline(s.bus, name))
	}
	return nil
}

// trampoline fires name on bus with the server as the emitting context.
func (s *Server) trampoline(bus *event.Bus, name string) types.Callback {
	return func(args ...interface{}) interface{} {
		return bus.Fire(name, s, args...)
	}
}

// Shutdown stops the engine, the processes and the pools.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lock.Lock()
	if s.state != Running {
		s.lock.Unlock()
		return errNotStarted
	}
	s.state = Stopped
	e := s.engine
	s.lock.Unlock()

	var result *multierror.Error
	if err := e.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.processes.StopAll(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.pools.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// AddTimer fires the timer event on workerID by a cron spec with seconds.
func (s *Server) AddTimer(spec string, workerID int) (int, error) {
	e := s.Engine()
	if e == nil {
		return 0, errNotStarted
	}
	return e.AddTimer(spec, workerID)
}

// SendMessage fires pipeMessage on dstWorkerID.
func (s *Server) SendMessage(ctx context.Context, message interface{}, dstWorkerID int) error {
	e := s.Engine()
	if e == nil {
		return errNotStarted
	}
	return e.SendMessage(ctx, message, dstWorkerID)
}

// Task dispatches payload to dstWorkerID, or the next task worker when it
// is negative.
func (s *Server) Task(ctx context.Context, payload task.Payload, dstWorkerID int) (int64, error) {
	return s.tasks.Dispatch(ctx, payload, dstWorkerID)
}

// Async dispatches payload to the next task worker.
func (s *Server) Async(ctx context.Context, payload task.Payload) (int64, error) {
	return s.tasks.Async(ctx, payload)
}
