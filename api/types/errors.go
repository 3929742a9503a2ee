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

package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProcessExists is returned when a process name is already registered.
	ErrProcessExists = errors.New("process already exists")
	// ErrServerRunning is returned by operations only legal before start.
	ErrServerRunning = errors.New("server is running")
	// ErrProcessNotFound is returned when no process has the given name.
	ErrProcessNotFound = errors.New("process not found")
	// ErrInvalidPool is returned by RegisterPool for a non-conforming pool class.
	ErrInvalidPool = errors.New("invalid pool class")
	// ErrMiddlewareContract is raised when a middleware returns a nil request or response.
	ErrMiddlewareContract = errors.New("middleware must return a request and a response")
	// ErrUnexpectedOutput is raised when output is written outside the capture window.
	ErrUnexpectedOutput = errors.New("unexpected data in output buffer")
	// ErrTaskWorkerUnavailable is returned when a task is submitted without task workers.
	ErrTaskWorkerUnavailable = errors.New("no task worker available")
	// ErrEngineStopped is returned when posting to a stopped engine.
	ErrEngineStopped = errors.New("engine stopped")
	// ErrConnNotFound is returned when a connection id is unknown.
	ErrConnNotFound = errors.New("connection not found")
	// ErrOutputBufferFull is returned by Send when the connection output queue is full.
	ErrOutputBufferFull = errors.New("output buffer full")
)

// RouteNotFoundError is raised when no route matches the request path.
type RouteNotFoundError struct {
	Method string
	Path   string
}

func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("route not found: %s %s", e.Method, e.Path)
}

// MethodNotAllowedError is raised when the path matches under other methods.
type MethodNotAllowedError struct {
	Method  string
	Path    string
	Allowed []string
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("method %s not allowed for %s, must be one of: %s", e.Method, e.Path, strings.Join(e.Allowed, ", "))
}

// StopError carries a prebuilt response that is returned verbatim,
// bypassing every error handler.
type StopError struct {
	Response *Response
}

func (e *StopError) Error() string {
	return "stop"
}

// Stop returns a StopError carrying res.
func Stop(res *Response) error {
	return &StopError{Response: res}
}

// RuntimeFault wraps a recovered panic.
type RuntimeFault struct {
	Value interface{}
	Stack string
}

func (e *RuntimeFault) Error() string {
	return fmt.Sprintf("runtime fault: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *RuntimeFault) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ListenerError is a fatal failure to bind a listener at start.
type ListenerError struct {
	Name string
	Host string
	Port int
	Err  error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %s at %s:%d: %v", e.Name, e.Host, e.Port, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}
