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

package server

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	goruntime "runtime"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/event"
)

var webSocketKey = regexp.MustCompile(`^[+/0-9A-Za-z]{21}[AQgw]==$`)

// attachDefaults registers the default listeners of a created listener:
// the task and finish listeners, replacing earlier ones, and the handshake
// check.
func (s *Server) attachDefaults() {
	s.bus.ClearListeners(types.EventTask)
	s.bus.ClearListeners(types.EventFinish)
	s.tasks.Attach(s.bus)

	event.On(s.bus, event.Handshake, s.onHandshake)
}

func (s *Server) onWorkerStartPools(from interface{}, ev types.WorkerStartEvent) interface{} {
	if err := s.pools.WorkerStartHook(ev.Worker.ID(), ev.Worker.IsTaskWorker()); err != nil {
		s.config.Fault(fmt.Errorf("worker %d pools: %w", ev.Worker.ID(), err))
	}
	return nil
}

func (s *Server) onWorkerStartName(from interface{}, ev types.WorkerStartEvent) interface{} {
	if goruntime.GOOS == "darwin" {
		return nil
	}
	ev.Worker.SetName(WorkerName(s.config.Name, ev.Worker.ID(), s.config.WorkerNum))
	return nil
}

// WorkerName is the name of worker id in app.
func WorkerName(app string, id, workerNum int) string {
	if id < workerNum {
		return fmt.Sprintf("%s_Worker_%d", app, id)
	}
	return fmt.Sprintf("%s_Task_Worker_%d", app, id)
}

// onHandshake rejects a websocket handshake with a malformed
// Sec-WebSocket-Key or one failing the handshake rule.
func (s *Server) onHandshake(from interface{}, ev types.HandshakeEvent) interface{} {
	if !ValidWebSocketKey(ev.Request.Header.Get("Sec-WebSocket-Key")) {
		return false
	}
	s.lock.RLock()
	program := s.handshake
	s.lock.RUnlock()
	if program == nil {
		return true
	}
	out, err := vm.Run(program, handshakeEnv(ev.Request))
	if err != nil {
		s.logger.Printf("handshake rule %s: %v", ev.Request.RemoteAddr, err)
		return false
	}
	ok, _ := out.(bool)
	return ok
}

// ValidWebSocketKey reports whether key is a base64 encoded 16 byte nonce.
func ValidWebSocketKey(key string) bool {
	if !webSocketKey.MatchString(key) {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(key)
	return err == nil && len(decoded) == 16
}

func compileHandshakeRule(rule string) (*vm.Program, error) {
	if rule == "" {
		return nil, nil
	}
	program, err := expr.Compile(rule, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("handshake rule: %w", err)
	}
	return program, nil
}

// handshakeEnv exposes the request to the handshake rule as cookie, header
// and query maps plus method, path and remoteAddr.
func handshakeEnv(r *http.Request) map[string]interface{} {
	cookies := make(map[string]interface{})
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}
	headers := make(map[string]interface{})
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	query := make(map[string]interface{})
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	return map[string]interface{}{
		"cookie":     cookies,
		"header":     headers,
		"query":      query,
		"method":     r.Method,
		"path":       r.URL.Path,
		"remoteAddr": r.RemoteAddr,
	}
}

// banner prints the startup information.
func (s *Server) banner() {
	c := s.config
	s.logger.Printf("hive %s listening on %s (%s/%s)", c.Name, c.Addr(), c.ServerType, c.SockType)
	s.logger.Printf("workers: %d, task workers: %d", c.WorkerNum, c.TaskWorkerNum)
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, l := range s.listeners {
		s.logger.Printf("listener %s on %s:%d (%s)", l.Name, l.Host, l.Port, l.SockType)
	}
	if names := s.processes.Names(); len(names) > 0 {
		s.logger.Printf("processes: %v", names)
	}
}
