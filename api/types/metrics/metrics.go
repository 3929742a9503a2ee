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

package metrics

import (
	"sync/atomic"
)

// ServerMetrics holds the counters of a running server.
type ServerMetrics struct {
	Connections     int64 // Number of currently open connections
	Accepted        int64 // Total number of accepted connections
	Requests        int64 // Total number of handled requests
	Failed          int64 // Number of requests answered with an engine error
	WorkerErrors    int64 // Number of panics recovered inside workers
	TasksDispatched int64 // Total number of tasks handed to task workers
	TasksFinished   int64 // Total number of finish notifications delivered
}

// NewServerMetrics creates a new instance of ServerMetrics.
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{}
}

// ConnOpened records an accepted connection.
func (m *ServerMetrics) ConnOpened() {
	atomic.AddInt64(&m.Connections, 1)
	atomic.AddInt64(&m.Accepted, 1)
}

// ConnClosed records a closed connection.
func (m *ServerMetrics) ConnClosed() {
	atomic.AddInt64(&m.Connections, -1)
}

func (m *ServerMetrics) IncrementRequests() {
	atomic.AddInt64(&m.Requests, 1)
}

func (m *ServerMetrics) IncrementFailed() {
	atomic.AddInt64(&m.Failed, 1)
}

func (m *ServerMetrics) IncrementWorkerErrors() {
	atomic.AddInt64(&m.WorkerErrors, 1)
}

func (m *ServerMetrics) IncrementTasksDispatched() {
	atomic.AddInt64(&m.TasksDispatched, 1)
}

func (m *ServerMetrics) IncrementTasksFinished() {
	atomic.AddInt64(&m.TasksFinished, 1)
}

// Get returns a copy of the current metrics.
func (m *ServerMetrics) Get() ServerMetrics {
	return ServerMetrics{
		Connections:     atomic.LoadInt64(&m.Connections),
		Accepted:        atomic.LoadInt64(&m.Accepted),
		Requests:        atomic.LoadInt64(&m.Requests),
		Failed:          atomic.LoadInt64(&m.Failed),
		WorkerErrors:    atomic.LoadInt64(&m.WorkerErrors),
		TasksDispatched: atomic.LoadInt64(&m.TasksDispatched),
		TasksFinished:   atomic.LoadInt64(&m.TasksFinished),
	}
}

// Reset resets all metrics to zero.
func (m *ServerMetrics) Reset() {
	atomic.StoreInt64(&m.Connections, 0)
	atomic.StoreInt64(&m.Accepted, 0)
	atomic.StoreInt64(&m.Requests, 0)
	atomic.StoreInt64(&m.Failed, 0)
	atomic.StoreInt64(&m.WorkerErrors, 0)
	atomic.StoreInt64(&m.TasksDispatched, 0)
	atomic.StoreInt64(&m.TasksFinished, 0)
}
