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
	"context"
	"net"
)

// Callback is a host engine callback. The engine passes exactly one payload
// struct from event.go as the single argument.
type Callback func(args ...interface{}) interface{}

// Engine is the host engine surface visible to application code.
type Engine interface {
	// On sets the callback for an event name, replacing any previous one.
	On(name string, cb Callback)
	// Task hands data to a task worker. dstWorkerID < 0 picks one.
	Task(ctx context.Context, data interface{}, dstWorkerID int) (int64, error)
	// SendMessage delivers a pipeMessage event to dstWorkerID.
	SendMessage(ctx context.Context, message interface{}, dstWorkerID int) error
	// AddTimer fires the timer event on workerID according to a cron spec
	// with a seconds field.
	AddTimer(spec string, workerID int) (int, error)
	ClearTimer(id int)
	// Send writes data to the connection with the given id.
	Send(connID int64, data []byte) error
	// CloseConn closes the connection with the given id.
	CloseConn(connID int64) error
	WorkerNum() int
	TaskWorkerNum() int
	// Addr is the bound address of the main listener, nil before start.
	Addr() net.Addr
}

// Worker is an engine worker. Ids below WorkerNum are standard workers, the
// rest are task workers.
type Worker interface {
	ID() int
	IsTaskWorker() bool
	Name() string
	SetName(name string)
	// Context carries the worker id, see WorkerIDFrom.
	Context() context.Context
}

// Conn is a stream connection accepted by a listener.
type Conn interface {
	ID() int64
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	// Send queues data on the connection output buffer.
	Send(data []byte) error
	Close() error
}

// WebSocketConn is an upgraded websocket connection. Send pushes a text frame.
type WebSocketConn interface {
	Conn
	Push(messageType int, data []byte) error
}

// PacketConn is a datagram listener.
type PacketConn interface {
	LocalAddr() net.Addr
	SendTo(addr net.Addr, data []byte) error
}

type workerIDKey struct{}

// WithWorkerID returns a context carrying the worker id.
func WithWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerIDKey{}, id)
}

// WorkerIDFrom returns the worker id carried by ctx.
func WorkerIDFrom(ctx context.Context) (int, bool) {
	if ctx == nil {
		return -1, false
	}
	id, ok := ctx.Value(workerIDKey{}).(int)
	if !ok {
		return -1, false
	}
	return id, true
}
