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
	"net"
	"net/http"
)

// Payloads of the engine events. Every callback receives exactly one of them.

type StartEvent struct {
	Engine Engine
}

type ShutdownEvent struct {
	Engine Engine
}

type ManagerStartEvent struct {
	Engine Engine
}

type ManagerStopEvent struct {
	Engine Engine
}

type WorkerStartEvent struct {
	Engine Engine
	Worker Worker
}

type WorkerStopEvent struct {
	Engine Engine
	Worker Worker
}

type WorkerExitEvent struct {
	Engine Engine
	Worker Worker
}

// WorkerErrorEvent reports a panic recovered inside a worker.
type WorkerErrorEvent struct {
	Engine Engine
	Worker Worker
	Err    error
}

type TimerEvent struct {
	Engine  Engine
	Worker  Worker
	TimerID int
}

type ConnectEvent struct {
	Engine    Engine
	Worker    Worker
	Conn      Conn
	ReactorID int
}

type ReceiveEvent struct {
	Engine    Engine
	Worker    Worker
	Conn      Conn
	ReactorID int
	Data      []byte
}

type PacketEvent struct {
	Engine Engine
	Worker Worker
	Conn   PacketConn
	Addr   net.Addr
	Data   []byte
}

type CloseEvent struct {
	Engine    Engine
	Worker    Worker
	Conn      Conn
	ReactorID int
}

type BufferFullEvent struct {
	Engine Engine
	Worker Worker
	Conn   Conn
}

type BufferEmptyEvent struct {
	Engine Engine
	Worker Worker
	Conn   Conn
}

// TaskEvent is fired on a task worker. A non-nil return from the callback is
// delivered back to the origin worker as a FinishEvent.
type TaskEvent struct {
	Engine       Engine
	Worker       Worker
	TaskID       int64
	FromWorkerID int
	Data         interface{}
}

type FinishEvent struct {
	Engine Engine
	Worker Worker
	TaskID int64
	Data   interface{}
}

type PipeMessageEvent struct {
	Engine       Engine
	Worker       Worker
	FromWorkerID int
	Message      interface{}
}

type RequestEvent struct {
	Engine  Engine
	Worker  Worker
	Request *http.Request
	Writer  http.ResponseWriter
}

// HandshakeEvent is fired before a websocket upgrade. A true return accepts it.
type HandshakeEvent struct {
	Engine  Engine
	Worker  Worker
	Request *http.Request
	Writer  http.ResponseWriter
}

type OpenEvent struct {
	Engine  Engine
	Worker  Worker
	Conn    WebSocketConn
	Request *http.Request
}

type MessageEvent struct {
	Engine      Engine
	Worker      Worker
	Conn        WebSocketConn
	MessageType int
	Data        []byte
}
