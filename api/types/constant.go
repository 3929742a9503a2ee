/*
 * Copyright 2023 The RuleGo Authors.
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

// Host engine event names. The set is extensible: listeners may be attached
// under any name, but the engine only emits these.
const (
	EventStart        = "start"
	EventShutdown     = "shutdown"
	EventWorkerStart  = "workerStart"
	EventWorkerStop   = "workerStop"
	EventWorkerExit   = "workerExit"
	EventTimer        = "timer"
	EventConnect      = "connect"
	EventReceive      = "receive"
	EventPacket       = "packet"
	EventClose        = "close"
	EventBufferFull   = "bufferFull"
	EventBufferEmpty  = "bufferEmpty"
	EventTask         = "task"
	EventFinish       = "finish"
	EventPipeMessage  = "pipeMessage"
	EventWorkerError  = "workerError"
	EventManagerStart = "managerStart"
	EventManagerStop  = "managerStop"
	EventRequest      = "request"
	EventHandshake    = "handShake"
	EventMessage      = "message"
	EventOpen         = "open"
)

// EventNames lists every engine event in declaration order.
var EventNames = []string{
	EventStart,
	EventShutdown,
	EventWorkerStart,
	EventWorkerStop,
	EventWorkerExit,
	EventTimer,
	EventConnect,
	EventReceive,
	EventPacket,
	EventClose,
	EventBufferFull,
	EventBufferEmpty,
	EventTask,
	EventFinish,
	EventPipeMessage,
	EventWorkerError,
	EventManagerStart,
	EventManagerStop,
	EventRequest,
	EventHandshake,
	EventMessage,
	EventOpen,
}

// Container keys of the default services.
const (
	KeyRouter            = "router"
	KeySettings          = "settings"
	KeyErrorHandler      = "errorHandler"
	KeyNotFoundHandler   = "notFoundHandler"
	KeyNotAllowedHandler = "notAllowedHandler"
	KeyFatalErrorHandler = "fatalErrorHandler"
	KeyCallableResolver  = "callableResolver"
	KeyLogger            = "logger"
)

// Request attribute keys set by the dispatch pipeline.
const (
	AttrRouteInfo   = "routeInfo"
	AttrRoute       = "route"
	AttrRequestId   = "requestId"
	AttrRequestTime = "requestTime"
)

// Output buffering modes.
const (
	OutputBufferingAppend  = "append"
	OutputBufferingPrepend = "prepend"
	OutputBufferingOff     = "off"
)

// Transport types accepted by listener ports.
const (
	SockTCP      = "tcp"
	SockTCP6     = "tcp6"
	SockUDP      = "udp"
	SockUDP6     = "udp6"
	SockUnix     = "unix"
	SockUnixgram = "unixgram"
)

const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderRequestId     = "X-Request-Id"
	HeaderLocation      = "Location"
	HeaderAllow         = "Allow"
)
