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

package event

import (
	"github.com/rulego/hive/api/types"
)

// Topic binds an event name to the payload type fired under it.
type Topic[P any] struct {
	Name string
}

// NewTopic creates a topic for name.
func NewTopic[P any](name string) Topic[P] {
	return Topic[P]{Name: name}
}

// On attaches a typed listener. Fires whose first argument is not a P are
// ignored by it.
func On[P any](b *Bus, topic Topic[P], fn func(from interface{}, p P) interface{}) {
	b.Attach(topic.Name, func(from interface{}, args ...interface{}) interface{} {
		if len(args) == 0 {
			return nil
		}
		p, ok := args[0].(P)
		if !ok {
			return nil
		}
		return fn(from, p)
	})
}

// Emit fires topic with p as the single argument.
func Emit[P any](b *Bus, topic Topic[P], from interface{}, p P) interface{} {
	return b.Fire(topic.Name, from, p)
}

// Topics of the host engine events.
var (
	Start        = NewTopic[types.StartEvent](types.EventStart)
	Shutdown     = NewTopic[types.ShutdownEvent](types.EventShutdown)
	ManagerStart = NewTopic[types.ManagerStartEvent](types.EventManagerStart)
	ManagerStop  = NewTopic[types.ManagerStopEvent](types.EventManagerStop)
	WorkerStart  = NewTopic[types.WorkerStartEvent](types.EventWorkerStart)
	WorkerStop   = NewTopic[types.WorkerStopEvent](types.EventWorkerStop)
	WorkerExit   = NewTopic[types.WorkerExitEvent](types.EventWorkerExit)
	WorkerError  = NewTopic[types.WorkerErrorEvent](types.EventWorkerError)
	Timer        = NewTopic[types.TimerEvent](types.EventTimer)
	Connect      = NewTopic[types.ConnectEvent](types.EventConnect)
	Receive      = NewTopic[types.ReceiveEvent](types.EventReceive)
	Packet       = NewTopic[types.PacketEvent](types.EventPacket)
	Close        = NewTopic[types.CloseEvent](types.EventClose)
	BufferFull   = NewTopic[types.BufferFullEvent](types.EventBufferFull)
	BufferEmpty  = NewTopic[types.BufferEmptyEvent](types.EventBufferEmpty)
	Task         = NewTopic[types.TaskEvent](types.EventTask)
	Finish       = NewTopic[types.FinishEvent](types.EventFinish)
	PipeMessage  = NewTopic[types.PipeMessageEvent](types.EventPipeMessage)
	Request      = NewTopic[types.RequestEvent](types.EventRequest)
	Handshake    = NewTopic[types.HandshakeEvent](types.EventHandshake)
	Open         = NewTopic[types.OpenEvent](types.EventOpen)
	Message      = NewTopic[types.MessageEvent](types.EventMessage)
)
