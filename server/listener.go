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
	"github.com/gofrs/uuid/v5"
	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/engine"
	"github.com/rulego/hive/event"
)

// Listener is an auxiliary listener port. Listeners attached to its bus
// serve the port; events it has no listener for fall back to the main
// listener.
type Listener struct {
	ID       string
	Name     string
	Host     string
	Port     int
	SockType string
	Options  types.Configuration

	bus  *event.Bus
	port *engine.Port
}

func newListener(name, host string, port int, sockType string, options types.Configuration) *Listener {
	if options == nil {
		options = types.Configuration{}
	}
	l := &Listener{
		Name:     name,
		Host:     host,
		Port:     port,
		SockType: sockType,
		Options:  options,
		bus:      event.NewBus(),
	}
	if id, err := uuid.NewV4(); err == nil {
		l.ID = id.String()
	}
	return l
}

// Bus is the private event bus of the port.
func (l *Listener) Bus() *event.Bus {
	return l.bus
}

// EnginePort is the bound engine port, nil before start.
func (l *Listener) EnginePort() *engine.Port {
	return l.port
}

// attach binds the port and routes every event with listeners on the
// private bus to it.
func (l *Listener) attach(s *Server, e *engine.Engine) error {
	p, err := e.Listen(l.Name, l.Host, l.Port, l.SockType, l.Options)
	if err != nil {
		return err
	}
	l.port = p
	for _, name := range l.bus.Names() {
		if len(l.bus.Listeners(name)) > 0 {
			p.On(name, s.trampoline(l.bus, name))
		}
	}
	return nil
}
