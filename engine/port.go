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

package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rulego/hive/api/types"
	"golang.org/x/net/netutil"
)

var _ types.PacketConn = (*Port)(nil)

// Port is a bound listener. The main listener is index 0, auxiliary ports
// follow in Listen order; the index is reported as the reactor id.
type Port struct {
	engine     *Engine
	index      int
	Name       string
	Host       string
	PortNum    int
	SockType   string
	serverType types.ServerType
	options    PortOptions

	lock      sync.RWMutex
	callbacks map[string]types.Callback

	ln         net.Listener
	pc         net.PacketConn
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func (p *Port) init() {
	if p.SockType == "" {
		p.SockType = types.SockTCP
	}
	p.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	p.httpServer = &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 30 * time.Second,
	}
}

// On sets a callback for this port. On the main listener it is the same as
// Engine.On.
func (p *Port) On(name string, cb types.Callback) {
	if p.index == 0 {
		p.engine.On(name, cb)
		return
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if cb == nil {
		delete(p.callbacks, name)
		return
	}
	p.callbacks[name] = cb
}

func (p *Port) callback(name string) types.Callback {
	if p.index != 0 {
		p.lock.RLock()
		cb, ok := p.callbacks[name]
		p.lock.RUnlock()
		if ok {
			return cb
		}
	}
	return p.engine.callback(name)
}

func (p *Port) fire(name string, payload interface{}) interface{} {
	if cb := p.callback(name); cb != nil {
		return cb(payload)
	}
	return nil
}

// ReactorID is the index of the port.
func (p *Port) ReactorID() int {
	return p.index
}

func (p *Port) ServerType() types.ServerType {
	return p.serverType
}

// Addr is the bound address, nil before bind.
func (p *Port) Addr() net.Addr {
	switch {
	case p.ln != nil:
		return p.ln.Addr()
	case p.pc != nil:
		return p.pc.LocalAddr()
	}
	return nil
}

func (p *Port) LocalAddr() net.Addr {
	return p.Addr()
}

// SendTo writes a datagram on a packet port.
func (p *Port) SendTo(addr net.Addr, data []byte) error {
	if p.pc == nil {
		return fmt.Errorf("listener %s is not a packet listener", p.Name)
	}
	_, err := p.pc.WriteTo(data, addr)
	return err
}

func (p *Port) isPacket() bool {
	switch p.SockType {
	case types.SockUDP, types.SockUDP6, types.SockUnixgram:
		return true
	}
	return false
}

func (p *Port) address() string {
	switch p.SockType {
	case types.SockUnix, types.SockUnixgram:
		return p.Host
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(p.PortNum))
}

func (p *Port) bind() error {
	if p.isPacket() {
		if p.serverType != types.TypeServer {
			return fmt.Errorf("%s requires a stream socket, got %s", p.serverType, p.SockType)
		}
		pc, err := net.ListenPacket(p.SockType, p.address())
		if err != nil {
			return err
		}
		p.pc = pc
		return nil
	}
	ln, err := net.Listen(p.SockType, p.address())
	if err != nil {
		return err
	}
	if p.options.MaxConn > 0 {
		ln = netutil.LimitListener(ln, p.options.MaxConn)
	}
	p.ln = ln
	return nil
}

func (p *Port) serve() {
	switch {
	case p.pc != nil:
		p.servePacket()
	case p.serverType == types.TypeHTTP || p.serverType == types.TypeWebSocket:
		if err := p.httpServer.Serve(p.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.engine.logger.Printf("listener %s: %v", p.Name, err)
		}
	default:
		p.serveStream()
	}
}

func (p *Port) close(ctx context.Context) error {
	var err error
	switch {
	case p.pc != nil:
		err = p.pc.Close()
	case p.ln != nil:
		if p.serverType == types.TypeHTTP || p.serverType == types.TypeWebSocket {
			err = p.httpServer.Shutdown(ctx)
		}
		if cerr := p.ln.Close(); err == nil {
			err = cerr
		}
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
