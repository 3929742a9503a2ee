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
	"bufio"
	"bytes"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rulego/hive/api/types"
)

var _ types.Conn = (*streamConn)(nil)

func (p *Port) serveStream() {
	e := p.engine
	for {
		c, err := p.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			e.logger.Printf("listener %s accept: %v", p.Name, err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		id := e.newConnID()
		conn := &streamConn{
			id:     id,
			port:   p,
			conn:   c,
			worker: e.workerFor(id),
			signal: make(chan struct{}, 1),
			quit:   make(chan struct{}),
		}
		if err := e.connPool.Submit(conn.serve); err != nil {
			go conn.serve()
		}
	}
}

func (p *Port) servePacket() {
	e := p.engine
	buf := make([]byte, 65535)
	for {
		n, addr, err := p.pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			e.logger.Printf("listener %s read: %v", p.Name, err)
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		w := e.pickWorker()
		_ = w.post(func() {
			p.fire(types.EventPacket, types.PacketEvent{Engine: e, Worker: w, Conn: p, Addr: addr, Data: data})
		})
	}
}

// streamConn is a tcp or unix connection with a byte bounded output queue.
type streamConn struct {
	id     int64
	port   *Port
	conn   net.Conn
	worker *Worker

	lock    sync.Mutex
	queue   [][]byte
	pending int
	full    bool
	closed  bool

	signal    chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
}

func (c *streamConn) ID() int64 {
	return c.id
}

func (c *streamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *streamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send queues data. Once the queue exceeds the output buffer Send fails with
// types.ErrOutputBufferFull and bufferFull fires; bufferEmpty fires when the
// queue drains.
func (c *streamConn) Send(data []byte) error {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return net.ErrClosed
	}
	if c.pending+len(data) > c.port.options.OutputBuffer {
		notify := !c.full
		c.full = true
		c.lock.Unlock()
		if notify {
			c.post(types.EventBufferFull, types.BufferFullEvent{Engine: c.port.engine, Worker: c.worker, Conn: c})
		}
		return types.ErrOutputBufferFull
	}
	c.pending += len(data)
	c.queue = append(c.queue, append([]byte(nil), data...))
	c.lock.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
	return nil
}

// Close flushes the output queue and closes the connection.
func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.lock.Lock()
		c.closed = true
		c.lock.Unlock()
		close(c.quit)
	})
	return nil
}

func (c *streamConn) post(name string, payload interface{}) {
	_ = c.worker.postAsync(func() {
		c.port.fire(name, payload)
	})
}

func (c *streamConn) serve() {
	e := c.port.engine
	e.addConn(c)
	_ = c.worker.post(func() {
		c.port.fire(types.EventConnect, types.ConnectEvent{Engine: e, Worker: c.worker, Conn: c, ReactorID: c.port.index})
	})
	go c.writeLoop()

	c.readLoop()

	_ = c.Close()
	e.removeConn(c)
	_ = c.worker.post(func() {
		c.port.fire(types.EventClose, types.CloseEvent{Engine: e, Worker: c.worker, Conn: c, ReactorID: c.port.index})
	})
}

func (c *streamConn) receive(data []byte) {
	e := c.port.engine
	_ = c.worker.post(func() {
		c.port.fire(types.EventReceive, types.ReceiveEvent{Engine: e, Worker: c.worker, Conn: c, ReactorID: c.port.index, Data: data})
	})
}

func (c *streamConn) setDeadline() {
	if d := c.port.options.ReadTimeout; d > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(d))
	}
}

func (c *streamConn) readLoop() {
	opts := c.port.options
	if opts.OpenEOFCheck {
		scanner := bufio.NewScanner(c.conn)
		scanner.Buffer(make([]byte, 0, 4096), opts.ReadBuffer)
		scanner.Split(splitEOF([]byte(opts.PackageEOF)))
		c.setDeadline()
		for scanner.Scan() {
			c.receive(append([]byte(nil), scanner.Bytes()...))
			c.setDeadline()
		}
		return
	}
	buf := make([]byte, opts.ReadBuffer)
	for {
		c.setDeadline()
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.receive(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			return
		}
	}
}

func (c *streamConn) writeLoop() {
	e := c.port.engine
	defer c.conn.Close()
	for {
		stopping := false
		select {
		case <-c.signal:
		case <-c.quit:
			stopping = true
		}
		for {
			c.lock.Lock()
			if len(c.queue) == 0 {
				c.lock.Unlock()
				break
			}
			data := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.lock.Unlock()

			_, err := c.conn.Write(data)

			c.lock.Lock()
			c.pending -= len(data)
			drained := c.pending == 0 && c.full
			if drained {
				c.full = false
			}
			c.lock.Unlock()

			if err != nil {
				_ = c.Close()
				return
			}
			if drained {
				c.post(types.EventBufferEmpty, types.BufferEmptyEvent{Engine: e, Worker: c.worker, Conn: c})
			}
		}
		if stopping {
			return
		}
	}
}

// splitEOF splits a stream into packages terminated by eof, eof included.
func splitEOF(eof []byte) func(data []byte, atEOF bool) (int, []byte, error) {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.Index(data, eof); i >= 0 {
			return i + len(eof), data[:i+len(eof)], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
