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
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rulego/hive/api/types"
)

// ServeHTTP runs the request event on a standard worker. Websocket upgrade
// requests go through the handshake instead on websocket listeners.
//
// A callback returning an error or panicking is answered 500 if it wrote
// nothing. A request nobody wrote to is answered 404.
func (p *Port) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if p.serverType == types.TypeWebSocket && websocket.IsWebSocketUpgrade(r) {
		p.serveWebSocket(rw, r)
		return
	}
	e := p.engine
	e.metrics.IncrementRequests()
	w := e.pickWorker()
	tw := &trackingWriter{ResponseWriter: rw}
	r = r.WithContext(types.WithWorkerID(r.Context(), w.id))

	var result interface{}
	err := w.call(func() {
		result = p.fire(types.EventRequest, types.RequestEvent{Engine: e, Worker: w, Request: r, Writer: tw})
	})
	if err == nil {
		if rerr, ok := result.(error); ok {
			err = rerr
		}
	}
	if err != nil {
		e.metrics.IncrementFailed()
		e.logger.Printf("%s %s: %v", r.Method, r.URL.RequestURI(), err)
		if !tw.wrote {
			http.Error(tw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}
	if !tw.wrote {
		http.NotFound(tw, r)
	}
}

func (p *Port) serveWebSocket(rw http.ResponseWriter, r *http.Request) {
	e := p.engine
	id := e.newConnID()
	w := e.workerFor(id)
	r = r.WithContext(types.WithWorkerID(r.Context(), w.id))
	tw := &trackingWriter{ResponseWriter: rw}

	var result interface{}
	err := w.call(func() {
		result = p.fire(types.EventHandshake, types.HandshakeEvent{Engine: e, Worker: w, Request: r, Writer: tw})
	})
	if err != nil || !accepted(result) {
		if !tw.wrote {
			http.Error(rw, "websocket handshake rejected", http.StatusBadRequest)
		}
		return
	}

	c, err := p.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		// the upgrader already answered
		e.logger.Printf("websocket upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	conn := &wsConn{id: id, port: p, conn: c}
	e.addConn(conn)
	_ = w.post(func() {
		p.fire(types.EventOpen, types.OpenEvent{Engine: e, Worker: w, Conn: conn, Request: r})
	})
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			break
		}
		_ = w.post(func() {
			p.fire(types.EventMessage, types.MessageEvent{Engine: e, Worker: w, Conn: conn, MessageType: mt, Data: data})
		})
	}
	_ = conn.Close()
	e.removeConn(conn)
	_ = w.post(func() {
		p.fire(types.EventClose, types.CloseEvent{Engine: e, Worker: w, Conn: conn, ReactorID: p.index})
	})
}

// accepted reads a handshake result. Only an explicit false rejects; with
// several listeners every one of them must not return false.
func accepted(v interface{}) bool {
	switch r := v.(type) {
	case bool:
		return r
	case []interface{}:
		for _, item := range r {
			if b, ok := item.(bool); ok && !b {
				return false
			}
		}
	}
	return true
}

type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *trackingWriter) WriteHeader(status int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *trackingWriter) Write(p []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(p)
}

func (w *trackingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		w.wrote = true
		f.Flush()
	}
}

func (w *trackingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	w.wrote = true
	return h.Hijack()
}

var _ types.WebSocketConn = (*wsConn)(nil)

type wsConn struct {
	id   int64
	port *Port
	conn *websocket.Conn
	lock sync.Mutex
}

func (c *wsConn) ID() int64 {
	return c.id
}

func (c *wsConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send pushes a text frame.
func (c *wsConn) Send(data []byte) error {
	return c.Push(websocket.TextMessage, data)
}

func (c *wsConn) Push(messageType int, data []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
