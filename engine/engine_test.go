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
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rulego/hive/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...types.Option) *Engine {
	opts = append([]types.Option{
		types.WithAddr("127.0.0.1", 0),
		types.WithWorkerNum(2, 1),
		types.WithLogger(types.DiscardLogger()),
	}, opts...)
	e, err := New(types.NewConfig(opts...))
	require.Nil(t, err)
	return e
}

func startEngine(t *testing.T, e *Engine) {
	require.Nil(t, e.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.Nil(t, e.Shutdown(ctx))
	})
}

func TestNewValidation(t *testing.T) {
	_, err := New(types.NewConfig(types.WithWorkerNum(0, 1)))
	assert.NotNil(t, err)
	_, err = New(types.NewConfig(types.WithWorkerNum(1, -1)))
	assert.NotNil(t, err)
	_, err = New(types.NewConfig(types.WithEngineOptions(types.Configuration{"max_conn": "many"})))
	assert.NotNil(t, err)
}

func TestHTTPRequest(t *testing.T) {
	e := newTestEngine(t)
	e.On(types.EventRequest, func(args ...interface{}) interface{} {
		ev := args[0].(types.RequestEvent)
		id, ok := types.WorkerIDFrom(ev.Request.Context())
		assert.True(t, ok)
		assert.Equal(t, ev.Worker.ID(), id)
		assert.False(t, ev.Worker.IsTaskWorker())
		_, _ = fmt.Fprintf(ev.Writer, "hello %s", ev.Request.URL.Path)
		return nil
	})
	startEngine(t, e)

	resp, err := http.Get("http://" + e.Addr().String() + "/x")
	require.Nil(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello /x", string(body))
	assert.Equal(t, int64(1), e.Metrics().Get().Requests)
}

func TestHTTPRequestFailures(t *testing.T) {
	e := newTestEngine(t)
	var workerErrors sync.WaitGroup
	workerErrors.Add(1)
	e.On(types.EventWorkerError, func(args ...interface{}) interface{} {
		ev := args[0].(types.WorkerErrorEvent)
		var fault *types.RuntimeFault
		assert.True(t, errors.As(ev.Err, &fault))
		workerErrors.Done()
		return nil
	})
	e.On(types.EventRequest, func(args ...interface{}) interface{} {
		ev := args[0].(types.RequestEvent)
		switch ev.Request.URL.Path {
		case "/panic":
			panic("handler")
		case "/error":
			return errors.New("failed")
		}
		return nil
	})
	startEngine(t, e)

	for path, status := range map[string]int{"/panic": 500, "/error": 500, "/silent": 404} {
		resp, err := http.Get("http://" + e.Addr().String() + path)
		require.Nil(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, status, resp.StatusCode, path)
	}
	workerErrors.Wait()
	assert.Equal(t, int64(2), e.Metrics().Get().Failed)
}

func TestWorkerLifecycle(t *testing.T) {
	e := newTestEngine(t)
	var lock sync.Mutex
	var events []string
	record := func(name string) types.Callback {
		return func(args ...interface{}) interface{} {
			lock.Lock()
			defer lock.Unlock()
			switch ev := args[0].(type) {
			case types.WorkerStartEvent:
				events = append(events, fmt.Sprintf("%s:%d:%v", name, ev.Worker.ID(), ev.Worker.IsTaskWorker()))
			case types.WorkerStopEvent:
				events = append(events, fmt.Sprintf("%s:%d", name, ev.Worker.ID()))
			case types.WorkerExitEvent:
				events = append(events, fmt.Sprintf("%s:%d", name, ev.Worker.ID()))
			default:
				events = append(events, name)
			}
			return nil
		}
	}
	for _, name := range []string{types.EventStart, types.EventManagerStart, types.EventWorkerStart,
		types.EventWorkerExit, types.EventWorkerStop, types.EventManagerStop, types.EventShutdown} {
		e.On(name, record(name))
	}
	require.Nil(t, e.Start(context.Background()))
	assert.Equal(t, types.ErrServerRunning, e.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, e.Shutdown(ctx))
	assert.False(t, e.IsRunning())

	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, []string{types.EventStart, types.EventManagerStart}, events[:2])
	assert.ElementsMatch(t, []string{
		"workerStart:0:false", "workerStart:1:false", "workerStart:2:true",
		"workerExit:0", "workerExit:1", "workerExit:2",
		"workerStop:0", "workerStop:1", "workerStop:2",
	}, events[2:len(events)-2])
	assert.Equal(t, []string{types.EventManagerStop, types.EventShutdown}, events[len(events)-2:])
}

func TestTaskRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	e.On(types.EventTask, func(args ...interface{}) interface{} {
		ev := args[0].(types.TaskEvent)
		assert.True(t, ev.Worker.IsTaskWorker())
		assert.Equal(t, 1, ev.FromWorkerID)
		if ev.Data == "skip" {
			return nil
		}
		return fmt.Sprintf("done:%v", ev.Data)
	})
	finished := make(chan types.FinishEvent, 2)
	e.On(types.EventFinish, func(args ...interface{}) interface{} {
		finished <- args[0].(types.FinishEvent)
		return nil
	})
	startEngine(t, e)

	ctx := types.WithWorkerID(context.Background(), 1)
	_, err := e.Task(ctx, "skip", -1)
	require.Nil(t, err)
	taskID, err := e.Task(ctx, "x", 2)
	require.Nil(t, err)

	select {
	case ev := <-finished:
		assert.Equal(t, taskID, ev.TaskID)
		assert.Equal(t, 1, ev.Worker.ID())
		assert.Equal(t, "done:x", ev.Data)
	case <-time.After(3 * time.Second):
		t.Fatal("finish not delivered")
	}

	_, err = e.Task(ctx, "x", 0)
	assert.True(t, errors.Is(err, types.ErrTaskWorkerUnavailable))
	_, err = e.Task(ctx, "x", 9)
	assert.NotNil(t, err)
}

func TestTaskWithoutTaskWorkers(t *testing.T) {
	e := newTestEngine(t, types.WithWorkerNum(1, 0))
	startEngine(t, e)
	_, err := e.Task(context.Background(), "x", -1)
	assert.Equal(t, types.ErrTaskWorkerUnavailable, err)
}

func TestPipeMessage(t *testing.T) {
	e := newTestEngine(t)
	got := make(chan types.PipeMessageEvent, 1)
	e.On(types.EventPipeMessage, func(args ...interface{}) interface{} {
		got <- args[0].(types.PipeMessageEvent)
		return nil
	})
	startEngine(t, e)
	require.Nil(t, e.SendMessage(types.WithWorkerID(context.Background(), 0), "hi", 1))
	select {
	case ev := <-got:
		assert.Equal(t, 1, ev.Worker.ID())
		assert.Equal(t, 0, ev.FromWorkerID)
		assert.Equal(t, "hi", ev.Message)
	case <-time.After(3 * time.Second):
		t.Fatal("pipe message not delivered")
	}
	assert.NotNil(t, e.SendMessage(context.Background(), "hi", 7))
}

func TestTimer(t *testing.T) {
	e := newTestEngine(t)
	fired := make(chan types.TimerEvent, 4)
	e.On(types.EventTimer, func(args ...interface{}) interface{} {
		fired <- args[0].(types.TimerEvent)
		return nil
	})
	id, err := e.AddTimer("@every 1s", 1)
	require.Nil(t, err)
	_, err = e.AddTimer("not a spec", 1)
	assert.NotNil(t, err)
	_, err = e.AddTimer("@every 1s", 5)
	assert.NotNil(t, err)
	startEngine(t, e)

	select {
	case ev := <-fired:
		assert.Equal(t, id, ev.TimerID)
		assert.Equal(t, 1, ev.Worker.ID())
	case <-time.After(3 * time.Second):
		t.Fatal("timer did not fire")
	}
	e.ClearTimer(id)
}

func TestStreamServer(t *testing.T) {
	e := newTestEngine(t,
		types.WithServerType(types.TypeServer),
		types.WithEngineOptions(types.Configuration{"open_eof_check": true, "package_eof": "\n"}),
	)
	closed := make(chan int64, 1)
	e.On(types.EventConnect, func(args ...interface{}) interface{} {
		ev := args[0].(types.ConnectEvent)
		_ = ev.Conn.Send([]byte("welcome\n"))
		return nil
	})
	e.On(types.EventReceive, func(args ...interface{}) interface{} {
		ev := args[0].(types.ReceiveEvent)
		assert.Equal(t, 0, ev.ReactorID)
		_ = ev.Conn.Send([]byte("echo:" + string(ev.Data)))
		if strings.HasPrefix(string(ev.Data), "bye") {
			_ = ev.Conn.Close()
		}
		return nil
	})
	e.On(types.EventClose, func(args ...interface{}) interface{} {
		closed <- args[0].(types.CloseEvent).Conn.ID()
		return nil
	})
	startEngine(t, e)

	c, err := net.Dial("tcp", e.Addr().String())
	require.Nil(t, err)
	defer c.Close()
	r := bufio.NewReader(c)
	line, err := r.ReadString('\n')
	require.Nil(t, err)
	assert.Equal(t, "welcome\n", line)

	_, err = c.Write([]byte("a\nb\n"))
	require.Nil(t, err)
	line, _ = r.ReadString('\n')
	assert.Equal(t, "echo:a\n", line)
	line, _ = r.ReadString('\n')
	assert.Equal(t, "echo:b\n", line)

	_, err = c.Write([]byte("bye\n"))
	require.Nil(t, err)
	line, _ = r.ReadString('\n')
	assert.Equal(t, "echo:bye\n", line)
	select {
	case id := <-closed:
		assert.True(t, id > 0)
	case <-time.After(3 * time.Second):
		t.Fatal("close not fired")
	}
}

func TestOutputBufferFull(t *testing.T) {
	e := newTestEngine(t,
		types.WithServerType(types.TypeServer),
		types.WithEngineOptions(types.Configuration{"output_buffer": 4}),
	)
	results := make(chan error, 2)
	full := make(chan struct{}, 1)
	e.On(types.EventReceive, func(args ...interface{}) interface{} {
		ev := args[0].(types.ReceiveEvent)
		results <- ev.Conn.Send([]byte("0123456789"))
		return nil
	})
	e.On(types.EventBufferFull, func(args ...interface{}) interface{} {
		full <- struct{}{}
		return nil
	})
	startEngine(t, e)

	c, err := net.Dial("tcp", e.Addr().String())
	require.Nil(t, err)
	defer c.Close()
	_, _ = c.Write([]byte("x"))
	assert.Equal(t, types.ErrOutputBufferFull, <-results)
	select {
	case <-full:
	case <-time.After(3 * time.Second):
		t.Fatal("bufferFull not fired")
	}
}

func TestPacketServer(t *testing.T) {
	e := newTestEngine(t, types.WithServerType(types.TypeServer), types.WithSockType(types.SockUDP))
	e.On(types.EventPacket, func(args ...interface{}) interface{} {
		ev := args[0].(types.PacketEvent)
		_ = ev.Conn.SendTo(ev.Addr, append([]byte("pong:"), ev.Data...))
		return nil
	})
	startEngine(t, e)

	c, err := net.Dial("udp", e.Addr().String())
	require.Nil(t, err)
	defer c.Close()
	_, err = c.Write([]byte("ping"))
	require.Nil(t, err)
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64)
	n, err := c.Read(buf)
	require.Nil(t, err)
	assert.Equal(t, "pong:ping", string(buf[:n]))
}

func TestWebSocket(t *testing.T) {
	e := newTestEngine(t, types.WithServerType(types.TypeWebSocket))
	e.On(types.EventHandshake, func(args ...interface{}) interface{} {
		ev := args[0].(types.HandshakeEvent)
		return ev.Request.URL.Query().Get("token") == "123"
	})
	e.On(types.EventMessage, func(args ...interface{}) interface{} {
		ev := args[0].(types.MessageEvent)
		_ = ev.Conn.Push(ev.MessageType, append([]byte("echo:"), ev.Data...))
		return nil
	})
	e.On(types.EventRequest, func(args ...interface{}) interface{} {
		ev := args[0].(types.RequestEvent)
		_, _ = io.WriteString(ev.Writer, "plain")
		return nil
	})
	startEngine(t, e)

	url := "ws://" + e.Addr().String() + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=bad", nil)
	assert.NotNil(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	c, _, err := websocket.DefaultDialer.Dial(url+"?token=123", nil)
	require.Nil(t, err)
	defer c.Close()
	require.Nil(t, c.WriteMessage(websocket.TextMessage, []byte("hi")))
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := c.ReadMessage()
	require.Nil(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "echo:hi", string(data))

	// plain requests still reach the request event
	resp, err = http.Get("http://" + e.Addr().String() + "/")
	require.Nil(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "plain", string(body))
}

func TestAuxiliaryPort(t *testing.T) {
	e := newTestEngine(t)
	e.On(types.EventReceive, func(args ...interface{}) interface{} {
		ev := args[0].(types.ReceiveEvent)
		_ = ev.Conn.Send([]byte("main"))
		return nil
	})
	p, err := e.Listen("tcp", "127.0.0.1", 0, types.SockTCP, nil)
	require.Nil(t, err)
	plain, err := e.Listen("fallback", "127.0.0.1", 0, types.SockTCP, nil)
	require.Nil(t, err)
	p.On(types.EventReceive, func(args ...interface{}) interface{} {
		ev := args[0].(types.ReceiveEvent)
		assert.Equal(t, 1, ev.ReactorID)
		_ = ev.Conn.Send([]byte("port"))
		return nil
	})

	_, err = e.Listen("busy", "127.0.0.1", p.Addr().(*net.TCPAddr).Port, types.SockTCP, nil)
	var lerr *types.ListenerError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "busy", lerr.Name)

	startEngine(t, e)
	_, err = e.Listen("late", "127.0.0.1", 0, types.SockTCP, nil)
	assert.Equal(t, types.ErrServerRunning, err)

	for port, want := range map[*Port]string{p: "port", plain: "main"} {
		c, err := net.Dial("tcp", port.Addr().String())
		require.Nil(t, err)
		_, _ = c.Write([]byte("x"))
		_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
		buf := make([]byte, 16)
		n, err := c.Read(buf)
		require.Nil(t, err)
		assert.Equal(t, want, string(buf[:n]))
		_ = c.Close()
	}
}

func TestDecodeOptions(t *testing.T) {
	opts, err := DecodeOptions(types.Configuration{"max_conn": "10", "read_timeout": "2s"})
	require.Nil(t, err)
	assert.Equal(t, 10, opts.MaxConn)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
	assert.Equal(t, defaultReadBuffer, opts.ReadBuffer)
	assert.Equal(t, defaultOutputBuffer, opts.OutputBuffer)
	assert.Equal(t, defaultPackageEOF, opts.PackageEOF)
	assert.Equal(t, defaultInboxSize, opts.InboxSize)
}

func TestSplitEOF(t *testing.T) {
	split := splitEOF([]byte("\r\n"))
	adv, tok, err := split([]byte("ab\r\ncd"), false)
	assert.Nil(t, err)
	assert.Equal(t, 4, adv)
	assert.Equal(t, "ab\r\n", string(tok))
	adv, tok, _ = split([]byte("cd"), false)
	assert.Equal(t, 0, adv)
	assert.Nil(t, tok)
	adv, tok, _ = split([]byte("cd"), true)
	assert.Equal(t, 2, adv)
	assert.Equal(t, "cd", string(tok))
}

func TestAccepted(t *testing.T) {
	assert.True(t, accepted(nil))
	assert.True(t, accepted(true))
	assert.False(t, accepted(false))
	assert.True(t, accepted([]interface{}{true, "x"}))
	assert.False(t, accepted([]interface{}{true, false}))
}
