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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	goruntime "runtime"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/dispatch"
	"github.com/rulego/hive/event"
	"github.com/rulego/hive/pool"
	"github.com/rulego/hive/process"
	"github.com/rulego/hive/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...types.Option) *Server {
	opts = append([]types.Option{
		types.WithName("test"),
		types.WithAddr("127.0.0.1", 0),
		types.WithWorkerNum(2, 1),
		types.WithLogger(types.DiscardLogger()),
	}, opts...)
	s, err := New(types.NewConfig(opts...))
	require.Nil(t, err)
	return s
}

func start(t *testing.T, s *Server) {
	require.Nil(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
}

func TestLifecycle(t *testing.T) {
	var seen State
	s, err := New(types.NewConfig(
		types.WithAddr("127.0.0.1", 0),
		types.WithLogger(types.DiscardLogger()),
	), WithInitializer(func(s *Server) error {
		seen = s.State()
		return nil
	}))
	require.Nil(t, err)
	assert.Equal(t, Constructed, s.State())
	assert.False(t, s.IsStart())
	assert.Nil(t, s.Engine())

	require.Nil(t, s.Start(context.Background()))
	assert.Equal(t, Initializing, seen)
	assert.Equal(t, Running, s.State())
	assert.True(t, s.IsStart())
	assert.NotNil(t, s.Metrics())

	assert.Equal(t, types.ErrServerRunning, s.Start(context.Background()))
	assert.True(t, errors.Is(s.AddProcess("late", process.Function(nil), nil, false), types.ErrServerRunning))
	_, err = s.AddListener("late", "127.0.0.1", 0, types.SockTCP, nil)
	assert.Equal(t, types.ErrServerRunning, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, s.Shutdown(ctx))
	assert.Equal(t, Stopped, s.State())
	assert.NotNil(t, s.Shutdown(ctx))
}

func TestStartFailures(t *testing.T) {
	s, err := New(types.NewConfig(types.WithLogger(types.DiscardLogger())), WithInitializer(func(s *Server) error {
		return errors.New("no database")
	}))
	require.Nil(t, err)
	assert.NotNil(t, s.Start(context.Background()))
	assert.False(t, s.IsStart())

	s = newTestServer(t, types.WithServerType(types.ServerType(9)))
	assert.NotNil(t, s.Start(context.Background()))

	settings := types.DefaultSettings()
	settings.HandshakeRule = "cookie.token =="
	s = newTestServer(t, types.WithSettings(settings))
	assert.NotNil(t, s.Start(context.Background()))
}

func TestWorkerStart(t *testing.T) {
	s := newTestServer(t)
	require.Nil(t, s.RegisterPool(pool.NewObjectClass("conns", func() (int, error) { return 1, nil }, nil), 0, 5, types.OnlyTaskWorker))

	var lock sync.Mutex
	var wg sync.WaitGroup
	wg.Add(3)
	names := make(map[int]string)
	pools := make(map[int]bool)
	event.On(s.Bus(), event.WorkerStart, func(from interface{}, ev types.WorkerStartEvent) interface{} {
		defer wg.Done()
		assert.Same(t, s, from)
		_, ok := s.GetPool(ev.Worker.Context(), "conns")
		lock.Lock()
		defer lock.Unlock()
		names[ev.Worker.ID()] = ev.Worker.Name()
		pools[ev.Worker.ID()] = ok
		return nil
	})
	start(t, s)
	wg.Wait()

	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, map[int]bool{0: false, 1: false, 2: true}, pools)
	if goruntime.GOOS != "darwin" {
		assert.Equal(t, map[int]string{0: "test_Worker_0", 1: "test_Worker_1", 2: "test_Task_Worker_2"}, names)
	}
}

func TestWorkerName(t *testing.T) {
	assert.Equal(t, "app_Worker_1", WorkerName("app", 1, 2))
	assert.Equal(t, "app_Task_Worker_2", WorkerName("app", 2, 2))
}

func TestHTTPDispatch(t *testing.T) {
	s := newTestServer(t)
	app := dispatch.New(s.Container(), s.Config().Settings, s.Logger())
	_, err := app.Get("/hello/:name", func(req *types.Request, res *types.Response) (*types.Response, error) {
		_, err := res.WriteString("hello " + req.Param("name"))
		return res, err
	})
	require.Nil(t, err)
	app.Attach(s.Bus())
	start(t, s)

	resp, err := http.Get("http://" + s.Engine().Addr().String() + "/hello/hive")
	require.Nil(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello hive", string(body))

	resp, err = http.Get("http://" + s.Engine().Addr().String() + "/missing")
	require.Nil(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuxiliaryListener(t *testing.T) {
	s := newTestServer(t)
	l, err := s.AddListener("tcp", "127.0.0.1", 0, types.SockTCP, types.Configuration{"open_eof_check": true})
	require.Nil(t, err)
	assert.NotEmpty(t, l.ID)
	_, err = s.AddListener("tcp", "127.0.0.1", 0, types.SockTCP, nil)
	assert.NotNil(t, err)
	event.On(l.Bus(), event.Receive, func(from interface{}, ev types.ReceiveEvent) interface{} {
		assert.Equal(t, 1, ev.ReactorID)
		_ = ev.Conn.Send(append([]byte("echo:"), ev.Data...))
		return nil
	})
	start(t, s)
	found, ok := s.Listener("tcp")
	require.True(t, ok)
	require.NotNil(t, found.EnginePort())

	c, err := net.Dial("tcp", found.EnginePort().Addr().String())
	require.Nil(t, err)
	defer c.Close()
	_, err = c.Write([]byte("hi\r\n"))
	require.Nil(t, err)
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	line, err := bufio.NewReader(c).ReadString('\n')
	require.Nil(t, err)
	assert.Equal(t, "echo:hi\r\n", line)
}

func TestAuxiliaryListenerFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	defer busy.Close()

	s := newTestServer(t)
	_, err = s.AddListener("busy", "127.0.0.1", busy.Addr().(*net.TCPAddr).Port, types.SockTCP, nil)
	require.Nil(t, err)
	err = s.Start(context.Background())
	var lerr *types.ListenerError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "busy", lerr.Name)
	assert.False(t, s.IsStart())
	assert.Equal(t, Stopped, s.State())
}

func TestAuxiliaryListenerFailureReleasesPorts(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	defer busy.Close()
	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	freePort := free.Addr().(*net.TCPAddr).Port
	require.Nil(t, free.Close())

	s := newTestServer(t)
	_, err = s.AddListener("ok", "127.0.0.1", freePort, types.SockTCP, nil)
	require.Nil(t, err)
	_, err = s.AddListener("busy", "127.0.0.1", busy.Addr().(*net.TCPAddr).Port, types.SockTCP, nil)
	require.Nil(t, err)

	err = s.Start(context.Background())
	var lerr *types.ListenerError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "busy", lerr.Name)
	assert.Equal(t, Stopped, s.State())

	// the port of the listener bound before the failure is free again
	again, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", freePort))
	require.Nil(t, err)
	_ = again.Close()

	assert.Equal(t, types.ErrServerRunning, s.Start(context.Background()))
}

func TestHandshake(t *testing.T) {
	settings := types.DefaultSettings()
	settings.HandshakeRule = `cookie.token == "123"`
	s := newTestServer(t, types.WithServerType(types.TypeWebSocket), types.WithSettings(settings))
	event.On(s.Bus(), event.Message, func(from interface{}, ev types.MessageEvent) interface{} {
		_ = ev.Conn.Push(ev.MessageType, append([]byte("echo:"), ev.Data...))
		return nil
	})
	start(t, s)

	url := "ws://" + s.Engine().Addr().String() + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Cookie": {"token=bad"}})
	assert.NotNil(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	c, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Cookie": {"token=123"}})
	require.Nil(t, err)
	defer c.Close()
	require.Nil(t, c.WriteMessage(websocket.TextMessage, []byte("hi")))
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := c.ReadMessage()
	require.Nil(t, err)
	assert.Equal(t, "echo:hi", string(data))
}

func TestValidWebSocketKey(t *testing.T) {
	assert.True(t, ValidWebSocketKey("dGhlIHNhbXBsZSBub25jZQ=="))
	assert.False(t, ValidWebSocketKey(""))
	assert.False(t, ValidWebSocketKey("dGhlIHNhbXBsZSBub25jZB=="))
	assert.False(t, ValidWebSocketKey("short=="))
}

type doubleTask struct {
	*task.BaseTask
	finished chan interface{}
}

func (t *doubleTask) Run(ctx context.Context, data interface{}, taskID int64, fromWorkerID int) (interface{}, error) {
	return data.(int) * 2, nil
}

func (t *doubleTask) Finish(ctx context.Context, result interface{}, taskID int64) error {
	t.finished <- result
	return nil
}

func TestTask(t *testing.T) {
	s := newTestServer(t)
	_, err := s.Async(context.Background(), task.Object{Task: &doubleTask{BaseTask: task.NewBaseTask(1)}})
	assert.NotNil(t, err)
	start(t, s)

	dt := &doubleTask{BaseTask: task.NewBaseTask(21), finished: make(chan interface{}, 1)}
	_, err = s.Async(context.Background(), task.Object{Task: dt})
	require.Nil(t, err)
	select {
	case result := <-dt.finished:
		assert.Equal(t, 42, result)
	case <-time.After(3 * time.Second):
		t.Fatal("task did not finish")
	}

	ran := make(chan int, 1)
	_, err = s.Task(context.Background(), task.Deferred{Fn: func(engine types.Engine, taskID int64, fromWorkerID int) error {
		ran <- fromWorkerID
		return nil
	}}, 2)
	require.Nil(t, err)
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("deferred task did not run")
	}
}

func TestTimerAndPipeMessage(t *testing.T) {
	s := newTestServer(t)
	_, err := s.AddTimer("@every 1s", 0)
	assert.NotNil(t, err)
	assert.NotNil(t, s.SendMessage(context.Background(), "x", 1))

	messages := make(chan interface{}, 1)
	event.On(s.Bus(), event.PipeMessage, func(from interface{}, ev types.PipeMessageEvent) interface{} {
		messages <- ev.Message
		return nil
	})
	ticks := make(chan int, 1)
	event.On(s.Bus(), event.Timer, func(from interface{}, ev types.TimerEvent) interface{} {
		select {
		case ticks <- ev.Worker.ID():
		default:
		}
		return nil
	})
	start(t, s)

	require.Nil(t, s.SendMessage(context.Background(), "ping", 1))
	select {
	case m := <-messages:
		assert.Equal(t, "ping", m)
	case <-time.After(3 * time.Second):
		t.Fatal("no pipe message")
	}

	_, err = s.AddTimer("* * * * * *", 1)
	require.Nil(t, err)
	select {
	case id := <-ticks:
		assert.Equal(t, 1, id)
	case <-time.After(3 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestProcesses(t *testing.T) {
	s := newTestServer(t)
	echo := process.Function(func(ctx context.Context, args []string, in <-chan []byte, out chan<- []byte) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case data := <-in:
				out <- data
			}
		}
	})
	require.Nil(t, s.AddProcess("echo", echo, nil, false))
	start(t, s)

	_, err := s.Processes().WriteByProcessName("echo", []byte("ping"))
	require.Nil(t, err)
	data, err := s.Processes().ReadByProcessName("echo", time.Second)
	require.Nil(t, err)
	assert.Equal(t, "ping", string(data))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, s.Shutdown(ctx))
	_, err = s.Processes().WriteByProcessName("echo", []byte("late"))
	assert.NotNil(t, err)
}

func TestProcessesOutliveStartContext(t *testing.T) {
	s := newTestServer(t)
	echo := process.Function(func(ctx context.Context, args []string, in <-chan []byte, out chan<- []byte) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case data := <-in:
				out <- data
			}
		}
	})
	require.Nil(t, s.AddProcess("echo", echo, nil, false))

	startCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	require.Nil(t, s.Start(startCtx))
	cancel()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	time.Sleep(20 * time.Millisecond)

	_, err := s.Processes().WriteByProcessName("echo", []byte("still here"))
	require.Nil(t, err)
	data, err := s.Processes().ReadByProcessName("echo", time.Second)
	require.Nil(t, err)
	assert.Equal(t, "still here", string(data))
}
