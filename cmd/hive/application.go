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

package main

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/config"
	"github.com/rulego/hive/dispatch"
	"github.com/rulego/hive/event"
	"github.com/rulego/hive/metrics"
	"github.com/rulego/hive/pool"
	"github.com/rulego/hive/process"
	"github.com/rulego/hive/server"
	"github.com/rulego/hive/task"
	"github.com/rulego/hive/utils/js"
	"github.com/rulego/hive/utils/json"
)

// echoScript is the script task registered as "echo".
const echoScript = `
function run(data) {
	return {echo: data, length: String(data).length};
}
`

// application is a server with its dispatch app and metrics.
type application struct {
	file     config.File
	server   *server.Server
	app      *dispatch.App
	registry *prometheus.Registry
	recorder *metrics.Recorder
}

func loadFile(path string) (config.File, error) {
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}

// newApplication builds everything the file declares. Nothing is bound.
func newApplication(f config.File, logger types.Logger) (*application, error) {
	opts := append(f.Options(), types.WithLogger(logger))
	registry := task.NewRegistry()
	echo, err := task.ScriptFactory(echoScript, js.Config{Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := registry.Register("echo", echo); err != nil {
		return nil, err
	}
	s, err := server.New(types.NewConfig(opts...), server.WithTaskRegistry(registry))
	if err != nil {
		return nil, err
	}
	for _, p := range f.Processes {
		if err := s.AddProcess(p.Name, process.Exec(p.Path), p.Args, p.Async); err != nil {
			return nil, err
		}
	}
	for _, p := range f.Pools {
		class := &pool.SQLClass{ClassName: p.Name, DriverName: p.Driver, Dsn: p.Dsn, Ping: p.Ping}
		if err := s.RegisterPool(class, p.Min, p.Max, p.Affinity); err != nil {
			return nil, err
		}
	}
	for _, l := range f.Listeners {
		listener, err := s.AddListener(l.Name, l.Host, l.Port, l.SockType, l.Options)
		if err != nil {
			return nil, err
		}
		event.On(listener.Bus(), event.Receive, func(from interface{}, ev types.ReceiveEvent) interface{} {
			return ev.Conn.Send(ev.Data)
		})
	}

	a := &application{
		file:     f,
		server:   s,
		app:      dispatch.New(s.Container(), s.Config().Settings, logger).SetBasePath(f.BasePath),
		registry: prometheus.NewRegistry(),
		recorder: metrics.NewRecorder(),
	}
	if err := a.routes(); err != nil {
		return nil, err
	}
	a.app.After(a.recorder.Middleware())
	a.app.Attach(s.Bus())
	return a, nil
}

func writeJSON(res *types.Response, status int, v interface{}) (*types.Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	res.WithStatus(status).WithHeader(types.HeaderContentType, "application/json; charset=utf-8").SetBody(data)
	return res, nil
}

func (a *application) routes() error {
	name := a.server.Config().Name
	route, err := a.app.Get("/", func(req *types.Request, res *types.Response) (*types.Response, error) {
		_, err := res.WriteString("hive " + name)
		return res, err
	})
	if err != nil {
		return err
	}
	route.SetName("home")

	if route, err = a.app.Get("/health", func(req *types.Request, res *types.Response) (*types.Response, error) {
		return writeJSON(res, http.StatusOK, map[string]interface{}{"status": "ok", "running": a.server.IsStart()})
	}); err != nil {
		return err
	}
	route.SetName("health")

	if route, err = a.app.Get("/stats", func(req *types.Request, res *types.Response) (*types.Response, error) {
		m := a.server.Metrics()
		if m == nil {
			return writeJSON(res, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		}
		return writeJSON(res, http.StatusOK, m.Get())
	}); err != nil {
		return err
	}
	route.SetName("stats")

	if route, err = a.app.Get("/processes", func(req *types.Request, res *types.Response) (*types.Response, error) {
		out := make(map[string]interface{})
		for _, n := range a.server.Processes().Names() {
			stats, err := a.server.Processes().Stats(n)
			if err != nil {
				out[n] = map[string]string{"error": err.Error()}
				continue
			}
			out[n] = stats
		}
		return writeJSON(res, http.StatusOK, out)
	}); err != nil {
		return err
	}
	route.SetName("processes")

	if route, err = a.app.Post("/tasks/:name", func(req *types.Request, res *types.Response) (*types.Response, error) {
		id, err := a.server.Async(req.Context(), task.Class{Name: req.Param("name"), Data: string(req.Body())})
		if err != nil {
			return nil, err
		}
		return writeJSON(res, http.StatusAccepted, map[string]string{"taskId": strconv.FormatInt(id, 10)})
	}); err != nil {
		return err
	}
	route.SetName("task")

	if route, err = a.app.Get("/metrics", metrics.Handler(a.registry)); err != nil {
		return err
	}
	route.SetName("metrics")
	return nil
}
