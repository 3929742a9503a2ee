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
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
name: cli
host: 127.0.0.1
port: 0
workerNum: 1
taskWorkerNum: 1
listeners:
  - name: echo
    host: 127.0.0.1
    port: 0
`

func TestRoutesCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"routes"})
	require.Nil(t, cmd.Execute())
	for _, want := range []string{"home", "/health", "POST", "/tasks/:name", "/metrics"} {
		assert.Contains(t, out.String(), want)
	}
}

func TestApplication(t *testing.T) {
	f, err := config.Parse([]byte(testConfig))
	require.Nil(t, err)
	a, err := newApplication(f, types.DiscardLogger())
	require.Nil(t, err)

	req, err := types.NewRequest("GET", "/stats", nil)
	require.Nil(t, err)
	res, err := a.app.Handle(req)
	require.Nil(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status())

	require.Nil(t, a.server.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}()
	base := "http://" + a.server.Engine().Addr().String()

	resp, err := http.Get(base + "/")
	require.Nil(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "hive cli", string(body))

	resp, err = http.Post(base+"/tasks/echo", "text/plain", strings.NewReader("hello"))
	require.Nil(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, string(body), "taskId")

	resp, err = http.Get(base + "/health")
	require.Nil(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.JSONEq(t, `{"status":"ok","running":true}`, string(body))
}

func TestServe(t *testing.T) {
	f, err := config.Parse([]byte(testConfig))
	require.Nil(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.Nil(t, serve(ctx, f, types.DiscardLogger(), 5*time.Second))
}
