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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rulego/hive/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
name: demo
host: 0.0.0.0
port: ${HIVE_TEST_PORT}
serverType: websocket
workerNum: 4
taskWorkerNum: 2
basePath: /api
settings:
  outputBuffering: prepend
  displayErrorDetails: true
engineOptions:
  max_request: 100
listeners:
  - name: tcp
    host: 127.0.0.1
    port: 9502
    sockType: tcp
    options:
      open_eof_check: true
      package_eof: "\r\n"
processes:
  - name: echo
    path: /bin/cat
    async: true
pools:
  - name: db
    driver: mysql
    dsn: root@tcp(127.0.0.1:3306)/test
    max: 5
    affinity: onlyTaskWorker
metrics: 127.0.0.1:9090
`

func TestParse(t *testing.T) {
	t.Setenv("HIVE_TEST_PORT", "9501")
	f, err := Parse([]byte(sample))
	require.Nil(t, err)

	assert.Equal(t, "demo", f.Name)
	assert.Equal(t, "0.0.0.0:9501", f.Addr())
	assert.Equal(t, types.TypeWebSocket, f.ServerType)
	assert.Equal(t, types.SockTCP, f.SockType)
	assert.Equal(t, 4, f.WorkerNum)
	assert.Equal(t, 2, f.TaskWorkerNum)
	assert.Equal(t, "/api", f.BasePath)
	assert.Equal(t, types.OutputBufferingPrepend, f.Settings.OutputBuffering)
	assert.True(t, f.Settings.DisplayErrorDetails)
	// untouched settings keep their defaults
	assert.True(t, f.Settings.AddContentLengthHeader)
	assert.Equal(t, 4096, f.Settings.ResponseChunkSize)
	assert.Equal(t, 100, f.EngineOptions["max_request"])

	require.Len(t, f.Listeners, 1)
	assert.Equal(t, "tcp", f.Listeners[0].Name)
	assert.Equal(t, 9502, f.Listeners[0].Port)
	assert.Equal(t, "\r\n", f.Listeners[0].Options["package_eof"])

	require.Len(t, f.Processes, 1)
	assert.True(t, f.Processes[0].Async)
	require.Len(t, f.Pools, 1)
	assert.Equal(t, types.OnlyTaskWorker, f.Pools[0].Affinity)
	assert.Equal(t, "127.0.0.1:9090", f.Metrics)

	c := types.NewConfig(f.Options()...)
	assert.Equal(t, f.Addr(), c.Addr())
	assert.Equal(t, types.TypeWebSocket, c.ServerType)
	assert.Equal(t, f.Settings, c.Settings)
}

func TestDefaults(t *testing.T) {
	f, err := Parse([]byte("name: bare\n"))
	require.Nil(t, err)
	def := types.NewConfig()
	assert.Equal(t, "bare", f.Name)
	assert.Equal(t, def.Addr(), f.Addr())
	assert.Equal(t, def.ServerType, f.ServerType)
	assert.Equal(t, def.Settings, f.Settings)
	assert.NotNil(t, f.EngineOptions)
}

func TestInvalid(t *testing.T) {
	for name, data := range map[string]string{
		"server type":      "serverType: gopher\n",
		"worker num":       "workerNum: 0\n",
		"duplicate":        "listeners:\n  - name: a\n  - name: a\n",
		"unnamed listener": "listeners:\n  - port: 1\n",
		"process path":     "processes:\n  - name: x\n",
		"pool driver":      "pools:\n  - name: x\n",
		"affinity":         "pools:\n  - name: x\n    driver: mysql\n    affinity: nobody\n",
		"malformed":        "name: [\n",
		"negative tasks":   "taskWorkerNum: -1\n",
	} {
		_, err := Parse([]byte(data))
		assert.NotNil(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hive.yaml")
	require.Nil(t, os.WriteFile(path, []byte("port: 9600\npools:\n  - name: db\n    driver: postgres\n"), 0o644))
	f, err := Load(path)
	require.Nil(t, err)
	assert.Equal(t, 9600, f.Port)
	assert.Equal(t, types.AllWorker, f.Pools[0].Affinity)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotNil(t, err)
}
