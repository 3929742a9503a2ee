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

package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rulego/hive/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upper echoes every write back upper-cased.
func upper(ctx context.Context, args []string, in <-chan []byte, out chan<- []byte) error {
	for {
		select {
		case data := <-in:
			out <- []byte(strings.ToUpper(string(data)))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func newTestManager(running *bool) *Manager {
	return NewManager(func() bool { return *running }, types.DiscardLogger())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "098f6bcd4621d373cade4e832627b4f6", Key("test"))
	assert.Equal(t, Key("a"), Key("a"))
	assert.NotEqual(t, Key("a"), Key("b"))
}

func TestAddProcessDuplicate(t *testing.T) {
	running := false
	m := newTestManager(&running)
	require.Nil(t, m.AddProcess("x", Function(upper), nil, false))
	first, ok := m.GetProcessByName("x")
	require.True(t, ok)

	err := m.AddProcess("x", Function(upper), []string{"other"}, true)
	assert.True(t, errors.Is(err, types.ErrProcessExists))

	p, ok := m.GetProcessByName("x")
	assert.True(t, ok)
	assert.Same(t, first, p)
	assert.Equal(t, []string{"x"}, m.Names())
}

func TestAddProcessWhileRunning(t *testing.T) {
	running := true
	m := newTestManager(&running)
	err := m.AddProcess("x", Function(upper), nil, false)
	assert.Equal(t, types.ErrServerRunning, err)
	_, ok := m.GetProcessByName("x")
	assert.False(t, ok)

	assert.NotNil(t, newTestManager(new(bool)).AddProcess("nil", nil, nil, false))
}

func TestProcessNotFound(t *testing.T) {
	m := newTestManager(new(bool))
	_, err := m.WriteByProcessName("missing", []byte("a"))
	assert.True(t, errors.Is(err, types.ErrProcessNotFound))
	_, err = m.ReadByProcessName("missing", 0)
	assert.True(t, errors.Is(err, types.ErrProcessNotFound))
	assert.False(t, m.Reboot("missing"))
	_, err = m.Stats("missing")
	assert.True(t, errors.Is(err, types.ErrProcessNotFound))
}

func TestFuncProcess(t *testing.T) {
	m := newTestManager(new(bool))
	require.Nil(t, m.AddProcess("upper", Function(upper), nil, true))
	require.Nil(t, m.StartAll(context.Background()))
	defer func() {
		assert.Nil(t, m.StopAll())
	}()

	n, err := m.WriteByProcessName("upper", []byte("hello"))
	require.Nil(t, err)
	assert.Equal(t, 5, n)
	data, err := m.ReadByProcessName("upper", time.Second)
	require.Nil(t, err)
	assert.Equal(t, "HELLO", string(data))

	// nothing pending
	data, err = m.ReadByProcessName("upper", 20*time.Millisecond)
	assert.Nil(t, err)
	assert.Nil(t, data)

	p, _ := m.GetProcessByName("upper")
	assert.Equal(t, 0, p.Pid())
	_, ok := m.GetProcessByPid(0)
	assert.False(t, ok)
}

func TestFuncProcessPartialRead(t *testing.T) {
	p, err := Function(upper)("upper", nil, false)
	require.Nil(t, err)
	require.Nil(t, p.Start(context.Background()))
	defer p.Stop()

	_, err = p.Write([]byte("abcdef"))
	require.Nil(t, err)
	data, err := p.Read(time.Second, 4)
	require.Nil(t, err)
	assert.Equal(t, "ABCD", string(data))
	data, err = p.Read(time.Second, 4)
	require.Nil(t, err)
	assert.Equal(t, "EF", string(data))
}

func TestRebootFuncProcess(t *testing.T) {
	m := newTestManager(new(bool))
	require.Nil(t, m.AddProcess("upper", Function(upper), nil, false))
	require.Nil(t, m.StartAll(context.Background()))
	assert.True(t, m.Reboot("upper"))

	p, _ := m.GetProcessByName("upper")
	_, err := p.Write([]byte("late"))
	assert.NotNil(t, err)
}

func requireCat(t *testing.T) string {
	if runtime.GOOS == "windows" {
		t.Skip("cat is not available")
	}
	path, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat is not available")
	}
	return path
}

func TestExecProcess(t *testing.T) {
	for _, async := range []bool{false, true} {
		cat := requireCat(t)
		m := newTestManager(new(bool))
		require.Nil(t, m.AddProcess("cat", Exec(cat), nil, async))
		require.Nil(t, m.StartAll(context.Background()))

		p, ok := m.GetProcessByName("cat")
		require.True(t, ok)
		pid := p.Pid()
		assert.True(t, pid > 0)
		byPid, ok := m.GetProcessByPid(pid)
		assert.True(t, ok)
		assert.Same(t, p, byPid)

		stats, err := m.Stats("cat")
		require.Nil(t, err)
		assert.Equal(t, pid, stats.Pid)

		_, err = m.WriteByProcessName("cat", []byte("ping"))
		require.Nil(t, err)
		data, err := m.ReadByProcessName("cat", 2*time.Second)
		require.Nil(t, err)
		assert.Equal(t, "ping", string(data))

		data, err = m.ReadByProcessName("cat", 20*time.Millisecond)
		assert.Nil(t, err)
		assert.Nil(t, data)

		assert.Nil(t, m.StopAll())
		_, ok = m.GetProcessByPid(pid)
		assert.False(t, ok)
	}
}

func TestRebootExecProcess(t *testing.T) {
	cat := requireCat(t)
	m := newTestManager(new(bool))
	require.Nil(t, m.AddProcess("cat", Exec(cat), nil, true))
	require.Nil(t, m.StartAll(context.Background()))
	defer m.StopAll()

	p, ok := m.GetProcessByName("cat")
	require.True(t, ok)
	pid := p.Pid()
	_, ok = m.GetProcessByPid(pid)
	require.True(t, ok)

	assert.True(t, m.Reboot("cat"))
	_, ok = m.GetProcessByPid(pid)
	assert.False(t, ok)
	// the process stays registered by name
	_, ok = m.GetProcessByName("cat")
	assert.True(t, ok)
}

func TestExecProcessMissingBinary(t *testing.T) {
	m := newTestManager(new(bool))
	err := m.AddProcess("missing", Exec("definitely-not-a-binary-"+Key("x")), nil, false)
	assert.NotNil(t, err)
	_, ok := m.GetProcessByName("missing")
	assert.False(t, ok)
}

func TestStatsSelf(t *testing.T) {
	m := newTestManager(new(bool))
	require.Nil(t, m.AddProcess("self", Function(upper), nil, false))
	stats, err := m.Stats("self")
	require.Nil(t, err)
	assert.Equal(t, os.Getpid(), stats.Pid)
}
