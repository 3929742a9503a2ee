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
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rulego/hive/api/types"
	"github.com/shirou/gopsutil/v3/process"
)

var errNotStarted = errors.New("process not started")

// stopGrace is how long a command may take to exit on its own after its
// stdin is closed.
const stopGrace = 500 * time.Millisecond

// ExecProcess runs an external command. Writes go to its stdin and reads
// come from its stdout. In async mode stdout is pumped into a queue in the
// background; in sync mode each read waits on the pipe itself.
type ExecProcess struct {
	name  string
	path  string
	args  []string
	async bool

	lock    sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *os.File
	out     chan []byte
	pending []byte
	exited  chan struct{}
}

// Exec returns a ProcessClass running the command at path with the
// registered args.
func Exec(path string) types.ProcessClass {
	return func(name string, args []string, async bool) (types.Process, error) {
		if _, err := exec.LookPath(path); err != nil {
			return nil, err
		}
		return &ExecProcess{name: name, path: path, args: args, async: async}, nil
	}
}

func (p *ExecProcess) Name() string {
	return p.name
}

func (p *ExecProcess) Start(ctx context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	r, w, err := os.Pipe()
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, p.path, p.args...)
	cmd.Stdout = w
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = r.Close()
		_ = w.Close()
		return err
	}
	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return err
	}
	// the child holds its own copy of the write end
	_ = w.Close()
	p.cmd, p.stdin, p.stdout = cmd, stdin, r
	p.exited = make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	if p.async {
		p.out = make(chan []byte, 64)
		go p.pump(r, p.out)
	}
	return nil
}

func (p *ExecProcess) pump(r io.Reader, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, MaxReadSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			return
		}
	}
}

func (p *ExecProcess) Pid() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *ExecProcess) Write(data []byte) (int, error) {
	p.lock.Lock()
	stdin := p.stdin
	p.lock.Unlock()
	if stdin == nil {
		return 0, errNotStarted
	}
	return stdin.Write(data)
}

func (p *ExecProcess) Read(timeout time.Duration, max int) ([]byte, error) {
	p.lock.Lock()
	stdout, out := p.stdout, p.out
	p.lock.Unlock()
	if stdout == nil {
		return nil, errNotStarted
	}
	if max <= 0 || max > MaxReadSize {
		max = MaxReadSize
	}
	if p.async {
		return p.readQueued(out, timeout, max)
	}
	if err := stdout.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, max)
	n, err := stdout.Read(buf)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return nil, nil
	}
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}

func (p *ExecProcess) readQueued(out <-chan []byte, timeout time.Duration, max int) ([]byte, error) {
	p.lock.Lock()
	if len(p.pending) == 0 {
		p.lock.Unlock()
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case data, ok := <-out:
			if !ok {
				return nil, io.EOF
			}
			p.lock.Lock()
			p.pending = data
		case <-timer.C:
			return nil, nil
		}
	}
	defer p.lock.Unlock()
	n := len(p.pending)
	if n > max {
		n = max
	}
	data := p.pending[:n]
	p.pending = p.pending[n:]
	return data, nil
}

// Stop closes stdin and terminates the command.
func (p *ExecProcess) Stop() error {
	p.lock.Lock()
	cmd, stdin, exited := p.cmd, p.stdin, p.exited
	p.lock.Unlock()
	if cmd == nil {
		return nil
	}
	_ = stdin.Close()
	select {
	case <-exited:
		return nil
	case <-time.After(stopGrace):
	}
	proc, err := process.NewProcess(int32(cmd.Process.Pid))
	if err == nil {
		err = proc.Terminate()
	}
	if err != nil {
		select {
		case <-exited:
			return nil
		default:
			return err
		}
	}
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		return cmd.Process.Kill()
	}
	return nil
}
