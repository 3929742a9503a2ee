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
	"sync"
	"time"

	"github.com/rulego/hive/api/types"
)

// Func is the body of an in-process process. It reads what the server
// writes from in and publishes output on out until ctx is done.
type Func func(ctx context.Context, args []string, in <-chan []byte, out chan<- []byte) error

// FuncProcess runs a Func on its own goroutine.
type FuncProcess struct {
	name  string
	args  []string
	async bool
	fn    Func

	in  chan []byte
	out chan []byte

	lock    sync.Mutex
	pending []byte
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Function returns a ProcessClass running fn in-process.
func Function(fn Func) types.ProcessClass {
	return func(name string, args []string, async bool) (types.Process, error) {
		return &FuncProcess{
			name:  name,
			args:  args,
			async: async,
			fn:    fn,
			in:    make(chan []byte, 64),
			out:   make(chan []byte, 64),
		}, nil
	}
}

func (p *FuncProcess) Name() string {
	return p.name
}

func (p *FuncProcess) Start(ctx context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.done != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		err := p.fn(ctx, p.args, p.in, p.out)
		p.lock.Lock()
		p.err = err
		p.lock.Unlock()
	}()
	return nil
}

// Pid is always 0.
func (p *FuncProcess) Pid() int {
	return 0
}

func (p *FuncProcess) Write(data []byte) (int, error) {
	p.lock.Lock()
	done := p.done
	p.lock.Unlock()
	if done == nil {
		return 0, errNotStarted
	}
	select {
	case <-done:
		return 0, context.Canceled
	default:
	}
	select {
	case p.in <- append([]byte(nil), data...):
		return len(data), nil
	case <-done:
		return 0, context.Canceled
	}
}

func (p *FuncProcess) Read(timeout time.Duration, max int) ([]byte, error) {
	if max <= 0 {
		max = MaxReadSize
	}
	p.lock.Lock()
	if len(p.pending) == 0 {
		p.lock.Unlock()
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case data := <-p.out:
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

// Stop cancels the function and waits for it to return.
func (p *FuncProcess) Stop() error {
	p.lock.Lock()
	cancel, done := p.cancel, p.done
	p.lock.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	p.lock.Lock()
	defer p.lock.Unlock()
	if errors.Is(p.err, context.Canceled) {
		return nil
	}
	return p.err
}
