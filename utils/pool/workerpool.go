/*
 * Copyright 2023 The RuleGo Authors.
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

// Package pool provides a FILO goroutine pool. The engine serves connection
// read loops from it, so short lived connections reuse warm goroutines.
package pool

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

var (
	// ErrNoIdleWorkers is returned by Submit when MaxWorkersCount goroutines are busy.
	ErrNoIdleWorkers = errors.New("no idle workers")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("pool stopped")
)

// WorkerPool serves incoming functions with a bounded set of goroutines.
//
// Goroutines are reused in FILO order: the most recently released one serves
// the next function while it is still hot in CPU cache.
type WorkerPool struct {
	// MaxWorkersCount is the maximum number of goroutines.
	MaxWorkersCount int
	// MaxIdleWorkerDuration is how long an idle goroutine is kept. Default 10s.
	MaxIdleWorkerDuration time.Duration
	// OnPanic receives values recovered from submitted functions. The
	// goroutine survives the panic.
	OnPanic func(v interface{})

	lock         sync.Mutex
	workersCount int
	mustStop     bool
	ready        []*workerChan
	stopCh       chan struct{}

	workerChanPool sync.Pool
	startOnce      sync.Once
}

type workerChan struct {
	lastUseTime time.Time
	ch          chan func()
}

var workerChanCap = func() int {
	// Use blocking workerChan if GOMAXPROCS=1, so Submit hands over to the
	// worker immediately.
	if runtime.GOMAXPROCS(0) == 1 {
		return 0
	}
	return 1
}()

// Start starts the idle cleanup loop. Calling it twice is a no-op.
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		wp.lock.Lock()
		wp.stopCh = make(chan struct{})
		stopCh := wp.stopCh
		wp.lock.Unlock()

		wp.workerChanPool.New = func() interface{} {
			return &workerChan{
				ch: make(chan func(), workerChanCap),
			}
		}

		go func() {
			var scratch []*workerChan
			ticker := time.NewTicker(wp.getMaxIdleWorkerDuration())
			defer ticker.Stop()
			for {
				select {
				case <-stopCh:
					return
				case <-ticker.C:
					wp.clean(&scratch)
				}
			}
		}()
	})
}

// Stop refuses new functions and stops idle goroutines. Busy goroutines
// exit once their function returns.
func (wp *WorkerPool) Stop() {
	wp.lock.Lock()
	if wp.stopCh == nil || wp.mustStop {
		wp.lock.Unlock()
		return
	}
	close(wp.stopCh)
	ready := wp.ready
	wp.ready = nil
	wp.mustStop = true
	wp.lock.Unlock()

	for i := range ready {
		ready[i].ch <- nil
	}
}

// Running reports the number of live goroutines.
func (wp *WorkerPool) Running() int {
	wp.lock.Lock()
	defer wp.lock.Unlock()
	return wp.workersCount
}

// Submit runs fn on a pooled goroutine.
func (wp *WorkerPool) Submit(fn func()) error {
	ch, err := wp.getCh()
	if err != nil {
		return err
	}
	ch.ch <- fn
	return nil
}

func (wp *WorkerPool) getMaxIdleWorkerDuration() time.Duration {
	if wp.MaxIdleWorkerDuration <= 0 {
		return 10 * time.Second
	}
	return wp.MaxIdleWorkerDuration
}

// clean stops goroutines idle for longer than MaxIdleWorkerDuration. ready is
// ordered by lastUseTime, so a binary search finds the cut.
func (wp *WorkerPool) clean(scratch *[]*workerChan) {
	criticalTime := time.Now().Add(-wp.getMaxIdleWorkerDuration())

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready)
	l, r := 0, n-1
	for l <= r {
		mid := (l + r) / 2
		if criticalTime.After(ready[mid].lastUseTime) {
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	i := r
	if i == -1 {
		wp.lock.Unlock()
		return
	}
	*scratch = append((*scratch)[:0], ready[:i+1]...)
	m := copy(ready, ready[i+1:])
	for i = m; i < n; i++ {
		ready[i] = nil
	}
	wp.ready = ready[:m]
	wp.lock.Unlock()

	// notify outside the lock, the send may block
	tmp := *scratch
	for i := range tmp {
		tmp[i].ch <- nil
		tmp[i] = nil
	}
}

func (wp *WorkerPool) getCh() (*workerChan, error) {
	var ch *workerChan
	createWorker := false

	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return nil, ErrPoolStopped
	}
	ready := wp.ready
	n := len(ready) - 1
	if n < 0 {
		if wp.workersCount < wp.MaxWorkersCount {
			createWorker = true
			wp.workersCount++
		}
	} else {
		ch = ready[n]
		ready[n] = nil
		wp.ready = ready[:n]
	}
	wp.lock.Unlock()

	if ch == nil {
		if !createWorker {
			return nil, ErrNoIdleWorkers
		}
		vch := wp.workerChanPool.Get()
		if vch == nil {
			vch = &workerChan{ch: make(chan func(), workerChanCap)}
		}
		ch = vch.(*workerChan)
		go func() {
			wp.workerFunc(ch)
			wp.workerChanPool.Put(vch)
		}()
	}
	return ch, nil
}

func (wp *WorkerPool) release(ch *workerChan) bool {
	ch.lastUseTime = time.Now()
	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return false
	}
	wp.ready = append(wp.ready, ch)
	wp.lock.Unlock()
	return true
}

func (wp *WorkerPool) workerFunc(ch *workerChan) {
	for fn := range ch.ch {
		if fn == nil {
			break
		}
		wp.run(fn)
		if !wp.release(ch) {
			break
		}
	}

	wp.lock.Lock()
	wp.workersCount--
	wp.lock.Unlock()
}

func (wp *WorkerPool) run(fn func()) {
	defer func() {
		if v := recover(); v != nil && wp.OnPanic != nil {
			wp.OnPanic(v)
		}
	}()
	fn()
}
