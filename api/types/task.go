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

package types

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Task is a unit of work executed on a task worker and finished on the
// worker that submitted it.
type Task interface {
	// Run executes on the task worker. A non-nil return becomes the result.
	Run(ctx context.Context, data interface{}, taskID int64, fromWorkerID int) (interface{}, error)
	// Finish executes on the origin worker with the attached result.
	Finish(ctx context.Context, result interface{}, taskID int64) error
	// OnException receives failures of Run and Finish, panics included.
	OnException(err error)
	Data() interface{}
	Result() interface{}
	SetResult(result interface{})
}

// Affinity selects which workers materialize a pool.
type Affinity int

const (
	OnlyWorker Affinity = iota + 1
	OnlyTaskWorker
	AllWorker
)

// Match reports whether a worker of the given role matches a.
func (a Affinity) Match(isTaskWorker bool) bool {
	switch a {
	case OnlyWorker:
		return !isTaskWorker
	case OnlyTaskWorker:
		return isTaskWorker
	case AllWorker:
		return true
	}
	return false
}

func (a Affinity) String() string {
	switch a {
	case OnlyWorker:
		return "onlyWorker"
	case OnlyTaskWorker:
		return "onlyTaskWorker"
	case AllWorker:
		return "allWorker"
	}
	return "unknown"
}

// UnmarshalText accepts the names returned by String.
func (a *Affinity) UnmarshalText(text []byte) error {
	switch strings.TrimSpace(string(text)) {
	case "onlyWorker", "worker":
		*a = OnlyWorker
	case "onlyTaskWorker", "taskWorker":
		*a = OnlyTaskWorker
	case "allWorker", "all":
		*a = AllWorker
	default:
		return fmt.Errorf("unknown affinity %q", text)
	}
	return nil
}

// Pool is a worker-local resource pool.
type Pool interface {
	Close() error
}

// PoolClass constructs pools. key is the per-worker fingerprint.
type PoolClass interface {
	Name() string
	NewPool(min, max int, key string) (Pool, error)
}

// Process is an out-of-band process supervised by the process manager.
type Process interface {
	Name() string
	Start(ctx context.Context) error
	// Pid is the OS process id, or 0 for in-process implementations.
	Pid() int
	Write(data []byte) (int, error)
	// Read waits up to timeout for at most max bytes. A timeout returns nil, nil.
	Read(timeout time.Duration, max int) ([]byte, error)
	Stop() error
}

// ProcessClass constructs a Process.
type ProcessClass func(name string, args []string, async bool) (Process, error)
