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
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rulego/hive/api/types"
)

type timerJob struct {
	engine *Engine
	worker *Worker
	id     atomic.Int64
}

func (j *timerJob) Run() {
	e, w := j.engine, j.worker
	id := int(j.id.Load())
	_ = w.postAsync(func() {
		e.fire(types.EventTimer, types.TimerEvent{Engine: e, Worker: w, TimerID: id})
	})
}

// AddTimer fires the timer event on workerID on every activation of spec, a
// cron expression with a leading seconds field ("*/10 * * * * *") or a
// descriptor such as "@every 1s".
func (e *Engine) AddTimer(spec string, workerID int) (int, error) {
	w, err := e.Worker(workerID)
	if err != nil {
		return 0, err
	}
	job := &timerJob{engine: e, worker: w}
	entryID, err := e.cron.AddJob(spec, job)
	if err != nil {
		return 0, err
	}
	job.id.Store(int64(entryID))
	return int(entryID), nil
}

func (e *Engine) ClearTimer(id int) {
	e.cron.Remove(cron.EntryID(id))
}
