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

package task

import (
	"context"
	"sync"
)

// BaseTask stores data and result. Embed it and implement Run; Finish is a
// no-op unless overridden.
type BaseTask struct {
	lock   sync.RWMutex
	data   interface{}
	result interface{}
	// OnError receives failures of Run and Finish. Nil drops them.
	OnError func(err error)
}

func NewBaseTask(data interface{}) *BaseTask {
	return &BaseTask{data: data}
}

func (t *BaseTask) Data() interface{} {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.data
}

func (t *BaseTask) SetData(data interface{}) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.data = data
}

func (t *BaseTask) Result() interface{} {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.result
}

func (t *BaseTask) SetResult(result interface{}) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.result = result
}

func (t *BaseTask) Finish(ctx context.Context, result interface{}, taskID int64) error {
	return nil
}

func (t *BaseTask) OnException(err error) {
	if t.OnError != nil {
		t.OnError(err)
	}
}
