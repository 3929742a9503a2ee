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
	"github.com/rulego/hive/api/types"
)

// Payload is what a task worker receives: an Object, a Class or a Deferred.
type Payload interface {
	payload()
}

// Object carries a task instance.
type Object struct {
	Task types.Task
}

// Class names a task registered in a Registry. Data is handed to the
// factory and then to Run.
type Class struct {
	Name string
	Data interface{}
}

// Deferred is a plain callable. It gets no finish callback and its failures
// go to the fault sink.
type Deferred struct {
	Fn func(engine types.Engine, taskID int64, fromWorkerID int) error
}

func (Object) payload()   {}
func (Class) payload()    {}
func (Deferred) payload() {}
