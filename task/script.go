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

	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/utils/js"
)

const (
	// ScriptRunFunc is called by Run as run(data, taskId, fromWorkerId).
	ScriptRunFunc = "run"
	// ScriptFinishFunc is called by Finish as finish(result, taskId) when the
	// script defines it.
	ScriptFinishFunc = "finish"
)

var _ types.Task = (*ScriptTask)(nil)

// ScriptTask runs a JavaScript function on the task worker.
type ScriptTask struct {
	*BaseTask
	engine *js.GojaJsEngine
}

// NewScriptTask compiles script, which must define run.
func NewScriptTask(script string, data interface{}, config js.Config) (*ScriptTask, error) {
	engine, err := js.NewGojaJsEngine(script, config)
	if err != nil {
		return nil, err
	}
	return &ScriptTask{BaseTask: NewBaseTask(data), engine: engine}, nil
}

func (t *ScriptTask) Run(ctx context.Context, data interface{}, taskID int64, fromWorkerID int) (interface{}, error) {
	return t.engine.Execute(ScriptRunFunc, data, taskID, fromWorkerID)
}

func (t *ScriptTask) Finish(ctx context.Context, result interface{}, taskID int64) error {
	if !t.engine.HasFunction(ScriptFinishFunc) {
		return nil
	}
	_, err := t.engine.Execute(ScriptFinishFunc, result, taskID)
	return err
}

// ScriptFactory compiles script once and returns a Factory of ScriptTasks
// sharing it.
func ScriptFactory(script string, config js.Config) (Factory, error) {
	engine, err := js.NewGojaJsEngine(script, config)
	if err != nil {
		return nil, err
	}
	return func(data interface{}) (types.Task, error) {
		return &ScriptTask{BaseTask: NewBaseTask(data), engine: engine}, nil
	}, nil
}
