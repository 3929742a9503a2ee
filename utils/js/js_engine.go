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

// Package js runs JavaScript with goja. Compiled programs are shared and
// each execution borrows a VM from a pool.
package js

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rulego/hive/api/types"
)

// GlobalKey is the name under which global vars are exposed to scripts.
const GlobalKey = "global"

// Config configures a GojaJsEngine.
type Config struct {
	// Vars are set on every VM before the script runs.
	Vars map[string]interface{}
	// Globals are exposed as the global object.
	Globals map[string]interface{}
	// MaxExecutionTime interrupts a script running longer. Zero disables it.
	MaxExecutionTime time.Duration
	Logger           types.Logger
}

// GojaJsEngine goja js engine
type GojaJsEngine struct {
	vmPool   sync.Pool
	config   Config
	jsScript *goja.Program
}

// NewGojaJsEngine compiles jsScript. Compilation errors are returned here,
// not on first execution.
func NewGojaJsEngine(jsScript string, config Config) (*GojaJsEngine, error) {
	program, err := goja.Compile("", jsScript, true)
	if err != nil {
		return nil, err
	}
	config.Logger = types.NewLogger(config.Logger)
	jsEngine := &GojaJsEngine{
		config:   config,
		jsScript: program,
	}
	jsEngine.vmPool = sync.Pool{
		New: func() interface{} {
			return jsEngine.NewVm()
		},
	}
	return jsEngine, nil
}

// NewVm new a js VM
func (g *GojaJsEngine) NewVm() *goja.Runtime {
	vm := goja.New()
	for k, v := range g.config.Vars {
		if err := vm.Set(k, v); err != nil {
			g.config.Logger.Printf("set var %s error: %s", k, err.Error())
		}
	}
	if len(g.config.Globals) != 0 {
		if err := vm.Set(GlobalKey, g.config.Globals); err != nil {
			g.config.Logger.Printf("set global properties error: %s", err.Error())
		}
	}

	timer := g.startTimeout(vm)
	_, err := vm.RunProgram(g.jsScript)
	g.stopTimeout(vm, timer)

	if err != nil {
		g.config.Logger.Printf("js vm error: %s", err.Error())
	}
	return vm
}

// Execute calls functionName with argumentList and exports its result.
func (g *GojaJsEngine) Execute(functionName string, argumentList ...interface{}) (out interface{}, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%s", caught)
		}
	}()

	vm := g.vmPool.Get().(*goja.Runtime)
	defer g.vmPool.Put(vm)

	timer := g.startTimeout(vm)
	defer g.stopTimeout(vm, timer)

	f, ok := goja.AssertFunction(vm.Get(functionName))
	if !ok {
		return nil, errors.New(functionName + " is not a function")
	}

	var params []goja.Value
	if len(argumentList) > 0 {
		params = make([]goja.Value, len(argumentList))
		for i, v := range argumentList {
			params[i] = vm.ToValue(v)
		}
	}

	res, err := f(goja.Undefined(), params...)
	if err != nil {
		return nil, err
	}
	return res.Export(), nil
}

// HasFunction reports whether the script defines functionName.
func (g *GojaJsEngine) HasFunction(functionName string) bool {
	vm := g.vmPool.Get().(*goja.Runtime)
	defer g.vmPool.Put(vm)
	_, ok := goja.AssertFunction(vm.Get(functionName))
	return ok
}

// startTimeout interrupts vm after MaxExecutionTime. It returns nil when no
// limit is configured.
func (g *GojaJsEngine) startTimeout(vm *goja.Runtime) *time.Timer {
	if g.config.MaxExecutionTime <= 0 {
		return nil
	}
	return time.AfterFunc(g.config.MaxExecutionTime, func() {
		vm.Interrupt("execution timeout")
	})
}

func (g *GojaJsEngine) stopTimeout(vm *goja.Runtime, timer *time.Timer) {
	if timer != nil {
		timer.Stop()
		vm.ClearInterrupt()
	}
}
