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

// Package runtime captures stack traces and turns panics into errors at
// failure boundaries.
package runtime

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/rulego/hive/api/types"
)

// Stack returns the call stack of its caller's caller, one frame per line.
func Stack() string {
	var pc = make([]uintptr, 32)
	n := runtime.Callers(3, pc)

	var build strings.Builder
	for i := 0; i < n; i++ {
		f := runtime.FuncForPC(pc[i] - 1)
		if f == nil {
			continue
		}
		file, line := f.FileLine(pc[i] - 1)
		build.WriteString(fmt.Sprintf(" %s:%d \n", file, line))
	}
	return build.String()
}

// Call runs fn and converts a panic into a *types.RuntimeFault.
func Call(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &types.RuntimeFault{Value: v, Stack: Stack()}
		}
	}()
	return fn()
}
