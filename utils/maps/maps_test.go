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

package maps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type portOptions struct {
	MaxConn      int           `mapstructure:"max_conn"`
	OpenEOFCheck bool          `mapstructure:"open_eof_check"`
	PackageEOF   string        `mapstructure:"package_eof"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

func TestMap2Struct(t *testing.T) {
	m := map[string]interface{}{
		"max_conn":       float64(5),
		"open_eof_check": "true",
		"package_eof":    "\r\n",
		"read_timeout":   "5s",
	}
	var opts portOptions
	err := Map2Struct(m, &opts)
	assert.Nil(t, err)
	assert.Equal(t, 5, opts.MaxConn)
	assert.True(t, opts.OpenEOFCheck)
	assert.Equal(t, "\r\n", opts.PackageEOF)
	assert.Equal(t, 5*time.Second, opts.ReadTimeout)

	err = Map2Struct(map[string]interface{}{"read_timeout": "5invalid"}, &opts)
	assert.NotNil(t, err)

	// non-pointer output
	var nonPointer portOptions
	err = Map2Struct(m, nonPointer)
	assert.NotNil(t, err)
}

func TestGet(t *testing.T) {
	m := map[string]interface{}{
		"settings": map[string]interface{}{
			"outputBuffering": "prepend",
		},
	}
	v, ok := Get(m, "settings.outputBuffering")
	assert.True(t, ok)
	assert.Equal(t, "prepend", v)

	_, ok = Get(m, "settings.missing")
	assert.False(t, ok)
	_, ok = Get(m, "settings.outputBuffering.deeper")
	assert.False(t, ok)
}
