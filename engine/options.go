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
	"time"

	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/utils/maps"
)

const (
	defaultReadBuffer   = 64 * 1024
	defaultOutputBuffer = 2 * 1024 * 1024
	defaultPackageEOF   = "\r\n"
	defaultInboxSize    = 1024
	defaultMaxCoroutine = 10000
)

// PortOptions are the per listener engine options.
type PortOptions struct {
	// MaxConn limits concurrently accepted connections. Zero is unlimited.
	MaxConn int `mapstructure:"max_conn"`
	// ReadBuffer is the read chunk size of stream connections.
	ReadBuffer int `mapstructure:"read_buffer"`
	// OutputBuffer is the number of bytes a connection may queue before
	// Send fails and bufferFull fires.
	OutputBuffer int `mapstructure:"output_buffer"`
	// OpenEOFCheck delivers stream data split at PackageEOF.
	OpenEOFCheck bool `mapstructure:"open_eof_check"`
	// PackageEOF terminates packages when OpenEOFCheck is set.
	PackageEOF string `mapstructure:"package_eof"`
	// ReadTimeout closes idle stream connections. Zero disables it.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// OpenHTTPProtocol serves HTTP on an auxiliary stream port.
	OpenHTTPProtocol bool `mapstructure:"open_http_protocol"`
	// OpenWebSocketProtocol serves HTTP and websocket on an auxiliary stream port.
	OpenWebSocketProtocol bool `mapstructure:"open_websocket_protocol"`
}

// Options are the engine wide options, read from the main listener options.
type Options struct {
	PortOptions `mapstructure:",squash"`
	// InboxSize is the queue length of each worker.
	InboxSize int `mapstructure:"inbox_size"`
	// MaxCoroutine bounds the goroutines serving stream connections.
	MaxCoroutine int `mapstructure:"max_coroutine"`
}

// DecodePortOptions decodes an option map and applies defaults.
func DecodePortOptions(configuration types.Configuration) (PortOptions, error) {
	var opts PortOptions
	if err := maps.Map2Struct(configuration, &opts); err != nil {
		return opts, err
	}
	opts.applyDefaults()
	return opts, nil
}

// DecodeOptions decodes the engine options and applies defaults.
func DecodeOptions(configuration types.Configuration) (Options, error) {
	var opts Options
	if err := maps.Map2Struct(configuration, &opts); err != nil {
		return opts, err
	}
	opts.applyDefaults()
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	if opts.MaxCoroutine <= 0 {
		opts.MaxCoroutine = defaultMaxCoroutine
	}
	return opts, nil
}

func (o *PortOptions) applyDefaults() {
	if o.ReadBuffer <= 0 {
		o.ReadBuffer = defaultReadBuffer
	}
	if o.OutputBuffer <= 0 {
		o.OutputBuffer = defaultOutputBuffer
	}
	if o.PackageEOF == "" {
		o.PackageEOF = defaultPackageEOF
	}
}
