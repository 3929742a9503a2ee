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

package types

import (
	"fmt"
	"strings"
)

// Configuration is a loosely typed option map, decoded into typed structs
// with maps.Map2Struct.
type Configuration map[string]interface{}

// ServerType selects the protocol of the main listener.
type ServerType int

const (
	// TypeServer is a raw socket server (tcp/udp/unix).
	TypeServer ServerType = iota + 1
	// TypeHTTP is an HTTP server.
	TypeHTTP
	// TypeWebSocket is an HTTP server that also upgrades websocket connections.
	TypeWebSocket
)

func (t ServerType) String() string {
	switch t {
	case TypeServer:
		return "server"
	case TypeHTTP:
		return "http"
	case TypeWebSocket:
		return "websocket"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseServerType maps a configuration string onto a ServerType.
func ParseServerType(s string) (ServerType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server", "tcp", "socket":
		return TypeServer, nil
	case "", "http":
		return TypeHTTP, nil
	case "websocket", "ws":
		return TypeWebSocket, nil
	default:
		return 0, fmt.Errorf("unknown server type %q", s)
	}
}

// UnmarshalText lets configuration files name the server type.
func (t *ServerType) UnmarshalText(text []byte) error {
	parsed, err := ParseServerType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Settings are the recognized application settings, exposed through the
// container under KeySettings.
type Settings struct {
	// ResponseChunkSize is the number of body bytes written per chunk.
	ResponseChunkSize int `mapstructure:"responseChunkSize" yaml:"responseChunkSize"`
	// OutputBuffering is one of append, prepend or off.
	OutputBuffering string `mapstructure:"outputBuffering" yaml:"outputBuffering"`
	// DisplayErrorDetails renders error details into error responses
	// instead of writing them to the error log.
	DisplayErrorDetails bool `mapstructure:"displayErrorDetails" yaml:"displayErrorDetails"`
	// AddContentLengthHeader computes Content-Length on finalize.
	AddContentLengthHeader bool `mapstructure:"addContentLengthHeader" yaml:"addContentLengthHeader"`
	// RouterCacheFile receives the route manifest once routes are frozen.
	// Empty disables it.
	RouterCacheFile string `mapstructure:"routerCacheFile" yaml:"routerCacheFile"`
	// HandshakeRule is an expr-lang expression evaluated on websocket
	// handshakes, e.g. `cookie.token == "123"`. Empty accepts every
	// well-formed handshake.
	HandshakeRule string `mapstructure:"handshakeRule" yaml:"handshakeRule"`
}

// DefaultSettings returns the settings defaults.
func DefaultSettings() Settings {
	return Settings{
		ResponseChunkSize:      4096,
		OutputBuffering:        OutputBufferingAppend,
		DisplayErrorDetails:    false,
		AddContentLengthHeader: true,
	}
}

// Normalize fills zero values with defaults and canonicalizes the output
// buffering mode.
func (s Settings) Normalize() Settings {
	if s.ResponseChunkSize <= 0 {
		s.ResponseChunkSize = 4096
	}
	switch strings.ToLower(strings.TrimSpace(s.OutputBuffering)) {
	case "", OutputBufferingAppend:
		s.OutputBuffering = OutputBufferingAppend
	case OutputBufferingPrepend:
		s.OutputBuffering = OutputBufferingPrepend
	default:
		// "off", "false", "0" all disable buffering
		s.OutputBuffering = OutputBufferingOff
	}
	if strings.EqualFold(s.RouterCacheFile, "off") || strings.EqualFold(s.RouterCacheFile, "false") {
		s.RouterCacheFile = ""
	}
	return s
}

// Config is the server configuration.
type Config struct {
	// Name is the application name used for worker names.
	Name string `mapstructure:"name" yaml:"name"`
	// Host of the main listener.
	Host string `mapstructure:"host" yaml:"host"`
	// Port of the main listener.
	Port int `mapstructure:"port" yaml:"port"`
	// ServerType selects the main listener protocol.
	ServerType ServerType `mapstructure:"serverType" yaml:"serverType"`
	// SockType is the transport of a TypeServer main listener.
	SockType string `mapstructure:"sockType" yaml:"sockType"`
	// WorkerNum is the number of standard workers.
	WorkerNum int `mapstructure:"workerNum" yaml:"workerNum"`
	// TaskWorkerNum is the number of task workers. Zero disables tasks.
	TaskWorkerNum int `mapstructure:"taskWorkerNum" yaml:"taskWorkerNum"`
	// BasePath is the effective base path of requests on the main listener.
	BasePath string `mapstructure:"basePath" yaml:"basePath"`
	// Settings are the application settings.
	Settings Settings `mapstructure:"settings" yaml:"settings"`
	// EngineOptions are engine specific options for the main listener.
	EngineOptions Configuration `mapstructure:"engineOptions" yaml:"engineOptions"`
	// Logger is the logging interface, defaulting to `DefaultLogger()`.
	Logger Logger `mapstructure:"-" yaml:"-"`
	// OnFault receives uncaught failures of deferred task callables and
	// other errors that have no owner. Defaults to logging with Logger.
	OnFault func(err error) `mapstructure:"-" yaml:"-"`
}

// Addr returns host:port of the main listener.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Fault forwards err to the fault sink.
func (c Config) Fault(err error) {
	if err == nil {
		return
	}
	if c.OnFault != nil {
		c.OnFault(err)
	} else if c.Logger != nil {
		c.Logger.Printf("uncaught fault: %v", err)
	}
}

// NewConfig creates a new Config with default values and applies the provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		Name:          "hive",
		Host:          "127.0.0.1",
		Port:          8080,
		ServerType:    TypeHTTP,
		SockType:      SockTCP,
		WorkerNum:     2,
		TaskWorkerNum: 1,
		Settings:      DefaultSettings(),
		EngineOptions: Configuration{},
		Logger:        DefaultLogger(),
	}

	for _, opt := range opts {
		_ = opt(c)
	}
	c.Settings = c.Settings.Normalize()
	return *c
}
