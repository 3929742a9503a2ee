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

// Option is a function type that modifies the Config.
type Option func(*Config) error

// WithName sets the application name.
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithAddr sets host and port of the main listener.
func WithAddr(host string, port int) Option {
	return func(c *Config) error {
		c.Host = host
		c.Port = port
		return nil
	}
}

// WithServerType sets the main listener protocol.
func WithServerType(serverType ServerType) Option {
	return func(c *Config) error {
		c.ServerType = serverType
		return nil
	}
}

// WithSockType sets the transport of a TypeServer main listener.
func WithSockType(sockType string) Option {
	return func(c *Config) error {
		c.SockType = sockType
		return nil
	}
}

// WithWorkerNum sets the number of standard and task workers.
func WithWorkerNum(workerNum, taskWorkerNum int) Option {
	return func(c *Config) error {
		c.WorkerNum = workerNum
		c.TaskWorkerNum = taskWorkerNum
		return nil
	}
}

// WithBasePath sets the effective base path of main listener requests.
func WithBasePath(basePath string) Option {
	return func(c *Config) error {
		c.BasePath = basePath
		return nil
	}
}

// WithSettings replaces the application settings.
func WithSettings(settings Settings) Option {
	return func(c *Config) error {
		c.Settings = settings
		return nil
	}
}

// WithEngineOptions sets engine options of the main listener.
func WithEngineOptions(options Configuration) Option {
	return func(c *Config) error {
		c.EngineOptions = options
		return nil
	}
}

// WithLogger is an option that sets the logger of the Config.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithFaultSink sets the global fault sink.
func WithFaultSink(onFault func(err error)) Option {
	return func(c *Config) error {
		c.OnFault = onFault
		return nil
	}
}
