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

// Package config loads server configuration files. A file is YAML, decoded
// over the defaults of types.NewConfig:
//
//	name: demo
//	port: 9501
//	serverType: websocket
//	settings:
//	  displayErrorDetails: true
//	listeners:
//	  - name: tcp
//	    port: 9502
//	    sockType: tcp
//	    options:
//	      open_eof_check: true
//	      package_eof: "\r\n"
//
// ${VAR} references are expanded from the environment before parsing.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/utils/maps"
	"gopkg.in/yaml.v3"
)

// Listener is an auxiliary listener port.
type Listener struct {
	Name     string              `mapstructure:"name" yaml:"name"`
	Host     string              `mapstructure:"host" yaml:"host"`
	Port     int                 `mapstructure:"port" yaml:"port"`
	SockType string              `mapstructure:"sockType" yaml:"sockType"`
	Options  types.Configuration `mapstructure:"options" yaml:"options"`
}

// Process is an out-of-band process spawned from an executable.
type Process struct {
	Name  string   `mapstructure:"name" yaml:"name"`
	Path  string   `mapstructure:"path" yaml:"path"`
	Args  []string `mapstructure:"args" yaml:"args"`
	Async bool     `mapstructure:"async" yaml:"async"`
}

// Pool is a database/sql pool materialized on every matching worker.
type Pool struct {
	Name     string         `mapstructure:"name" yaml:"name"`
	Driver   string         `mapstructure:"driver" yaml:"driver"`
	Dsn      string         `mapstructure:"dsn" yaml:"dsn"`
	Min      int            `mapstructure:"min" yaml:"min"`
	Max      int            `mapstructure:"max" yaml:"max"`
	Affinity types.Affinity `mapstructure:"affinity" yaml:"affinity"`
	Ping     bool           `mapstructure:"ping" yaml:"ping"`
}

// File is the content of a configuration file.
type File struct {
	types.Config `mapstructure:",squash" yaml:",inline"`
	Listeners    []Listener `mapstructure:"listeners" yaml:"listeners"`
	Processes    []Process  `mapstructure:"processes" yaml:"processes"`
	Pools        []Pool     `mapstructure:"pools" yaml:"pools"`
	// Metrics is the address of the prometheus endpoint. Empty disables it.
	Metrics string `mapstructure:"metrics" yaml:"metrics"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes data over the defaults.
func Parse(data []byte) (File, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return File{}, err
	}
	f := File{Config: types.NewConfig()}
	if err := maps.Map2Struct(raw, &f); err != nil {
		return File{}, err
	}
	f.Settings = f.Settings.Normalize()
	if f.EngineOptions == nil {
		f.EngineOptions = types.Configuration{}
	}
	for i := range f.Pools {
		if f.Pools[i].Affinity == 0 {
			f.Pools[i].Affinity = types.AllWorker
		}
	}
	return f, f.Validate()
}

// Validate checks the parts of the file that would only fail at start.
func (f File) Validate() error {
	if f.WorkerNum <= 0 {
		return fmt.Errorf("workerNum must be positive, got %d", f.WorkerNum)
	}
	if f.TaskWorkerNum < 0 {
		return fmt.Errorf("taskWorkerNum must not be negative, got %d", f.TaskWorkerNum)
	}
	names := make(map[string]bool)
	for _, l := range f.Listeners {
		if l.Name == "" {
			return errors.New("listener without a name")
		}
		if names[l.Name] {
			return fmt.Errorf("duplicate listener %s", l.Name)
		}
		names[l.Name] = true
	}
	for _, p := range f.Processes {
		if p.Name == "" || p.Path == "" {
			return fmt.Errorf("process %q needs a name and a path", p.Name)
		}
	}
	for _, p := range f.Pools {
		if p.Name == "" || p.Driver == "" {
			return fmt.Errorf("pool %q needs a name and a driver", p.Name)
		}
	}
	return nil
}

// Options returns the file as options for types.NewConfig.
func (f File) Options() []types.Option {
	return []types.Option{
		types.WithName(f.Name),
		types.WithAddr(f.Host, f.Port),
		types.WithServerType(f.ServerType),
		types.WithSockType(f.SockType),
		types.WithWorkerNum(f.WorkerNum, f.TaskWorkerNum),
		types.WithBasePath(f.BasePath),
		types.WithSettings(f.Settings),
		types.WithEngineOptions(f.EngineOptions),
	}
}
