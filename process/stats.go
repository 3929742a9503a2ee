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

package process

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats is a resource snapshot of a process.
type Stats struct {
	Pid        int
	RSS        uint64
	CPUPercent float64
	NumThreads int32
}

// Stats reports resource usage of the named process. In-process processes
// report the server's own usage.
func (m *Manager) Stats(name string) (Stats, error) {
	p, ok := m.GetProcessByName(name)
	if !ok {
		return Stats{}, errProcessNotFound(name)
	}
	pid := p.Pid()
	if pid <= 0 {
		pid = os.Getpid()
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Pid: pid}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return stats, err
	}
	stats.RSS = mem.RSS
	if stats.CPUPercent, err = proc.CPUPercent(); err != nil {
		return stats, err
	}
	if stats.NumThreads, err = proc.NumThreads(); err != nil {
		return stats, err
	}
	return stats, nil
}
