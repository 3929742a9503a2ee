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

// Package metrics exports the server counters and request latencies to
// prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/api/types/metrics"
)

const namespace = "hive"

type counter struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(m metrics.ServerMetrics) int64
}

func newCounter(name, help string, valueType prometheus.ValueType, value func(m metrics.ServerMetrics) int64) counter {
	return counter{
		desc:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		valueType: valueType,
		value:     value,
	}
}

// Collector reads a ServerMetrics snapshot on every scrape.
type Collector struct {
	source   *metrics.ServerMetrics
	counters []counter
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over source.
func NewCollector(source *metrics.ServerMetrics) *Collector {
	return &Collector{
		source: source,
		counters: []counter{
			newCounter("connections", "Number of currently open connections", prometheus.GaugeValue,
				func(m metrics.ServerMetrics) int64 { return m.Connections }),
			newCounter("connections_accepted_total", "Total number of accepted connections", prometheus.CounterValue,
				func(m metrics.ServerMetrics) int64 { return m.Accepted }),
			newCounter("requests_total", "Total number of handled requests", prometheus.CounterValue,
				func(m metrics.ServerMetrics) int64 { return m.Requests }),
			newCounter("requests_failed_total", "Number of requests answered with an engine error", prometheus.CounterValue,
				func(m metrics.ServerMetrics) int64 { return m.Failed }),
			newCounter("worker_errors_total", "Number of panics recovered inside workers", prometheus.CounterValue,
				func(m metrics.ServerMetrics) int64 { return m.WorkerErrors }),
			newCounter("tasks_dispatched_total", "Total number of tasks handed to task workers", prometheus.CounterValue,
				func(m metrics.ServerMetrics) int64 { return m.TasksDispatched }),
			newCounter("tasks_finished_total", "Total number of finish notifications delivered", prometheus.CounterValue,
				func(m metrics.ServerMetrics) int64 { return m.TasksFinished }),
		},
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cnt := range c.counters {
		ch <- cnt.desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.Get()
	for _, cnt := range c.counters {
		ch <- prometheus.MustNewConstMetric(cnt.desc, cnt.valueType, float64(cnt.value(snapshot)))
	}
}

// Recorder observes the latency of requests leaving the dispatch pipeline.
type Recorder struct {
	duration *prometheus.HistogramVec

	lock       sync.Mutex
	registered bool
}

// NewRecorder creates a request latency recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency of requests through the dispatch pipeline",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
	}
}

// Middleware returns an after middleware observing the time since the
// request entered the pipeline.
func (r *Recorder) Middleware() types.Middleware {
	return func(req *types.Request, res *types.Response) (*types.Request, *types.Response, error) {
		if start, ok := req.Attribute(types.AttrRequestTime).(time.Time); ok {
			r.duration.WithLabelValues(req.Method(), strconv.Itoa(res.Status())).Observe(time.Since(start).Seconds())
		}
		return req, res, nil
	}
}

// Register registers the collector and the recorder on registerer. Calling
// it again is a no-op.
func Register(registerer prometheus.Registerer, c *Collector, r *Recorder) error {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{c}
	if r != nil {
		r.lock.Lock()
		defer r.lock.Unlock()
		if !r.registered {
			collectors = append(collectors, r.duration)
		}
	}
	for _, col := range collectors {
		if err := registerer.Register(col); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	if r != nil {
		r.registered = true
	}
	return nil
}

// Handler serves the metrics gathered by gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
