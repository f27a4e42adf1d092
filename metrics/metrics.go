// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics surfaces the sync core's and tx pool's counters to an
// external Prometheus scrape. Per spec §1's Non-goal ("metrics reporting
// beyond counters consumed by an external ticker"), this package only
// creates and increments counters/gauges; it runs no push/export loop of its
// own.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	counters = make(map[string]prometheus.Counter)
	gauges   = make(map[string]prometheus.Gauge)

	// Registry is the process-wide registry an external ticker scrapes.
	Registry = prometheus.NewRegistry()
)

func counter(name string) prometheus.Counter {
	mu.Lock()
	defer mu.Unlock()
	if c, ok := counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: sanitize(name), Help: name})
	Registry.MustRegister(c)
	counters[name] = c
	return c
}

func gauge(name string) prometheus.Gauge {
	mu.Lock()
	defer mu.Unlock()
	if g, ok := gauges[name]; ok {
		return g
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: sanitize(name), Help: name})
	Registry.MustRegister(g)
	gauges[name] = g
	return g
}

// Inc adds delta to the named counter, creating it on first use.
func Inc(name string, delta int) {
	counter(name).Add(float64(delta))
}

// Set assigns the named gauge's value, creating it on first use.
func Set(name string, value float64) {
	gauge(name).Set(value)
}

func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out[i] = c
		} else {
			out[i] = '_'
		}
	}
	return string(out)
}
