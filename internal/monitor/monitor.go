// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package monitor counts filesystem operations and their outcomes, and
// optionally serves them to prometheus scrapers.
package monitor

import (
	"fmt"
	"net/http"
	"syscall"

	"github.com/appendfs/appendfs/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	opsCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appendfs_fs_ops_total",
			Help: "Filesystem operations served, by operation.",
		},
		[]string{"op"},
	)

	errorsCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appendfs_fs_errors_total",
			Help: "Filesystem operations that failed, by operation and errno.",
		},
		[]string{"op", "errno"},
	)
)

// RecordOp counts one completed operation. errno is zero on success.
func RecordOp(op string, errno syscall.Errno) {
	opsCount.WithLabelValues(op).Inc()
	if errno != 0 {
		errorsCount.WithLabelValues(op, errno.Error()).Inc()
	}
}

// Serve exposes /metrics on localhost at the given port, in the
// background. Errors are logged, not returned; metrics are best-effort.
func Serve(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		addr := fmt.Sprintf("localhost:%d", port)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("metrics server: %v", err)
		}
	}()
}
