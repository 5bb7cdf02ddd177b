// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// loggerPtr stores the active logger. Accessed atomically so that SetLogger
// can be called concurrently with logging from any worker goroutine.
var loggerPtr atomic.Pointer[zap.Logger]

func init() {
	loggerPtr.Store(zap.NewNop())
}

// SetLogger configures the logger used by the renderer. By default no output
// is produced. Pass nil to restore the silent default.
//
// Debug-mode pipelines log one entry per kernel launch at Debug level and
// kernel faults at Error level.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerPtr.Store(l)
}

// Logger returns the current renderer logger.
func Logger() *zap.Logger {
	return loggerPtr.Load()
}
