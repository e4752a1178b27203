// Package safego provides a panic-recovering goroutine launcher for
// fire-and-forget background work: the async audit write path, shipper
// deliveries, and anything else where an unrecovered panic would silently
// kill the goroutine forever.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go launches fn in a new goroutine. A panic in fn is recovered and logged
// with its stack instead of crashing the process.
func Go(fn func()) {
	GoNamed("", fn)
}

// GoNamed is Go with a task label included in the panic log, so recovered
// panics from different background paths are distinguishable.
func GoNamed(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine",
					"task", name,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
