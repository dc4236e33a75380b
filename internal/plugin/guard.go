package plugin

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Guard runs fn and turns any panic into an error, so a single misbehaving
// plugin method can never take down its worker goroutine. Combined with
// the explicit error return every plugin method already has, this gives a
// single "this call failed" signal regardless of which mechanism (panic or
// error return) the plugin used to fail.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// LogFailure logs a plugin method failure with the worker/method identity
// spec.md §4.1/§7 require, and never itself panics.
func LogFailure(log zerolog.Logger, workerName, method string, err error) {
	log.Error().
		Str("worker", workerName).
		Str("method", method).
		Err(err).
		Msg("plugin call failed")
}
