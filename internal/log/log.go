// Package log defines the logger used across the warehouse backend.
package log

// Kv is a helper type for structured logging key-value pairs.
type Kv = map[string]any

// Logger is the interface every component logs through.
type Logger interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)

	WithValues(values Kv) Logger
}

type noop int

// Noop logger doesn't log anything.
const Noop = noop(0)

var _ Logger = Noop

func (n noop) Infof(format string, args ...any)    {}
func (n noop) Warningf(format string, args ...any) {}
func (n noop) Errorf(format string, args ...any)   {}
func (n noop) Debugf(format string, args ...any)   {}
func (n noop) WithValues(_ Kv) Logger              { return n }
