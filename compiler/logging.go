package compiler

import "github.com/sirupsen/logrus"

// Options carries the optional cross-cutting settings both backends
// accept (spec §3.2): currently just a diagnostic logger. Kept as a
// struct behind functional options so new knobs don't break existing
// call sites, the same shape the teacher uses for its own Options
// structs (internal/apply.Options).
type Options struct {
	Logger *logrus.Entry
}

// Option configures an Options value.
type Option func(*Options)

// WithLogger attaches a leveled logrus.Entry a backend will emit
// Debug/Trace diagnostics to. Callers that want a sub-logger for just
// this translation (e.g. tagged with a request ID) build one with
// logrus.WithField and pass it here.
func WithLogger(l *logrus.Entry) Option {
	return func(o *Options) { o.Logger = l }
}

// ResolveOptions applies opts over the zero value, defaulting Logger to
// logrus.StandardLogger() so callers that pass none still get a usable,
// nil-safe entry (spec §3.2).
func ResolveOptions(opts ...Option) *Options {
	o := &Options{}
	for _, fn := range opts {
		fn(o)
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return o
}
