package wasmclips

import "go.uber.org/zap"

type options struct {
	memoryLimitPages uint32
	dir              string
	logger           *zap.Logger
}

// Option configures New.
type Option func(*options)

// WithMemoryLimitPages caps guest memory in 64KiB pages. Zero keeps the
// wazero default.
func WithMemoryLimitPages(pages uint32) Option {
	return func(o *options) { o.memoryLimitPages = pages }
}

// WithDir mounts dir as the guest's root directory so load, save and
// batch paths resolve against it.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithLogger sets the logger for guest traps and callback failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}
