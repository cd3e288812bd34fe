package router

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/clips-runtime/engine"
)

const (
	LoggingRouterName     = "go-logging-router"
	LoggingRouterPriority = 30
)

var logLevels = map[string]zapcore.Level{
	engine.STDOUT: zapcore.InfoLevel,
	engine.STDERR: zapcore.ErrorLevel,
	engine.STDWRN: zapcore.WarnLevel,
}

// LoggingRouter sends engine output to a zap logger, one entry per line.
type LoggingRouter struct {
	*Base
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*strings.Builder
}

// NewLoggingRouter creates a logging router writing to logger.
func NewLoggingRouter(logger *zap.Logger) *LoggingRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingRouter{
		Base:    NewBase(LoggingRouterName, LoggingRouterPriority),
		logger:  logger,
		pending: make(map[string]*strings.Builder),
	}
}

func (r *LoggingRouter) Query(name string) bool {
	_, ok := logLevels[name]
	return ok
}

func (r *LoggingRouter) Write(name, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if text == "\n" {
		r.flush(name)
		return
	}
	buf := r.pending[name]
	if buf == nil {
		buf = &strings.Builder{}
		r.pending[name] = buf
	}
	buf.WriteString(text)
	if strings.HasSuffix(strings.TrimRight(buf.String(), " "), "\n") {
		r.flush(name)
	}
}

// Flush logs any partial lines still buffered.
func (r *LoggingRouter) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.pending {
		r.flush(name)
	}
}

func (r *LoggingRouter) flush(name string) {
	buf := r.pending[name]
	if buf == nil {
		return
	}
	msg := strings.Trim(buf.String(), "\n")
	buf.Reset()
	if msg == "" {
		return
	}
	r.logger.Log(logLevels[name], msg, zap.String("channel", name))
}
