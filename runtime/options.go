package runtime

import (
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/router"
)

// Names and priority of the routers installed by the stream options.
// They sit below the error and logging routers.
const (
	StdoutRouterName = "go-stdout"
	StderrRouterName = "go-stderr"
	StdinRouterName  = "go-stdin"

	StreamRouterPriority = 20
)

type options struct {
	logger         *zap.Logger
	loggingRouter  bool
	errorPriority  int
	stdout, stderr io.Writer
	stdin          io.Reader
}

// Option configures an Environment.
type Option func(*options)

// WithLogger scopes a logger to the environment.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLoggingRouter installs a router that sends stdout, stderr and
// stdwrn to the environment logger.
func WithLoggingRouter() Option {
	return func(o *options) { o.loggingRouter = true }
}

// WithErrorRouterPriority overrides the error router priority.
func WithErrorRouterPriority(p int) Option {
	return func(o *options) { o.errorPriority = p }
}

// WithStdout routes stdout and stdwrn to w.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithStderr routes stderr to w.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// WithStdin serves stdin from r.
func WithStdin(r io.Reader) Option {
	return func(o *options) { o.stdin = r }
}

func (o *options) routers() []router.Router {
	var out []router.Router
	if o.stdout != nil {
		out = append(out, router.NewWriterRouter(StdoutRouterName, StreamRouterPriority, o.stdout, engine.STDOUT, engine.STDWRN))
	}
	if o.stderr != nil {
		out = append(out, router.NewWriterRouter(StderrRouterName, StreamRouterPriority, o.stderr, engine.STDERR))
	}
	if o.stdin != nil {
		out = append(out, router.NewReaderRouter(StdinRouterName, StreamRouterPriority, o.stdin))
	}
	return out
}
