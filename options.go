package reactor

import "time"

// --- EventLoop options ---

type loopOptions struct {
	pollTimeout time.Duration
	logger      Logger
}

// LoopOption configures an EventLoop constructed via NewEventLoop.
type LoopOption interface {
	applyLoop(*loopOptions)
}

type loopOptionFunc func(*loopOptions)

func (f loopOptionFunc) applyLoop(o *loopOptions) { f(o) }

// WithPollTimeout overrides the default 10 second Poller.Wait timeout used when no
// timer is pending.
func WithPollTimeout(d time.Duration) LoopOption {
	return loopOptionFunc(func(o *loopOptions) { o.pollTimeout = d })
}

// WithLogger installs a Logger for this EventLoop (and, when passed to
// NewTcpServer/NewConnector, for the components they own). Components built
// without this option fall back to the package-level logger set via
// SetLogger.
func WithLogger(logger Logger) interface {
	LoopOption
	ServerOption
	ConnectorOption
} {
	return allOption{logger: logger}
}

type allOption struct {
	logger Logger
}

func (o allOption) applyLoop(c *loopOptions)      { c.logger = o.logger }
func (o allOption) applyServer(c *serverOptions)  { c.logger = o.logger }
func (o allOption) applyConnector(c *connOptions) { c.logger = o.logger }

func resolveLoopOptions(opts []LoopOption) *loopOptions {
	cfg := &loopOptions{
		pollTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyLoop(cfg)
	}
	return cfg
}

// --- TcpServer options ---

type serverOptions struct {
	reusePort bool
	logger    Logger
}

// ServerOption configures a TcpServer constructed via NewTcpServer.
type ServerOption interface {
	applyServer(*serverOptions)
}

type serverOptionFunc func(*serverOptions)

func (f serverOptionFunc) applyServer(o *serverOptions) { f(o) }

// WithReusePort enables SO_REUSEPORT on the listening socket, allowing
// multiple processes/threads to accept on the same address.
func WithReusePort(enabled bool) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.reusePort = enabled })
}

func resolveServerOptions(opts []ServerOption) *serverOptions {
	cfg := &serverOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyServer(cfg)
	}
	return cfg
}

// --- Connector options ---

type connOptions struct {
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
	logger            Logger
}

// ConnectorOption configures a Connector constructed via NewConnector.
type ConnectorOption interface {
	applyConnector(*connOptions)
}

type connectorOptionFunc func(*connOptions)

func (f connectorOptionFunc) applyConnector(o *connOptions) { f(o) }

// WithInitialRetryDelay overrides the default 500ms initial backoff delay.
func WithInitialRetryDelay(d time.Duration) ConnectorOption {
	return connectorOptionFunc(func(o *connOptions) { o.initialRetryDelay = d })
}

// WithMaxRetryDelay overrides the default 30s backoff cap.
func WithMaxRetryDelay(d time.Duration) ConnectorOption {
	return connectorOptionFunc(func(o *connOptions) { o.maxRetryDelay = d })
}

func resolveConnectorOptions(opts []ConnectorOption) *connOptions {
	cfg := &connOptions{
		initialRetryDelay: 500 * time.Millisecond,
		maxRetryDelay:      30 * time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyConnector(cfg)
	}
	return cfg
}
