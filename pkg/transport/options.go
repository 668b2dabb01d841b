package transport

import (
	"net"
	"time"

	"github.com/rs/zerolog"

	"posewire/pkg/protocol"
)

const (
	DefaultSendHz      = 60
	DefaultDialTimeout = 5 * time.Second
)

type options struct {
	bankSize     int
	logger       zerolog.Logger
	errorHandler func(error)
	onOpen       func(net.Addr)
	onClose      func(net.Addr, error)
	listener     net.Listener

	hz          int
	dialTimeout time.Duration
	frameLimit  uint64
}

// Option configures an Acceptor or a Sender. Options that do not apply to
// the receiving type are ignored.
type Option func(*options)

func buildOptions(opts []Option) options {
	o := options{
		bankSize:    protocol.DefaultBankSize,
		logger:      zerolog.Nop(),
		hz:          DefaultSendHz,
		dialTimeout: DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithBankSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bankSize = n
		}
	}
}

// WithListener makes an Acceptor serve ln instead of binding its address.
func WithListener(ln net.Listener) Option {
	return func(o *options) {
		o.listener = ln
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithErrorHandler is called with every connection that ended in an error.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.errorHandler = fn
		}
	}
}

// WithConnHooks observes connection open and close. The close hook receives
// nil for a clean end of stream.
func WithConnHooks(onOpen func(net.Addr), onClose func(net.Addr, error)) Option {
	return func(o *options) {
		o.onOpen = onOpen
		o.onClose = onClose
	}
}

func WithRate(hz int) Option {
	return func(o *options) {
		if hz > 0 {
			o.hz = hz
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithFrameLimit stops the sender after n frames. Zero means no limit.
func WithFrameLimit(n uint64) Option {
	return func(o *options) {
		o.frameLimit = n
	}
}
