package server

import "context"

// Server is the boundary that exposes the pipeline over a transport. Run
// blocks until the context is cancelled or serving fails.
type Server interface {
	Run(ctx context.Context) error
}

type Option func(*Options)

type Options struct {
	Address string
	Context context.Context
}

func WithAddress(address string) Option {
	return func(o *Options) {
		o.Address = address
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Address: ":8001",
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
