package embedder

import (
	"context"
	"time"
)

type Option func(*Options)

type Options struct {
	ApiKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
	Context   context.Context
}

func WithApiKey(apiKey string) Option {
	return func(o *Options) {
		o.ApiKey = apiKey
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithDimension(dim int) Option {
	return func(o *Options) {
		o.Dimension = dim
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Dimension: 3072,
		Timeout:   30 * time.Second,
		Context:   context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
