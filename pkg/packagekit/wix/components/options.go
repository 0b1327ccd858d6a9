package components

import (
	"github.com/google/uuid"
)

const defaultChunkSize = 8192

type options struct {
	newID       func() (uuid.UUID, error)
	chunkSize   int
	concurrency int
}

type Option func(*options)

// WithIDGenerator replaces the random uuid source. Generators must be
// safe for concurrent use, groups are assembled in parallel.
func WithIDGenerator(fn func() (uuid.UUID, error)) Option {
	return func(o *options) {
		o.newID = fn
	}
}

// WithChunkSize sets how many bytes are compared at a time when checking
// whether two files are identical.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithConcurrency limits how many groups are assembled at once. Zero or
// less means no limit.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		newID:     uuid.NewRandom,
		chunkSize: defaultChunkSize,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}
