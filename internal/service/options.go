package service

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type options struct {
	now        func() time.Time
	tokens     func() (string, error)
	bcryptCost int
}

type Option func(*options)

// WithClock overrides the time source. Tests use it to pin "now".
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTokenSource overrides access token generation.
func WithTokenSource(fn func() (string, error)) Option {
	return func(o *options) { o.tokens = fn }
}

func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

func newOptions(opts []Option) options {
	o := options{
		now:        time.Now,
		tokens:     NewAccessToken,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// clock returns the current time in UTC at the precision the stores keep.
func (o options) clock() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}
