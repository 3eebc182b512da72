package sink

import (
	"context"

	"ethereumSource/internal/model"
)

// Sink receives every record a connector forwards. transport carries
// transport-level provenance and is always nil for records produced by this module.
type Sink interface {
	OnEvent(ctx context.Context, record model.Record, transport []string) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, record model.Record, transport []string) error

func (f Func) OnEvent(ctx context.Context, record model.Record, transport []string) error {
	return f(ctx, record, transport)
}
