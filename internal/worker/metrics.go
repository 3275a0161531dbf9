package worker

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/owltrackers/extension/internal/model"
)

const instrumentationName = "github.com/owltrackers/extension/internal/worker"

type instruments struct {
	passes   metric.Int64Counter
	changed  metric.Int64Counter
	added    metric.Int64Counter
	deleted  metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments() (instruments, error) {
	m := otel.Meter(instrumentationName)

	var (
		in  instruments
		err error
	)

	if in.passes, err = m.Int64Counter("worker.passes",
		metric.WithDescription("Refresh passes run")); err != nil {
		return in, fmt.Errorf("creating passes counter: %w", err)
	}
	if in.changed, err = m.Int64Counter("worker.tokens.changed",
		metric.WithDescription("Tokens laid out again")); err != nil {
		return in, fmt.Errorf("creating changed counter: %w", err)
	}
	if in.added, err = m.Int64Counter("worker.overlays.added",
		metric.WithDescription("Overlays added or replaced")); err != nil {
		return in, fmt.Errorf("creating added counter: %w", err)
	}
	if in.deleted, err = m.Int64Counter("worker.overlays.deleted",
		metric.WithDescription("Overlay ids deleted")); err != nil {
		return in, fmt.Errorf("creating deleted counter: %w", err)
	}
	if in.duration, err = m.Float64Histogram("worker.pass.duration",
		metric.WithDescription("Refresh pass duration"),
		metric.WithUnit("ms")); err != nil {
		return in, fmt.Errorf("creating duration histogram: %w", err)
	}
	return in, nil
}

func (in instruments) record(ctx context.Context, pass model.RefreshPass) {
	attrs := metric.WithAttributes(attribute.String("kind", pass.Kind))
	in.passes.Add(ctx, 1, attrs)
	in.changed.Add(ctx, int64(pass.TokensChanged), attrs)
	in.added.Add(ctx, int64(pass.OverlaysAdded), attrs)
	in.deleted.Add(ctx, int64(pass.OverlaysDeleted), attrs)
	in.duration.Record(ctx, pass.DurationMs, attrs)
}
