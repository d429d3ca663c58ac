// Package service implements the ticketing core: the reservation
// coordinator with its sweeper and credential issuer, the check-in
// validator, the occupancy view and the payment and cancellation flows
// that move reservations through their lifecycle.
//
// Every write that touches more than one row runs in a single database
// transaction owned by the service.  Side effects such as broker messages,
// cache invalidation and realtime pushes happen after commit and never
// change the outcome of the call.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/model"
)

const tracerName = "github.com/iliyamo/event-ticketing/internal/service"

// Publisher sends a message to a named queue.  *queue.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, queue string, v any) error
}

// OccupancyPusher pushes occupancy snapshots to live dashboards.
// *realtime.Broadcaster satisfies it.
type OccupancyPusher interface {
	PublishOccupancy(ctx context.Context, occ model.Occupancy) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

type nopPusher struct{}

func (nopPusher) PublishOccupancy(context.Context, model.Occupancy) error { return nil }

func utcNow() time.Time { return time.Now().UTC() }

func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// endSpan records err on the span before ending it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Reason(err))
	}
	span.End()
}

// bestEffort runs a post-commit side effect on a context detached from
// the request's cancellation and logs its failure.
func bestEffort(ctx context.Context, log *zap.Logger, target string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		metrics.SideEffectFailed(target)
		log.Warn("post-commit side effect failed", zap.String("target", target), zap.Error(err))
	}
}
