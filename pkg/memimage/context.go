package memimage

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context extends context.Context with the image-scoped logger a
// caller's own instrumentation (inside a txn.View.Script callback, for
// instance) should log through, so its messages carry the same
// image_id/run_id fields Image's own Open/Save logging does.
//
// Context is immutable after creation and safe for concurrent use.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with image and run
	// context. Never returns nil — defaults to slog.Default() if not
	// configured.
	Logger() *slog.Logger

	// ImageID returns the identifier of the image this context belongs
	// to.
	ImageID() string

	// RunID returns the identifier of the operation this context was
	// created for — a transaction save, a replay, a caller-defined unit
	// of work.
	RunID() string
}

type operationContext struct {
	context.Context

	logger  *slog.Logger
	imageID string
	runID   string
}

func (c *operationContext) Logger() *slog.Logger { return c.logger }
func (c *operationContext) ImageID() string      { return c.imageID }
func (c *operationContext) RunID() string        { return c.runID }

// ContextOption configures a Context.
type ContextOption func(*operationContext)

// WithContextLogger sets the base logger for the context, before
// image_id/run_id enrichment is applied.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *operationContext) { c.logger = logger }
}

// WithContextRunID sets the run identifier carried by the context. If
// not set, a UUID is generated.
func WithContextRunID(id string) ContextOption {
	return func(c *operationContext) { c.runID = id }
}

// NewContext creates an operation context scoped to img from a standard
// context.Context.
//
// Example:
//
//	ctx := memimage.NewContext(context.Background(), img,
//	    memimage.WithContextRunID("backfill-42"))
//	tx, _ := img.Begin()
//	view := tx.Root()
//	ctx.Logger().Info("starting backfill")
func NewContext(ctx context.Context, img *Image, opts ...ContextOption) Context {
	oc := &operationContext{
		Context: ctx,
		logger:  slog.Default(),
		imageID: img.ID(),
		runID:   uuid.New().String(),
	}
	for _, opt := range opts {
		opt(oc)
	}
	oc.logger = oc.logger.With(
		slog.String("image_id", oc.imageID),
		slog.String("run_id", oc.runID),
	)
	return oc
}
