// Package logging defines the structured logger shared by the API and worker.
// The variadic args on every method are key-value pairs, e.g.:
//
//	log.Info(ctx, "job queued", "entity_id", entityID, "job_id", jobID)
package logging

import "context"

// Logger is a context-aware, structured logger.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}
