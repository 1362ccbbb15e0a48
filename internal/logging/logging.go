package logging

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ContextKey defines the context key type.
type ContextKey string

// ContextIDKey holds the key of the context ID.
const ContextIDKey ContextKey = "ctx_id"

// WithContextID returns a copy of ctx holding a new random context ID.
func WithContextID(ctx context.Context) (context.Context, error) {
	ctxID, err := uuid.NewV4()
	if err != nil {
		return ctx, errors.Wrap(err, "new uuid error")
	}
	return context.WithValue(ctx, ContextIDKey, ctxID), nil
}

// ContextID returns the context ID of ctx, or uuid.Nil.
func ContextID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(ContextIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// Entry returns a log entry with the ctx_id field set when ctx holds one.
func Entry(ctx context.Context) *log.Entry {
	if id := ContextID(ctx); id != uuid.Nil {
		return log.WithField(string(ContextIDKey), id)
	}
	return log.NewEntry(log.StandardLogger())
}
