package logs

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// WithRequestID кладёт id запроса в контекст.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}

// With добавляет к логгеру reqid из контекста, если он там есть.
func With(ctx context.Context, l logrus.FieldLogger) logrus.FieldLogger {
	if id := RequestID(ctx); id != "" {
		return l.WithField("reqid", id)
	}
	return l
}
