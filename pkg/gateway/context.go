package gateway

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const clientIDKey ctxKey = "clientID"

func withClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

func clientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(clientIDKey).(string); ok {
		return value
	}
	return ""
}

// requestLogger tags logger with the calling client, if any
func requestLogger(ctx context.Context, logger zerolog.Logger, method string) zerolog.Logger {
	l := logger.With().Str("method", method)
	if id := clientIDFromContext(ctx); id != "" {
		l = l.Str("clientId", id)
	}
	return l.Logger()
}
