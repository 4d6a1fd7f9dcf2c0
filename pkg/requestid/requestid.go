// Package requestid carries the request correlation id through a context.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the id.
const Header = "X-Request-ID"

// maxLength bounds ids accepted from clients.
const maxLength = 128

type ctxKey struct{}

// With returns a copy of ctx carrying id.
func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// From returns the id stored in ctx, or "".
func From(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// New returns a fresh random id.
func New() string {
	return uuid.NewString()
}

// Accept returns incoming when it is usable as an id, otherwise a fresh one.
func Accept(incoming string) string {
	if incoming == "" || len(incoming) > maxLength {
		return New()
	}
	return incoming
}
