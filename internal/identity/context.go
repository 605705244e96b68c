package identity

import "context"

type ctxKey string

const callerKey ctxKey = "waylio.caller"

// Caller is the authenticated principal of a request.
type Caller struct {
	UserID string
	Email  string
	Role   Role
}

// HasRole reports whether the caller holds one of roles.
func (c Caller) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// WithCaller stores the caller in context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromContext extracts the caller if present.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok && c.UserID != ""
}
