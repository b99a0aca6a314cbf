package session

import "context"

type sessionContextKey struct{}

// ContextWith stores the resolved session in context.
func ContextWith(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// FromContext extracts the session from context, or nil.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ClaimsFromContext extracts the claims from context. ok is false when no
// session was attached to the request.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	sess := FromContext(ctx)
	if sess == nil {
		return Claims{}, false
	}
	return sess.Claims, true
}
