package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// PrincipalFromContext returns the principal of the request session, zero when absent.
func PrincipalFromContext(ctx context.Context) Principal {
	if sess := SessionFromContext(ctx); sess != nil {
		return sess.Principal()
	}
	return Principal{}
}
