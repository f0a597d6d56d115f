package auth

import "context"

// Subject identifies the authenticated caller of a request.
type Subject struct {
	AccountID string
	Audience  string
}

type subjectContextKey struct{}

var defaultSubjectContextKey = subjectContextKey{}

// WithSubject stores the authenticated subject on the request context.
func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, defaultSubjectContextKey, s)
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(defaultSubjectContextKey).(Subject)
	return s, ok
}
