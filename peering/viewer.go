package peering

import "context"

// Viewer is the identity on whose behalf an operation runs.
type Viewer struct {
	UserID *int64
}

// Anonymous returns a viewer that is not logged in.
func Anonymous() Viewer {
	return Viewer{}
}

// UserViewer returns a logged-in viewer.
func UserViewer(userID int64) Viewer {
	return Viewer{UserID: &userID}
}

// LoggedIn reports whether the viewer has an account.
func (v Viewer) LoggedIn() bool {
	return v.UserID != nil
}

// ID returns the viewer's user ID, or zero when anonymous.
func (v Viewer) ID() int64 {
	if v.UserID == nil {
		return 0
	}
	return *v.UserID
}

// Is reports whether the viewer is the given user.
func (v Viewer) Is(userID *int64) bool {
	return v.UserID != nil && userID != nil && *v.UserID == *userID
}

type viewerContextKey struct{}

// WithViewer stores v in ctx.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerContextKey{}, v)
}

// ViewerFromContext returns the viewer stored in ctx, or Anonymous.
func ViewerFromContext(ctx context.Context) Viewer {
	v, ok := ctx.Value(viewerContextKey{}).(Viewer)
	if !ok {
		return Anonymous()
	}
	return v
}
