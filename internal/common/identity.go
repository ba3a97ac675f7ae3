package common

import "context"

type viewerKey struct{}

// Viewer is the authenticated caller of a request.
type Viewer struct {
	UserID string
	Handle string
}

func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFromContext returns the viewer injected by the auth middleware.
func ViewerFromContext(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(viewerKey{}).(Viewer)
	if !ok || v.UserID == "" {
		return Viewer{}, false
	}
	return v, true
}
