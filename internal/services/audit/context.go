package audit

import "context"

// RequestMeta is the client information attached to entries written while
// serving an HTTP request.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type metaKey struct{}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

func withRequestMeta(ctx context.Context, e Entry) Entry {
	meta, ok := ctx.Value(metaKey{}).(RequestMeta)
	if !ok {
		return e
	}
	if e.IPAddress == "" {
		e.IPAddress = meta.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = meta.UserAgent
	}
	return e
}
