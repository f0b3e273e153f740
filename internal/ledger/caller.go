package ledger

import "context"

type callerKey struct{}

// WithCaller attaches the calling wallet address to ctx.
func WithCaller(ctx context.Context, addr Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// CallerFrom returns the wallet address attached by WithCaller.
func CallerFrom(ctx context.Context) (Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(Address)
	return addr, ok && addr != ""
}

func requireCaller(ctx context.Context) (Address, error) {
	addr, ok := CallerFrom(ctx)
	if !ok {
		return "", ErrUnauthorized
	}
	return addr, nil
}
