package custody

import (
	"context"

	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
	"github.com/vaultbridge/backend/internal/infrastructure/logger"
)

type callerKey struct{}

// WithCaller binds the invoking account to ctx. The account also appears as
// the caller field of context logs.
func WithCaller(ctx context.Context, caller valueobject.Address) context.Context {
	ctx = context.WithValue(ctx, callerKey{}, caller)
	return logger.WithCaller(ctx, caller.String())
}

// CallerFromContext returns the invoking account, or the null address when
// none is bound
func CallerFromContext(ctx context.Context) valueobject.Address {
	caller, _ := ctx.Value(callerKey{}).(valueobject.Address)
	return caller
}
