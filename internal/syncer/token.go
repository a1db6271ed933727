package syncer

import (
	"context"
	"fmt"

	"github.com/dstanfill/inkwell/internal/apperr"
)

// TokenSource supplies the bearer credential for the ingest endpoint.
// Token acquisition failure aborts the whole sync run before any batch is
// sent; the next scheduled trigger re-acquires.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token from configuration.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a TokenSource around a configured token.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// Token implements TokenSource.
func (s *StaticTokenSource) Token(_ context.Context) (string, error) {
	if s.token == "" {
		return "", fmt.Errorf("%w: no token configured", apperr.ErrAuth)
	}
	return s.token, nil
}
