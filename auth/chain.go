package auth

import (
	"context"
	"fmt"
)

// ChainVerifier tries each verifier in order and returns the first
// successful identity.
type ChainVerifier []Verifier

func (c ChainVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	var lastErr error
	for _, v := range c {
		ident, err := v.Verify(ctx, token)
		if err == nil {
			return ident, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no verifier configured")
	}
	return nil, lastErr
}
