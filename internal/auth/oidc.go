package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"ticketly/internal/apperror"
)

// OIDCVerifier validates tokens issued by an external identity provider.
// Enabled with AUTH_MODE=oidc.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider for %s: %w", issuer, err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
	}, nil
}

func (v *OIDCVerifier) Verify(tokenString string) (Identity, error) {
	idToken, err := v.verifier.Verify(context.Background(), tokenString)
	if err != nil {
		return Identity{}, apperror.Wrap(apperror.KindUnauthenticated, "invalid token", err)
	}

	var claims struct {
		Sub  string `json:"sub"`
		Role string `json:"role"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, apperror.Wrap(apperror.KindUnauthenticated, "failed to parse claims", err)
	}
	if claims.Sub == "" {
		return Identity{}, apperror.New(apperror.KindUnauthenticated, "subject claim not found in token")
	}
	if claims.Role == "" {
		claims.Role = RoleCustomer
	}
	return Identity{UserID: claims.Sub, Role: claims.Role}, nil
}
