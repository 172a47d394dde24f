package sdmapi

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// tokenSource adapts a TokenProvider to oauth2.TokenSource for the
// generated SDM client.  The provider does its own caching and refresh.
type tokenSource struct {
	ctx      context.Context
	provider TokenProvider
}

func newTokenSource(ctx context.Context, provider TokenProvider) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, provider: provider}
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	token, err := s.provider.AccessToken(s.ctx)
	if err != nil {
		return nil, errors.Wrap(err, "obtaining access token")
	}

	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}, nil
}
