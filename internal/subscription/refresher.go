package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultTokenSkew is how long before the recorded expiry a token is already
// treated as stale, so we never present one that dies mid-request.
const DefaultTokenSkew = 5 * time.Minute

// tokenExchanger performs the single refresh round-trip. Production uses the
// oauth2 token source; tests substitute a fake.
type tokenExchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

type googleExchanger struct {
	config *oauth2.Config
}

func (g *googleExchanger) Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	source := g.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return source.Token()
}

// TokenRefresher keeps stored OAuth credentials fresh. Refresh is attempted
// at most once per call; callers decide whether to retry the outer operation.
type TokenRefresher struct {
	exchanger   tokenExchanger
	credentials domain.CredentialStore
	skew        time.Duration
	now         func() time.Time
}

type TokenRefresherDependencies struct {
	ClientID        string
	ClientSecret    string
	CredentialStore domain.CredentialStore
	Skew            time.Duration
}

func NewTokenRefresher(deps TokenRefresherDependencies) *TokenRefresher {
	skew := deps.Skew
	if skew == 0 {
		skew = DefaultTokenSkew
	}

	return &TokenRefresher{
		exchanger: &googleExchanger{
			config: &oauth2.Config{
				ClientID:     deps.ClientID,
				ClientSecret: deps.ClientSecret,
				Endpoint:     google.Endpoint,
			},
		},
		credentials: deps.CredentialStore,
		skew:        skew,
		now:         time.Now,
	}
}

// EnsureFresh returns a credential usable right now, refreshing and
// persisting it when the stored one is inside the skew window. A rejected
// refresh token comes back as *ReauthRequiredError: only the user
// reconnecting the account can fix it.
func (r *TokenRefresher) EnsureFresh(ctx context.Context, nodeID string, cred domain.OAuthCredential) (domain.OAuthCredential, error) {
	if !cred.Expired(r.now(), r.skew) {
		return cred, nil
	}

	if cred.RefreshToken == "" {
		return domain.OAuthCredential{}, &domain.ReauthRequiredError{
			NodeID: nodeID,
			Err:    errors.New("no refresh token stored"),
		}
	}

	token, err := r.exchanger.Exchange(ctx, cred.RefreshToken)
	if err != nil {
		return domain.OAuthCredential{}, classifyRefreshError(nodeID, err)
	}

	refreshed := domain.OAuthCredential{
		AccessToken:  token.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       token.Expiry,
	}
	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}

	if err := r.credentials.SetToken(ctx, nodeID, refreshed.AccessToken, refreshed.Expiry); err != nil {
		return domain.OAuthCredential{}, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	log.Info().Str("nodeID", nodeID).Time("expiry", refreshed.Expiry).Msg("Access token refreshed")

	return refreshed, nil
}

// classifyRefreshError separates "the provider rejected the grant" from "the
// provider was unreachable". Only the former disables the subscription.
func classifyRefreshError(nodeID string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.Response.StatusCode
		if code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden {
			return &domain.ReauthRequiredError{NodeID: nodeID, Err: err}
		}
	}

	return &domain.TransportError{NodeID: nodeID, Err: fmt.Errorf("token refresh failed: %w", err)}
}
