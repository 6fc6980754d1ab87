package subscription

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeExchanger struct {
	token *oauth2.Token
	err   error
	calls int
}

func (f *fakeExchanger) Exchange(_ context.Context, _ string) (*oauth2.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

type fakeCredentialStore struct {
	tokens map[string]domain.OAuthCredential
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{tokens: map[string]domain.OAuthCredential{}}
}

func (f *fakeCredentialStore) GetToken(_ context.Context, nodeID string) (domain.OAuthCredential, error) {
	cred, ok := f.tokens[nodeID]
	if !ok {
		return domain.OAuthCredential{}, domain.ErrSubscriptionNotFound
	}
	return cred, nil
}

func (f *fakeCredentialStore) SetToken(_ context.Context, nodeID, accessToken string, expiry time.Time) error {
	cred := f.tokens[nodeID]
	cred.AccessToken = accessToken
	cred.Expiry = expiry
	f.tokens[nodeID] = cred
	return nil
}

func newTestRefresher(exchanger *fakeExchanger, store *fakeCredentialStore, now time.Time) *TokenRefresher {
	return &TokenRefresher{
		exchanger:   exchanger,
		credentials: store,
		skew:        DefaultTokenSkew,
		now:         func() time.Time { return now },
	}
}

func TestTokenRefresher_EnsureFresh_FreshTokenPassesThrough(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exchanger := &fakeExchanger{}

	refresher := newTestRefresher(exchanger, newFakeCredentialStore(), now)

	cred := domain.OAuthCredential{
		AccessToken: "still-good",
		Expiry:      now.Add(time.Hour),
	}

	got, err := refresher.EnsureFresh(context.Background(), "node-1", cred)
	require.NoError(t, err)

	assert.Equal(t, cred, got)
	assert.Zero(t, exchanger.calls)
}

func TestTokenRefresher_EnsureFresh_RefreshesInsideSkewWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exchanger := &fakeExchanger{token: &oauth2.Token{
		AccessToken: "fresh",
		Expiry:      now.Add(time.Hour),
	}}
	store := newFakeCredentialStore()

	refresher := newTestRefresher(exchanger, store, now)

	cred := domain.OAuthCredential{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Expiry:       now.Add(time.Minute), // inside the 5 minute skew
	}

	got, err := refresher.EnsureFresh(context.Background(), "node-1", cred)
	require.NoError(t, err)

	assert.Equal(t, "fresh", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)
	assert.Equal(t, 1, exchanger.calls)
	assert.Equal(t, "fresh", store.tokens["node-1"].AccessToken)
}

func TestTokenRefresher_EnsureFresh_NoRefreshTokenRequiresReauth(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresher := newTestRefresher(&fakeExchanger{}, newFakeCredentialStore(), now)

	cred := domain.OAuthCredential{
		AccessToken: "stale",
		Expiry:      now.Add(-time.Hour),
	}

	_, err := refresher.EnsureFresh(context.Background(), "node-1", cred)
	assert.True(t, domain.IsReauthRequired(err))
}

func TestTokenRefresher_EnsureFresh_ErrorClassification(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		exchangeErr error
		wantReauth  bool
	}{
		{
			name: "rejected grant requires reauth",
			exchangeErr: &oauth2.RetrieveError{
				Response: &http.Response{StatusCode: http.StatusBadRequest},
			},
			wantReauth: true,
		},
		{
			name: "revoked token requires reauth",
			exchangeErr: &oauth2.RetrieveError{
				Response: &http.Response{StatusCode: http.StatusUnauthorized},
			},
			wantReauth: true,
		},
		{
			name: "provider outage is a transport failure",
			exchangeErr: &oauth2.RetrieveError{
				Response: &http.Response{StatusCode: http.StatusServiceUnavailable},
			},
			wantReauth: false,
		},
		{
			name:        "network error is a transport failure",
			exchangeErr: errors.New("connection refused"),
			wantReauth:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refresher := newTestRefresher(&fakeExchanger{err: tt.exchangeErr}, newFakeCredentialStore(), now)

			cred := domain.OAuthCredential{
				AccessToken:  "stale",
				RefreshToken: "refresh-1",
				Expiry:       now.Add(-time.Hour),
			}

			_, err := refresher.EnsureFresh(context.Background(), "node-1", cred)
			require.Error(t, err)

			if tt.wantReauth {
				assert.True(t, domain.IsReauthRequired(err))
			} else {
				var transportErr *domain.TransportError
				assert.ErrorAs(t, err, &transportErr)
			}
		})
	}
}
