package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFetchAndCacheUntilExpiry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
	}))
	defer srv.Close()

	p := NewTokenProvider(TokenConfig{TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret"}, nil)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok2, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTokenFetchFailsWithNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid client"))
	}))
	defer srv.Close()

	p := NewTokenProvider(TokenConfig{TokenURL: srv.URL, ClientID: "id", ClientSecret: "bad"}, nil)
	_, err := p.Token(context.Background())
	require.Error(t, err)
	assert.True(t, cherrors.IsType(err, cherrors.ErrorTypeTokenRequestFailed))
}

func TestTokenInvalidateForcesRefetch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	}))
	defer srv.Close()

	p := NewTokenProvider(TokenConfig{TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret"}, nil)
	_, err := p.Token(context.Background())
	require.NoError(t, err)

	p.Invalidate()

	_, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTokenRequestIncludesOptionalExtras(t *testing.T) {
	var gotScope, gotAudience, gotResource string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotScope = r.Form.Get("scope")
		gotAudience = r.Form.Get("audience")
		gotResource = r.Form.Get("resource")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","expires_in":60}`))
	}))
	defer srv.Close()

	p := NewTokenProvider(TokenConfig{
		TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret",
		Scope: "read write", Audience: "aud", Resource: "res",
	}, nil)
	_, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "read write", gotScope)
	assert.Equal(t, "aud", gotAudience)
	assert.Equal(t, "res", gotResource)
}
