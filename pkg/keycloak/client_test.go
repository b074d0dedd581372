package keycloak

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/leozw/inbound-guardian/internal/config"
)

func jwksServer(t *testing.T, key *rsa.PrivateKey, kid string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/realms/test/protocol/openid-connect/certs", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kid": kid,
				"kty": "RSA",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func sign(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestValidateToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv, hits := jwksServer(t, key, "k1")

	client := NewClient(config.KeycloakConfig{URL: srv.URL, Realm: "test"}, zaptest.NewLogger(t))
	issuer := srv.URL + "/realms/test"

	valid := sign(t, key, "k1", jwt.MapClaims{
		"sub": "user-1",
		"iss": issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	claims, err := client.ValidateToken(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])

	_, err = client.ValidateToken(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "keys are cached")

	expired := sign(t, key, "k1", jwt.MapClaims{
		"sub": "user-1",
		"iss": issuer,
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err = client.ValidateToken(context.Background(), expired)
	assert.Error(t, err)

	wrongIssuer := sign(t, key, "k1", jwt.MapClaims{
		"sub": "user-1",
		"iss": "https://elsewhere/realms/test",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err = client.ValidateToken(context.Background(), wrongIssuer)
	assert.Error(t, err)
}

func TestValidateTokenUnknownKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv, _ := jwksServer(t, key, "k1")

	client := NewClient(config.KeycloakConfig{URL: srv.URL, Realm: "test"}, nil)

	forged := sign(t, other, "k2", jwt.MapClaims{
		"sub": "user-1",
		"iss": srv.URL + "/realms/test",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err = client.ValidateToken(context.Background(), forged)
	assert.Error(t, err)
}
