// ABOUTME: Tests for JWT verification and the authentication middleware

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomcrm/whatsapp-gateway/internal/store"
)

var testSecret = []byte("test-secret-at-least-32-bytes-long!")

func TestTokenRoundTrip(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token, err := v.Generate("actor-1", time.Hour)
	require.NoError(t, err)

	actorID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "actor-1", actorID)
}

func TestExpiredToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token, err := v.Generate("actor-1", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestWrongSecret(t *testing.T) {
	other := NewJWTVerifier([]byte("a-different-secret-also-32-bytes!!"))
	token, err := other.Generate("actor-1", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMissingSubClaim(t *testing.T) {
	claims := jwt.MapClaims{"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = NewJWTVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestRejectsUnsignedToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "actor-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTVerifier(testSecret).Verify(token)
	require.Error(t, err)
}

type fakeActorStore struct {
	actors map[string]*store.Actor
}

func (f *fakeActorStore) GetActor(ctx context.Context, id string) (*store.Actor, error) {
	a, ok := f.actors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func middlewareFixture(t *testing.T) (*JWTVerifier, *fakeActorStore, http.Handler) {
	t.Helper()
	v := NewJWTVerifier(testSecret)
	actors := &fakeActorStore{actors: map[string]*store.Actor{
		"actor-1":  {ID: "actor-1", TenantID: "tenant-1", Role: store.RoleSales, Status: store.ActorStatusActive},
		"disabled": {ID: "disabled", TenantID: "tenant-1", Role: store.RoleSales, Status: store.ActorStatusDisabled},
	}}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := MustFromContext(r.Context())
		w.Write([]byte(actor.ID))
	})
	return v, actors, Middleware(actors, v)(inner)
}

func doRequest(handler http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareAuthenticates(t *testing.T) {
	v, _, handler := middlewareFixture(t)

	token, err := v.Generate("actor-1", time.Hour)
	require.NoError(t, err)

	rec := doRequest(handler, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "actor-1", rec.Body.String())
}

func TestMiddlewareRejectsBadHeaders(t *testing.T) {
	_, _, handler := middlewareFixture(t)

	assert.Equal(t, http.StatusUnauthorized, doRequest(handler, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(handler, "Basic dXNlcg==").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(handler, "Bearer ").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(handler, "Bearer garbage").Code)
}

func TestMiddlewareRejectsUnknownActor(t *testing.T) {
	v, _, handler := middlewareFixture(t)

	token, err := v.Generate("ghost", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, doRequest(handler, "Bearer "+token).Code)
}

func TestMiddlewareRejectsDisabledActor(t *testing.T) {
	v, _, handler := middlewareFixture(t)

	token, err := v.Generate("disabled", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, doRequest(handler, "Bearer "+token).Code)
}

func TestActorContext(t *testing.T) {
	actor := &store.Actor{ID: "actor-1"}
	ctx := WithActor(context.Background(), actor)

	got := FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, actor, got)

	assert.Nil(t, FromContext(context.Background()))
	assert.Panics(t, func() { MustFromContext(context.Background()) })
}

func TestVerifyErrorWrapping(t *testing.T) {
	_, err := NewJWTVerifier(testSecret).Verify("not-a-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
