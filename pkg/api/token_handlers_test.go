package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = "ssh-rsa " + strings.Repeat("A", 64)

func TestKeys(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/users/charlie/keys", map[string]string{"key": "short"}, "charlie", "1234")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid key", decode(t, rec)["error"])

	rec = f.do(t, http.MethodPost, "/users/charlie/keys", map[string]string{"key": testKey}, "charlie", "1234")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "publicKey", decode(t, rec)["name"])

	rec = f.do(t, http.MethodPut, "/users/charlie/keys/laptop", map[string]string{"key": testKey + "B"}, "charlie", "1234")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/users/charlie/keys/laptop", nil, "charlie", "1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testKey+"B", decode(t, rec)["key"])

	rec = f.do(t, http.MethodGet, "/users/charlie/keys", nil, "charlie", "1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["keys"], 2)

	rec = f.do(t, http.MethodDelete, "/users/charlie/keys/laptop", nil, "charlie", "1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/users/charlie/keys/laptop", nil, "charlie", "1234").Code)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/users/charlie/keys", nil, "maciej", "1234").Code)
}

func TestKeys_AllUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.users.AddKey(ctx, "charlie", "", testKey)
	require.NoError(t, err)
	_, err = f.users.AddKey(ctx, "maciej", "", testKey)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/keys", nil, "charlie", "1234").Code)

	rec := f.do(t, http.MethodGet, "/keys", nil, "admin", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["keys"], 2)
}

func TestAPITokens(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/users/charlie/tokens/ci", nil, "charlie", "1234")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "insert", body["operation"])
	token, _ := body["ci"].(string)
	require.NotEmpty(t, token)

	rec = f.do(t, http.MethodPut, "/users/charlie/tokens/ci", nil, "charlie", "1234")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "update", decode(t, rec)["operation"])
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/auth", nil, "charlie", token).Code)

	rec = f.do(t, http.MethodPost, "/users/charlie/tokens", nil, "charlie", "1234")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, decode(t, rec), 2)

	rec = f.do(t, http.MethodGet, "/users/charlie/tokens", nil, "charlie", "1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["apiTokens"], 2)

	rec = f.do(t, http.MethodDelete, "/users/charlie/tokens/ci", nil, "charlie", "1234")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, map[string]any{"ok": true, "id": "ci"}, decode(t, rec))

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/users/charlie/tokens/ci", nil, "charlie", "1234").Code)
}

func TestAPITokens_TokenAuthCannotMint(t *testing.T) {
	f := newFixture(t)
	tok, err := f.users.SetAPIToken(context.Background(), "charlie", "ci")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/users/charlie/tokens", nil, "charlie", tok.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"ci"}, decode(t, rec)["apiTokens"])

	rec = f.do(t, http.MethodPost, "/users/charlie/tokens", nil, "charlie", tok.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestThirdPartyTokens(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/users/charlie/thirdparty", map[string]string{"token": "gh-123"}, "charlie", "1234")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/users/charlie/thirdparty",
		map[string]any{"token": "gh-123", "provider": "github", "info": map[string]any{"scope": "repo"}},
		"charlie", "1234")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "*", created["app"])
	assert.Equal(t, "insert", created["operation"])

	rec = f.do(t, http.MethodPut, "/users/charlie/thirdparty/"+id,
		map[string]any{"token": "gh-456", "provider": "github"}, "charlie", "1234")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "update", decode(t, rec)["operation"])

	rec = f.do(t, http.MethodGet, "/users/charlie/thirdparty", nil, "charlie", "1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gh-456")

	rec = f.do(t, http.MethodDelete, "/users/charlie/thirdparty/"+id, nil, "charlie", "1234")
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "delete", body["deleted"].(map[string]any)["operation"])

	rec = f.do(t, http.MethodDelete, "/users/charlie/thirdparty/"+id, nil, "charlie", "1234")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThirdPartyTokens_ListingNeedsPassword(t *testing.T) {
	f := newFixture(t)
	tok, err := f.users.SetAPIToken(context.Background(), "charlie", "ci")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/users/charlie/thirdparty", nil, "charlie", tok.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
