package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kondiv/shop/internal/locker"
	"github.com/kondiv/shop/internal/repository/memory"
	"github.com/kondiv/shop/internal/security/auth"
	"github.com/kondiv/shop/internal/service"
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	tokens := auth.NewTokenManager("test-secret", "shop", "shop-clients", time.Hour)

	router := NewRouter(RouterConfig{
		Auth:            service.NewAuthService(store.Users(), tokens, locker.NewMutex(), log),
		Items:           service.NewItemService(store.Users(), store.Items(), store, log),
		Purchases:       service.NewPurchaseService(store.Users(), store.Items(), store.Purchases(), store, locker.NewMutex(), log),
		Health:          NewHealthHandler(map[string]Pinger{"store": store}, log),
		Tokens:          tokens,
		DefaultPageSize: 10,
		AuditEnabled:    true,
		Logger:          log,
	})
	return &testAPI{t: t, handler: router}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(a.t, err)
		rdr = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) signup(login, role string) string {
	a.t.Helper()

	rec := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"login": login, "username": login, "password": "pass1234", "role": role,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"login": login, "password": "pass1234"})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRegisterAndLoginSetsCookie(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"login": "alice", "username": "Alice", "password": "pass", "role": "seller",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	user := decode[UserResponse](t, rec)
	assert.Equal(t, "Alice", user.Username)
	assert.Contains(t, rec.Body.String(), `"role":"Seller"`)
	assert.NotContains(t, rec.Body.String(), "pass")

	rec = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"login": "alice", "password": "pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[LoginResponse](t, rec)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Equal(t, resp.Token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestRegisterErrors(t *testing.T) {
	api := newTestAPI(t)
	api.signup("bob", "Buyer")

	rec := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"login": "bob", "username": "Bobby", "password": "pass", "role": "Buyer",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"Login already taken"}`, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/auth/register", "", map[string]string{"login": "x", "role": "King"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Len(t, body.Errors, 4)

	rec = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"login": "bob", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestItemLifecycle(t *testing.T) {
	api := newTestAPI(t)
	seller := api.signup("seller", "Seller")
	buyer := api.signup("buyer", "Buyer")
	rival := api.signup("rival", "Seller")

	item := map[string]any{"name": "Kettle", "price": 100.5, "category": "Home", "quantity": 10}
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/api/items", "", item).Code)
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPost, "/api/items", buyer, item).Code)

	rec := api.do(http.MethodPost, "/api/items", seller, item)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[ItemResponse](t, rec)
	assert.Equal(t, "100.50", created.Price.String())
	assert.Equal(t, "seller", created.Seller.Username)
	path := "/api/items/" + jsonID(created.ID)

	rec = api.do(http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPatch, path, rival, map[string]any{"name": "Mine"}).Code)
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodDelete, path, rival, nil).Code)

	rec = api.do(http.MethodPatch, path, seller, map[string]any{"quantity": 4})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	got := decode[ItemResponse](t, api.do(http.MethodGet, path, "", nil))
	assert.Equal(t, 4, got.Quantity)
	assert.Equal(t, "Kettle", got.Name)

	rec = api.do(http.MethodPatch, path, seller, map[string]any{"price": -3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, path, seller, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPatch, path, seller, map[string]any{"name": "gone"}).Code)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestItemRouteRejectsNonNumericID(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/items/abc", "", nil).Code)
}

func TestListItems(t *testing.T) {
	api := newTestAPI(t)
	seller := api.signup("seller", "Seller")
	for _, c := range []string{"Books", "Toys", "Books"} {
		rec := api.do(http.MethodPost, "/api/items", seller, map[string]any{"name": "thing", "price": "2.00", "category": c, "quantity": 1})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	all := decode[[]ItemResponse](t, api.do(http.MethodGet, "/api/items", "", nil))
	require.Len(t, all, 3)
	assert.Less(t, all[0].ID, all[1].ID)

	books := decode[[]ItemResponse](t, api.do(http.MethodGet, "/api/items?category=books&page=1&maxPageSize=1", "", nil))
	require.Len(t, books, 1)
	assert.Equal(t, "Books", books[0].Category.String())

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/items?page=0", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/items?maxPageSize=abc", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/items?category=cars", "", nil).Code)
}

func TestPurchaseFlow(t *testing.T) {
	api := newTestAPI(t)
	seller := api.signup("seller", "Seller")
	buyer := api.signup("buyer", "Buyer")

	created := decode[ItemResponse](t, api.do(http.MethodPost, "/api/items", seller,
		map[string]any{"name": "Kettle", "price": "100.50", "category": "Home", "quantity": 10}))

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/api/purchases", "", map[string]any{"itemId": created.ID, "quantity": 1}).Code)

	rec := api.do(http.MethodPost, "/api/purchases", buyer, map[string]any{"itemId": created.ID, "quantity": 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	purchase := decode[PurchaseResponse](t, rec)
	assert.Equal(t, "301.50", purchase.TotalPrice.String())
	assert.Equal(t, "buyer", purchase.Buyer.Username)
	assert.Equal(t, "seller", purchase.Seller.Username)

	item := decode[ItemResponse](t, api.do(http.MethodGet, "/api/items/"+jsonID(created.ID), "", nil))
	assert.Equal(t, 7, item.Quantity)

	rec = api.do(http.MethodPost, "/api/purchases", buyer, map[string]any{"itemId": created.ID, "quantity": 50})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"Not enough items"}`, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/purchases", seller, map[string]any{"itemId": created.ID, "quantity": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"Attempt to buy own product"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/api/purchases", buyer, map[string]any{"itemId": 999, "quantity": 1}).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/purchases", buyer, map[string]any{"itemId": created.ID, "quantity": 0}).Code)

	rec = api.do(http.MethodGet, "/api/purchases/"+purchase.ID.String(), seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, purchase.ID, decode[PurchaseResponse](t, rec).ID)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/purchases/not-a-uuid", buyer, nil).Code)

	history := decode[[]PurchaseResponse](t, api.do(http.MethodGet, "/api/purchases/history?page=1&maxPageSize=5", buyer, nil))
	require.Len(t, history, 1)
	assert.Equal(t, purchase.ID, history[0].ID)

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, "/api/purchases/history", seller, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/purchases/history", "", nil).Code)
}

func TestCookieTokenAuthenticates(t *testing.T) {
	api := newTestAPI(t)
	seller := api.signup("seller", "Seller")

	buf, _ := json.Marshal(map[string]any{"name": "Pen", "price": 1, "category": "Other", "quantity": 1})
	req := httptest.NewRequest(http.MethodPost, "/api/items", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: seller})
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestMalformedAndWrongContentType(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString("login=x"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/healthz", "", nil).Code)

	rec := api.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"store":"ok"}}`, rec.Body.String())

	h := NewHealthHandler(map[string]Pinger{"redis": failingPinger{}}, nil)
	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOutOfRangeInputsAreClientErrors(t *testing.T) {
	api := newTestAPI(t)
	seller := api.signup("seller", "Seller")

	rec := api.do(http.MethodGet, "/api/items?page=9223372036854775806&maxPageSize=9223372036854775807", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/items", seller, map[string]any{"name": "Dust", "price": "0.001", "category": "Other", "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"login": "longpw", "username": "longpw", "password": string(bytes.Repeat([]byte("a"), 80)), "role": "Buyer",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
