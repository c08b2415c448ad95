package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/remote"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/session"
	"storefront/internal/usecase"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =====================
// メモリ上のバックエンド
// =====================

type fakeBackend struct {
	mu      sync.Mutex
	lines   []model.CartLine
	catalog map[int64]model.CartLine
	orders  map[model.OrderID][]model.OrderItem
	nextID  int
	paid    map[model.OrderID]bool
	failPay bool
	//カート取得だけ落とす
	listDown bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		catalog: map[int64]model.CartLine{
			10: {ProductID: 10, ProductName: "Kopi", UnitPrice: 10000},
			11: {ProductID: 11, ProductName: "Teh", UnitPrice: 5000},
		},
		orders: map[model.OrderID][]model.OrderItem{},
		nextID: 100,
		paid:   map[model.OrderID]bool{},
	}
}

// バックエンドは自分の鍵で署名されたトークンだけ受け付ける
func (b *fakeBackend) List(_ context.Context, cred session.Credential) ([]model.CartLine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listDown {
		return nil, remote.ErrUnavailable
	}
	if _, err := session.Parse(cred.Token, []byte(backendSecret), time.Now()); err != nil {
		return nil, &remote.APIError{Status: http.StatusUnauthorized, Message: "invalid token"}
	}
	out := make([]model.CartLine, len(b.lines))
	copy(out, b.lines)
	return out, nil
}

func (b *fakeBackend) Add(_ context.Context, _ session.Credential, productID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.catalog[productID]
	if !ok {
		return &remote.APIError{Status: http.StatusNotFound, Message: "product not found"}
	}
	for i := range b.lines {
		if b.lines[i].ProductID == productID {
			b.lines[i].Quantity++
			return nil
		}
	}
	p.ID = productID
	p.Quantity = 1
	b.lines = append(b.lines, p)
	return nil
}

func (b *fakeBackend) SetQuantity(_ context.Context, _ session.Credential, productID int64, quantity int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.lines {
		if b.lines[i].ProductID == productID {
			if quantity == 0 {
				b.lines = append(b.lines[:i], b.lines[i+1:]...)
			} else {
				b.lines[i].Quantity = quantity
			}
			return nil
		}
	}
	return nil
}

func (b *fakeBackend) CreateFromCart(_ context.Context, _ session.Credential) (model.OrderID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := model.OrderID(strconv.Itoa(b.nextID))
	items := make([]model.OrderItem, 0, len(b.lines))
	for i, l := range b.lines {
		items = append(items, model.OrderItem{
			ID:            int64(i + 1),
			InvoiceNumber: "INV-" + id.String(),
			ProductID:     l.ProductID,
			ProductName:   l.ProductName,
			UnitPrice:     l.UnitPrice,
			Quantity:      l.Quantity,
		})
	}
	b.orders[id] = items
	b.lines = nil
	return id, nil
}

func (b *fakeBackend) ListItems(_ context.Context, _ session.Credential, orderID model.OrderID) ([]model.OrderItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items, ok := b.orders[orderID]
	if !ok {
		return nil, &remote.APIError{Status: http.StatusNotFound, Message: "order not found"}
	}
	out := make([]model.OrderItem, len(items))
	copy(out, items)
	return out, nil
}

// 10%引き
func (b *fakeBackend) ApplyVoucher(_ context.Context, _ session.Credential, invoiceNumber string, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code != "HEMAT10" {
		return &remote.APIError{Status: http.StatusBadRequest, Message: "voucher tidak valid"}
	}
	for id, items := range b.orders {
		if len(items) > 0 && items[0].InvoiceNumber == invoiceNumber {
			for i := range items {
				items[i].UnitPrice = items[i].UnitPrice * 9 / 10
			}
			b.orders[id] = items
		}
	}
	return nil
}

func (b *fakeBackend) InitiatePayment(_ context.Context, _ session.Credential, orderID model.OrderID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPay {
		return &remote.APIError{Status: http.StatusInternalServerError, Message: "payment failed"}
	}
	b.paid[orderID] = true
	return nil
}

func (b *fakeBackend) ListAddresses(_ context.Context, _ session.Credential) ([]model.Address, error) {
	return []model.Address{
		{ID: 1, Address: "Jl. Merdeka 1", City: "Bandung"},
		{ID: 2, Address: "Jl. Sudirman 5", City: "Jakarta"},
	}, nil
}

type memCheckoutSessions struct {
	mu   sync.Mutex
	rows map[model.OrderID]model.CheckoutSession
}

func (m *memCheckoutSessions) Create(_ context.Context, s model.CheckoutSession) (model.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[s.OrderID]; ok {
		return model.CheckoutSession{}, repository.ErrConflict
	}
	s.ID = int64(len(m.rows) + 1)
	m.rows[s.OrderID] = s
	return s, nil
}

func (m *memCheckoutSessions) FindByOrderID(_ context.Context, orderID model.OrderID) (model.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[orderID]
	if !ok {
		return model.CheckoutSession{}, repository.ErrNotFound
	}
	return s, nil
}

func (m *memCheckoutSessions) Update(_ context.Context, s model.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[s.OrderID]; !ok {
		return repository.ErrNotFound
	}
	m.rows[s.OrderID] = s
	return nil
}

type memAuditLogs struct {
	mu   sync.Mutex
	logs []model.AuditLog
}

func (m *memAuditLogs) Create(_ context.Context, log model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, log)
	return nil
}

func (m *memAuditLogs) List(_ context.Context, filter repository.AuditLogFilter) ([]model.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuditLog
	for _, l := range m.logs {
		if filter.OwnerKey != nil && l.OwnerKey != *filter.OwnerKey {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "sess-" + strconv.Itoa(g.n)
}

// =====================
// helper
// =====================

type testApp struct {
	e       *echo.Echo
	backend *fakeBackend
	audit   *memAuditLogs
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	backend := newFakeBackend()
	audit := &memAuditLogs{}
	checkouts := &memCheckoutSessions{rows: map[model.OrderID]model.CheckoutSession{}}

	sessionUC := usecase.NewSessionUsecase(
		cache.NewRedisSessionRepository(rdb),
		backend,
		audit,
		&seqIDs{},
		nil,
		usecase.SessionConfig{DefaultTTL: time.Hour},
		nil,
	)
	t.Cleanup(sessionUC.Shutdown)
	checkoutUC := usecase.NewCheckoutUsecase(backend, backend, checkouts, audit, usecase.DefaultCheckoutConfig(), nil, nil)

	e := echo.New()
	requireSession := middleware.RequireSession(sessionUC)
	NewSessionHandler(sessionUC).RegisterRoutes(e, requireSession)
	NewCartHandler().RegisterRoutes(e, requireSession)
	NewCheckoutHandler(checkoutUC).RegisterRoutes(e, requireSession)

	return &testApp{e: e, backend: backend, audit: audit}
}

const backendSecret = "backend-secret"

func makeToken(t *testing.T, sub string) string {
	t.Helper()
	return makeTokenWithKey(t, sub, backendSecret)
}

func makeTokenWithKey(t *testing.T, sub, key string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub, "exp": time.Now().Add(time.Hour).Unix()}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func (a *testApp) postSession(t *testing.T, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) do(t *testing.T, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if sessionID != "" {
		req.Header.Set(middleware.SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) login(t *testing.T, sub string) string {
	t.Helper()

	rec := a.postSession(t, makeToken(t, sub))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out usecase.LoginOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.SessionID)
	return out.SessionID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =====================
// tests
// =====================

func TestLogin_RequiresBearer(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/session", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCart_RequiresSession(t *testing.T) {
	app := newTestApp(t)

	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/cart", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/cart", "unknown", nil).Code)
}

func TestCart_Flow(t *testing.T) {
	app := newTestApp(t)
	sid := app.login(t, "42")

	rec := app.do(t, http.MethodPost, "/cart/items", sid, AddCartRequest{ProductID: 10, ProductName: "Kopi", UnitPrice: 10000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = app.do(t, http.MethodPost, "/cart/items", sid, AddCartRequest{ProductID: 10, ProductName: "Kopi", UnitPrice: 10000})
	require.Equal(t, http.StatusOK, rec.Code)

	cart := decode[CartResponse](t, rec)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(2), cart.Lines[0].Quantity)
	assert.Equal(t, int64(20000), cart.Subtotal)
	assert.Equal(t, "Rp20.000", cart.SubtotalLabel)

	//1未満は400
	rec = app.do(t, http.MethodPatch, "/cart/items/10", sid, UpdateCartItemRequest{Delta: -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPatch, "/cart/items/10", sid, UpdateCartItemRequest{Delta: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), decode[CartResponse](t, rec).Lines[0].Quantity)

	rec = app.do(t, http.MethodPatch, "/cart/items/99", sid, UpdateCartItemRequest{Delta: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodDelete, "/cart/items/10", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[CartResponse](t, rec).Lines)

	rec = app.do(t, http.MethodPost, "/cart/refresh", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[CartResponse](t, rec).Lines)
}

// Test: リモートのエラーは502でメッセージを返す
func TestCart_RemoteErrorIsBadGateway(t *testing.T) {
	app := newTestApp(t)
	sid := app.login(t, "42")

	rec := app.do(t, http.MethodPost, "/cart/items", sid, AddCartRequest{ProductID: 77, UnitPrice: 1})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "product not found", decode[ErrorResponse](t, rec).Error)
}

func TestCheckout_EmptyCart(t *testing.T) {
	app := newTestApp(t)
	sid := app.login(t, "42")

	rec := app.do(t, http.MethodPost, "/checkout", sid, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_Flow(t *testing.T) {
	app := newTestApp(t)
	sid := app.login(t, "42")

	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/cart/items", sid, AddCartRequest{ProductID: 10, UnitPrice: 10000}).Code)
	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/cart/items", sid, AddCartRequest{ProductID: 10, UnitPrice: 10000}).Code)

	rec := app.do(t, http.MethodPost, "/checkout", sid, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[CheckoutResponse](t, rec)
	orderID := created.OrderID.String()
	assert.Equal(t, "/checkout/"+orderID, created.Next)

	//注文後はカートが空
	assert.Empty(t, decode[CartResponse](t, app.do(t, http.MethodGet, "/cart", sid, nil)).Lines)

	rec = app.do(t, http.MethodGet, "/checkout/"+orderID, sid, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	review := decode[CheckoutResponse](t, rec)
	assert.Equal(t, model.CheckoutStateReviewing, review.State)
	assert.Equal(t, int64(1), review.SelectedAddressID)
	assert.Equal(t, int64(27800), review.Totals.Total)
	assert.Equal(t, "Rp27.800", review.TotalLabel)

	rec = app.do(t, http.MethodPut, "/checkout/"+orderID+"/address", sid, SelectAddressRequest{AddressID: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decode[CheckoutResponse](t, rec).SelectedAddressID)

	rec = app.do(t, http.MethodPut, "/checkout/"+orderID+"/insurance", sid, map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(27000), decode[CheckoutResponse](t, rec).Totals.Total)

	rec = app.do(t, http.MethodPut, "/checkout/"+orderID+"/insurance", sid, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/checkout/"+orderID+"/voucher", sid, ApplyVoucherRequest{Code: "SALAH"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = app.do(t, http.MethodPost, "/checkout/"+orderID+"/voucher", sid, ApplyVoucherRequest{Code: "HEMAT10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	discounted := decode[CheckoutResponse](t, rec)
	assert.Equal(t, int64(18000), discounted.Totals.Subtotal)
	assert.Equal(t, "HEMAT10", discounted.VoucherCode)

	rec = app.do(t, http.MethodPost, "/checkout/"+orderID+"/pay", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[CheckoutResponse](t, rec)
	assert.Equal(t, model.CheckoutStateCompleted, paid.State)
	assert.Equal(t, "/review/"+orderID, paid.Next)

	//二重払いは409
	assert.Equal(t, http.StatusConflict, app.do(t, http.MethodPost, "/checkout/"+orderID+"/pay", sid, nil).Code)

	rec = app.do(t, http.MethodGet, "/review/"+orderID, sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ReviewResponse](t, rec).Items, 1)

	rec = app.do(t, http.MethodGet, "/session/history?limit=5", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]model.AuditLog](t, rec)
	require.Len(t, history, 5)
	assert.Equal(t, model.AuditActionPay, history[0].Action)
}

// Test: 支払い失敗は確認画面に戻り、やり直せる
func TestCheckout_PayFailure(t *testing.T) {
	app := newTestApp(t)
	sid := app.login(t, "42")

	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/cart/items", sid, AddCartRequest{ProductID: 11, UnitPrice: 5000}).Code)
	orderID := decode[CheckoutResponse](t, app.do(t, http.MethodPost, "/checkout", sid, nil)).OrderID.String()
	require.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/checkout/"+orderID, sid, nil).Code)

	app.backend.failPay = true
	rec := app.do(t, http.MethodPost, "/checkout/"+orderID+"/pay", sid, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = app.do(t, http.MethodGet, "/checkout/"+orderID, sid, nil)
	assert.Equal(t, model.CheckoutStateReviewing, decode[CheckoutResponse](t, rec).State)

	app.backend.failPay = false
	rec = app.do(t, http.MethodPost, "/checkout/"+orderID+"/pay", sid, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// Test: 他のユーザーの注文は404
func TestCheckout_OtherUser(t *testing.T) {
	app := newTestApp(t)
	owner := app.login(t, "42")
	other := app.login(t, "43")

	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/cart/items", owner, AddCartRequest{ProductID: 10, UnitPrice: 10000}).Code)
	orderID := decode[CheckoutResponse](t, app.do(t, http.MethodPost, "/checkout", owner, nil)).OrderID.String()

	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/checkout/"+orderID, other, nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/review/"+orderID, other, nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/checkout/nope", owner, nil).Code)
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	sid := app.login(t, "42")

	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, "/session", sid, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/cart", sid, nil).Code)
}

// Test: 他の鍵で署名した同じsubのトークンでは、他人の注文も履歴も読めない
func TestForgedSubject_CannotReadOwnersData(t *testing.T) {
	app := newTestApp(t)
	victim := app.login(t, "42")

	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/cart/items", victim, AddCartRequest{ProductID: 10, UnitPrice: 10000}).Code)
	orderID := decode[CheckoutResponse](t, app.do(t, http.MethodPost, "/checkout", victim, nil)).OrderID.String()
	require.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/checkout/"+orderID, victim, nil).Code)
	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/checkout/"+orderID+"/pay", victim, nil).Code)

	forged := makeTokenWithKey(t, "42", "attacker")

	//バックエンドが拒否するトークンではセッションを作らない
	rec := app.postSession(t, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())

	//バックエンドが落ちていてログインが通っても、持ち主にはなれない
	app.backend.listDown = true
	rec = app.postSession(t, forged)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sid := decode[usecase.LoginOutput](t, rec).SessionID

	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/checkout/"+orderID, sid, nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/review/"+orderID, sid, nil).Code)

	rec = app.do(t, http.MethodGet, "/session/history", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, l := range decode[[]model.AuditLog](t, rec) {
		assert.NotEqual(t, orderID, l.ResourceID)
		assert.NotEqual(t, model.AuditActionPay, l.Action)
	}
}
