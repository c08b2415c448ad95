package usecase

import (
	"context"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/session"

	"github.com/stretchr/testify/mock"
)

// =====================
// リポジトリのモック
// =====================

type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) List(ctx context.Context, cred session.Credential) ([]model.CartLine, error) {
	args := m.Called(ctx, cred)
	lines, _ := args.Get(0).([]model.CartLine)
	return lines, args.Error(1)
}

func (m *MockCartRepository) Add(ctx context.Context, cred session.Credential, productID int64) error {
	args := m.Called(ctx, cred, productID)
	return args.Error(0)
}

func (m *MockCartRepository) SetQuantity(ctx context.Context, cred session.Credential, productID int64, quantity int64) error {
	args := m.Called(ctx, cred, productID, quantity)
	return args.Error(0)
}

var _ repository.CartRepository = (*MockCartRepository)(nil)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) CreateFromCart(ctx context.Context, cred session.Credential) (model.OrderID, error) {
	args := m.Called(ctx, cred)
	id, _ := args.Get(0).(model.OrderID)
	return id, args.Error(1)
}

func (m *MockOrderRepository) ListItems(ctx context.Context, cred session.Credential, orderID model.OrderID) ([]model.OrderItem, error) {
	args := m.Called(ctx, cred, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

func (m *MockOrderRepository) ApplyVoucher(ctx context.Context, cred session.Credential, invoiceNumber string, code string) error {
	args := m.Called(ctx, cred, invoiceNumber, code)
	return args.Error(0)
}

func (m *MockOrderRepository) InitiatePayment(ctx context.Context, cred session.Credential, orderID model.OrderID) error {
	args := m.Called(ctx, cred, orderID)
	return args.Error(0)
}

var _ repository.OrderRepository = (*MockOrderRepository)(nil)

type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) ListAddresses(ctx context.Context, cred session.Credential) ([]model.Address, error) {
	args := m.Called(ctx, cred)
	addrs, _ := args.Get(0).([]model.Address)
	return addrs, args.Error(1)
}

var _ repository.ProfileRepository = (*MockProfileRepository)(nil)

type MockCheckoutSessionRepository struct {
	mock.Mock
}

func (m *MockCheckoutSessionRepository) Create(ctx context.Context, s model.CheckoutSession) (model.CheckoutSession, error) {
	args := m.Called(ctx, s)
	if fn, ok := args.Get(0).(func(context.Context, model.CheckoutSession) model.CheckoutSession); ok {
		return fn(ctx, s), args.Error(1)
	}
	out, _ := args.Get(0).(model.CheckoutSession)
	return out, args.Error(1)
}

func (m *MockCheckoutSessionRepository) FindByOrderID(ctx context.Context, orderID model.OrderID) (model.CheckoutSession, error) {
	args := m.Called(ctx, orderID)
	out, _ := args.Get(0).(model.CheckoutSession)
	return out, args.Error(1)
}

func (m *MockCheckoutSessionRepository) Update(ctx context.Context, s model.CheckoutSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

var _ repository.CheckoutSessionRepository = (*MockCheckoutSessionRepository)(nil)

type MockAuditLogRepository struct {
	mock.Mock
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockAuditLogRepository) List(ctx context.Context, filter repository.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

var _ repository.AuditLogRepository = (*MockAuditLogRepository)(nil)

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Save(ctx context.Context, rec repository.SessionRecord, ttl time.Duration) error {
	args := m.Called(ctx, rec, ttl)
	return args.Error(0)
}

func (m *MockSessionRepository) Find(ctx context.Context, sessionID string) (repository.SessionRecord, error) {
	args := m.Called(ctx, sessionID)
	rec, _ := args.Get(0).(repository.SessionRecord)
	return rec, args.Error(1)
}

func (m *MockSessionRepository) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

var _ repository.SessionRepository = (*MockSessionRepository)(nil)

// =====================
// helper
// =====================

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqIDGenerator struct {
	ids []string
	i   int
}

func (g *seqIDGenerator) NewID() string {
	id := g.ids[g.i%len(g.ids)]
	g.i++
	return id
}

var testCred = session.Credential{Token: "tok-1", Subject: "42"}

func line(productID, unitPrice, quantity int64) model.CartLine {
	return model.CartLine{
		ID:          productID,
		ProductID:   productID,
		ProductName: "product",
		UnitPrice:   unitPrice,
		Quantity:    quantity,
	}
}
