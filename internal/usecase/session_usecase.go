package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/session"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type SessionConfig struct {
	//空なら署名は検証しない
	JWTSecret []byte
	//expの無いトークンのセッション寿命
	DefaultTTL time.Duration
	//0なら定期取得しない
	RefreshInterval time.Duration
	Policy          CartPolicy
}

// SessionUsecase はログイン中セッションごとのCartStoreを管理する。
// 登録簿（redis）に残しておき、ゲートウェイ再起動後も作り直せるようにする。
type SessionUsecase struct {
	registry repository.SessionRepository
	cart     repository.CartRepository
	audit    repository.AuditLogRepository
	ids      IDGenerator
	clock    Clock
	logger   *zap.Logger
	cfg      SessionConfig

	//定期取得の寿命（Shutdownで止める）
	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	stores map[string]*CartStore
}

func NewSessionUsecase(
	registry repository.SessionRepository,
	cart repository.CartRepository,
	audit repository.AuditLogRepository,
	ids IDGenerator,
	clock Clock,
	cfg SessionConfig,
	logger *zap.Logger,
) *SessionUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &SessionUsecase{
		registry: registry,
		cart:     cart,
		audit:    audit,
		ids:      ids,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
		baseCtx:  ctx,
		cancel:   cancel,
		stores:   map[string]*CartStore{},
	}
}

type LoginOutput struct {
	SessionID string           `json:"session_id"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	Lines     []model.CartLine `json:"lines"`
	Policy    CartPolicy       `json:"policy"`
}

// Login はbearerトークンからセッションを作り、カートを取得する。
// バックエンドがトークンを拒否したら401。それ以外の初回取得の失敗はログだけ（空のカートで始める）。
func (u *SessionUsecase) Login(ctx context.Context, rawToken string) (LoginOutput, error) {
	now := u.now()
	cred, err := session.Parse(rawToken, u.cfg.JWTSecret, now)
	if err != nil {
		return LoginOutput{}, err
	}

	sessionID := u.ids.NewID()
	store := u.newStore(cred)
	if err := store.Refresh(ctx); err != nil {
		if be, ok := repository.AsBackendError(err); ok && be.Unauthorized() {
			store.Close()
			u.logger.Warn("token rejected by backend", zap.String("fingerprint", cred.Fingerprint()))
			return LoginOutput{}, ErrUnauthorized
		}
		u.logger.Warn("initial cart fetch failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	rec := repository.SessionRecord{
		SessionID: sessionID,
		Token:     cred.Token,
		CreatedAt: now,
	}
	if err := u.registry.Save(ctx, rec, cred.TTL(now, u.cfg.DefaultTTL)); err != nil {
		store.Close()
		u.logger.Error("session save failed", zap.Error(err))
		return LoginOutput{}, err
	}

	u.mu.Lock()
	u.stores[sessionID] = store
	u.mu.Unlock()
	store.StartAutoRefresh(u.baseCtx, u.cfg.RefreshInterval)

	u.logger.Info("session opened",
		zap.String("session_id", sessionID),
		zap.String("owner", cred.OwnerKey()),
	)

	out := LoginOutput{
		SessionID: sessionID,
		Lines:     store.Lines(),
		Policy:    store.Policy(),
	}
	if !cred.ExpiresAt.IsZero() {
		exp := cred.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out, nil
}

// Resolve はセッションIDからCartStoreを返す。
// メモリに無ければ登録簿のトークンから作り直す。
func (u *SessionUsecase) Resolve(ctx context.Context, sessionID string) (*CartStore, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrUnauthorized
	}

	u.mu.Lock()
	store, ok := u.stores[sessionID]
	u.mu.Unlock()

	if ok {
		if store.Credential().Expired(u.now()) {
			_ = u.Logout(ctx, sessionID)
			return nil, session.ErrExpiredToken
		}
		return store, nil
	}

	rec, err := u.registry.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	cred, err := session.Parse(rec.Token, u.cfg.JWTSecret, u.now())
	if err != nil {
		//使えないトークンは登録簿から消す
		if derr := u.registry.Delete(ctx, sessionID); derr != nil && !errors.Is(derr, repository.ErrNotFound) {
			u.logger.Warn("session delete failed", zap.String("session_id", sessionID), zap.Error(derr))
		}
		return nil, err
	}

	fresh := u.newStore(cred)

	u.mu.Lock()
	if existing, ok := u.stores[sessionID]; ok {
		u.mu.Unlock()
		fresh.Close()
		return existing, nil
	}
	u.stores[sessionID] = fresh
	u.mu.Unlock()

	if err := fresh.Refresh(ctx); err != nil {
		u.logger.Warn("cart fetch after restore failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	fresh.StartAutoRefresh(u.baseCtx, u.cfg.RefreshInterval)

	u.logger.Info("session restored", zap.String("session_id", sessionID))
	return fresh, nil
}

// Logout はストアを閉じて登録簿から消す。
func (u *SessionUsecase) Logout(ctx context.Context, sessionID string) error {
	u.mu.Lock()
	store, ok := u.stores[sessionID]
	delete(u.stores, sessionID)
	u.mu.Unlock()

	if ok {
		store.Close()
	}

	if err := u.registry.Delete(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	u.logger.Info("session closed", zap.String("session_id", sessionID))
	return nil
}

// Shutdown はメモリ上のストアだけ閉じる（登録簿は残す）。
func (u *SessionUsecase) Shutdown() {
	u.cancel()

	u.mu.Lock()
	stores := u.stores
	u.stores = map[string]*CartStore{}
	u.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}

// History はログイン中のユーザーの操作ログ（新しい順）。
func (u *SessionUsecase) History(ctx context.Context, cred session.Credential, limit, offset int) ([]model.AuditLog, error) {
	if u.audit == nil {
		return []model.AuditLog{}, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		return nil, ErrValidation
	}

	owner := cred.OwnerKey()
	return u.audit.List(ctx, repository.AuditLogFilter{
		OwnerKey: &owner,
		Limit:    limit,
		Offset:   offset,
	})
}

func (u *SessionUsecase) newStore(cred session.Credential) *CartStore {
	return NewCartStore(cred, u.cart, CartStoreOptions{
		Policy: u.cfg.Policy,
		Logger: u.logger,
		Audit:  u.audit,
		Clock:  u.clock,
	})
}

func (u *SessionUsecase) now() time.Time {
	if u.clock == nil {
		return time.Now()
	}
	return u.clock.Now()
}
