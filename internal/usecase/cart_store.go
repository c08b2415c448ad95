package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/domain/pricing"
	"storefront/internal/repository"
	"storefront/internal/session"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CartPolicy はローカル反映のタイミング。
type CartPolicy string

const (
	// サーバーが2xxを返してから反映（既定）
	ConfirmPolicy CartPolicy = "confirm"
	// 先に反映して、失敗したら元に戻す
	OptimisticPolicy CartPolicy = "optimistic"
)

func ParseCartPolicy(s string) (CartPolicy, error) {
	switch CartPolicy(s) {
	case "", ConfirmPolicy:
		return ConfirmPolicy, nil
	case OptimisticPolicy:
		return OptimisticPolicy, nil
	}
	return "", ErrValidation
}

type CartStoreOptions struct {
	Policy CartPolicy
	Logger *zap.Logger
	Audit  repository.AuditLogRepository
	Clock  Clock
}

// CartStore はセッション中のカートの写し。
// 正はリモートのカートサービスで、ここは楽観的な表示用の状態を持つ。
//
// 変更系はすべて商品ごとのバージョンを振ってからリモートを呼ぶ。
// 応答が返ったときに新しいリクエストが出ていれば、その応答は捨てて
// 最後のリクエストが終わった時点でサーバーから取り直す。
type CartStore struct {
	cred    session.Credential
	remote  repository.CartRepository
	policy  CartPolicy
	logger  *zap.Logger
	journal journal

	mu           sync.Mutex
	cart         model.Cart
	versions     map[int64]uint64
	generation   uint64
	inflight     int
	needsRefresh bool
	lastErr      error
	closed       bool

	refreshGroup singleflight.Group
	done         chan struct{}
	closeOnce    sync.Once
}

func NewCartStore(cred session.Credential, remote repository.CartRepository, opts CartStoreOptions) *CartStore {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := opts.Policy
	if policy == "" {
		policy = ConfirmPolicy
	}

	return &CartStore{
		cred:     cred,
		remote:   remote,
		policy:   policy,
		logger:   logger.With(zap.String("owner", cred.OwnerKey())),
		journal:  journal{repo: opts.Audit, logger: logger, clock: opts.Clock},
		versions: map[int64]uint64{},
		done:     make(chan struct{}),
	}
}

func (s *CartStore) Credential() session.Credential {
	return s.cred
}

func (s *CartStore) Policy() CartPolicy {
	return s.policy
}

// Lines は明細のコピー（追加順）。
func (s *CartStore) Lines() []model.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone().Lines
}

func (s *CartStore) Line(productID int64) (model.CartLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.cart.IndexOf(productID)
	if idx < 0 {
		return model.CartLine{}, false
	}
	return s.cart.Lines[idx], true
}

func (s *CartStore) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.IsEmpty()
}

func (s *CartStore) Subtotal() int64 {
	return pricing.ComputeTotals(s.Lines(), 0, 0, false).Subtotal
}

// LastError は直近のリモート失敗（取得に成功すると消える）。
func (s *CartStore) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Refresh はサーバーの明細で置き換える（fetchCart）。
// 失敗時は今の状態を残す。同時に呼ばれたらまとめて1回だけ取りに行く。
func (s *CartStore) Refresh(ctx context.Context) error {
	_, err, _ := s.refreshGroup.Do("cart", func() (interface{}, error) {
		return nil, s.refresh(ctx)
	})
	return err
}

func (s *CartStore) refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	gen := s.generation
	s.mu.Unlock()

	lines, err := s.remote.List(ctx, s.cred)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.lastErr = err
		s.logger.Error("fetch cart failed", zap.Error(err))
		s.journal.record(ctx, s.cred, journalEntry{
			action:       model.AuditActionCartRefresh,
			resourceType: model.AuditResourceCart,
			resourceID:   "cart",
			err:          err,
		})
		return err
	}

	// 取得中に変更が出ていたら古い一覧なので捨てる
	if s.generation != gen || s.inflight > 0 {
		s.needsRefresh = true
		return ErrSuperseded
	}

	s.cart = model.Cart{Lines: normalizeLines(lines)}
	s.lastErr = nil
	return nil
}

// AddToCart は同じ商品なら数量+1、無ければ数量1で追加する。
// リモートにはproduct_idだけを送る。
func (s *CartStore) AddToCart(ctx context.Context, item model.CartLine) error {
	if item.ProductID <= 0 {
		return ErrValidation
	}

	return s.mutate(ctx, item.ProductID, model.AuditActionCartAdd, func(model.Cart) (mutation, error) {
		return mutation{
			apply: func(c *model.Cart) { addLine(c, item) },
			call: func(ctx context.Context) error {
				return s.remote.Add(ctx, s.cred, item.ProductID)
			},
		}, nil
	})
}

// RemoveFromCart は明細を消し、リモートには数量0を送る。
func (s *CartStore) RemoveFromCart(ctx context.Context, productID int64) error {
	if productID <= 0 {
		return ErrValidation
	}

	return s.mutate(ctx, productID, model.AuditActionCartRemove, func(model.Cart) (mutation, error) {
		return mutation{
			apply: func(c *model.Cart) { removeLine(c, productID) },
			call: func(ctx context.Context) error {
				return s.remote.SetQuantity(ctx, s.cred, productID, 0)
			},
		}, nil
	})
}

// UpdateQuantity は呼ばれた時点の最新の数量にdeltaを足す。
// 1未満になるならリクエストは送らず、状態も変えない。
func (s *CartStore) UpdateQuantity(ctx context.Context, productID int64, delta int64) error {
	if productID <= 0 || delta == 0 {
		return ErrValidation
	}

	return s.mutate(ctx, productID, model.AuditActionCartUpdateQuantity, func(c model.Cart) (mutation, error) {
		idx := c.IndexOf(productID)
		if idx < 0 {
			return mutation{}, ErrLineNotFound
		}

		newQuantity := c.Lines[idx].Quantity + delta
		if newQuantity < 1 {
			return mutation{}, ErrQuantityFloor
		}

		return mutation{
			apply: func(c *model.Cart) { setQuantity(c, productID, newQuantity) },
			call: func(ctx context.Context) error {
				return s.remote.SetQuantity(ctx, s.cred, productID, newQuantity)
			},
		}, nil
	})
}

// ClearCart はローカルだけ空にする（リモートは呼ばない）。
// 注文作成後に呼ぶ。飛んでいるリクエストの応答は捨てる。
func (s *CartStore) ClearCart() {
	s.mu.Lock()
	before := s.cart.Clone()
	s.cart = model.Cart{}
	s.generation++
	for pid := range s.versions {
		s.versions[pid]++
	}
	s.mu.Unlock()

	s.journal.record(context.Background(), s.cred, journalEntry{
		action:       model.AuditActionCartClear,
		resourceType: model.AuditResourceCart,
		resourceID:   "cart",
		before:       before.Lines,
	})
}

// StartAutoRefresh は一定間隔でサーバーから取り直す（サーバー優先）。
// ctxが終わるかCloseされるまで動く。
func (s *CartStore) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-t.C:
				err := s.Refresh(ctx)
				if err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrStoreClosed) {
					s.logger.Warn("auto refresh failed", zap.Error(err))
				}
			}
		}
	}()
}

// Close はログアウト時に呼ぶ。以降の操作はErrStoreClosed。
func (s *CartStore) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cart = model.Cart{}
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *CartStore) Done() <-chan struct{} {
	return s.done
}

// mutation はローカルへの反映とリモート呼び出しの組。
type mutation struct {
	apply func(c *model.Cart)
	call  func(ctx context.Context) error
}

func (s *CartStore) mutate(ctx context.Context, productID int64, action model.AuditAction, prepare func(c model.Cart) (mutation, error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}

	// 最新の状態を読んで判定する（古いスナップショットは使わない）
	m, err := prepare(s.cart)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	before, existed, index := lineSnapshot(s.cart, productID)
	s.versions[productID]++
	ver := s.versions[productID]
	s.generation++
	s.inflight++
	if s.policy == OptimisticPolicy {
		m.apply(&s.cart)
	}
	s.mu.Unlock()

	callErr := m.call(ctx)

	s.mu.Lock()
	s.inflight--
	stale := s.versions[productID] != ver || s.closed

	var out error
	var journalErr error
	switch {
	case callErr != nil && !stale:
		if s.policy == OptimisticPolicy {
			restoreLine(&s.cart, productID, before, existed, index)
		}
		s.lastErr = callErr
		out = callErr
	case callErr != nil:
		s.needsRefresh = true
		s.lastErr = callErr
		out = callErr
	case stale:
		// リモートには反映済み。表示は取り直しで合わせるので呼び出し側には成功で返す
		s.needsRefresh = true
		journalErr = ErrSuperseded
		if s.closed {
			out = ErrStoreClosed
		}
	default:
		if s.policy == ConfirmPolicy {
			m.apply(&s.cart)
		}
	}

	if journalErr == nil {
		journalErr = out
	}
	after, hasAfter, _ := lineSnapshot(s.cart, productID)
	doRefresh := s.takeRefreshLocked()
	s.mu.Unlock()

	if callErr != nil {
		s.logger.Error("cart remote call failed",
			zap.String("action", string(action)),
			zap.Int64("product_id", productID),
			zap.Error(callErr),
		)
	}
	s.journal.record(ctx, s.cred, journalEntry{
		action:       action,
		resourceType: model.AuditResourceCartLine,
		resourceID:   strconv.FormatInt(productID, 10),
		before:       lineOrNil(before, existed),
		after:        lineOrNil(after, hasAfter),
		err:          journalErr,
	})

	// 最後のリクエストが終わったらサーバーの状態に合わせる
	if doRefresh {
		s.reconcile(ctx)
	}
	return out
}

// reconcile は変更の後にサーバーから取り直す。
// 変更前から飛んでいた取得に相乗りして捨てられた場合は、もう一度だけ取りに行く。
func (s *CartStore) reconcile(ctx context.Context) {
	err := s.Refresh(ctx)
	if errors.Is(err, ErrSuperseded) {
		s.mu.Lock()
		again := s.takeRefreshLocked()
		s.mu.Unlock()
		if again {
			err = s.Refresh(ctx)
		}
	}
	if err != nil && !errors.Is(err, ErrSuperseded) {
		s.logger.Warn("reconcile after stale response failed", zap.Error(err))
	}
}

// takeRefreshLocked は取り直しが必要で、飛んでいる変更が無ければフラグを落としてtrue。
// s.muを持った状態で呼ぶ。
func (s *CartStore) takeRefreshLocked() bool {
	if !s.needsRefresh || s.inflight > 0 || s.closed {
		return false
	}
	s.needsRefresh = false
	return true
}

func addLine(c *model.Cart, item model.CartLine) {
	if idx := c.IndexOf(item.ProductID); idx >= 0 {
		c.Lines[idx].Quantity++
		return
	}
	if item.ID == 0 {
		item.ID = item.ProductID
	}
	item.Quantity = 1
	c.Lines = append(c.Lines, item)
}

func removeLine(c *model.Cart, productID int64) {
	idx := c.IndexOf(productID)
	if idx < 0 {
		return
	}
	c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
}

func setQuantity(c *model.Cart, productID int64, quantity int64) {
	if idx := c.IndexOf(productID); idx >= 0 {
		c.Lines[idx].Quantity = quantity
	}
}

func lineSnapshot(c model.Cart, productID int64) (model.CartLine, bool, int) {
	idx := c.IndexOf(productID)
	if idx < 0 {
		return model.CartLine{}, false, -1
	}
	return c.Lines[idx], true, idx
}

// restoreLine は楽観的に変えた1行を変更前に戻す。
func restoreLine(c *model.Cart, productID int64, before model.CartLine, existed bool, index int) {
	idx := c.IndexOf(productID)
	switch {
	case !existed && idx >= 0:
		removeLine(c, productID)
	case existed && idx >= 0:
		c.Lines[idx] = before
	case existed:
		if index > len(c.Lines) {
			index = len(c.Lines)
		}
		c.Lines = append(c.Lines, model.CartLine{})
		copy(c.Lines[index+1:], c.Lines[index:])
		c.Lines[index] = before
	}
}

// normalizeLines はサーバーの一覧を1商品1行・数量1以上に揃える。
func normalizeLines(lines []model.CartLine) []model.CartLine {
	out := make([]model.CartLine, 0, len(lines))
	pos := map[int64]int{}
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		if i, ok := pos[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		if l.ID == 0 {
			l.ID = l.ProductID
		}
		pos[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

func lineOrNil(l model.CartLine, ok bool) *model.CartLine {
	if !ok {
		return nil
	}
	return &l
}
