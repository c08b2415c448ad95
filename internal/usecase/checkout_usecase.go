package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/domain/pricing"
	"storefront/internal/repository"
	"storefront/internal/session"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultViewIdleTTL = 30 * time.Minute

type CheckoutConfig struct {
	ShippingFee  int64
	InsuranceFee int64
	//これだけ触られなかった注文はメモリから外す（DBには残る）
	ViewIdleTTL time.Duration
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		ShippingFee:  pricing.DefaultShippingFee,
		InsuranceFee: pricing.DefaultInsuranceFee,
		ViewIdleTTL:  defaultViewIdleTTL,
	}
}

// 状態遷移表（ここに無い遷移はErrInvalidTransition）
var checkoutTransitions = map[model.CheckoutState][]model.CheckoutState{
	model.CheckoutStateCart:         {model.CheckoutStateOrderCreated},
	model.CheckoutStateOrderCreated: {model.CheckoutStateReviewing},
	model.CheckoutStateReviewing:    {model.CheckoutStateReviewing, model.CheckoutStatePaying},
	model.CheckoutStatePaying:       {model.CheckoutStateCompleted, model.CheckoutStateReviewing},
	model.CheckoutStateCompleted:    {},
}

func canTransition(from, to model.CheckoutState) bool {
	for _, s := range checkoutTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// 確認画面を開けるのは注文直後か確認中だけ。
// PAYING→REVIEWINGは支払い失敗のときだけ。
func reviewable(state model.CheckoutState) bool {
	return state == model.CheckoutStateOrderCreated || state == model.CheckoutStateReviewing
}

// CheckoutUsecase はカート→注文→確認→支払いの流れを進める。
// 注文ごとの状態はメモリに持ち、DBにも書く（再起動後はDBから戻す）。
type CheckoutUsecase struct {
	orders   repository.OrderRepository
	profile  repository.ProfileRepository
	sessions repository.CheckoutSessionRepository
	journal  journal
	logger   *zap.Logger
	clock    Clock
	cfg      CheckoutConfig

	mu    sync.Mutex
	views map[model.OrderID]*checkoutView
}

type checkoutView struct {
	mu        sync.Mutex
	session   model.CheckoutSession
	items     []model.OrderItem
	addresses []model.Address
	loaded    bool
	//最後の書き込みがDBに届いたか（届いていないものはメモリから外さない）
	persisted bool

	//CheckoutUsecase.muで守る
	touched time.Time
}

func NewCheckoutUsecase(
	orders repository.OrderRepository,
	profile repository.ProfileRepository,
	sessions repository.CheckoutSessionRepository,
	audit repository.AuditLogRepository,
	cfg CheckoutConfig,
	logger *zap.Logger,
	clock Clock,
) *CheckoutUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ViewIdleTTL <= 0 {
		cfg.ViewIdleTTL = defaultViewIdleTTL
	}
	return &CheckoutUsecase{
		orders:   orders,
		profile:  profile,
		sessions: sessions,
		journal:  journal{repo: audit, logger: logger, clock: clock},
		logger:   logger,
		clock:    clock,
		cfg:      cfg,
		views:    map[model.OrderID]*checkoutView{},
	}
}

type CheckoutOutput struct {
	OrderID           model.OrderID       `json:"order_id"`
	State             model.CheckoutState `json:"state"`
	Items             []model.OrderItem   `json:"items"`
	Addresses         []model.Address     `json:"addresses"`
	SelectedAddressID int64               `json:"selected_address_id"`
	InsuranceEnabled  bool                `json:"insurance_enabled"`
	VoucherCode       string              `json:"voucher_code,omitempty"`
	PaymentUnknown    bool                `json:"payment_unknown,omitempty"`
	Totals            pricing.Totals      `json:"totals"`
	Next              string              `json:"next,omitempty"`
}

// ProceedToCheckout はカートから注文を作る。
// 空のカートはリモートを呼ばずにErrCartEmpty。
func (u *CheckoutUsecase) ProceedToCheckout(ctx context.Context, cred session.Credential, store *CartStore) (CheckoutOutput, error) {
	if store == nil || store.IsEmpty() {
		return CheckoutOutput{}, ErrCartEmpty
	}
	if !canTransition(model.CheckoutStateCart, model.CheckoutStateOrderCreated) {
		return CheckoutOutput{}, ErrInvalidTransition
	}

	before := store.Lines()
	orderID, err := u.orders.CreateFromCart(ctx, cred)
	if err != nil {
		u.logger.Error("create order failed", zap.Error(err))
		u.journal.record(ctx, cred, journalEntry{
			action:       model.AuditActionCreateOrder,
			resourceType: model.AuditResourceCart,
			resourceID:   "cart",
			before:       before,
			err:          err,
		})
		return CheckoutOutput{}, err
	}

	//サーバー側でカートは空になっている
	store.ClearCart()

	now := u.now()
	s := model.CheckoutSession{
		OrderID:          orderID,
		OwnerKey:         cred.OwnerKey(),
		State:            model.CheckoutStateOrderCreated,
		InsuranceEnabled: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	persisted := true
	if saved, err := u.sessions.Create(ctx, s); err != nil {
		persisted = false
		u.logger.Warn("persist checkout session failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
	} else {
		s = saved
	}

	v := &checkoutView{session: s, persisted: persisted}
	u.mu.Lock()
	u.pruneLocked(now)
	v.touched = now
	u.views[orderID] = v
	u.mu.Unlock()

	u.journal.record(ctx, cred, journalEntry{
		action:       model.AuditActionCreateOrder,
		resourceType: model.AuditResourceOrder,
		resourceID:   orderID.String(),
		before:       before,
		after:        s,
	})

	v.mu.Lock()
	defer v.mu.Unlock()
	out := u.output(v)
	out.Next = "/checkout/" + orderID.String()
	return out, nil
}

// OpenReview は注文明細と配送先を並行で取得して確認画面の状態にする。
func (u *CheckoutUsecase) OpenReview(ctx context.Context, cred session.Credential, orderID model.OrderID) (CheckoutOutput, error) {
	v, err := u.view(ctx, cred, orderID)
	if err != nil {
		return CheckoutOutput{}, err
	}

	v.mu.Lock()
	state := v.session.State
	v.mu.Unlock()
	if !reviewable(state) {
		return CheckoutOutput{}, ErrInvalidTransition
	}

	items, addrs, err := u.fetchReview(ctx, cred, orderID)
	if err != nil {
		return CheckoutOutput{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	//取得中に支払いへ進んでいたら触らない
	if !reviewable(v.session.State) {
		return CheckoutOutput{}, ErrInvalidTransition
	}

	v.items = items
	v.addresses = addrs
	v.loaded = true
	if !hasAddress(addrs, v.session.AddressID) {
		v.session.AddressID = 0
		if len(addrs) > 0 {
			v.session.AddressID = addrs[0].ID
		}
	}
	v.session.State = model.CheckoutStateReviewing
	u.persist(ctx, v)

	return u.output(v), nil
}

// SelectAddress は取得済みの配送先から選ぶ。
func (u *CheckoutUsecase) SelectAddress(ctx context.Context, cred session.Credential, orderID model.OrderID, addressID int64) (CheckoutOutput, error) {
	v, err := u.reviewing(ctx, cred, orderID)
	if err != nil {
		return CheckoutOutput{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.session.State != model.CheckoutStateReviewing {
		return CheckoutOutput{}, ErrInvalidTransition
	}
	if !hasAddress(v.addresses, addressID) {
		return CheckoutOutput{}, ErrValidation
	}
	v.session.AddressID = addressID
	u.persist(ctx, v)

	return u.output(v), nil
}

func (u *CheckoutUsecase) SetInsurance(ctx context.Context, cred session.Credential, orderID model.OrderID, enabled bool) (CheckoutOutput, error) {
	v, err := u.reviewing(ctx, cred, orderID)
	if err != nil {
		return CheckoutOutput{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.session.State != model.CheckoutStateReviewing {
		return CheckoutOutput{}, ErrInvalidTransition
	}
	v.session.InsuranceEnabled = enabled
	u.persist(ctx, v)

	return u.output(v), nil
}

// ApplyVoucher は注文の請求番号にバウチャーを当てて、明細を取り直す。
// 失敗時は明細をそのまま残す。
func (u *CheckoutUsecase) ApplyVoucher(ctx context.Context, cred session.Credential, orderID model.OrderID, code string) (CheckoutOutput, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return CheckoutOutput{}, ErrValidation
	}

	v, err := u.reviewing(ctx, cred, orderID)
	if err != nil {
		return CheckoutOutput{}, err
	}

	v.mu.Lock()
	if v.session.State != model.CheckoutStateReviewing {
		v.mu.Unlock()
		return CheckoutOutput{}, ErrInvalidTransition
	}
	invoice := model.Order{ID: orderID, Items: v.items}.InvoiceNumber()
	v.mu.Unlock()

	if invoice == "" {
		return CheckoutOutput{}, ErrNoInvoice
	}

	err = u.orders.ApplyVoucher(ctx, cred, invoice, code)
	u.journal.record(ctx, cred, journalEntry{
		action:       model.AuditActionApplyVoucher,
		resourceType: model.AuditResourceOrder,
		resourceID:   orderID.String(),
		after:        map[string]string{"invoice_number": invoice, "kode_voucher": code},
		err:          err,
	})
	if err != nil {
		u.logger.Warn("apply voucher failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return CheckoutOutput{}, err
	}

	//割引後の金額を取り直す（失敗しても適用は済んでいる）
	items, ferr := u.orders.ListItems(ctx, cred, orderID)
	if ferr != nil {
		u.logger.Warn("refetch order items after voucher failed",
			zap.String("order_id", orderID.String()),
			zap.Error(ferr),
		)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if ferr == nil {
		v.items = items
	}
	v.session.VoucherCode = code
	u.persist(ctx, v)

	return u.output(v), nil
}

// Totals は今の明細・送料・保険の設定から合計を出す。
func (u *CheckoutUsecase) Totals(ctx context.Context, cred session.Credential, orderID model.OrderID) (pricing.Totals, error) {
	v, err := u.view(ctx, cred, orderID)
	if err != nil {
		return pricing.Totals{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return u.totals(v), nil
}

// Pay は確認画面からのみ。支払い中はPAYINGで、成功でCOMPLETED、
// 失敗でREVIEWINGに戻す（自動で再試行はしない）。
// 完了した注文はメモリから外す（以降はDBから読む）。
func (u *CheckoutUsecase) Pay(ctx context.Context, cred session.Credential, orderID model.OrderID) (CheckoutOutput, error) {
	v, err := u.view(ctx, cred, orderID)
	if err != nil {
		return CheckoutOutput{}, err
	}

	v.mu.Lock()
	if v.session.State != model.CheckoutStateReviewing || !canTransition(v.session.State, model.CheckoutStatePaying) {
		v.mu.Unlock()
		return CheckoutOutput{}, ErrInvalidTransition
	}
	v.session.State = model.CheckoutStatePaying
	u.persist(ctx, v)
	v.mu.Unlock()

	err = u.orders.InitiatePayment(ctx, cred, orderID)

	v.mu.Lock()
	v.session.PaymentUnknown = false

	u.journal.record(ctx, cred, journalEntry{
		action:       model.AuditActionPay,
		resourceType: model.AuditResourceOrder,
		resourceID:   orderID.String(),
		after:        u.totals(v),
		err:          err,
	})

	if err != nil {
		u.logger.Error("payment failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		v.session.State = model.CheckoutStateReviewing
		u.persist(ctx, v)
		v.mu.Unlock()
		return CheckoutOutput{}, err
	}

	v.session.State = model.CheckoutStateCompleted
	u.persist(ctx, v)
	out := u.output(v)
	persisted := v.persisted
	v.mu.Unlock()

	if persisted {
		u.mu.Lock()
		if u.views[orderID] == v {
			delete(u.views, orderID)
		}
		u.mu.Unlock()
	}

	out.Next = "/review/" + orderID.String()
	return out, nil
}

// Get はチェックアウトの現在の状態。
func (u *CheckoutUsecase) Get(ctx context.Context, cred session.Credential, orderID model.OrderID) (CheckoutOutput, error) {
	v, err := u.view(ctx, cred, orderID)
	if err != nil {
		return CheckoutOutput{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return u.output(v), nil
}

// ReviewItems は評価画面用に購入した明細を取る。
func (u *CheckoutUsecase) ReviewItems(ctx context.Context, cred session.Credential, orderID model.OrderID) ([]model.OrderItem, error) {
	if _, err := u.view(ctx, cred, orderID); err != nil {
		return nil, err
	}
	return u.orders.ListItems(ctx, cred, orderID)
}

// view はメモリから、無ければDBから注文の状態を取る。
// 他人の注文は存在しない扱い。
func (u *CheckoutUsecase) view(ctx context.Context, cred session.Credential, orderID model.OrderID) (*checkoutView, error) {
	if strings.TrimSpace(orderID.String()) == "" {
		return nil, ErrValidation
	}

	now := u.now()
	u.mu.Lock()
	v, ok := u.views[orderID]
	if ok {
		v.touched = now
	}
	u.mu.Unlock()

	if !ok {
		s, err := u.sessions.FindByOrderID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}

		u.mu.Lock()
		restored := false
		if existing, found := u.views[orderID]; found {
			v = existing
		} else {
			u.pruneLocked(now)
			v = &checkoutView{session: s, persisted: true}
			u.views[orderID] = v
			restored = true
		}
		v.touched = now
		u.mu.Unlock()

		if restored {
			u.recoverPayment(ctx, v)
		}
	}

	v.mu.Lock()
	owner := v.session.OwnerKey
	v.mu.Unlock()
	if owner != cred.OwnerKey() {
		return nil, ErrOrderNotFound
	}
	return v, nil
}

// recoverPayment はDBにPAYINGのまま残った注文（支払い中に落ちた）を確認画面に戻す。
// 結果は分からないのでPaymentUnknownを立てて、利用者に確かめてもらう。
func (u *CheckoutUsecase) recoverPayment(ctx context.Context, v *checkoutView) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.session.State != model.CheckoutStatePaying {
		return
	}
	u.logger.Warn("payment outcome unknown after restart",
		zap.String("order_id", v.session.OrderID.String()),
	)
	v.session.State = model.CheckoutStateReviewing
	v.session.PaymentUnknown = true
	u.persist(ctx, v)
}

// pruneLocked はしばらく触られていない注文をメモリから外す。
// 支払い中とDBに書けていないものは残す。u.muを持った状態で呼ぶ。
func (u *CheckoutUsecase) pruneLocked(now time.Time) {
	for id, v := range u.views {
		if now.Sub(v.touched) < u.cfg.ViewIdleTTL {
			continue
		}
		//使用中なら外さない
		if !v.mu.TryLock() {
			continue
		}
		if v.persisted && v.session.State != model.CheckoutStatePaying {
			delete(u.views, id)
		}
		v.mu.Unlock()
	}
}

// reviewing は確認画面の操作用。再起動後で明細が無ければ取り直す。
func (u *CheckoutUsecase) reviewing(ctx context.Context, cred session.Credential, orderID model.OrderID) (*checkoutView, error) {
	v, err := u.view(ctx, cred, orderID)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	loaded := v.loaded
	state := v.session.State
	v.mu.Unlock()

	if state != model.CheckoutStateReviewing {
		return nil, ErrInvalidTransition
	}
	if loaded {
		return v, nil
	}

	items, addrs, err := u.fetchReview(ctx, cred, orderID)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	if !v.loaded {
		v.items = items
		v.addresses = addrs
		v.loaded = true
	}
	v.mu.Unlock()
	return v, nil
}

func (u *CheckoutUsecase) fetchReview(ctx context.Context, cred session.Credential, orderID model.OrderID) ([]model.OrderItem, []model.Address, error) {
	var (
		items []model.OrderItem
		addrs []model.Address
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = u.orders.ListItems(gctx, cred, orderID)
		return err
	})
	g.Go(func() error {
		var err error
		addrs, err = u.profile.ListAddresses(gctx, cred)
		return err
	})
	if err := g.Wait(); err != nil {
		u.logger.Error("load review failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return nil, nil, err
	}
	return items, addrs, nil
}

// persist はDBに書く。失敗してもメモリの状態で続ける。
// v.muを持った状態で呼ぶ。
func (u *CheckoutUsecase) persist(ctx context.Context, v *checkoutView) {
	v.session.UpdatedAt = u.now()
	err := u.sessions.Update(context.WithoutCancel(ctx), v.session)
	v.persisted = err == nil
	if err != nil {
		u.logger.Warn("persist checkout session failed",
			zap.String("order_id", v.session.OrderID.String()),
			zap.String("state", string(v.session.State)),
			zap.Error(err),
		)
	}
}

func (u *CheckoutUsecase) totals(v *checkoutView) pricing.Totals {
	return pricing.ComputeOrderTotals(v.items, u.cfg.ShippingFee, u.cfg.InsuranceFee, v.session.InsuranceEnabled)
}

func (u *CheckoutUsecase) output(v *checkoutView) CheckoutOutput {
	items := make([]model.OrderItem, len(v.items))
	copy(items, v.items)
	addrs := make([]model.Address, len(v.addresses))
	copy(addrs, v.addresses)

	return CheckoutOutput{
		OrderID:           v.session.OrderID,
		State:             v.session.State,
		Items:             items,
		Addresses:         addrs,
		SelectedAddressID: v.session.AddressID,
		InsuranceEnabled:  v.session.InsuranceEnabled,
		VoucherCode:       v.session.VoucherCode,
		PaymentUnknown:    v.session.PaymentUnknown,
		Totals:            u.totals(v),
	}
}

func (u *CheckoutUsecase) now() time.Time {
	if u.clock == nil {
		return time.Now()
	}
	return u.clock.Now()
}

func hasAddress(addrs []model.Address, id int64) bool {
	if id == 0 {
		return false
	}
	for _, a := range addrs {
		if a.ID == id {
			return true
		}
	}
	return false
}
