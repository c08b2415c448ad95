package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// postgresの一意制約違反
const uniqueViolation = "23505"

type CheckoutSessionGormRepository struct {
	db *gorm.DB
}

// DI
func NewCheckoutSessionGormRepository(db *gorm.DB) *CheckoutSessionGormRepository {
	return &CheckoutSessionGormRepository{db: db}
}

var _ repo.CheckoutSessionRepository = (*CheckoutSessionGormRepository)(nil)

// 同じorder_idが既にあればErrConflict
func (r *CheckoutSessionGormRepository) Create(ctx context.Context, s model.CheckoutSession) (model.CheckoutSession, error) {
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		if isUniqueViolation(err) {
			return model.CheckoutSession{}, repo.ErrConflict
		}
		return model.CheckoutSession{}, err
	}
	return s, nil
}

func (r *CheckoutSessionGormRepository) FindByOrderID(ctx context.Context, orderID model.OrderID) (model.CheckoutSession, error) {
	var s model.CheckoutSession

	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&s).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CheckoutSession{}, repo.ErrNotFound
	}
	if err != nil {
		return model.CheckoutSession{}, err
	}
	return s, nil
}

// 状態・住所・保険・バウチャーを更新
func (r *CheckoutSessionGormRepository) Update(ctx context.Context, s model.CheckoutSession) error {
	res := r.db.WithContext(ctx).
		Model(&model.CheckoutSession{}).
		Where("order_id = ?", s.OrderID).
		Updates(map[string]interface{}{
			"state":             s.State,
			"address_id":        s.AddressID,
			"insurance_enabled": s.InsuranceEnabled,
			"voucher_code":      s.VoucherCode,
			"payment_unknown":   s.PaymentUnknown,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
