package payments

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/models"
)

// Store is the payment persistence boundary.
type Store interface {
	GetRide(ctx context.Context, id uint) (*models.Ride, error)
	// CreatePayment inserts a pending payment; a duplicate idempotency
	// key resolves to the existing row. The bool reports a fresh insert.
	CreatePayment(ctx context.Context, payment *models.Payment) (bool, error)
	GetPayment(ctx context.Context, id uint) (*models.Payment, error)
	LatestPaymentByRide(ctx context.Context, rideID uint) (*models.Payment, error)
	// SetPaymentStatus advances a payment. Rows already in a terminal
	// status are left untouched and reported as a conflict.
	SetPaymentStatus(ctx context.Context, id uint, status string, pspRef *string) error
}

// GormStore implements Store on PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetRide(ctx context.Context, id uint) (*models.Ride, error) {
	var ride models.Ride
	if err := s.db.WithContext(ctx).First(&ride, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("ride %d", id)
		}
		return nil, err
	}
	return &ride, nil
}

func (s *GormStore) CreatePayment(ctx context.Context, payment *models.Payment) (bool, error) {
	if payment.IdempotencyKey == nil {
		return true, s.db.WithContext(ctx).Create(payment).Error
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		var existing models.Payment
		if err := s.db.WithContext(ctx).
			Where("idempotency_key = ?", *payment.IdempotencyKey).
			First(&existing).Error; err != nil {
			return false, err
		}
		*payment = existing
		return false, nil
	}
	return true, nil
}

func (s *GormStore) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("payment %d", id)
		}
		return nil, err
	}
	return &payment, nil
}

func (s *GormStore) LatestPaymentByRide(ctx context.Context, rideID uint) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Where("ride_id = ?", rideID).
		Order("id DESC").
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("no payment for ride %d", rideID)
		}
		return nil, err
	}
	return &payment, nil
}

func (s *GormStore) SetPaymentStatus(ctx context.Context, id uint, status string, pspRef *string) error {
	updates := map[string]interface{}{"status": status}
	if pspRef != nil {
		updates["psp_ref"] = *pspRef
	}
	// The guard keeps settlement single-shot: a payment that already
	// reached success or failed can never move again.
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status NOT IN ?", id, []string{models.PaymentStatusSuccess, models.PaymentStatusFailed}).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict("payment %d is already settled", id)
	}
	return nil
}
