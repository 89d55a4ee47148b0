package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/models"
	"github.com/dheerajbunny/gocomet-ride/internal/observability"
	"github.com/dheerajbunny/gocomet-ride/internal/services"
)

// Idempotency replays a stored payment response for a client token.
type Idempotency interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, payload []byte) error
}

// SettleFunc decides a settlement attempt: the provider reference on
// success, ok=false on a declined charge.
type SettleFunc func(payment *models.Payment) (pspRef string, ok bool)

// DefaultSettle simulates a provider that clears 95 of 100 charges.
func DefaultSettle(_ *models.Payment) (string, bool) {
	if rand.Float64() < 0.95 {
		return fmt.Sprintf("psp_%012x", rand.Int63()&0xffffffffffff), true
	}
	return "", false
}

// Service accepts payments for completed rides and settles them off the
// request path through a small worker pool.
type Service struct {
	Store   Store
	Cache   *services.Cache
	Idem    Idempotency
	Settle  SettleFunc
	Workers int

	jobs chan uint
	wg   sync.WaitGroup
	once sync.Once
}

const settleQueueSize = 128

func (s *Service) init() {
	s.once.Do(func() {
		s.jobs = make(chan uint, settleQueueSize)
		if s.Settle == nil {
			s.Settle = DefaultSettle
		}
	})
}

// Start launches the settlement workers.
func (s *Service) Start(ctx context.Context) {
	s.init()
	workers := s.Workers
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-s.jobs:
					s.settle(ctx, id)
				}
			}
		}()
	}
}

// Wait blocks until the settlement workers have stopped.
func (s *Service) Wait() {
	s.wg.Wait()
}

// CreatePayment records a pending payment for a completed ride and
// queues settlement. A repeated idempotency key returns the original
// payment without charging twice.
func (s *Service) CreatePayment(ctx context.Context, rideID uint, idempotencyKey string) (*models.Payment, error) {
	s.init()

	if idempotencyKey != "" && s.Idem != nil {
		if payload, ok, err := s.Idem.Get(ctx, idempotencyKey); err != nil {
			log.Printf("idempotency lookup failed for %q: %v", idempotencyKey, err)
		} else if ok {
			var payment models.Payment
			if err := json.Unmarshal(payload, &payment); err == nil {
				return &payment, nil
			}
		}
	}

	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.RideStatusCompleted {
		return nil, apperrors.Conflict("ride %d is '%s', payment requires a completed ride", rideID, ride.Status)
	}

	amount := ride.EstimatedFare
	if ride.FinalFare != nil {
		amount = *ride.FinalFare
	}

	payment := &models.Payment{
		RideID:  rideID,
		RiderID: ride.RiderID,
		Amount:  amount,
		Method:  ride.PaymentMethod,
		Status:  models.PaymentStatusPending,
	}
	if idempotencyKey != "" {
		key := idempotencyKey
		payment.IdempotencyKey = &key
	}

	created, err := s.Store.CreatePayment(ctx, payment)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" && s.Idem != nil {
		if payload, err := json.Marshal(payment); err == nil {
			if err := s.Idem.Save(ctx, idempotencyKey, payload); err != nil {
				log.Printf("idempotency save failed for %q: %v", idempotencyKey, err)
			}
		}
	}

	if created {
		select {
		case s.jobs <- payment.ID:
		default:
			log.Printf("settlement queue full, payment %d left pending", payment.ID)
		}
	}
	return payment, nil
}

// PaymentForRide returns the latest payment on a ride, through the
// snapshot cache.
func (s *Service) PaymentForRide(ctx context.Context, rideID uint) (*models.Payment, error) {
	if s.Cache != nil {
		if payment, ok := s.Cache.GetPayment(ctx, rideID); ok {
			return payment, nil
		}
	}
	payment, err := s.Store.LatestPaymentByRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		s.Cache.SetPayment(ctx, payment)
	}
	return payment, nil
}

func (s *Service) settle(ctx context.Context, paymentID uint) {
	payment, err := s.Store.GetPayment(ctx, paymentID)
	if err != nil {
		log.Printf("payment %d settle load failed: %v", paymentID, err)
		return
	}
	if models.TerminalPaymentStatus(payment.Status) {
		return
	}

	if err := s.Store.SetPaymentStatus(ctx, paymentID, models.PaymentStatusProcessing, nil); err != nil {
		log.Printf("payment %d could not enter processing: %v", paymentID, err)
		return
	}

	ref, ok := s.Settle(payment)
	status := models.PaymentStatusFailed
	var pspRef *string
	if ok {
		status = models.PaymentStatusSuccess
		pspRef = &ref
	}
	if err := s.Store.SetPaymentStatus(ctx, paymentID, status, pspRef); err != nil {
		log.Printf("payment %d settlement write failed: %v", paymentID, err)
		return
	}
	observability.Settlements.WithLabelValues(status).Inc()
	if s.Cache != nil {
		s.Cache.InvalidatePayment(ctx, payment.RideID)
	}
	if !ok {
		log.Printf("payment %d settlement declined: %v", paymentID, apperrors.ErrSettlementFailed)
	}
}
