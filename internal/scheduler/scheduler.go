// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thriftbay/marketplace-backend/internal/config"
	"github.com/thriftbay/marketplace-backend/internal/services"
)

// Scheduler runs the periodic settlement sweeps: escrow release, pending
// transaction expiry, and stale reservation cleanup. Each sweep runs on its
// own timer inside the server process; all three are safe to run alongside
// request traffic because every mutation they make is a conditional update.
type Scheduler struct {
	config   *config.Config
	escrow   *services.EscrowService
	payments *services.PaymentService
	orders   *services.OrderService

	wg sync.WaitGroup
}

func New(cfg *config.Config, escrow *services.EscrowService, payments *services.PaymentService, orders *services.OrderService) *Scheduler {
	return &Scheduler{
		config:   cfg,
		escrow:   escrow,
		payments: payments,
		orders:   orders,
	}
}

// Start launches the sweep loops. They stop when ctx is cancelled; Wait
// blocks until all loops have exited.
func (s *Scheduler) Start(ctx context.Context) {
	s.loop(ctx, "escrow_release", s.config.Settlement.EscrowInterval, s.runEscrowRelease)
	s.loop(ctx, "transaction_expiry", s.config.Settlement.ExpiryInterval, s.runTransactionExpiry)
	s.loop(ctx, "reservation_cleanup", s.config.Settlement.ReservationSweep, s.runReservationCleanup)
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logrus.WithFields(logrus.Fields{"sweep": name, "interval": interval}).Info("Sweep started")
		for {
			run(ctx)
			select {
			case <-ctx.Done():
				logrus.WithField("sweep", name).Info("Sweep stopped")
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Scheduler) runEscrowRelease(ctx context.Context) {
	released, err := s.escrow.ReleaseEscrow(ctx)
	if err != nil {
		logrus.WithError(err).Error("Escrow release sweep failed")
		return
	}
	if released > 0 {
		logrus.WithField("released", released).Info("Escrow release sweep completed")
	}
}

func (s *Scheduler) runTransactionExpiry(ctx context.Context) {
	expired, err := s.payments.ExpirePendingTransactions(ctx)
	if err != nil {
		logrus.WithError(err).Error("Transaction expiry sweep failed")
		return
	}
	if expired > 0 {
		logrus.WithField("cancelled", expired).Info("Expired pending transactions")
	}
}

func (s *Scheduler) runReservationCleanup(ctx context.Context) {
	released, err := s.orders.ReleaseStaleReservations(ctx)
	if err != nil {
		logrus.WithError(err).Error("Reservation cleanup sweep failed")
		return
	}
	if released > 0 {
		logrus.WithField("released", released).Info("Released stale product reservations")
	}
}
