package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/config"
	"github.com/swiftride/booking-backend/internal/models"
	"github.com/swiftride/booking-backend/pkg/momo"
)

type statusChecker interface {
	CheckStatus(ctx context.Context, reference, providerRef string) (*momo.Status, error)
}

// OutcomeFunc receives the final poll outcome for a transaction. It is
// called at most once per watched transaction.
type OutcomeFunc func(txn *models.PaymentTransaction, outcome models.PollOutcome)

// PaymentPoller watches pending mobile money transactions by polling the
// gateway until the payer approves, declines, or the poll window runs
// out. Watches are goroutines tied to the poller's lifetime; Stop cancels
// them all and waits.
type PaymentPoller struct {
	interval    time.Duration
	maxDuration time.Duration
	logger      *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPaymentPoller creates a new PaymentPoller
func NewPaymentPoller(cfg config.PollingConfig, logger *logrus.Logger) *PaymentPoller {
	ctx, cancel := context.WithCancel(context.Background())
	return &PaymentPoller{
		interval:    cfg.Interval,
		maxDuration: cfg.MaxDuration,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Stop cancels all active watches and waits for them to exit. Watches
// interrupted by Stop report no outcome; their transactions stay PENDING
// and are re-adopted by PaymentService.ResumePending on the next start.
func (p *PaymentPoller) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Watch starts polling one transaction in the background
func (p *PaymentPoller) Watch(gateway statusChecker, txn *models.PaymentTransaction, onOutcome OutcomeFunc) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.poll(gateway, txn, onOutcome)
	}()
}

func (p *PaymentPoller) poll(gateway statusChecker, txn *models.PaymentTransaction, onOutcome OutcomeFunc) {
	log := p.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"reference":      txn.ExternalRef,
		"provider":       txn.Provider,
	})

	deadline := time.NewTimer(p.maxDuration)
	defer deadline.Stop()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastErr error

	for {
		select {
		case <-p.ctx.Done():
			log.Info("Payment poll interrupted by shutdown")
			return
		case <-deadline.C:
			cause := lastErr
			if cause == nil {
				cause = fmt.Errorf("payment still pending after %s", p.maxDuration)
			}
			log.WithError(cause).Warn("Payment poll window exhausted")
			onOutcome(txn, models.PollOutcome{State: models.PollUnknown, Cause: cause})
			return
		case <-ticker.C:
			reqCtx, cancel := context.WithTimeout(p.ctx, p.interval)
			status, err := gateway.CheckStatus(reqCtx, txn.ExternalRef, txn.ProviderRef)
			cancel()

			outcome := classifyStatus(status, err)
			switch outcome.State {
			case models.PollSucceeded:
				log.Info("Payment approved by payer")
				onOutcome(txn, outcome)
				return
			case models.PollDeclined:
				log.WithField("reason", outcome.Reason).Info("Payment declined by gateway")
				onOutcome(txn, outcome)
				return
			case models.PollUnknown:
				// Transport or gateway error. Not a decline, so keep
				// polling and remember the error for the final report.
				lastErr = outcome.Cause
				log.WithError(outcome.Cause).Debug("Payment status check failed, will retry")
			case models.PollPending:
				lastErr = nil
			}
		}
	}
}

// classifyStatus maps a gateway status check result onto a poll outcome.
// A gateway that answered FAILED produced a decline with a reason; a
// gateway that could not be reached produced an unknown with a cause.
// The two are never collapsed into each other.
func classifyStatus(status *momo.Status, err error) models.PollOutcome {
	if err != nil {
		if errors.Is(err, momo.ErrTransactionNotFound) {
			// The gateway may not have indexed the request yet,
			// treat as still pending rather than a hard failure.
			return models.PollOutcome{State: models.PollPending}
		}
		return models.PollOutcome{State: models.PollUnknown, Cause: err}
	}

	switch status.State {
	case momo.StatusSuccessful:
		return models.PollOutcome{State: models.PollSucceeded}
	case momo.StatusFailed:
		return models.PollOutcome{State: models.PollDeclined, Reason: status.Reason}
	default:
		return models.PollOutcome{State: models.PollPending}
	}
}
