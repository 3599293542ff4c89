package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"b2bpayment/internal/gateway"
	"b2bpayment/internal/models"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Processor applies one notification against payment state. It is safe to
// invoke concurrently on different records and repeatedly on the same record:
// the conditional claim makes a losing invocation a no-op, and the payment
// update is guarded so a settled payment never regresses.
type Processor struct {
	Notifications NotificationStore
	Payments      PaymentStore
	Logs          AuditLog
	Verifier      PayloadVerifier
	MaxAttempts   int
	CallTimeout   time.Duration
	Logger        *zap.Logger
}

type notifyPayload struct {
	PaymentID string
	Status    models.PaymentStatus
	Fields    map[string]any
}

// Process runs one attempt for the given record. A returned error means the
// attempt failed transiently and the sweeper should try again; permanent
// failures and lost claims return nil because no further automatic work is
// useful.
func (p *Processor) Process(ctx context.Context, n *models.Notification) error {
	claimed, ok, err := p.Notifications.ClaimNotification(ctx, n.ID, p.MaxAttempts)
	if err != nil {
		return fmt.Errorf("%w: claim notification %d: %v", ErrStorageUnavailable, n.ID, err)
	}
	if !ok {
		// Lost the race, already settled, or attempts exhausted.
		return nil
	}

	attemptErr := p.attempt(ctx, claimed)
	if attemptErr == nil {
		if _, err := p.Notifications.MarkNotifySuccess(ctx, claimed.ID); err != nil {
			p.Logger.Error("notify status update failed after success",
				zap.Int64("notify_id", claimed.ID), zap.Error(err))
			return fmt.Errorf("%w: mark success %d: %v", ErrStorageUnavailable, claimed.ID, err)
		}
		p.Logger.Info("notify processed",
			zap.Int64("notify_id", claimed.ID),
			zap.Int("attempt", claimed.ProcessTimes))
		return nil
	}

	if IsPermanent(attemptErr) {
		if _, err := p.Notifications.ExhaustNotification(ctx, claimed.ID, p.MaxAttempts); err != nil {
			p.Logger.Error("notify status update failed after permanent error",
				zap.Int64("notify_id", claimed.ID), zap.Error(err))
			return fmt.Errorf("%w: exhaust %d: %v", ErrStorageUnavailable, claimed.ID, err)
		}
		p.Logger.Warn("notify permanently failed",
			zap.Int64("notify_id", claimed.ID),
			zap.Int("attempt", claimed.ProcessTimes),
			zap.Error(attemptErr))
		return nil
	}

	if _, err := p.Notifications.MarkNotifyFailed(ctx, claimed.ID); err != nil {
		p.Logger.Error("notify status update failed after transient error",
			zap.Int64("notify_id", claimed.ID), zap.Error(err))
		return fmt.Errorf("%w: mark failed %d: %v", ErrStorageUnavailable, claimed.ID, err)
	}
	p.Logger.Warn("notify attempt failed",
		zap.Int64("notify_id", claimed.ID),
		zap.Int("attempt", claimed.ProcessTimes),
		zap.Error(attemptErr))
	return attemptErr
}

func (p *Processor) attempt(ctx context.Context, n *models.Notification) error {
	payload, err := p.parse(n.NotifyData)
	if err != nil {
		return err
	}

	if err := p.Notifications.SetNotifyPaymentID(ctx, n.ID, payload.PaymentID); err != nil {
		return fmt.Errorf("%w: set payment id: %v", ErrStorageUnavailable, err)
	}

	if err := p.Verifier.Verify(payload.Fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()

	payment, err := p.Payments.GetPayment(callCtx, payload.PaymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrPaymentNotFound, payload.PaymentID)
		}
		return fmt.Errorf("%w: get payment %s: %v", ErrStorageUnavailable, payload.PaymentID, err)
	}

	updated, err := p.applyStatus(callCtx, payment, payload.Status)
	if err != nil {
		return err
	}
	if !updated {
		p.Logger.Info("payment already settled, notify is a no-op",
			zap.Int64("notify_id", n.ID),
			zap.String("payment_id", payment.ID),
			zap.String("status", string(payment.Status)))
	}

	if err := p.Logs.AppendLog(ctx, &models.PaymentLog{
		PaymentID:  payment.ID,
		OrderNo:    payment.OrderNo,
		LogType:    models.LogTypeNotify,
		LogContent: n.NotifyData,
	}); err != nil {
		return fmt.Errorf("%w: append audit log: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// applyStatus performs the guarded transition. succeeded is terminal; a
// failed payment may still be reported succeeded later because the gateway
// is authoritative.
func (p *Processor) applyStatus(ctx context.Context, payment *models.Payment, next models.PaymentStatus) (bool, error) {
	var expected []models.PaymentStatus
	switch next {
	case models.PaymentSucceeded:
		expected = []models.PaymentStatus{models.PaymentPending, models.PaymentFailed}
	case models.PaymentFailed:
		expected = []models.PaymentStatus{models.PaymentPending}
	default:
		// pending-to-pending carries no information
		return false, nil
	}

	updated, err := p.Payments.UpdatePaymentStatus(ctx, payment.ID, expected, next)
	if err != nil {
		return false, fmt.Errorf("%w: update payment %s: %v", ErrStorageUnavailable, payment.ID, err)
	}
	return updated, nil
}

func (p *Processor) parse(notifyData string) (*notifyPayload, error) {
	fields, err := gateway.DecodePayload([]byte(notifyData))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	paymentID, _ := fields["id"].(string)
	if paymentID == "" {
		return nil, fmt.Errorf("%w: missing payment id", ErrMalformedPayload)
	}

	rawStatus, _ := fields["status"].(string)
	status := models.PaymentStatus(rawStatus)
	switch status {
	case models.PaymentPending, models.PaymentSucceeded, models.PaymentFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedPayload, rawStatus)
	}

	return &notifyPayload{PaymentID: paymentID, Status: status, Fields: fields}, nil
}
