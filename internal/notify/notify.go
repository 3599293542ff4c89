// Package notify ingests payment-gateway callbacks, records them durably and
// drives the associated payment to a settled state despite duplicate or
// out-of-order delivery. Failed attempts are retried by the Sweeper up to an
// attempt cap, after which the record is a dead letter.
package notify

import (
	"context"
	"errors"
	"time"

	"b2bpayment/internal/models"
)

var (
	// Transient: worth another attempt.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Permanent: retrying cannot succeed; the record is exhausted on sight.
	ErrMalformedPayload = errors.New("malformed notify payload")
	ErrInvalidSignature = errors.New("invalid notify signature")
	ErrPaymentNotFound  = errors.New("payment not found")
)

// IsPermanent reports whether err can never succeed on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrPaymentNotFound)
}

// NotificationStore is the durable record of received callbacks. All
// transitions are conditional; a mutation whose guard does not match returns
// false and must leave the row untouched.
type NotificationStore interface {
	InsertNotification(ctx context.Context, notifyData string, notifyTime time.Time) (*models.Notification, error)
	ClaimNotification(ctx context.Context, id int64, maxAttempts int) (*models.Notification, bool, error)
	MarkNotifySuccess(ctx context.Context, id int64) (bool, error)
	MarkNotifyFailed(ctx context.Context, id int64) (bool, error)
	AbandonNotification(ctx context.Context, id int64) (bool, error)
	ExhaustNotification(ctx context.Context, id int64, maxAttempts int) (bool, error)
	SetNotifyPaymentID(ctx context.Context, id int64, paymentID string) error
	ListRetryableNotifications(ctx context.Context, maxAttempts int) ([]*models.Notification, error)
}

// PaymentStore exposes the order records the processor settles.
type PaymentStore interface {
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, expected []models.PaymentStatus, next models.PaymentStatus) (bool, error)
}

// AuditLog records each attempt's input and outcome. Diagnosis only, never
// control flow.
type AuditLog interface {
	AppendLog(ctx context.Context, entry *models.PaymentLog) error
}

// PayloadVerifier checks a decoded callback against the gateway's key.
type PayloadVerifier interface {
	Verify(params map[string]any) error
}
