package notify_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"b2bpayment/internal/models"

	"github.com/jackc/pgx/v5"
)

// In-memory stores mirroring the conditional-update semantics of the SQL
// store, so the processor's claim/transition logic is exercised for real.

type fakeNotifyStore struct {
	mu        sync.Mutex
	notifies  map[int64]*models.Notification
	nextID    int64
	insertErr error
	markErr   error
}

func newFakeNotifyStore() *fakeNotifyStore {
	return &fakeNotifyStore{notifies: make(map[int64]*models.Notification)}
}

func (f *fakeNotifyStore) InsertNotification(_ context.Context, notifyData string, notifyTime time.Time) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextID++
	n := &models.Notification{
		ID:            f.nextID,
		NotifyData:    notifyData,
		NotifyTime:    notifyTime,
		ProcessStatus: models.NotifyPending,
	}
	f.notifies[n.ID] = n
	return copyNotification(n), nil
}

func (f *fakeNotifyStore) ClaimNotification(_ context.Context, id int64, maxAttempts int) (*models.Notification, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifies[id]
	if !ok {
		return nil, false, nil
	}
	if n.ProcessStatus != models.NotifyPending && n.ProcessStatus != models.NotifyFailed {
		return nil, false, nil
	}
	if n.ProcessTimes >= maxAttempts {
		return nil, false, nil
	}
	n.ProcessStatus = models.NotifyProcessing
	n.ProcessTimes++
	return copyNotification(n), true, nil
}

func (f *fakeNotifyStore) MarkNotifySuccess(_ context.Context, id int64) (bool, error) {
	return f.transition(id, models.NotifyProcessing, models.NotifySuccess)
}

func (f *fakeNotifyStore) MarkNotifyFailed(_ context.Context, id int64) (bool, error) {
	return f.transition(id, models.NotifyProcessing, models.NotifyFailed)
}

func (f *fakeNotifyStore) AbandonNotification(_ context.Context, id int64) (bool, error) {
	return f.transition(id, models.NotifyPending, models.NotifyFailed)
}

func (f *fakeNotifyStore) ExhaustNotification(_ context.Context, id int64, maxAttempts int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return false, f.markErr
	}
	n, ok := f.notifies[id]
	if !ok || n.ProcessStatus != models.NotifyProcessing {
		return false, nil
	}
	n.ProcessStatus = models.NotifyFailed
	if n.ProcessTimes < maxAttempts {
		n.ProcessTimes = maxAttempts
	}
	return true, nil
}

func (f *fakeNotifyStore) SetNotifyPaymentID(_ context.Context, id int64, paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.notifies[id]; ok {
		n.PaymentID = &paymentID
	}
	return nil
}

func (f *fakeNotifyStore) ListRetryableNotifications(_ context.Context, maxAttempts int) ([]*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Notification
	for id := int64(1); id <= f.nextID; id++ {
		n, ok := f.notifies[id]
		if !ok {
			continue
		}
		if n.ProcessStatus == models.NotifyFailed && n.ProcessTimes < maxAttempts {
			out = append(out, copyNotification(n))
		}
	}
	return out, nil
}

func (f *fakeNotifyStore) transition(id int64, expected, next models.NotifyStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return false, f.markErr
	}
	n, ok := f.notifies[id]
	if !ok || n.ProcessStatus != expected {
		return false, nil
	}
	n.ProcessStatus = next
	return true, nil
}

func (f *fakeNotifyStore) get(id int64) models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.notifies[id]
}

func (f *fakeNotifyStore) add(n *models.Notification) *models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	if n.ProcessStatus == "" {
		n.ProcessStatus = models.NotifyPending
	}
	f.notifies[n.ID] = n
	return copyNotification(n)
}

func copyNotification(n *models.Notification) *models.Notification {
	c := *n
	return &c
}

type fakePaymentStore struct {
	mu        sync.Mutex
	payments  map[string]*models.Payment
	getErr    error
	updateErr error
}

func newFakePaymentStore(payments ...*models.Payment) *fakePaymentStore {
	f := &fakePaymentStore{payments: make(map[string]*models.Payment)}
	for _, p := range payments {
		f.payments[p.ID] = p
	}
	return f
}

func (f *fakePaymentStore) GetPayment(_ context.Context, paymentID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := *p
	return &c, nil
}

func (f *fakePaymentStore) UpdatePaymentStatus(_ context.Context, paymentID string, expected []models.PaymentStatus, next models.PaymentStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return false, f.updateErr
	}
	p, ok := f.payments[paymentID]
	if !ok {
		return false, nil
	}
	for _, st := range expected {
		if p.Status == st {
			p.Status = next
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentStore) status(paymentID string) models.PaymentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payments[paymentID].Status
}

type fakeAuditLog struct {
	mu      sync.Mutex
	entries []*models.PaymentLog
	err     error
}

func (f *fakeAuditLog) AppendLog(_ context.Context, entry *models.PaymentLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) Verify(map[string]any) error {
	return f.err
}

var errGetDown = errors.New("payment store down")
