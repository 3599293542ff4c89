package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"b2bpayment/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeStore struct {
	payments map[string]*models.Payment
	logs     []*models.PaymentLog
}

func newFakeStore(payments ...*models.Payment) *fakeStore {
	f := &fakeStore{payments: make(map[string]*models.Payment)}
	for _, p := range payments {
		f.payments[p.ID] = p
	}
	return f
}

func (f *fakeStore) CreatePayment(_ context.Context, p *models.Payment) error {
	f.payments[p.ID] = p
	return nil
}

func (f *fakeStore) GetPayment(_ context.Context, paymentID string) (*models.Payment, error) {
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := *p
	return &c, nil
}

func (f *fakeStore) UpdatePaymentStatus(_ context.Context, paymentID string, expected []models.PaymentStatus, next models.PaymentStatus) (bool, error) {
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

func (f *fakeStore) ListNotificationsByPayment(context.Context, string) ([]*models.Notification, error) {
	return nil, nil
}

func (f *fakeStore) AppendLog(_ context.Context, entry *models.PaymentLog) error {
	f.logs = append(f.logs, entry)
	return nil
}

type fakeGateway struct {
	createResult map[string]any
	queryResult  map[string]any
	err          error
	lastParams   map[string]any
}

func (f *fakeGateway) CreatePayment(_ context.Context, params map[string]any) (map[string]any, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.createResult, nil
}

func (f *fakeGateway) QueryPayment(context.Context, string) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.queryResult, nil
}

func newService(st *fakeStore, gw *fakeGateway) *PaymentService {
	return &PaymentService{
		Store:     st,
		Gateway:   gw,
		AppID:     "app_test",
		NotifyURL: "https://example.com/api/payment/notify",
		Logger:    zap.NewNop(),
	}
}

func validRequest() CreatePaymentRequest {
	return CreatePaymentRequest{
		OrderNo:    "ORD-1",
		PayChannel: models.ChannelBankPay,
		PayAmt:     decimal.NewFromFloat(100.50),
		GoodsTitle: "widgets",
		Expend: map[string]any{
			"elements_type": "4",
			"card_name":     "ACME Ltd",
			"card_no":       "6222000000000000",
		},
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*CreatePaymentRequest)
		wantErr error
	}{
		{"missing order no", func(r *CreatePaymentRequest) { r.OrderNo = "" }, ErrOrderNoRequired},
		{"missing channel", func(r *CreatePaymentRequest) { r.PayChannel = "" }, ErrChannelRequired},
		{"zero amount", func(r *CreatePaymentRequest) { r.PayAmt = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(r *CreatePaymentRequest) { r.PayAmt = decimal.NewFromInt(-1) }, ErrInvalidAmount},
		{"bank pay without expend", func(r *CreatePaymentRequest) { r.Expend = nil }, ErrBankParamsRequired},
		{"bank pay without elements type", func(r *CreatePaymentRequest) {
			delete(r.Expend, "elements_type")
		}, ErrBankParamsRequired},
		{"three elements without card name", func(r *CreatePaymentRequest) {
			r.Expend = map[string]any{"elements_type": "3"}
		}, ErrBankParamsRequired},
		{"four elements without card no", func(r *CreatePaymentRequest) {
			r.Expend = map[string]any{"elements_type": "4", "card_name": "ACME Ltd"}
		}, ErrBankParamsRequired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newService(newFakeStore(), &fakeGateway{})
			req := validRequest()
			tc.mutate(&req)
			_, err := svc.CreatePayment(context.Background(), req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCreatePaymentAdoptsGatewayResult(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{createResult: map[string]any{
		"id":          "PAY123",
		"status":      "pending",
		"expire_time": "2026-09-01T12:00:00Z",
	}}
	svc := newService(st, gw)

	payment, err := svc.CreatePayment(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if payment.ID != "PAY123" {
		t.Fatalf("id = %s, want PAY123", payment.ID)
	}
	if payment.ExpireTime == nil || !payment.ExpireTime.Equal(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expire time not adopted: %v", payment.ExpireTime)
	}
	if _, ok := st.payments["PAY123"]; !ok {
		t.Fatal("payment not persisted")
	}
	if len(st.logs) != 1 || st.logs[0].LogType != models.LogTypeCreate {
		t.Fatalf("create audit log missing: %v", st.logs)
	}
	if gw.lastParams["notify_url"] != "https://example.com/api/payment/notify" {
		t.Fatalf("default notify url not applied: %v", gw.lastParams["notify_url"])
	}
}

func TestCreatePaymentGatewayErrorSurfaces(t *testing.T) {
	svc := newService(newFakeStore(), &fakeGateway{err: errors.New("timeout")})

	_, err := svc.CreatePayment(context.Background(), validRequest())
	if !errors.Is(err, ErrGatewayRejected) {
		t.Fatalf("err = %v, want ErrGatewayRejected", err)
	}
}

func TestQueryPaymentRefreshesStatus(t *testing.T) {
	st := newFakeStore(&models.Payment{ID: "PAY123", OrderNo: "ORD-1", Status: models.PaymentPending})
	gw := &fakeGateway{queryResult: map[string]any{"id": "PAY123", "status": "succeeded"}}
	svc := newService(st, gw)

	payment, err := svc.QueryPayment(context.Background(), "PAY123")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if payment.Status != models.PaymentSucceeded {
		t.Fatalf("status = %s, want succeeded", payment.Status)
	}
	if len(st.logs) != 1 || st.logs[0].LogType != models.LogTypeQuery {
		t.Fatalf("query audit log missing")
	}
}

func TestQueryPaymentNeverRegressesSettled(t *testing.T) {
	st := newFakeStore(&models.Payment{ID: "PAY123", OrderNo: "ORD-1", Status: models.PaymentSucceeded})
	gw := &fakeGateway{queryResult: map[string]any{"id": "PAY123", "status": "failed"}}
	svc := newService(st, gw)

	if _, err := svc.QueryPayment(context.Background(), "PAY123"); err != nil {
		t.Fatalf("query: %v", err)
	}
	if st.payments["PAY123"].Status != models.PaymentSucceeded {
		t.Fatalf("settled payment regressed to %s", st.payments["PAY123"].Status)
	}
}
