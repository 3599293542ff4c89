package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"b2bpayment/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrOrderNoRequired    = errors.New("order no is required")
	ErrChannelRequired    = errors.New("pay channel is required")
	ErrInvalidAmount      = errors.New("pay amount must be positive")
	ErrBankParamsRequired = errors.New("bank pay params are incomplete")
	ErrGatewayRejected    = errors.New("gateway rejected the request")
)

// GatewayClient is the outbound side of the payment gateway.
type GatewayClient interface {
	CreatePayment(ctx context.Context, params map[string]any) (map[string]any, error)
	QueryPayment(ctx context.Context, paymentID string) (map[string]any, error)
}

// PaymentStore is the persistence surface the service needs.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, expected []models.PaymentStatus, next models.PaymentStatus) (bool, error)
	ListNotificationsByPayment(ctx context.Context, paymentID string) ([]*models.Notification, error)
	AppendLog(ctx context.Context, entry *models.PaymentLog) error
}

type CreatePaymentRequest struct {
	OrderNo    string
	PayChannel string
	PayAmt     decimal.Decimal
	GoodsTitle string
	GoodsDesc  string
	Expend     map[string]any
	NotifyURL  string
}

type PaymentService struct {
	Store     PaymentStore
	Gateway   GatewayClient
	AppID     string
	NotifyURL string
	Logger    *zap.Logger
}

// CreatePayment submits a new order to the gateway and persists it with the
// gateway-assigned id. The audit log keeps the raw gateway response.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*models.Payment, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	payment := s.buildPayment(req)

	params, err := buildGatewayParams(payment)
	if err != nil {
		return nil, err
	}
	result, err := s.Gateway.CreatePayment(ctx, params)
	if err != nil {
		s.Logger.Error("gateway create payment failed",
			zap.String("order_no", req.OrderNo), zap.Error(err))
		return nil, errors.Join(ErrGatewayRejected, err)
	}

	applyGatewayResult(payment, result)
	if payment.ID == "" {
		return nil, errors.Join(ErrGatewayRejected, errors.New("response carried no payment id"))
	}

	if err := s.Store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	s.appendLog(ctx, payment, models.LogTypeCreate, result)
	return payment, nil
}

// QueryPayment refreshes a payment's status from the gateway. The status
// update is guarded, so a settled payment is never regressed by a stale
// query result.
func (s *PaymentService) QueryPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.Store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	result, err := s.Gateway.QueryPayment(ctx, paymentID)
	if err != nil {
		s.Logger.Error("gateway query payment failed",
			zap.String("payment_id", paymentID), zap.Error(err))
		return nil, errors.Join(ErrGatewayRejected, err)
	}

	if status, ok := result["status"].(string); ok {
		next := models.PaymentStatus(status)
		if next == models.PaymentSucceeded || next == models.PaymentFailed {
			expected := []models.PaymentStatus{models.PaymentPending}
			if next == models.PaymentSucceeded {
				expected = append(expected, models.PaymentFailed)
			}
			updated, err := s.Store.UpdatePaymentStatus(ctx, paymentID, expected, next)
			if err != nil {
				return nil, err
			}
			if updated {
				payment.Status = next
			}
		}
	}

	s.appendLog(ctx, payment, models.LogTypeQuery, result)
	return payment, nil
}

func (s *PaymentService) ListNotifications(ctx context.Context, paymentID string) ([]*models.Notification, error) {
	return s.Store.ListNotificationsByPayment(ctx, paymentID)
}

func (s *PaymentService) buildPayment(req CreatePaymentRequest) *models.Payment {
	expendJSON, _ := json.Marshal(req.Expend)
	notifyURL := req.NotifyURL
	if notifyURL == "" {
		notifyURL = s.NotifyURL
	}
	now := time.Now().UTC()
	return &models.Payment{
		OrderNo:      req.OrderNo,
		AppID:        s.AppID,
		PayChannel:   req.PayChannel,
		PayAmt:       req.PayAmt,
		Currency:     models.CurrencyCNY,
		GoodsTitle:   req.GoodsTitle,
		GoodsDesc:    req.GoodsDesc,
		ExpendParams: string(expendJSON),
		NotifyURL:    notifyURL,
		Status:       models.PaymentPending,
		CreatedTime:  now,
		UpdatedTime:  now,
	}
}

func (s *PaymentService) appendLog(ctx context.Context, payment *models.Payment, logType string, content map[string]any) {
	data, err := json.Marshal(content)
	if err != nil {
		data = []byte("{}")
	}
	entry := &models.PaymentLog{
		PaymentID:  payment.ID,
		OrderNo:    payment.OrderNo,
		LogType:    logType,
		LogContent: string(data),
	}
	if err := s.Store.AppendLog(ctx, entry); err != nil {
		s.Logger.Error("append payment log failed",
			zap.String("payment_id", payment.ID),
			zap.String("log_type", logType),
			zap.Error(err))
	}
}

func validateCreateRequest(req CreatePaymentRequest) error {
	if req.OrderNo == "" {
		return ErrOrderNoRequired
	}
	if req.PayChannel == "" {
		return ErrChannelRequired
	}
	if !req.PayAmt.IsPositive() {
		return ErrInvalidAmount
	}
	if req.PayChannel == models.ChannelBankPay {
		return validateBankParams(req.Expend)
	}
	return nil
}

// Bank transfers need progressively more payer detail depending on how many
// account elements the gateway should verify.
func validateBankParams(expend map[string]any) error {
	if expend == nil {
		return ErrBankParamsRequired
	}
	elementsType, _ := expend["elements_type"].(string)
	switch elementsType {
	case "2":
	case "3", "4":
		if name, _ := expend["card_name"].(string); name == "" {
			return ErrBankParamsRequired
		}
		if elementsType == "4" {
			if no, _ := expend["card_no"].(string); no == "" {
				return ErrBankParamsRequired
			}
		}
	default:
		return ErrBankParamsRequired
	}
	return nil
}

func buildGatewayParams(p *models.Payment) (map[string]any, error) {
	params := map[string]any{
		"order_no":    p.OrderNo,
		"pay_channel": p.PayChannel,
		"pay_amt":     p.PayAmt.StringFixed(2),
		"currency":    p.Currency,
		"goods_title": p.GoodsTitle,
		"goods_desc":  p.GoodsDesc,
		"notify_url":  p.NotifyURL,
	}
	if p.ExpendParams != "" && p.ExpendParams != "null" {
		var expend map[string]any
		if err := json.Unmarshal([]byte(p.ExpendParams), &expend); err != nil {
			return nil, err
		}
		params["expend"] = expend
	}
	return params, nil
}

func applyGatewayResult(p *models.Payment, result map[string]any) {
	if id, ok := result["id"].(string); ok {
		p.ID = id
	}
	if status, ok := result["status"].(string); ok && status != "" {
		p.Status = models.PaymentStatus(status)
	}
	if raw, ok := result["expire_time"].(string); ok && raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			p.ExpireTime = &t
		}
	}
}
