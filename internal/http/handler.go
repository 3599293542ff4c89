package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"b2bpayment/internal/models"
	"b2bpayment/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// The gateway retries delivery on any body other than "success", so the
// notify endpoint speaks that two-valued protocol and nothing else.
const (
	notifyAccepted = "success"
	notifyRejected = "fail"
)

type PaymentAPI interface {
	CreatePayment(ctx context.Context, req services.CreatePaymentRequest) (*models.Payment, error)
	QueryPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	ListNotifications(ctx context.Context, paymentID string) ([]*models.Notification, error)
}

type NotifyIntake interface {
	Submit(ctx context.Context, rawPayload string) (*models.Notification, error)
}

type DeadLetterLister interface {
	ListDeadLetters(ctx context.Context, maxAttempts int) ([]*models.Notification, error)
}

type Handler struct {
	Payments    PaymentAPI
	Intake      NotifyIntake
	DeadLetters DeadLetterLister
	MaxAttempts int
	Logger      *zap.Logger
}

type createPaymentRequest struct {
	OrderNo    string          `json:"orderNo"`
	PayChannel string          `json:"payChannel"`
	PayAmt     decimal.Decimal `json:"payAmt"`
	GoodsTitle string          `json:"goodsTitle"`
	GoodsDesc  string          `json:"goodsDesc"`
	Expend     map[string]any  `json:"expend,omitempty"`
	NotifyURL  string          `json:"notifyUrl,omitempty"`
}

type paymentResponse struct {
	ID         string `json:"id"`
	OrderNo    string `json:"orderNo"`
	PayChannel string `json:"payChannel"`
	PayAmt     string `json:"payAmt"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	ExpireTime string `json:"expireTime,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

type notificationResponse struct {
	ID            int64  `json:"id"`
	PaymentID     string `json:"paymentId,omitempty"`
	NotifyTime    string `json:"notifyTime"`
	ProcessStatus string `json:"processStatus"`
	ProcessTimes  int    `json:"processTimes"`
	NotifyData    string `json:"notifyData,omitempty"`
}

func NewHandler(payments PaymentAPI, intake NotifyIntake, deadLetters DeadLetterLister, maxAttempts int, logger *zap.Logger) *Handler {
	return &Handler{
		Payments:    payments,
		Intake:      intake,
		DeadLetters: deadLetters,
		MaxAttempts: maxAttempts,
		Logger:      logger,
	}
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	payment, err := h.Payments.CreatePayment(r.Context(), services.CreatePaymentRequest{
		OrderNo:    req.OrderNo,
		PayChannel: req.PayChannel,
		PayAmt:     req.PayAmt,
		GoodsTitle: req.GoodsTitle,
		GoodsDesc:  req.GoodsDesc,
		Expend:     req.Expend,
		NotifyURL:  req.NotifyURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNoRequired),
			errors.Is(err, services.ErrChannelRequired),
			errors.Is(err, services.ErrInvalidAmount),
			errors.Is(err, services.ErrBankParamsRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrGatewayRejected):
			writeError(w, http.StatusBadGateway, "payment gateway rejected the request")
		default:
			h.Logger.Error("create payment failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "create payment failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	if paymentID == "" {
		writeError(w, http.StatusBadRequest, "missing payment id")
		return
	}

	payment, err := h.Payments.QueryPayment(r.Context(), paymentID)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			writeError(w, http.StatusNotFound, "payment not found")
		case errors.Is(err, services.ErrGatewayRejected):
			writeError(w, http.StatusBadGateway, "payment gateway query failed")
		default:
			h.Logger.Error("query payment failed",
				zap.String("payment_id", paymentID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "query payment failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	if paymentID == "" {
		writeError(w, http.StatusBadRequest, "missing payment id")
		return
	}

	notifies, err := h.Payments.ListNotifications(r.Context(), paymentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list notifications failed")
		return
	}
	writeJSON(w, http.StatusOK, toNotificationResponses(notifies, false))
}

// HandleNotify persists the callback and acknowledges delivery. The body is
// the acknowledgement protocol: "success" stops gateway redelivery, anything
// else triggers it. Processing outcome is never reflected here.
func (h *Handler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || len(body) == 0 {
		writeText(w, http.StatusOK, notifyRejected)
		return
	}

	h.Logger.Info("notify received", zap.Int("bytes", len(body)))

	if _, err := h.Intake.Submit(r.Context(), string(body)); err != nil {
		h.Logger.Error("notify intake failed", zap.Error(err))
		writeText(w, http.StatusOK, notifyRejected)
		return
	}
	writeText(w, http.StatusOK, notifyAccepted)
}

func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	notifies, err := h.DeadLetters.ListDeadLetters(r.Context(), h.MaxAttempts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list dead letters failed")
		return
	}
	writeJSON(w, http.StatusOK, toNotificationResponses(notifies, true))
}

func toPaymentResponse(p *models.Payment) paymentResponse {
	resp := paymentResponse{
		ID:         p.ID,
		OrderNo:    p.OrderNo,
		PayChannel: p.PayChannel,
		PayAmt:     p.PayAmt.StringFixed(2),
		Currency:   p.Currency,
		Status:     string(p.Status),
	}
	if p.ExpireTime != nil {
		resp.ExpireTime = p.ExpireTime.Format(time.RFC3339)
	}
	if !p.CreatedTime.IsZero() {
		resp.CreatedAt = p.CreatedTime.Format(time.RFC3339)
	}
	return resp
}

func toNotificationResponses(notifies []*models.Notification, includeData bool) []notificationResponse {
	out := make([]notificationResponse, 0, len(notifies))
	for _, n := range notifies {
		resp := notificationResponse{
			ID:            n.ID,
			NotifyTime:    n.NotifyTime.Format(time.RFC3339),
			ProcessStatus: string(n.ProcessStatus),
			ProcessTimes:  n.ProcessTimes,
		}
		if n.PaymentID != nil {
			resp.PaymentID = *n.PaymentID
		}
		if includeData {
			resp.NotifyData = n.NotifyData
		}
		out = append(out, resp)
	}
	return out
}
