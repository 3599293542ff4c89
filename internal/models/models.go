package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

type NotifyStatus string

const (
	NotifyPending    NotifyStatus = "pending"
	NotifyProcessing NotifyStatus = "processing"
	NotifySuccess    NotifyStatus = "success"
	NotifyFailed     NotifyStatus = "failed"
)

const (
	ChannelBankPay = "bank_pay"

	CurrencyCNY = "cny"

	LogTypeCreate = "create"
	LogTypeNotify = "notify"
	LogTypeQuery  = "query"
)

// Payment is one order under settlement. ID is assigned by the gateway on
// first successful submission; OrderNo is caller-assigned and immutable.
type Payment struct {
	ID           string
	OrderNo      string
	AppID        string
	PayChannel   string
	PayAmt       decimal.Decimal
	Currency     string
	GoodsTitle   string
	GoodsDesc    string
	ExpendParams string
	NotifyURL    string
	Status       PaymentStatus
	ExpireTime   *time.Time
	CreatedTime  time.Time
	UpdatedTime  time.Time
}

// Notification is one received callback delivery. The gateway may redeliver
// the same logical event; each delivery gets its own row.
type Notification struct {
	ID            int64
	PaymentID     *string
	NotifyData    string
	NotifyTime    time.Time
	ProcessStatus NotifyStatus
	ProcessTimes  int
	CreatedTime   time.Time
	UpdatedTime   time.Time
}

// PaymentLog is an append-only audit record of one gateway interaction or
// processing attempt.
type PaymentLog struct {
	ID          int64
	PaymentID   string
	OrderNo     string
	LogType     string
	LogContent  string
	CreatedTime time.Time
}
