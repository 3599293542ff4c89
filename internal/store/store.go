package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"b2bpayment/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payments (
			id, order_no, app_id, pay_channel, pay_amt, currency,
			goods_title, goods_desc, expend_params, notify_url,
			status, expire_time
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		p.ID,
		p.OrderNo,
		p.AppID,
		p.PayChannel,
		p.PayAmt,
		p.Currency,
		p.GoodsTitle,
		p.GoodsDesc,
		p.ExpendParams,
		p.NotifyURL,
		p.Status,
		p.ExpireTime,
	)
	return err
}

func (s *Store) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, order_no, app_id, pay_channel, pay_amt, currency,
			goods_title, goods_desc, expend_params, notify_url,
			status, expire_time, created_time, updated_time
		FROM payments WHERE id=$1
	`, paymentID)

	var p models.Payment
	var expireTime sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.OrderNo,
		&p.AppID,
		&p.PayChannel,
		&p.PayAmt,
		&p.Currency,
		&p.GoodsTitle,
		&p.GoodsDesc,
		&p.ExpendParams,
		&p.NotifyURL,
		&p.Status,
		&expireTime,
		&p.CreatedTime,
		&p.UpdatedTime,
	)
	if err != nil {
		return nil, err
	}
	if expireTime.Valid {
		p.ExpireTime = &expireTime.Time
	}
	return &p, nil
}

// UpdatePaymentStatus transitions a payment only if its current status is one
// of expected. Returns false when the guard did not match, which callers
// treat as "already settled, no-op".
func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID string, expected []models.PaymentStatus, next models.PaymentStatus) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE payments
		SET status=$2, updated_time=now()
		WHERE id=$1 AND status = ANY($3)
	`, paymentID, next, statusStrings(expected))
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) InsertNotification(ctx context.Context, notifyData string, notifyTime time.Time) (*models.Notification, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO payment_notify (notify_data, notify_time, process_status, process_times)
		VALUES ($1, $2, $3, 0)
		RETURNING id, created_time, updated_time
	`, notifyData, notifyTime, models.NotifyPending)

	n := &models.Notification{
		NotifyData:    notifyData,
		NotifyTime:    notifyTime,
		ProcessStatus: models.NotifyPending,
	}
	if err := row.Scan(&n.ID, &n.CreatedTime, &n.UpdatedTime); err != nil {
		return nil, err
	}
	return n, nil
}

// ClaimNotification atomically moves a pending or failed notification below
// the attempt cap into processing and increments its attempt counter. A
// concurrent claimer of the same record sees ok=false and must not touch it.
func (s *Store) ClaimNotification(ctx context.Context, id int64, maxAttempts int) (*models.Notification, bool, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE payment_notify
		SET process_status=$2, process_times=process_times+1, updated_time=now()
		WHERE id=$1 AND process_status IN ($3, $4) AND process_times < $5
		RETURNING id, payment_id, notify_data, notify_time, process_status,
			process_times, created_time, updated_time
	`, id, models.NotifyProcessing, models.NotifyPending, models.NotifyFailed, maxAttempts)

	n, err := scanNotification(row)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return n, true, nil
}

func (s *Store) MarkNotifySuccess(ctx context.Context, id int64) (bool, error) {
	return s.transitionNotify(ctx, id, models.NotifyProcessing, models.NotifySuccess)
}

func (s *Store) MarkNotifyFailed(ctx context.Context, id int64) (bool, error) {
	return s.transitionNotify(ctx, id, models.NotifyProcessing, models.NotifyFailed)
}

// AbandonNotification flips a freshly inserted record to failed so the
// sweeper picks it up. Used when the intake queue is saturated.
func (s *Store) AbandonNotification(ctx context.Context, id int64) (bool, error) {
	return s.transitionNotify(ctx, id, models.NotifyPending, models.NotifyFailed)
}

// ExhaustNotification marks a record permanently failed by pinning its
// attempt counter at the cap, so no sweep reloads it.
func (s *Store) ExhaustNotification(ctx context.Context, id int64, maxAttempts int) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE payment_notify
		SET process_status=$2, process_times=GREATEST(process_times, $3), updated_time=now()
		WHERE id=$1 AND process_status=$4
	`, id, models.NotifyFailed, maxAttempts, models.NotifyProcessing)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) SetNotifyPaymentID(ctx context.Context, id int64, paymentID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE payment_notify SET payment_id=$2, updated_time=now() WHERE id=$1
	`, id, paymentID)
	return err
}

func (s *Store) ListRetryableNotifications(ctx context.Context, maxAttempts int) ([]*models.Notification, error) {
	return s.listNotifications(ctx, `
		SELECT id, payment_id, notify_data, notify_time, process_status,
			process_times, created_time, updated_time
		FROM payment_notify
		WHERE process_status=$1 AND process_times < $2
		ORDER BY id
	`, models.NotifyFailed, maxAttempts)
}

func (s *Store) ListDeadLetters(ctx context.Context, maxAttempts int) ([]*models.Notification, error) {
	return s.listNotifications(ctx, `
		SELECT id, payment_id, notify_data, notify_time, process_status,
			process_times, created_time, updated_time
		FROM payment_notify
		WHERE process_status=$1 AND process_times >= $2
		ORDER BY id
	`, models.NotifyFailed, maxAttempts)
}

func (s *Store) ListNotificationsByPayment(ctx context.Context, paymentID string) ([]*models.Notification, error) {
	return s.listNotifications(ctx, `
		SELECT id, payment_id, notify_data, notify_time, process_status,
			process_times, created_time, updated_time
		FROM payment_notify
		WHERE payment_id=$1
		ORDER BY notify_time DESC
	`, paymentID)
}

func (s *Store) AppendLog(ctx context.Context, entry *models.PaymentLog) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payment_log (payment_id, order_no, log_type, log_content)
		VALUES ($1,$2,$3,$4)
	`, entry.PaymentID, entry.OrderNo, entry.LogType, entry.LogContent)
	return err
}

func (s *Store) transitionNotify(ctx context.Context, id int64, expected, next models.NotifyStatus) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE payment_notify
		SET process_status=$2, updated_time=now()
		WHERE id=$1 AND process_status=$3
	`, id, next, expected)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) listNotifications(ctx context.Context, query string, args ...any) ([]*models.Notification, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var paymentID sql.NullString
	err := row.Scan(
		&n.ID,
		&paymentID,
		&n.NotifyData,
		&n.NotifyTime,
		&n.ProcessStatus,
		&n.ProcessTimes,
		&n.CreatedTime,
		&n.UpdatedTime,
	)
	if err != nil {
		return nil, err
	}
	if paymentID.Valid {
		n.PaymentID = &paymentID.String
	}
	return &n, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func statusStrings(statuses []models.PaymentStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, string(st))
	}
	return out
}
