package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"agegate/internal/subscription/models"
	"agegate/internal/subscription/service"
	id "agegate/pkg/domain"
	"agegate/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

const pgUniqueViolation = "23505"
const pgCheckViolation = "23514"

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists the ledger in PostgreSQL. Inside RunInTx, reads of subscription
// rows take row locks so concurrent settlements of one record serialise.
type PostgresStore struct {
	db   *sql.DB
	q    queryer
	inTx bool
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(store service.Store) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&PostgresStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) lockClause() string {
	if s.inTx {
		return " FOR UPDATE"
	}
	return ""
}

func (s *PostgresStore) CreatePlan(ctx context.Context, plan *models.Plan) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO plans (id, minimum_age_days, interval_ns, price, payee, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		uuid.UUID(plan.ID), int64(plan.MinimumAge), int64(plan.Interval), formatUint(plan.Price),
		plan.Payee.Bytes(), plan.CreatedAt)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindPlan(ctx context.Context, planID id.PlanID) (*models.Plan, error) {
	var (
		rawID    uuid.UUID
		minAge   int64
		interval int64
		price    string
		payee    []byte
		created  time.Time
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, minimum_age_days, interval_ns, price::text, payee, created_at
		FROM plans WHERE id = $1`, uuid.UUID(planID),
	).Scan(&rawID, &minAge, &interval, &price, &payee, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}
	p, err := parseUint(price)
	if err != nil {
		return nil, err
	}
	payeeID, err := accountFromBytes(payee)
	if err != nil {
		return nil, err
	}
	return &models.Plan{
		ID:         id.PlanID(rawID),
		MinimumAge: uint64(minAge),
		Interval:   time.Duration(interval),
		Price:      p,
		Payee:      payeeID,
		CreatedAt:  created.UTC(),
	}, nil
}

const subscriptionColumns = `id, subscriber, plan_id, channel_handle, status, started_at,
	last_settled_at, escrow_account, paid_intervals::text, cancelled_at, cancel_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		rawID, planID    uuid.UUID
		subscriber       []byte
		channelHandle    string
		status           string
		started, settled time.Time
		escrow           []byte
		paid             string
		cancelledAt      sql.NullTime
		cancelReason     sql.NullString
	)
	if err := row.Scan(&rawID, &subscriber, &planID, &channelHandle, &status, &started, &settled,
		&escrow, &paid, &cancelledAt, &cancelReason); err != nil {
		return nil, err
	}
	sub := &models.Subscription{
		ID:            id.SubscriptionID(rawID),
		PlanID:        id.PlanID(planID),
		ChannelHandle: channelHandle,
		Status:        models.Status(status),
		StartedAt:     started.UTC(),
		LastSettledAt: settled.UTC(),
		CancelReason:  models.CancelReason(cancelReason.String),
	}
	var err error
	if sub.Subscriber, err = accountFromBytes(subscriber); err != nil {
		return nil, err
	}
	if sub.EscrowAccount, err = accountFromBytes(escrow); err != nil {
		return nil, err
	}
	if sub.PaidIntervals, err = parseUint(paid); err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		sub.CancelledAt = &at
	}
	return sub, nil
}

func (s *PostgresStore) FindSubscription(ctx context.Context, subscriber id.AccountID, planID id.PlanID) (*models.Subscription, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE subscriber = $1 AND plan_id = $2
		ORDER BY seq DESC
		LIMIT 1`+s.lockClause(), subscriber.Bytes(), uuid.UUID(planID))
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, subscriber id.AccountID, planID id.PlanID) ([]*models.Subscription, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE subscriber = $1 AND plan_id = $2
		ORDER BY seq`, subscriber.Bytes(), uuid.UUID(planID))
	if err != nil {
		return nil, fmt.Errorf("list subscription history: %w", err)
	}
	return collectSubscriptions(rows)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = 'active'
		ORDER BY started_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func (s *PostgresStore) ListActiveByPlan(ctx context.Context, planID id.PlanID) ([]*models.Subscription, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = 'active' AND plan_id = $1
		ORDER BY started_at, seq`, uuid.UUID(planID))
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions by plan: %w", err)
	}
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows *sql.Rows) ([]*models.Subscription, error) {
	defer rows.Close()
	var out []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) InsertSubscription(ctx context.Context, sub *models.Subscription) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO subscriptions (id, subscriber, plan_id, channel_handle, status, started_at,
			last_settled_at, escrow_account, paid_intervals, cancelled_at, cancel_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11)`,
		uuid.UUID(sub.ID), sub.Subscriber.Bytes(), uuid.UUID(sub.PlanID), sub.ChannelHandle, string(sub.Status),
		sub.StartedAt, sub.LastSettledAt, sub.EscrowAccount.Bytes(), formatUint(sub.PaidIntervals),
		nullTime(sub.CancelledAt), nullString(string(sub.CancelReason)))
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// UpdateSubscription only touches active rows; cancelled records are frozen.
func (s *PostgresStore) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $2, last_settled_at = $3, paid_intervals = $4::numeric,
			cancelled_at = $5, cancel_reason = $6
		WHERE id = $1 AND status = 'active'`,
		uuid.UUID(sub.ID), string(sub.Status), sub.LastSettledAt, formatUint(sub.PaidIntervals),
		nullTime(sub.CancelledAt), nullString(string(sub.CancelReason)))
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update subscription rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`,
			uuid.UUID(sub.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("check subscription: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) Balance(ctx context.Context, account id.AccountID) (uint64, error) {
	var amount string
	err := s.q.QueryRowContext(ctx, `SELECT amount::text FROM balances WHERE account = $1`+s.lockClause(),
		account.Bytes()).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return parseUint(amount)
}

func (s *PostgresStore) Credit(ctx context.Context, account id.AccountID, amount uint64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO balances (account, amount) VALUES ($1, $2::numeric)
		ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		account.Bytes(), formatUint(amount))
	if err != nil {
		if isPgCode(err, pgCheckViolation) {
			return sentinel.ErrInvalidState
		}
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

func (s *PostgresStore) Debit(ctx context.Context, account id.AccountID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE balances SET amount = amount - $2::numeric
		WHERE account = $1 AND amount >= $2::numeric`,
		account.Bytes(), formatUint(amount))
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrInsufficientFunds
	}
	return nil
}

func (s *PostgresStore) InsertReceipt(ctx context.Context, r *models.Receipt) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO settlement_receipts (id, subscription_id, subscriber, plan_id, intervals_due,
			intervals_charged, amount, last_settled_at, outcome, settled_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10)`,
		uuid.UUID(r.ID), uuid.UUID(r.SubscriptionID), r.Subscriber.Bytes(), uuid.UUID(r.PlanID),
		formatUint(r.IntervalsDue), formatUint(r.IntervalsCharged), formatUint(r.Amount),
		r.LastSettledAt, string(r.Outcome), r.SettledAt)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsDelegate(ctx context.Context, owner, delegate id.AccountID) (bool, error) {
	var ok bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM delegates WHERE owner = $1 AND delegate = $2)`,
		owner.Bytes(), delegate.Bytes()).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check delegate: %w", err)
	}
	return ok, nil
}

func (s *PostgresStore) PutDelegate(ctx context.Context, d models.Delegation) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO delegates (owner, delegate, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (owner, delegate) DO NOTHING`,
		d.Owner.Bytes(), d.Delegate.Bytes(), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("put delegate: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDelegate(ctx context.Context, owner, delegate id.AccountID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM delegates WHERE owner = $1 AND delegate = $2`,
		owner.Bytes(), delegate.Bytes())
	if err != nil {
		return fmt.Errorf("delete delegate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete delegate rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Owner reads the persisted registry owner. sentinel.ErrNotFound until one is set.
func (s *PostgresStore) Owner(ctx context.Context) (id.AccountID, error) {
	var raw []byte
	err := s.q.QueryRowContext(ctx, `SELECT account FROM registry_owner`+s.lockClause()).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return id.AccountID{}, sentinel.ErrNotFound
		}
		return id.AccountID{}, fmt.Errorf("find owner: %w", err)
	}
	return accountFromBytes(raw)
}

func (s *PostgresStore) SetOwner(ctx context.Context, owner id.AccountID, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO registry_owner (singleton, account, updated_at) VALUES (TRUE, $1, $2)
		ON CONFLICT (singleton) DO UPDATE SET account = EXCLUDED.account, updated_at = EXCLUDED.updated_at`,
		owner.Bytes(), at)
	if err != nil {
		return fmt.Errorf("set owner: %w", err)
	}
	return nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return v, nil
}

func accountFromBytes(b []byte) (id.AccountID, error) {
	var a id.AccountID
	if len(b) != len(a) {
		return a, fmt.Errorf("account column holds %d bytes", len(b))
	}
	copy(a[:], b)
	return a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
