package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"posdrawer/backend/internal/domain"
	"posdrawer/backend/internal/store"
	"posdrawer/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const sessionColumns = `id, cashier_id, outlet_id, status, opening_balance, closing_balance,
	expected_balance, variance, opening_time, closing_time, notes`

const transactionColumns = `id, session_id, outlet_id, transaction_type, amount, amount_in, amount_out,
	payment_method, description, reference_number, transaction_date, created_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) OpenSession(ctx context.Context, session domain.Session, opening domain.Transaction) (*domain.Session, error) {
	if session.CashierID <= 0 || session.OutletID <= 0 {
		return nil, store.ErrInvalidInput
	}
	if session.ID == "" {
		session.ID = xid.New()
	}
	if session.OpeningTime.IsZero() {
		session.OpeningTime = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		INSERT INTO cash_sessions (id, cashier_id, outlet_id, status, opening_balance, opening_time, notes)
		VALUES ($1,$2,$3,'OPEN',$4,$5,$6)
		RETURNING `+sessionColumns,
		session.ID, session.CashierID, session.OutletID, session.OpeningBalance, session.OpeningTime, session.Notes)
	saved, err := scanSession(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrSessionOpen
		}
		return nil, err
	}

	opening.SessionID = saved.ID
	opening.OutletID = saved.OutletID
	if _, err := insertTransaction(ctx, pgTx, opening); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

// CloseSession locks the session row before counting its ledger, so appends
// queued behind the lock land after the close and are rejected.
func (s *Store) CloseSession(ctx context.Context, sessionID string, fields store.CloseFields, closing domain.Transaction) (*domain.Session, error) {
	if !xid.Valid(sessionID) {
		return nil, store.ErrNotFound
	}
	if fields.ClosedAt.IsZero() {
		fields.ClosedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `SELECT status FROM cash_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if domain.SessionStatus(status) != domain.SessionStatusOpen {
		return nil, store.ErrSessionClosed
	}

	if fields.LedgerLen > 0 {
		var entries int
		err = pgTx.QueryRowContext(ctx, `SELECT COUNT(*) FROM cash_transactions WHERE session_id = $1`, sessionID).Scan(&entries)
		if err != nil {
			return nil, err
		}
		if entries != fields.LedgerLen {
			return nil, store.ErrLedgerMoved
		}
	}

	row := pgTx.QueryRowContext(ctx, `
		UPDATE cash_sessions
		SET status = 'CLOSED', closing_balance = $2, expected_balance = $3, variance = $4,
			closing_time = $5, notes = $6
		WHERE id = $1 AND status = 'OPEN'
		RETURNING `+sessionColumns,
		sessionID, fields.ClosingBalance, fields.ExpectedBalance, fields.Variance, fields.ClosedAt, fields.Notes)
	saved, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSessionClosed
		}
		return nil, err
	}

	closing.SessionID = saved.ID
	closing.OutletID = saved.OutletID
	if _, err := insertTransaction(ctx, pgTx, closing); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if !xid.Valid(sessionID) {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE id = $1`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) GetActiveSession(ctx context.Context, cashierID int64, outletID int64) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE cashier_id = $1 AND outlet_id = $2 AND status = 'OPEN'
	`, cashierID, outletID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

// AppendTransaction takes a share lock on the session row so a concurrent
// close either sees this entry or makes the append fail.
func (s *Store) AppendTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if !xid.Valid(tx.SessionID) {
		return nil, store.ErrNotFound
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status, outlet_id FROM cash_sessions WHERE id = $1 FOR SHARE
	`, tx.SessionID).Scan(&status, &tx.OutletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if domain.SessionStatus(status) != domain.SessionStatusOpen {
		return nil, store.ErrSessionClosed
	}

	saved, err := insertTransaction(ctx, pgTx, tx)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

func insertTransaction(ctx context.Context, pgTx *sql.Tx, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" {
		tx.ID = xid.New()
	}
	if tx.TransactionDate.IsZero() {
		tx.TransactionDate = time.Now().UTC()
	}
	row := pgTx.QueryRowContext(ctx, `
		INSERT INTO cash_transactions (
			id, session_id, outlet_id, transaction_type, amount, amount_in, amount_out,
			payment_method, description, reference_number, transaction_date, created_by
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+transactionColumns,
		tx.ID, tx.SessionID, tx.OutletID, string(tx.Type), tx.Amount, nullDecimal(tx.AmountIn), nullDecimal(tx.AmountOut),
		tx.PaymentMethod, tx.Description, tx.ReferenceNumber, tx.TransactionDate, tx.CreatedBy)
	return scanTransaction(row)
}

func (s *Store) ListTransactions(ctx context.Context, sessionID string) ([]domain.Transaction, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM cash_transactions
		WHERE session_id = $1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *Store) ListOutletTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if filter.OutletID <= 0 {
		return nil, store.ErrInvalidInput
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM cash_transactions
		WHERE outlet_id = $1
			AND ($2::timestamptz IS NULL OR transaction_date >= $2)
			AND ($3::timestamptz IS NULL OR transaction_date < $3)
		ORDER BY transaction_date ASC, seq ASC
	`, filter.OutletID, nullZeroTime(filter.From), nullZeroTime(filter.To))
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) GetOutletSettings(ctx context.Context, outletID int64) (*domain.OutletSettings, error) {
	var settings domain.OutletSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT outlet_id, currency_code, currency_symbol, minor_units
		FROM outlet_settings
		WHERE outlet_id = $1
	`, outletID).Scan(&settings.OutletID, &settings.CurrencyCode, &settings.CurrencySymbol, &settings.MinorUnits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &settings, nil
}

func (s *Store) UpsertOutletSettings(ctx context.Context, settings domain.OutletSettings) (*domain.OutletSettings, error) {
	if settings.OutletID <= 0 || strings.TrimSpace(settings.CurrencyCode) == "" || settings.MinorUnits < 0 {
		return nil, store.ErrInvalidInput
	}

	var saved domain.OutletSettings
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO outlet_settings (outlet_id, currency_code, currency_symbol, minor_units, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (outlet_id) DO UPDATE
		SET currency_code = EXCLUDED.currency_code,
			currency_symbol = EXCLUDED.currency_symbol,
			minor_units = EXCLUDED.minor_units,
			updated_at = now()
		RETURNING outlet_id, currency_code, currency_symbol, minor_units
	`, settings.OutletID, settings.CurrencyCode, settings.CurrencySymbol, settings.MinorUnits).Scan(
		&saved.OutletID, &saved.CurrencyCode, &saved.CurrencySymbol, &saved.MinorUnits)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, cashier_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,true,$5,now())
	`, user.Username, user.Password, user.Role, user.CashierID, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrUserExists
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, cashier_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.CashierID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		session  domain.Session
		status   string
		closing  decimal.NullDecimal
		expected decimal.NullDecimal
		variance decimal.NullDecimal
		closedAt sql.NullTime
	)
	err := row.Scan(
		&session.ID,
		&session.CashierID,
		&session.OutletID,
		&status,
		&session.OpeningBalance,
		&closing,
		&expected,
		&variance,
		&session.OpeningTime,
		&closedAt,
		&session.Notes,
	)
	if err != nil {
		return nil, err
	}
	session.Status = domain.SessionStatus(status)
	session.OpeningTime = session.OpeningTime.UTC()
	session.ClosingBalance = decimalFromNull(closing)
	session.ExpectedBalance = decimalFromNull(expected)
	session.Variance = decimalFromNull(variance)
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		session.ClosingTime = &at
	}
	return &session, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx        domain.Transaction
		txType    string
		amountIn  decimal.NullDecimal
		amountOut decimal.NullDecimal
	)
	err := row.Scan(
		&tx.ID,
		&tx.SessionID,
		&tx.OutletID,
		&txType,
		&tx.Amount,
		&amountIn,
		&amountOut,
		&tx.PaymentMethod,
		&tx.Description,
		&tx.ReferenceNumber,
		&tx.TransactionDate,
		&tx.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	tx.Type = domain.TransactionType(txType)
	tx.AmountIn = decimalFromNull(amountIn)
	tx.AmountOut = decimalFromNull(amountOut)
	tx.TransactionDate = tx.TransactionDate.UTC()
	return &tx, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func decimalFromNull(val decimal.NullDecimal) *decimal.Decimal {
	if !val.Valid {
		return nil
	}
	out := val.Decimal
	return &out
}

func nullZeroTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
