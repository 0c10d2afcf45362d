package memory

import (
	"context"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"posdrawer/backend/internal/domain"
	"posdrawer/backend/internal/store"
	"posdrawer/backend/internal/xid"
)

// Store is the in-process authority used for development and tests. A single
// RWMutex serialises writers, which is what makes open and close atomic.
type Store struct {
	mu               sync.RWMutex
	sessionsByID     map[string]domain.Session
	activeSessionKey map[string]string
	transactions     []domain.Transaction
	txIndexBySession map[string][]int
	settingsByOutlet map[int64]domain.OutletSettings
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		sessionsByID:     make(map[string]domain.Session),
		activeSessionKey: make(map[string]string),
		txIndexBySession: make(map[string][]int),
		settingsByOutlet: make(map[int64]domain.OutletSettings),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with one outlet and demo accounts. Passwords come
// from SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD, with dev defaults.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	s.settingsByOutlet[1] = domain.OutletSettings{
		OutletID:       1,
		CurrencyCode:   "USD",
		CurrencySymbol: "$",
		MinorUnits:     2,
	}
	for username, user := range seedUsers(logger) {
		s.usersByUsername[username] = user
	}
	return s
}

func seedUsers(logger *zap.Logger) map[string]domain.UserAccount {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("memory store using default dev credentials",
			zap.String("override", "SEED_MANAGER_PASSWORD, SEED_CASHIER_PASSWORD"))
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username  string
		password  string
		role      string
		cashierID int64
	}{
		{"manager", managerPwd, domain.RoleManager, 0},
		{"cashier", cashierPwd, domain.RoleCashier, 1},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			logger.Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			CashierID: u.cashierID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) OpenSession(_ context.Context, session domain.Session, opening domain.Transaction) (*domain.Session, error) {
	if session.CashierID <= 0 || session.OutletID <= 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(session.CashierID, session.OutletID)
	if _, exists := s.activeSessionKey[key]; exists {
		return nil, store.ErrSessionOpen
	}
	if session.ID == "" {
		session.ID = xid.New()
	}
	if session.OpeningTime.IsZero() {
		session.OpeningTime = time.Now().UTC()
	}
	session.Status = domain.SessionStatusOpen
	session.ClosingBalance = nil
	session.ExpectedBalance = nil
	session.Variance = nil
	session.ClosingTime = nil

	opening.SessionID = session.ID
	opening.OutletID = session.OutletID
	s.appendLocked(opening)

	s.sessionsByID[session.ID] = session
	s.activeSessionKey[key] = session.ID
	return cloneSession(session), nil
}

func (s *Store) CloseSession(_ context.Context, sessionID string, fields store.CloseFields, closing domain.Transaction) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !session.IsOpen() {
		return nil, store.ErrSessionClosed
	}
	if fields.LedgerLen > 0 && len(s.txIndexBySession[sessionID]) != fields.LedgerLen {
		return nil, store.ErrLedgerMoved
	}
	if fields.ClosedAt.IsZero() {
		fields.ClosedAt = time.Now().UTC()
	}

	closedAt := fields.ClosedAt
	session.Status = domain.SessionStatusClosed
	session.ClosingBalance = decimalPtr(fields.ClosingBalance)
	session.ExpectedBalance = decimalPtr(fields.ExpectedBalance)
	session.Variance = decimalPtr(fields.Variance)
	session.ClosingTime = &closedAt
	session.Notes = fields.Notes

	closing.SessionID = session.ID
	closing.OutletID = session.OutletID
	s.appendLocked(closing)

	delete(s.activeSessionKey, sessionKey(session.CashierID, session.OutletID))
	s.sessionsByID[sessionID] = session
	return cloneSession(session), nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *Store) GetActiveSession(_ context.Context, cashierID int64, outletID int64) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, exists := s.activeSessionKey[sessionKey(cashierID, outletID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	session, exists := s.sessionsByID[sessionID]
	if !exists || !session.IsOpen() {
		return nil, store.ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *Store) AppendTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[tx.SessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !session.IsOpen() {
		return nil, store.ErrSessionClosed
	}
	tx.OutletID = session.OutletID
	stored := s.appendLocked(tx)
	return cloneTransaction(stored), nil
}

// appendLocked stores tx at the end of the ledger. Caller holds s.mu.
func (s *Store) appendLocked(tx domain.Transaction) domain.Transaction {
	if tx.ID == "" {
		tx.ID = xid.New()
	}
	if tx.TransactionDate.IsZero() {
		tx.TransactionDate = time.Now().UTC()
	}
	s.transactions = append(s.transactions, tx)
	s.txIndexBySession[tx.SessionID] = append(s.txIndexBySession[tx.SessionID], len(s.transactions)-1)
	return tx
}

func (s *Store) ListTransactions(_ context.Context, sessionID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.sessionsByID[sessionID]; !exists {
		return nil, store.ErrNotFound
	}
	indexes := s.txIndexBySession[sessionID]
	result := make([]domain.Transaction, 0, len(indexes))
	for _, idx := range indexes {
		result = append(result, *cloneTransaction(s.transactions[idx]))
	}
	return result, nil
}

func (s *Store) ListOutletTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if filter.OutletID <= 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0)
	for _, tx := range s.transactions {
		if tx.OutletID != filter.OutletID {
			continue
		}
		if !filter.From.IsZero() && tx.TransactionDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !tx.TransactionDate.Before(filter.To) {
			continue
		}
		result = append(result, *cloneTransaction(tx))
	}
	slices.SortStableFunc(result, func(a, b domain.Transaction) int {
		return a.TransactionDate.Compare(b.TransactionDate)
	})
	return result, nil
}

func (s *Store) GetOutletSettings(_ context.Context, outletID int64) (*domain.OutletSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, exists := s.settingsByOutlet[outletID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &settings, nil
}

func (s *Store) UpsertOutletSettings(_ context.Context, settings domain.OutletSettings) (*domain.OutletSettings, error) {
	if settings.OutletID <= 0 || strings.TrimSpace(settings.CurrencyCode) == "" || settings.MinorUnits < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settingsByOutlet[settings.OutletID] = settings
	return &settings, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrUserExists
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func sessionKey(cashierID int64, outletID int64) string {
	return strconv.FormatInt(cashierID, 10) + "::" + strconv.FormatInt(outletID, 10)
}

func decimalPtr(v decimal.Decimal) *decimal.Decimal {
	return &v
}

func cloneSession(session domain.Session) *domain.Session {
	out := session
	if session.ClosingBalance != nil {
		out.ClosingBalance = decimalPtr(*session.ClosingBalance)
	}
	if session.ExpectedBalance != nil {
		out.ExpectedBalance = decimalPtr(*session.ExpectedBalance)
	}
	if session.Variance != nil {
		out.Variance = decimalPtr(*session.Variance)
	}
	if session.ClosingTime != nil {
		closedAt := *session.ClosingTime
		out.ClosingTime = &closedAt
	}
	return &out
}

func cloneTransaction(tx domain.Transaction) *domain.Transaction {
	out := tx
	if tx.AmountIn != nil {
		out.AmountIn = decimalPtr(*tx.AmountIn)
	}
	if tx.AmountOut != nil {
		out.AmountOut = decimalPtr(*tx.AmountOut)
	}
	return &out
}
