package testutils

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/store"
)

// MemStore is an in-memory implementation of every store interface plus
// store.Transactor. Transactions are serialized and roll back by restoring
// a snapshot, which is enough to exercise atomicity in unit tests.
type MemStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	tasks       map[uuid.UUID]*domain.Task
	avatars     map[uuid.UUID]*domain.AvatarTask
	accounts    map[string]*domain.CreditAccount
	entries     []*domain.CreditEntry
	redemptions []*domain.CouponRedemption

	// Clock supplies updated_at values. Tests move it to simulate staleness.
	Clock func() time.Time

	// TxErr, when set, is returned by the next InTx call without running fn.
	TxErr error
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		tasks:    map[uuid.UUID]*domain.Task{},
		avatars:  map[uuid.UUID]*domain.AvatarTask{},
		accounts: map[string]*domain.CreditAccount{},
		Clock:    func() time.Time { return time.Now().UTC() },
	}
}

var _ store.Transactor = (*MemStore)(nil)

// InTx implements store.Transactor.
func (m *MemStore) InTx(ctx context.Context, fn store.TxFn) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	if err := m.TxErr; err != nil {
		m.TxErr = nil
		m.mu.Unlock()
		return err
	}
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	tasks       map[uuid.UUID]*domain.Task
	avatars     map[uuid.UUID]*domain.AvatarTask
	accounts    map[string]*domain.CreditAccount
	entries     []*domain.CreditEntry
	redemptions []*domain.CouponRedemption
}

func (m *MemStore) snapshot() memSnapshot {
	s := memSnapshot{
		tasks:       make(map[uuid.UUID]*domain.Task, len(m.tasks)),
		avatars:     make(map[uuid.UUID]*domain.AvatarTask, len(m.avatars)),
		accounts:    make(map[string]*domain.CreditAccount, len(m.accounts)),
		entries:     append([]*domain.CreditEntry(nil), m.entries...),
		redemptions: append([]*domain.CouponRedemption(nil), m.redemptions...),
	}
	for k, v := range m.tasks {
		s.tasks[k] = copyTask(v)
	}
	for k, v := range m.avatars {
		c := *v
		s.avatars[k] = &c
	}
	for k, v := range m.accounts {
		c := *v
		s.accounts[k] = &c
	}
	return s
}

func (m *MemStore) restore(s memSnapshot) {
	m.tasks = s.tasks
	m.avatars = s.avatars
	m.accounts = s.accounts
	m.entries = s.entries
	m.redemptions = s.redemptions
}

func copyTask(t *domain.Task) *domain.Task {
	c := *t
	if t.Result != nil {
		raw, _ := json.Marshal(t.Result)
		var r domain.SummaryResult
		_ = json.Unmarshal(raw, &r)
		c.Result = &r
	}
	return &c
}

// Tasks returns the store.TaskStore view.
func (m *MemStore) Tasks() store.TaskStore { return memTasks{m} }

// Avatars returns the store.AvatarTaskStore view.
func (m *MemStore) Avatars() store.AvatarTaskStore { return memAvatars{m} }

// Credits returns the store.CreditStore view.
func (m *MemStore) Credits() store.CreditStore { return memCredits{m} }

// Coupons returns the store.CouponStore view.
func (m *MemStore) Coupons() store.CouponStore { return memCoupons{m} }

// PutTask stores t as-is, bypassing validation and timestamps.
func (m *MemStore) PutTask(t *domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = copyTask(t)
}

// Task returns a copy of the stored task or nil.
func (m *MemStore) Task(id uuid.UUID) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		return copyTask(t)
	}
	return nil
}

// PutAvatarTask stores t as-is.
func (m *MemStore) PutAvatarTask(t *domain.AvatarTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *t
	m.avatars[t.ID] = &c
}

// AvatarTask returns a copy of the stored avatar task or nil.
func (m *MemStore) AvatarTask(id uuid.UUID) *domain.AvatarTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.avatars[id]; ok {
		c := *t
		return &c
	}
	return nil
}

// SetBalance creates or overwrites an account and records a matching init entry.
func (m *MemStore) SetBalance(userID string, amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Clock()
	m.accounts[userID] = &domain.CreditAccount{UserID: userID, Amount: amount, CreatedAt: now, UpdatedAt: now}
	m.entries = append(m.entries, domain.NewCreditEntry(userID, amount, domain.EntryInit, "test balance", uuid.Nil))
}

// SetAdmin flags an existing account as admin.
func (m *MemStore) SetAdmin(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[userID]; ok {
		a.IsAdmin = true
	}
}

// Balance returns the stored balance and whether the account exists.
func (m *MemStore) Balance(userID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return 0, false
	}
	return a.Amount, true
}

// Entries returns the history entries of userID in insertion order.
func (m *MemStore) Entries(userID string) []domain.CreditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CreditEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out
}

type memTasks struct{ m *MemStore }

func (s memTasks) WithTx(*sql.Tx) store.TaskStore { return s }

func (s memTasks) Create(ctx context.Context, t *domain.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.tasks[t.ID]; ok {
		return store.ErrDuplicate
	}
	s.m.tasks[t.ID] = copyTask(t)
	return nil
}

func (s memTasks) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if t := s.m.Task(id); t != nil {
		return t, nil
	}
	return nil, store.ErrTaskNotFound
}

func (s memTasks) sorted(filter func(*domain.Task) bool, less func(a, b *domain.Task) bool) []*domain.Task {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*domain.Task
	for _, t := range s.m.tasks {
		if filter(t) {
			out = append(out, copyTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byCreatedAsc(a, b *domain.Task) bool { return a.CreatedAt.Before(b.CreatedAt) }

func limitTasks(ts []*domain.Task, limit int) []*domain.Task {
	if limit > 0 && len(ts) > limit {
		return ts[:limit]
	}
	return ts
}

func (s memTasks) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Task, error) {
	ts := s.sorted(func(t *domain.Task) bool { return userID == "" || t.UserID == userID },
		func(a, b *domain.Task) bool { return a.CreatedAt.After(b.CreatedAt) })
	return limitTasks(ts, limit), nil
}

func (s memTasks) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error) {
	ts := s.sorted(func(t *domain.Task) bool {
		return t.Status == domain.TaskStatusProcessing && t.UpdatedAt.Before(cutoff)
	}, byCreatedAsc)
	return limitTasks(ts, limit), nil
}

func (s memTasks) MarkAbandoned(ctx context.Context, id uuid.UUID, cutoff time.Time, errMsg string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t, ok := s.m.tasks[id]
	if !ok || t.Status != domain.TaskStatusProcessing || !t.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	t.Status = domain.TaskStatusFailed
	t.Message = domain.MessageFailed
	t.Error = errMsg
	t.UpdatedAt = s.m.Clock()
	return true, nil
}

func (s memTasks) ListClaimable(ctx context.Context, limit int) ([]uuid.UUID, error) {
	ts := s.sorted(func(t *domain.Task) bool {
		return t.Status == domain.TaskStatusPending && t.Error == ""
	}, byCreatedAsc)
	ts = limitTasks(ts, limit)
	ids := make([]uuid.UUID, len(ts))
	for i, t := range ts {
		ids[i] = t.ID
	}
	return ids, nil
}

func (s memTasks) Claim(ctx context.Context, ids []uuid.UUID) ([]*domain.Task, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*domain.Task
	for _, id := range ids {
		t, ok := s.m.tasks[id]
		if !ok || t.Status != domain.TaskStatusPending {
			continue
		}
		t.Status = domain.TaskStatusProcessing
		t.Step = domain.StepQueued
		t.Message = domain.MessageQueued
		t.Error = ""
		t.UpdatedAt = s.m.Clock()
		out = append(out, copyTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return byCreatedAsc(out[i], out[j]) })
	return out, nil
}

func (s memTasks) update(id uuid.UUID, fn func(t *domain.Task)) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t, ok := s.m.tasks[id]
	if !ok || t.Status != domain.TaskStatusProcessing {
		return domain.ErrTaskNoLongerProcessing
	}
	fn(t)
	t.UpdatedAt = s.m.Clock()
	return nil
}

func (s memTasks) UpdateStep(ctx context.Context, id uuid.UUID, step domain.Step, message string) error {
	return s.update(id, func(t *domain.Task) {
		t.Step = step
		t.Message = message
	})
}

func (s memTasks) Complete(ctx context.Context, id uuid.UUID, result *domain.SummaryResult, imageURL string, tokens int) error {
	return s.update(id, func(t *domain.Task) {
		t.Status = domain.TaskStatusCompleted
		t.Step = domain.StepDone
		t.Message = ""
		t.Error = ""
		t.Result = result
		t.ImageURL = imageURL
		t.TokensUsed = tokens
	})
}

func (s memTasks) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.update(id, func(t *domain.Task) {
		t.Status = domain.TaskStatusFailed
		t.Message = domain.MessageFailed
		t.Error = errMsg
	})
}

func (s memTasks) ResetToPending(ctx context.Context, id uuid.UUID, message string) error {
	return s.update(id, func(t *domain.Task) {
		t.Status = domain.TaskStatusPending
		t.Step = domain.StepQueued
		t.Message = message
		t.Error = ""
	})
}

func (s memTasks) CountPendingBefore(ctx context.Context, before time.Time) (int, error) {
	ts := s.sorted(func(t *domain.Task) bool {
		return t.Status == domain.TaskStatusPending && t.CreatedAt.Before(before)
	}, byCreatedAsc)
	return len(ts), nil
}

func (s memTasks) ListProcessing(ctx context.Context) ([]*domain.Task, error) {
	return s.sorted(func(t *domain.Task) bool { return t.Status == domain.TaskStatusProcessing }, byCreatedAsc), nil
}

func (s memTasks) SetAvatarURL(ctx context.Context, id uuid.UUID, url string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t, ok := s.m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.Result == nil {
		t.Result = &domain.SummaryResult{}
	}
	t.Result.AvatarURL = url
	return nil
}

type memAvatars struct{ m *MemStore }

func (s memAvatars) WithTx(*sql.Tx) store.AvatarTaskStore { return s }

func (s memAvatars) Create(ctx context.Context, t *domain.AvatarTask) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.m.PutAvatarTask(t)
	return nil
}

func (s memAvatars) GetByID(ctx context.Context, id uuid.UUID) (*domain.AvatarTask, error) {
	if t := s.m.AvatarTask(id); t != nil {
		return t, nil
	}
	return nil, store.ErrAvatarTaskNotFound
}

func (s memAvatars) list(filter func(*domain.AvatarTask) bool) []*domain.AvatarTask {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*domain.AvatarTask
	for _, t := range s.m.avatars {
		if filter(t) {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s memAvatars) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.AvatarTask, error) {
	out := s.list(func(t *domain.AvatarTask) bool {
		return t.Status == domain.TaskStatusProcessing && t.UpdatedAt.Before(cutoff)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memAvatars) MarkAbandoned(ctx context.Context, id uuid.UUID, cutoff time.Time, errMsg string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t, ok := s.m.avatars[id]
	if !ok || t.Status != domain.TaskStatusProcessing || !t.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	t.Status = domain.TaskStatusFailed
	t.Error = errMsg
	t.UpdatedAt = s.m.Clock()
	return true, nil
}

func (s memAvatars) ListClaimable(ctx context.Context, limit int) ([]uuid.UUID, error) {
	out := s.list(func(t *domain.AvatarTask) bool { return t.Status == domain.TaskStatusPending })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	ids := make([]uuid.UUID, len(out))
	for i, t := range out {
		ids[i] = t.ID
	}
	return ids, nil
}

func (s memAvatars) Claim(ctx context.Context, ids []uuid.UUID) ([]*domain.AvatarTask, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*domain.AvatarTask
	for _, id := range ids {
		t, ok := s.m.avatars[id]
		if !ok || t.Status != domain.TaskStatusPending {
			continue
		}
		t.Status = domain.TaskStatusProcessing
		t.Error = ""
		t.UpdatedAt = s.m.Clock()
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s memAvatars) update(id uuid.UUID, fn func(t *domain.AvatarTask)) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t, ok := s.m.avatars[id]
	if !ok || t.Status != domain.TaskStatusProcessing {
		return domain.ErrTaskNoLongerProcessing
	}
	fn(t)
	t.UpdatedAt = s.m.Clock()
	return nil
}

func (s memAvatars) Touch(ctx context.Context, id uuid.UUID) error {
	return s.update(id, func(*domain.AvatarTask) {})
}

func (s memAvatars) Complete(ctx context.Context, id uuid.UUID, imageURL string) error {
	return s.update(id, func(t *domain.AvatarTask) {
		t.Status = domain.TaskStatusCompleted
		t.ImageURL = imageURL
		t.Error = ""
	})
}

func (s memAvatars) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.update(id, func(t *domain.AvatarTask) {
		t.Status = domain.TaskStatusFailed
		t.Error = errMsg
	})
}

type memCredits struct{ m *MemStore }

func (s memCredits) WithTx(*sql.Tx) store.CreditStore { return s }

func (s memCredits) GetAccount(ctx context.Context, userID string) (*domain.CreditAccount, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (s memCredits) CreateAccount(ctx context.Context, userID string, amount int) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.accounts[userID]; ok {
		return false, nil
	}
	now := s.m.Clock()
	s.m.accounts[userID] = &domain.CreditAccount{UserID: userID, Amount: amount, CreatedAt: now, UpdatedAt: now}
	return true, nil
}

func (s memCredits) Debit(ctx context.Context, userID string, amount int) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.accounts[userID]
	if !ok || a.Amount < amount {
		return false, nil
	}
	a.Amount -= amount
	a.UpdatedAt = s.m.Clock()
	return true, nil
}

func (s memCredits) Add(ctx context.Context, userID string, amount int) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.accounts[userID]
	if !ok {
		return store.ErrAccountNotFound
	}
	a.Amount += amount
	a.UpdatedAt = s.m.Clock()
	return nil
}

func (s memCredits) AppendEntry(ctx context.Context, e *domain.CreditEntry) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if e.Type == domain.EntryRefund && e.TaskID != nil {
		for _, existing := range s.m.entries {
			if existing.Type == domain.EntryRefund && existing.TaskID != nil && *existing.TaskID == *e.TaskID {
				return store.ErrDuplicate
			}
		}
	}
	c := *e
	s.m.entries = append(s.m.entries, &c)
	return nil
}

func (s memCredits) FindEntry(ctx context.Context, taskID uuid.UUID, typ domain.EntryType) (*domain.CreditEntry, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, e := range s.m.entries {
		if e.Type == typ && e.TaskID != nil && *e.TaskID == taskID {
			c := *e
			return &c, nil
		}
	}
	return nil, store.ErrEntryNotFound
}

func (s memCredits) ListEntries(ctx context.Context, userID string, limit int) ([]*domain.CreditEntry, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*domain.CreditEntry
	for i := len(s.m.entries) - 1; i >= 0; i-- {
		if e := s.m.entries[i]; e.UserID == userID {
			c := *e
			out = append(out, &c)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s memCredits) Balances(ctx context.Context) ([]store.BalanceCheck, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sums := map[string]int{}
	for _, e := range s.m.entries {
		sums[e.UserID] += e.Amount
	}
	var out []store.BalanceCheck
	for id, a := range s.m.accounts {
		out = append(out, store.BalanceCheck{UserID: id, Amount: a.Amount, HistorySum: sums[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type memCoupons struct{ m *MemStore }

func (s memCoupons) WithTx(*sql.Tx) store.CouponStore { return s }

func (s memCoupons) HasRedeemed(ctx context.Context, code, userID string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, r := range s.m.redemptions {
		if r.Code == code && r.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s memCoupons) HasType(ctx context.Context, userID string, typ domain.CouponType) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, r := range s.m.redemptions {
		if r.UserID == userID && r.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

func (s memCoupons) Create(ctx context.Context, r *domain.CouponRedemption) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.redemptions {
		if existing.UserID != r.UserID {
			continue
		}
		if existing.Code == r.Code || (existing.Type == domain.CouponWelcome && r.Type == domain.CouponWelcome) {
			return store.ErrRedemptionExists
		}
	}
	c := *r
	s.m.redemptions = append(s.m.redemptions, &c)
	return nil
}
