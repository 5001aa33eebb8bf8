package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"theme-store/internal/domain"
	"theme-store/internal/email"
	"theme-store/internal/repository"
)

type mockOTPRepo struct {
	mu   sync.Mutex
	rows map[string]domain.OTPCode

	createErr error
	countErr  error
}

func newMockOTPRepo() *mockOTPRepo {
	return &mockOTPRepo{rows: make(map[string]domain.OTPCode)}
}

func (m *mockOTPRepo) Create(_ context.Context, otp domain.OTPCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.rows[otp.ID] = otp
	return nil
}

func (m *mockOTPRepo) CountCreatedSince(_ context.Context, email string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, r := range m.rows {
		if r.Email == email && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *mockOTPRepo) LatestCreatedAt(_ context.Context, email string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	found := false
	for _, r := range m.rows {
		if r.Email == email && (!found || r.CreatedAt.After(latest)) {
			latest = r.CreatedAt
			found = true
		}
	}
	if !found {
		return time.Time{}, pgx.ErrNoRows
	}
	return latest, nil
}

func (m *mockOTPRepo) InvalidateOthers(_ context.Context, email, keepID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows {
		if r.Email == email && !r.Used && id != keepID {
			r.Used = true
			m.rows[id] = r
			n++
		}
	}
	return n, nil
}

func (m *mockOTPRepo) FindUnused(_ context.Context, email, code string, purpose domain.OTPPurpose) (domain.OTPCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []domain.OTPCode
	for _, r := range m.rows {
		if r.Email == email && r.Code == code && r.Purpose == purpose && !r.Used {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return domain.OTPCode{}, pgx.ErrNoRows
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return matches[0], nil
}

func (m *mockOTPRepo) MarkVerified(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Used {
		return pgx.ErrNoRows
	}
	r.Used = true
	r.VerifiedAt = &at
	m.rows[id] = r
	return nil
}

func (m *mockOTPRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *mockOTPRepo) HasVerifiedSince(_ context.Context, email string, purpose domain.OTPPurpose, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Email == email && r.Purpose == purpose && r.Used && r.VerifiedAt != nil && !r.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOTPRepo) DeleteByPurpose(_ context.Context, email string, purpose domain.OTPPurpose) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows {
		if r.Email == email && r.Purpose == purpose {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *mockOTPRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows {
		if r.ExpiresAt.Before(before) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *mockOTPRepo) byEmail(email string) []domain.OTPCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OTPCode
	for _, r := range m.rows {
		if r.Email == email {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.usersByEmail[user.Email]; exists {
		return repository.ErrEmailTaken
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.usersByEmail[email]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = updatedAt
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.usersByID)
}

type mockEmailSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (m *mockEmailSender) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *mockEmailSender) last() (email.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return email.Message{}, false
	}
	return m.sent[len(m.sent)-1], true
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequenceCodes devuelve los códigos en orden y repite el último.
func sequenceCodes(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[min(i, len(codes)-1)]
		i++
		return code, nil
	}
}

type mockSettingsRepo struct {
	values map[string]string
	err    error
	calls  int
}

func (m *mockSettingsRepo) GetMany(_ context.Context, keys []string) (map[string]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

type stubLocker struct {
	err error
}

func (l stubLocker) Acquire(context.Context, string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}
