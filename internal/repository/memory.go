package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/utils"
)

// MemoryStore keeps every table in process memory behind one mutex. It
// implements the same contracts as the MySQL repositories, including the
// provider-busy check and compare-and-swap updates, and backs the service
// tests and STORE_DRIVER=memory.
type MemoryStore struct {
	mu sync.Mutex

	users      map[uint64]*model.User
	emails     map[string]uint64
	providers  map[uint64]*model.Provider
	services   map[uint64]*model.Service
	bookings   map[string]*model.Booking
	payments   map[string]*model.Payment
	wallet     model.EscrowWallet
	txs        []model.WalletTransaction
	sequences  map[string]int64
	workflows  map[string]*model.ServiceWorkflow
	activities []model.Activity
	tokens     map[string]*model.RefreshToken

	nextUserID    uint64
	nextServiceID uint64
	nextTokenID   uint64
	now           func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     map[uint64]*model.User{},
		emails:    map[string]uint64{},
		providers: map[uint64]*model.Provider{},
		services:  map[uint64]*model.Service{},
		bookings:  map[string]*model.Booking{},
		payments:  map[string]*model.Payment{},
		sequences: map[string]int64{},
		workflows: map[string]*model.ServiceWorkflow{},
		tokens:    map[string]*model.RefreshToken{},
		wallet: model.EscrowWallet{
			TotalHeld:       decimal.Zero,
			TotalReleased:   decimal.Zero,
			TotalCommission: decimal.Zero,
		},
		now: time.Now,
	}
}

// SetClock replaces the store's time source.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// ---- seeding ----

// AddUser stores u, assigning an id when u.ID is zero.
func (m *MemoryStore) AddUser(u model.User) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addUserLocked(u)
}

func (m *MemoryStore) addUserLocked(u model.User) uint64 {
	if u.ID == 0 {
		m.nextUserID++
		u.ID = m.nextUserID
	} else if u.ID > m.nextUserID {
		m.nextUserID = u.ID
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Location = clonePoint(u.Location)
	m.users[u.ID] = &u
	if u.Email != "" {
		m.emails[u.Email] = u.ID
	}
	return u.ID
}

// AddProvider stores a provider profile, creating the user row if needed.
func (m *MemoryStore) AddProvider(p model.Provider) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[p.UserID]; !ok || p.UserID == 0 {
		p.UserID = m.addUserLocked(model.User{ID: p.UserID, Name: p.Name, Role: model.RoleProvider, IsActive: true, Rating: p.Rating})
	}
	p.Skills = model.NormalizeSkills(p.Skills)
	p.Location = clonePoint(p.Location)
	m.providers[p.UserID] = &p
	return p.UserID
}

// AddService stores a catalog service, assigning an id when s.ID is zero.
func (m *MemoryStore) AddService(s model.Service) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		m.nextServiceID++
		s.ID = m.nextServiceID
	} else if s.ID > m.nextServiceID {
		m.nextServiceID = s.ID
	}
	s.Skills = model.NormalizeSkills(s.Skills)
	m.services[s.ID] = &s
	return s.ID
}

// ---- users ----

// CreateUser registers an account and, for providers, an empty profile.
func (m *MemoryStore) CreateUser(ctx context.Context, email, name, password string, role model.Role, cost int) (uint64, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emails[email]; ok {
		return 0, ErrEmailExists
	}
	now := m.now().UTC()
	id := m.addUserLocked(model.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if role == model.RoleProvider {
		m.providers[id] = &model.Provider{UserID: id, Name: strings.TrimSpace(name), WalletBalance: decimal.Zero}
	}
	return id, nil
}

// GetUserByEmail looks a user up by normalized email.
func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(m.users[id]), nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id uint64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryStore) UpdateUserLocation(ctx context.Context, id uint64, p model.GeoPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Location = &p
	u.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) SetRating(ctx context.Context, id uint64, avg float64, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Rating, u.RatingCount = avg, count
	if p, ok := m.providers[id]; ok {
		p.Rating = avg
	}
	return nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Location = clonePoint(u.Location)
	return &c
}

func clonePoint(p *model.GeoPoint) *model.GeoPoint {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ---- refresh tokens ----

func (m *MemoryStore) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[tokenHash]; ok {
		return ErrConflict
	}
	m.nextTokenID++
	m.tokens[tokenHash] = &model.RefreshToken{
		ID:        m.nextTokenID,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp.UTC(),
		CreatedAt: m.now().UTC(),
	}
	return nil
}

func (m *MemoryStore) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.liveTokenLocked(tokenHash)
	if !ok {
		return 0, ErrNotFound
	}
	return t.UserID, nil
}

func (m *MemoryStore) liveTokenLocked(tokenHash string) (*model.RefreshToken, bool) {
	t, ok := m.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || !m.now().UTC().Before(t.ExpiresAt) {
		return nil, false
	}
	return t, true
}

// RotateRefresh revokes oldHash and stores newHash for its owner.
func (m *MemoryStore) RotateRefresh(ctx context.Context, oldHash, newHash string, exp time.Time) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.liveTokenLocked(oldHash)
	if !ok {
		return 0, ErrNotFound
	}
	if _, dup := m.tokens[newHash]; dup {
		return 0, ErrConflict
	}
	now := m.now().UTC()
	old.RevokedAt = &now
	m.nextTokenID++
	m.tokens[newHash] = &model.RefreshToken{
		ID:        m.nextTokenID,
		UserID:    old.UserID,
		TokenHash: newHash,
		ExpiresAt: exp.UTC(),
		CreatedAt: now,
	}
	return old.UserID, nil
}

func (m *MemoryStore) RevokeByHash(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.liveTokenLocked(tokenHash)
	if !ok {
		return ErrNotFound
	}
	now := m.now().UTC()
	t.RevokedAt = &now
	return nil
}

func (m *MemoryStore) RevokeAllForUser(ctx context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

// ---- directory ----

func (m *MemoryStore) GetService(ctx context.Context, id uint64) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *MemoryStore) GetProvider(ctx context.Context, userID uint64) (*model.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	c.Location = clonePoint(p.Location)
	return &c, nil
}

func (m *MemoryStore) IsProviderBusy(ctx context.Context, providerID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busyLocked(providerID), nil
}

func (m *MemoryStore) busyLocked(providerID uint64) bool {
	for _, b := range m.bookings {
		if b.ProviderID == providerID && b.Status.Occupying() {
			return true
		}
	}
	return false
}

// ListMatchCandidates returns providers having at least one of skills,
// with their services, ordered by user id.
func (m *MemoryStore) ListMatchCandidates(ctx context.Context, skills []string) ([]model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, s := range model.NormalizeSkills(skills) {
		want[s] = true
	}
	var out []model.Candidate
	for _, p := range m.providers {
		hit := false
		for _, s := range p.Skills {
			if want[s] {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		c := model.Candidate{Provider: *p, Busy: m.busyLocked(p.UserID)}
		c.Provider.Location = clonePoint(p.Location)
		for _, s := range m.services {
			if s.ProviderID != nil && *s.ProviderID == p.UserID {
				c.Services = append(c.Services, *s)
			}
		}
		sort.Slice(c.Services, func(i, j int) bool { return c.Services[i].ID < c.Services[j].ID })
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider.UserID < out[j].Provider.UserID })
	return out, nil
}

// UpdateProviderProfile applies u. The profile counts as complete once
// the provider has skills and a location.
func (m *MemoryStore) UpdateProviderProfile(ctx context.Context, userID uint64, u model.ProfileUpdate) (*model.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if u.Skills != nil {
		p.Skills = model.NormalizeSkills(u.Skills)
	}
	if u.Online != nil {
		p.Online = *u.Online
	}
	if u.Location != nil {
		p.Location = clonePoint(u.Location)
	}
	p.ProfileComplete = len(p.Skills) > 0 && p.Location != nil
	c := *p
	c.Location = clonePoint(p.Location)
	return &c, nil
}

// VerifyProvider marks a provider as vetted by an admin.
func (m *MemoryStore) VerifyProvider(ctx context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[userID]
	if !ok {
		return ErrNotFound
	}
	p.Verified = true
	return nil
}

// CreateService adds an unapproved service to the catalog.
func (m *MemoryStore) CreateService(ctx context.Context, s *model.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextServiceID++
	s.ID = m.nextServiceID
	s.Skills = model.NormalizeSkills(s.Skills)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now().UTC()
	}
	c := *s
	m.services[s.ID] = &c
	return nil
}

// ApproveService makes a service bookable.
func (m *MemoryStore) ApproveService(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return ErrNotFound
	}
	s.AdminApproved = true
	return nil
}

// ListServices returns bookable services ordered by id.
func (m *MemoryStore) ListServices(ctx context.Context) ([]model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Service, 0, len(m.services))
	for _, s := range m.services {
		if s.Bookable() {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- sequence ----

func (m *MemoryStore) Next(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[name]++
	return m.sequences[name], nil
}

// ---- workflow & activity ----

func (m *MemoryStore) Start(ctx context.Context, wf model.ServiceWorkflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := wf
	c.Steps = append([]model.WorkflowStep(nil), wf.Steps...)
	m.workflows[wf.BookingID] = &c
	return nil
}

func (m *MemoryStore) SetStep(ctx context.Context, bookingID, step string, status model.StepStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[bookingID]
	if !ok {
		return ErrNotFound
	}
	now := m.now().UTC()
	for i := range wf.Steps {
		if wf.Steps[i].Name == step {
			wf.Steps[i].Status = status
			wf.Steps[i].UpdatedAt = now
			wf.UpdatedAt = now
			return nil
		}
	}
	return ErrNotFound
}

// GetWorkflow returns a copy of a booking's workflow.
func (m *MemoryStore) GetWorkflow(ctx context.Context, bookingID string) (*model.ServiceWorkflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *wf
	c.Steps = append([]model.WorkflowStep(nil), wf.Steps...)
	return &c, nil
}

func (m *MemoryStore) Log(ctx context.Context, a model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, a)
	return nil
}

// Activities returns the recorded activities in insertion order.
func (m *MemoryStore) Activities() []model.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Activity(nil), m.activities...)
}
