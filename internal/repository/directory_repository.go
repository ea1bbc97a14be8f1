package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// DirectoryRepo answers provider and service catalog queries.
type DirectoryRepo struct{ DB *sql.DB }

func NewDirectoryRepo(db *sql.DB) *DirectoryRepo { return &DirectoryRepo{DB: db} }

const providerSelect = `SELECT u.id, u.name, p.skills, p.online, p.verified, p.profile_complete,
	p.lat, p.lng, u.rating, p.wallet_balance
	FROM provider_profiles p JOIN users u ON u.id = p.user_id`

const serviceColumns = "id, provider_id, title, description, skills, base_price, duration_minutes, admin_approved, active, created_at"

func scanProvider(row rowScanner) (*model.Provider, error) {
	var (
		p        model.Provider
		skills   string
		lat, lng sql.NullFloat64
	)
	err := row.Scan(&p.UserID, &p.Name, &skills, &p.Online, &p.Verified, &p.ProfileComplete,
		&lat, &lng, &p.Rating, &p.WalletBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Skills = splitSkills(skills)
	p.Location = pointPtr(lat, lng)
	return &p, nil
}

func scanService(row rowScanner) (*model.Service, error) {
	var (
		s           model.Service
		providerID  sql.NullInt64
		description sql.NullString
		skills      string
	)
	err := row.Scan(&s.ID, &providerID, &s.Title, &description, &skills, &s.BasePrice,
		&s.DurationMinutes, &s.AdminApproved, &s.Active, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.ProviderID = uintPtr(providerID)
	s.Description = description.String
	s.Skills = splitSkills(skills)
	return &s, nil
}

func (r *DirectoryRepo) GetService(ctx context.Context, id uint64) (*model.Service, error) {
	return scanService(r.DB.QueryRowContext(ctx, "SELECT "+serviceColumns+" FROM services WHERE id=? LIMIT 1", id))
}

func (r *DirectoryRepo) GetProvider(ctx context.Context, userID uint64) (*model.Provider, error) {
	return scanProvider(r.DB.QueryRowContext(ctx, providerSelect+" WHERE p.user_id=? LIMIT 1", userID))
}

func (r *DirectoryRepo) IsProviderBusy(ctx context.Context, providerID uint64) (bool, error) {
	return providerBusy(ctx, r.DB, providerID)
}

// ListMatchCandidates loads eligible providers that have any of the given
// skills, along with their services and current occupancy.
func (r *DirectoryRepo) ListMatchCandidates(ctx context.Context, skills []string) ([]model.Candidate, error) {
	skills = model.NormalizeSkills(skills)
	if len(skills) == 0 {
		return nil, nil
	}
	conds := make([]string, len(skills))
	args := make([]any, len(skills))
	for i, s := range skills {
		conds[i] = "FIND_IN_SET(?, p.skills) > 0"
		args[i] = s
	}
	q := providerSelect + ` WHERE p.online=1 AND p.verified=1 AND p.profile_complete=1
		AND p.lat IS NOT NULL AND (` + strings.Join(conds, " OR ") + `) ORDER BY u.id`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	var cands []model.Candidate
	index := map[uint64]int{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[p.UserID] = len(cands)
		cands = append(cands, model.Candidate{Provider: *p})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return cands, nil
	}

	ids := make([]any, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.Provider.UserID)
	}
	in := placeholders(len(ids))

	srows, err := r.DB.QueryContext(ctx,
		"SELECT "+serviceColumns+" FROM services WHERE provider_id IN ("+in+") ORDER BY id", ids...)
	if err != nil {
		return nil, fmt.Errorf("list candidate services: %w", err)
	}
	for srows.Next() {
		s, err := scanService(srows)
		if err != nil {
			srows.Close()
			return nil, err
		}
		if i, ok := index[*s.ProviderID]; ok {
			cands[i].Services = append(cands[i].Services, *s)
		}
	}
	srows.Close()
	if err := srows.Err(); err != nil {
		return nil, err
	}

	brows, err := r.DB.QueryContext(ctx,
		"SELECT DISTINCT provider_id FROM bookings WHERE provider_id IN ("+in+") AND status IN ("+occupyingList()+")", ids...)
	if err != nil {
		return nil, fmt.Errorf("list busy providers: %w", err)
	}
	defer brows.Close()
	for brows.Next() {
		var id uint64
		if err := brows.Scan(&id); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			cands[i].Busy = true
		}
	}
	return cands, brows.Err()
}

// ListServices returns bookable services ordered by id.
func (r *DirectoryRepo) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+serviceColumns+" FROM services WHERE admin_approved=1 AND active=1 ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Service, 0)
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// CreateService inserts an unapproved service and sets s.ID.
func (r *DirectoryRepo) CreateService(ctx context.Context, s *model.Service) error {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO services
		(provider_id, title, description, skills, base_price, duration_minutes, admin_approved, active)
		VALUES (?,?,?,?,?,?,?,?)`,
		nullUint(s.ProviderID), s.Title, s.Description, joinSkills(s.Skills), s.BasePrice,
		s.DurationMinutes, s.AdminApproved, s.Active)
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.Skills = model.NormalizeSkills(s.Skills)
	return nil
}

func (r *DirectoryRepo) ApproveService(ctx context.Context, id uint64) error {
	return r.execOne(ctx, "UPDATE services SET admin_approved=1 WHERE id=?", id)
}

func (r *DirectoryRepo) VerifyProvider(ctx context.Context, userID uint64) error {
	return r.execOne(ctx, "UPDATE provider_profiles SET verified=1 WHERE user_id=?", userID)
}

// UpdateProviderProfile applies u and recomputes profile_complete.
func (r *DirectoryRepo) UpdateProviderProfile(ctx context.Context, userID uint64, u model.ProfileUpdate) (*model.Provider, error) {
	sets := []string{}
	args := []any{}
	if u.Skills != nil {
		sets = append(sets, "skills=?")
		args = append(args, joinSkills(u.Skills))
	}
	if u.Online != nil {
		sets = append(sets, "online=?")
		args = append(args, *u.Online)
	}
	if u.Location != nil {
		sets = append(sets, "lat=?", "lng=?")
		args = append(args, u.Location.Lat, u.Location.Lng)
	}
	if len(sets) > 0 {
		args = append(args, userID)
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE provider_profiles SET "+strings.Join(sets, ", ")+" WHERE user_id=?", args...); err != nil {
			return nil, fmt.Errorf("update provider profile: %w", err)
		}
	}
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE provider_profiles SET profile_complete=(skills<>'' AND lat IS NOT NULL) WHERE user_id=?", userID); err != nil {
		return nil, err
	}
	return r.GetProvider(ctx, userID)
}

func (r *DirectoryRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
