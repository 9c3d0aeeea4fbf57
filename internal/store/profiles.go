package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateProfile stores a credential profile. The Secrets field must
// already be encrypted by the caller. ID/CreatedAt/UpdatedAt are filled
// in on return.
func (s *Store) CreateProfile(ctx context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (id, name, transport, host, port, username, secrets)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Transport, p.Host, p.Port, p.Username, p.Secrets,
	)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create profile %q: %w", p.Name, err)
	}
	return nil
}

// GetProfile loads one profile by ID, encrypted secrets included.
func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, transport, host, port, username, secrets, created_at, updated_at
		FROM profiles
		WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Transport, &p.Host, &p.Port, &p.Username, &p.Secrets, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return &p, nil
}

// ListProfiles returns all profiles ordered by name. Secrets stay
// encrypted; list callers never need them.
func (s *Store) ListProfiles(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, transport, host, port, username, created_at, updated_at
		FROM profiles
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Transport, &p.Host, &p.Port, &p.Username, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// DeleteProfile removes a profile by ID.
func (s *Store) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete profile %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
