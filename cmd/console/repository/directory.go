package repository

import (
	"context"
	"fmt"

	"github.com/opsconsole/console/common/engine"
)

// Directory returns the current org positions and users
func (s *ProcessStore) Directory(ctx context.Context) ([]engine.OrgPosition, []engine.User, error) {
	positions, err := s.listPositions(ctx)
	if err != nil {
		return nil, nil, err
	}
	users, err := s.listUsers(ctx)
	if err != nil {
		return nil, nil, err
	}
	return positions, users, nil
}

func (s *ProcessStore) listPositions(ctx context.Context) ([]engine.OrgPosition, error) {
	rows, err := s.db.Query(ctx, `SELECT id, title, holder_user_id FROM org_position ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]engine.OrgPosition, 0)
	for rows.Next() {
		var p engine.OrgPosition
		if err := rows.Scan(&p.ID, &p.Title, &p.HolderUserID); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *ProcessStore) listUsers(ctx context.Context) ([]engine.User, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, email FROM app_user ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]engine.User, 0)
	for rows.Next() {
		var u engine.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SavePosition creates or updates an org position. An empty holder marks
// the position vacant.
func (s *ProcessStore) SavePosition(ctx context.Context, p engine.OrgPosition) error {
	query := `
		INSERT INTO org_position (id, title, holder_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, holder_user_id = EXCLUDED.holder_user_id
	`
	if _, err := s.db.Exec(ctx, query, p.ID, p.Title, p.HolderUserID); err != nil {
		return fmt.Errorf("failed to save position %s: %w", p.ID, err)
	}
	return nil
}

// SaveUser creates or updates a user
func (s *ProcessStore) SaveUser(ctx context.Context, u engine.User) error {
	query := `
		INSERT INTO app_user (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email
	`
	if _, err := s.db.Exec(ctx, query, u.ID, u.Name, u.Email); err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	return nil
}
