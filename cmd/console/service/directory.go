package service

import (
	"context"
	"fmt"

	"github.com/opsconsole/console/common/engine"
	"github.com/opsconsole/console/common/logger"
)

// DirectoryStore reads and writes the org directory
type DirectoryStore interface {
	Directory(ctx context.Context) ([]engine.OrgPosition, []engine.User, error)
	SavePosition(ctx context.Context, p engine.OrgPosition) error
	SaveUser(ctx context.Context, u engine.User) error
}

// Directory is the org directory snapshot used for assignee resolution
type Directory struct {
	Positions []engine.OrgPosition `json:"positions"`
	Users     []engine.User        `json:"users"`
}

// DirectoryService maintains positions and users. Changes affect only steps
// that become active afterwards; existing tasks keep their assignee.
type DirectoryService struct {
	store DirectoryStore
	log   *logger.Logger
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(store DirectoryStore, log *logger.Logger) *DirectoryService {
	return &DirectoryService{store: store, log: log}
}

// Get returns the whole directory
func (s *DirectoryService) Get(ctx context.Context) (Directory, error) {
	positions, users, err := s.store.Directory(ctx)
	if err != nil {
		return Directory{}, fmt.Errorf("failed to load org directory: %w", err)
	}
	return Directory{Positions: positions, Users: users}, nil
}

// SavePosition creates or updates a position
func (s *DirectoryService) SavePosition(ctx context.Context, actor string, p engine.OrgPosition) error {
	if p.ID == "" || p.Title == "" {
		return invalid(fmt.Errorf("position id and title are required"))
	}
	if err := s.store.SavePosition(ctx, p); err != nil {
		return err
	}
	s.log.WithUser(actor).Info("position saved", "position_id", p.ID, "vacant", p.HolderUserID == "")
	return nil
}

// SaveUser creates or updates a user
func (s *DirectoryService) SaveUser(ctx context.Context, actor string, u engine.User) error {
	if u.ID == "" || u.Name == "" {
		return invalid(fmt.Errorf("user id and name are required"))
	}
	if err := s.store.SaveUser(ctx, u); err != nil {
		return err
	}
	s.log.WithUser(actor).Info("user saved", "saved_user_id", u.ID)
	return nil
}
