package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ensure pageService implements PageService
var _ driving.PageService = (*pageService)(nil)

type pageService struct {
	store  driven.PageStore
	logger *slog.Logger
}

// NewPageService creates a new PageService
func NewPageService(store driven.PageStore, logger *slog.Logger) driving.PageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &pageService{store: store, logger: logger}
}

func (s *pageService) userID(ctx context.Context, userKey string) (string, error) {
	id, err := s.store.EnsureUser(ctx, userKey)
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}
	return id, nil
}

// List returns the user's pages, newest first
func (s *pageService) List(ctx context.Context, userKey string) ([]*domain.PageSummary, error) {
	userID, err := s.userID(ctx, userKey)
	if err != nil {
		return nil, err
	}
	return s.store.ListPages(ctx, userID)
}

// Get retrieves one page
func (s *pageService) Get(ctx context.Context, userKey, pageID string) (*domain.Page, error) {
	userID, err := s.userID(ctx, userKey)
	if err != nil {
		return nil, err
	}
	return s.store.GetPage(ctx, userID, pageID)
}

// Delete removes a page and its chunks
func (s *pageService) Delete(ctx context.Context, userKey, pageID string) error {
	userID, err := s.userID(ctx, userKey)
	if err != nil {
		return err
	}
	if err := s.store.DeletePage(ctx, userID, pageID); err != nil {
		return err
	}
	s.logger.Info("page deleted", "page_id", pageID, "user", domain.ResolveUserKey(userKey))
	return nil
}

// ResetUser drops the user with everything it owns
func (s *pageService) ResetUser(ctx context.Context, userKey string) error {
	userKey = domain.ResolveUserKey(userKey)
	if err := s.store.DeleteUser(ctx, userKey); err != nil {
		return err
	}
	s.logger.Info("user reset", "user", userKey)
	return nil
}

// ResetAll clears every page and chunk
func (s *pageService) ResetAll(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	s.logger.Warn("all pages and chunks deleted")
	return nil
}
