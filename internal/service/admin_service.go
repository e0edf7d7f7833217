package service

import (
	"context"

	"github.com/liliang-cn/recallchat/internal/domain"
)

// ThreadCatalog lists what is stored
type ThreadCatalog interface {
	ListThreads(ctx context.Context) ([]*domain.ThreadSummary, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

// AdminService handles admin operations
type AdminService struct {
	catalog ThreadCatalog
	chat    *ChatService
}

// NewAdminService creates a new admin service
func NewAdminService(catalog ThreadCatalog, chat *ChatService) *AdminService {
	return &AdminService{
		catalog: catalog,
		chat:    chat,
	}
}

func (s *AdminService) ListThreads(ctx context.Context) ([]*domain.ThreadSummary, error) {
	threads, err := s.catalog.ListThreads(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list_threads", Err: err}
	}
	if threads == nil {
		threads = []*domain.ThreadSummary{}
	}
	return threads, nil
}

func (s *AdminService) GetStats(ctx context.Context) (*domain.Stats, error) {
	stats, err := s.catalog.Stats(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "stats", Err: err}
	}
	return stats, nil
}

// DeduplicateThread removes repeated turns of one thread
func (s *AdminService) DeduplicateThread(ctx context.Context, threadID string) (int, error) {
	return s.chat.Deduplicate(ctx, threadID)
}

// DeduplicateAll runs deduplication over every stored thread and returns the total removed
func (s *AdminService) DeduplicateAll(ctx context.Context) (int, error) {
	threads, err := s.ListThreads(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, t := range threads {
		removed, err := s.chat.Deduplicate(ctx, t.ThreadID)
		if err != nil {
			return total, err
		}
		total += removed
	}
	return total, nil
}
