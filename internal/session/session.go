package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jo-hoe/healsmart/internal/common"
	"github.com/jo-hoe/healsmart/internal/config"
	"github.com/jo-hoe/healsmart/internal/util"
)

var ErrNotFound = errors.New("session not found")

// State is what a browser session remembers between requests.
type State struct {
	ID         string    `json:"id"`
	Analysis   string    `json:"analysis,omitempty"`
	Simplified string    `json:"simplified,omitempty"`
	AnalyzedAt time.Time `json:"analyzedAt,omitzero"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewState returns an empty state with a fresh random ID.
func NewState() *State {
	return &State{ID: util.NewID(), UpdatedAt: time.Now().UTC()}
}

// CanSimplify reports whether a previous analysis is available to simplify.
func (s *State) CanSimplify() bool {
	return s != nil && strings.TrimSpace(s.Analysis) != ""
}

// SetAnalysis replaces the stored analysis and drops the simplification of the old one.
func (s *State) SetAnalysis(text string, now time.Time) {
	s.Analysis = text
	s.Simplified = ""
	s.AnalyzedAt = now.UTC()
	s.UpdatedAt = now.UTC()
}

func (s *State) SetSimplified(text string, now time.Time) {
	s.Simplified = text
	s.UpdatedAt = now.UTC()
}

// Store persists session state. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, s *State) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// New opens the store selected by cfg.Store.
func New(ctx context.Context, cfg config.SessionConfig) (Store, error) {
	switch cfg.Store {
	case common.StoreMemory, "":
		return NewMemoryStore(cfg.TTL), nil
	case common.StoreSQLite:
		return NewSQLiteStore(cfg.DatabasePath, cfg.TTL)
	case common.StoreRedis:
		return NewRedisStore(ctx, cfg.Redis, cfg.TTL)
	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.Store)
	}
}

func validate(s *State) error {
	if s == nil {
		return errors.New("session is nil")
	}
	if s.ID == "" {
		return errors.New("session.ID is required")
	}
	return nil
}
