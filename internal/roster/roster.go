// Package roster maintains the mapping from internal player identities to
// external game account ids, mirrored from a registration source.
package roster

import (
	"context"
	"fmt"
	"log/slog"

	"nestcore/internal/domain"
)

// Source supplies the authoritative registration rows. The concrete client
// (a spreadsheet, a web form export) lives outside this module.
type Source interface {
	Fetch(ctx context.Context) ([]domain.PlayerLink, error)
}

// Service answers account-id lookups from the store and refreshes the
// mirror from the source on demand.
type Service struct {
	store  domain.Store
	source Source
	log    *slog.Logger
}

// NewService builds a roster service. source may be nil when no external
// registration feed is configured; Sync then fails cleanly.
func NewService(store domain.Store, source Source, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, source: source, log: log}
}

// AccountID resolves a player's external account id from the mirror.
func (s *Service) AccountID(ctx context.Context, playerID int64) (string, error) {
	return s.store.AccountID(ctx, playerID)
}

// Sync pulls the registration rows and upserts them, returning the row
// count.
func (s *Service) Sync(ctx context.Context) (int, error) {
	if s.source == nil {
		return 0, domain.ErrPrecondition{Reason: "no roster source configured"}
	}
	links, err := s.source.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch roster: %w", err)
	}
	if err := s.store.SyncPlayers(ctx, links); err != nil {
		return 0, err
	}
	s.log.Info("roster synced", "players", len(links))
	return len(links), nil
}
