package roster

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"nestcore/internal/domain"
	"nestcore/internal/infra/persistence/sqlite"
)

type fakeSource struct {
	links []domain.PlayerLink
	err   error
}

func (f fakeSource) Fetch(context.Context) ([]domain.PlayerLink, error) {
	return f.links, f.err
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "roster.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSyncMirrorsSourceRows(t *testing.T) {
	store := newStore(t)
	svc := NewService(store, fakeSource{links: []domain.PlayerLink{
		{PlayerID: 1, AccountID: "acct-1"},
		{PlayerID: 2, AccountID: "acct-2"},
	}}, nil)

	n, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n != 2 {
		t.Fatalf("synced %d rows, want 2", n)
	}
	got, err := svc.AccountID(context.Background(), 2)
	if err != nil {
		t.Fatalf("AccountID: %v", err)
	}
	if got != "acct-2" {
		t.Fatalf("account id = %q, want acct-2", got)
	}
}

func TestSyncWithoutSource(t *testing.T) {
	svc := NewService(newStore(t), nil, nil)
	_, err := svc.Sync(context.Background())
	if !errors.As(err, &domain.ErrPrecondition{}) {
		t.Fatalf("Sync = %v, want ErrPrecondition", err)
	}
}

func TestSyncSurfacesSourceFailure(t *testing.T) {
	svc := NewService(newStore(t), fakeSource{err: errors.New("sheet unavailable")}, nil)
	if _, err := svc.Sync(context.Background()); err == nil {
		t.Fatal("Sync succeeded with a failing source")
	}
}
