package nesting

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"nestcore/internal/domain"
	"nestcore/internal/infra/persistence/sqlite"
)

// fakeConsole serves scripted replies by command prefix and records every
// command it sees.
type fakeConsole struct {
	mu       sync.Mutex
	replies  map[string]string
	commands []string
	err      error
}

func (f *fakeConsole) Run(_ context.Context, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	if f.err != nil {
		return "", f.err
	}
	for prefix, reply := range f.replies {
		if strings.HasPrefix(command, prefix) {
			return reply, nil
		}
	}
	return "", nil
}

func (f *fakeConsole) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

type fakeRoster map[int64]string

func (f fakeRoster) AccountID(_ context.Context, playerID int64) (string, error) {
	id, ok := f[playerID]
	if !ok {
		return "", domain.ErrNotFound{Entity: "player account", Key: fmt.Sprintf("%d", playerID)}
	}
	return id, nil
}

type fixture struct {
	engine    *Engine
	store     *sqlite.Store
	console   *fakeConsole
	speciesID int64
}

func newFixture(t *testing.T, rule domain.SpeciesRule) *fixture {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "nesting.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	season, err := store.CreateSeason(ctx, "wet")
	if err != nil {
		t.Fatalf("CreateSeason: %v", err)
	}
	if _, err := store.SetActiveSeason(ctx, "wet"); err != nil {
		t.Fatalf("SetActiveSeason: %v", err)
	}
	sp, err := store.CreateSpecies(ctx, "Barsboldia", "Barsboldia", "")
	if err != nil {
		t.Fatalf("CreateSpecies: %v", err)
	}
	if err := store.SetSpeciesRule(ctx, season.ID, sp.ID, rule); err != nil {
		t.Fatalf("SetSpeciesRule: %v", err)
	}
	if err := store.SyncPlayers(ctx, []domain.PlayerLink{
		{PlayerID: 1, AccountID: "acct-1"},
		{PlayerID: 2, AccountID: "acct-2"},
	}); err != nil {
		t.Fatalf("SyncPlayers: %v", err)
	}

	console := &fakeConsole{replies: map[string]string{
		"/playerinfo acct-1": "(playerinfo acct-1): Name: Sarn / AGID: acct-1 / Dinosaur: Barsboldia / Growth: 0.91 / Location: X=10.0 Y=20.0 Z=30.0",
		"/playerinfo acct-2": "(playerinfo acct-2): Name: Vel / AGID: acct-2 / Dinosaur: Barsboldia / Growth: 0.88",
	}}
	roster := fakeRoster{1: "acct-1", 2: "acct-2"}
	engine := NewEngine(store, console, roster, Config{
		ServerName:      "isle-1",
		NestLifetime:    24 * time.Hour,
		GrowthThreshold: 0.75,
	})
	return &fixture{engine: engine, store: store, console: console, speciesID: sp.ID}
}

func TestCreateNestSeedsMotherIdentityAndPosition(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 3})
	ctx := context.Background()

	nestID, err := fx.engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"})
	if err != nil {
		t.Fatalf("CreateNest: %v", err)
	}

	nest, err := fx.store.NestByID(ctx, nestID)
	if err != nil {
		t.Fatalf("NestByID: %v", err)
	}
	if nest.MotherID == nil || *nest.MotherID != 1 {
		t.Fatalf("mother id = %v, want 1", nest.MotherID)
	}
	pos, ok := nest.MotherPosition()
	if !ok || pos != (domain.Position{X: 10, Y: 20, Z: 30}) {
		t.Fatalf("mother position = %+v (ok=%v), want live location", pos, ok)
	}
	if nest.ServerName != "isle-1" {
		t.Fatalf("server name = %q, want isle-1", nest.ServerName)
	}
	eggs, err := fx.store.ListEggs(ctx, nestID)
	if err != nil {
		t.Fatalf("ListEggs: %v", err)
	}
	if len(eggs) != 3 {
		t.Fatalf("egg slots = %d, want 3", len(eggs))
	}
}

func TestCreateNestRejections(t *testing.T) {
	tests := []struct {
		name    string
		rule    domain.SpeciesRule
		req     CreateNestRequest
		replies map[string]string
		wantErr func(error) bool
	}{
		{
			name:    "unknown species code",
			rule:    domain.SpeciesRule{CanNest: true, EggCount: 1},
			req:     CreateNestRequest{CreatedBy: 1, SpeciesCode: "Rex"},
			wantErr: func(err error) bool { return errors.As(err, &domain.ErrNotFound{}) },
		},
		{
			name:    "species cannot nest this season",
			rule:    domain.SpeciesRule{CanNest: false, EggCount: 1},
			req:     CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"},
			wantErr: func(err error) bool { return errors.As(err, &domain.ErrPrecondition{}) },
		},
		{
			name: "player embodies a different species",
			rule: domain.SpeciesRule{CanNest: true, EggCount: 1},
			req:  CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"},
			replies: map[string]string{
				"/playerinfo acct-1": "Name: Sarn / Dinosaur: Rex / Growth: 0.91",
			},
			wantErr: func(err error) bool { return errors.As(err, &domain.ErrPrecondition{}) },
		},
		{
			name: "growth below threshold",
			rule: domain.SpeciesRule{CanNest: true, EggCount: 1},
			req:  CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"},
			replies: map[string]string{
				"/playerinfo acct-1": "Name: Sarn / Dinosaur: Barsboldia / Growth: 0.5",
			},
			wantErr: func(err error) bool { return errors.As(err, &domain.ErrPrecondition{}) },
		},
		{
			name: "unset growth treated as zero",
			rule: domain.SpeciesRule{CanNest: true, EggCount: 1},
			req:  CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"},
			replies: map[string]string{
				"/playerinfo acct-1": "Name: Sarn / Dinosaur: Barsboldia",
			},
			wantErr: func(err error) bool { return errors.As(err, &domain.ErrPrecondition{}) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.rule)
			if tt.replies != nil {
				fx.console.replies = tt.replies
			}
			_, err := fx.engine.CreateNest(context.Background(), tt.req)
			if err == nil || !tt.wantErr(err) {
				t.Fatalf("CreateNest = %v, want matching rejection", err)
			}
		})
	}
}

func TestCreateNestSurfacesCapReached(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1, MaxClutchesPerPlayer: 1})
	ctx := context.Background()

	if _, err := fx.engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"}); err != nil {
		t.Fatalf("first CreateNest: %v", err)
	}
	_, err := fx.engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"})
	if !errors.As(err, &domain.ErrCapReached{}) {
		t.Fatalf("second CreateNest = %v, want ErrCapReached", err)
	}
}

func TestHatchWithoutMotherPositionIssuesNoRemoteCommand(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1})
	ctx := context.Background()

	// Player 2's snapshot has no location, so the nest stores no position.
	nestID, err := fx.engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 2, SpeciesCode: "Barsboldia"})
	if err != nil {
		t.Fatalf("CreateNest: %v", err)
	}
	if _, ok, err := fx.engine.ClaimFirstEgg(ctx, nestID, 1); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	before := len(fx.console.seen())
	_, _, err = fx.engine.Hatch(ctx, nestID, 1)
	if !errors.As(err, &domain.ErrPrecondition{}) {
		t.Fatalf("Hatch = %v, want ErrPrecondition", err)
	}
	if got := len(fx.console.seen()); got != before {
		t.Fatalf("hatch issued %d remote commands, want 0", got-before)
	}
}

func TestHatchResetsGrowthTeleportsThenMarks(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1})
	ctx := context.Background()

	nestID, err := fx.engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"})
	if err != nil {
		t.Fatalf("CreateNest: %v", err)
	}
	if _, ok, err := fx.engine.ClaimFirstEgg(ctx, nestID, 2); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	eggID, ok, err := fx.engine.Hatch(ctx, nestID, 2)
	if err != nil || !ok {
		t.Fatalf("Hatch: ok=%v err=%v", ok, err)
	}
	if eggID == 0 {
		t.Fatal("Hatch returned zero egg id")
	}

	commands := fx.console.seen()
	if len(commands) < 2 {
		t.Fatalf("commands = %v, want setattr then teleport at the end", commands)
	}
	setattr, teleport := commands[len(commands)-2], commands[len(commands)-1]
	if setattr != "/setattr acct-2 growth 0" {
		t.Fatalf("setattr command = %q", setattr)
	}
	if teleport != "/teleport (X=10,Y=20,Z=30)" {
		t.Fatalf("teleport command = %q", teleport)
	}

	eggs, err := fx.store.ListEggs(ctx, nestID)
	if err != nil {
		t.Fatalf("ListEggs: %v", err)
	}
	if eggs[0].HatchedAt == nil {
		t.Fatal("egg not marked hatched")
	}
}

func TestHatchWithoutClaimedSlotReturnsNull(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1})
	ctx := context.Background()

	nestID, err := fx.engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"})
	if err != nil {
		t.Fatalf("CreateNest: %v", err)
	}
	_, ok, err := fx.engine.Hatch(ctx, nestID, 2)
	if err != nil {
		t.Fatalf("Hatch: %v", err)
	}
	if ok {
		t.Fatal("Hatch reported success for a player with no claimed slot")
	}
}

func TestCloseNestOnlyByCreator(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1})
	ctx := context.Background()

	nestID, err := fx.engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"})
	if err != nil {
		t.Fatalf("CreateNest: %v", err)
	}

	err = fx.engine.CloseNest(ctx, nestID, 2)
	if !errors.As(err, &domain.ErrForbidden{}) {
		t.Fatalf("CloseNest by non-creator = %v, want ErrForbidden", err)
	}
	if err := fx.engine.CloseNest(ctx, nestID, 1); err != nil {
		t.Fatalf("CloseNest by creator: %v", err)
	}
	nest, err := fx.store.NestByID(ctx, nestID)
	if err != nil {
		t.Fatalf("NestByID: %v", err)
	}
	if nest.Status != domain.StatusExpired {
		t.Fatalf("status = %q, want expired", nest.Status)
	}
	// Closing again is a no-op.
	if err := fx.engine.CloseNest(ctx, nestID, 1); err != nil {
		t.Fatalf("repeat CloseNest: %v", err)
	}
}

func TestClaimRejectedOnClosedNest(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1})
	ctx := context.Background()

	nestID, err := fx.engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"})
	if err != nil {
		t.Fatalf("CreateNest: %v", err)
	}
	if err := fx.engine.CloseNest(ctx, nestID, 1); err != nil {
		t.Fatalf("CloseNest: %v", err)
	}
	_, _, err = fx.engine.ClaimFirstEgg(ctx, nestID, 2)
	if !errors.As(err, &domain.ErrPrecondition{}) {
		t.Fatalf("ClaimFirstEgg on closed nest = %v, want ErrPrecondition", err)
	}
}

// auditFailingStore forces the audit append to fail while delegating
// everything else.
type auditFailingStore struct {
	domain.Store
}

func (s auditFailingStore) AppendSeasonChange(context.Context, domain.SeasonChange) error {
	return errors.New("audit table unavailable")
}

func TestSetActiveSeasonSwallowsAuditFailure(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1})
	engine := NewEngine(auditFailingStore{Store: fx.store}, fx.console, fakeRoster{}, Config{})

	season, err := engine.SetActiveSeason(context.Background(), "wet", 99)
	if err != nil {
		t.Fatalf("SetActiveSeason: %v", err)
	}
	if season.Name != "wet" || !season.IsActive {
		t.Fatalf("season = %+v, want active wet", season)
	}
}

func TestSaveParentDetailsRecordsMotherPosition(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1})
	ctx := context.Background()

	// Created by the location-less player so no position is pre-seeded.
	nestID, err := fx.engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 2, SpeciesCode: "Barsboldia"})
	if err != nil {
		t.Fatalf("CreateNest: %v", err)
	}

	err = fx.engine.SaveParentDetails(ctx, 1, domain.ParentDetails{
		NestID: nestID, Role: domain.RoleMother, DinoName: "Sarn",
	})
	if err != nil {
		t.Fatalf("SaveParentDetails: %v", err)
	}
	nest, err := fx.store.NestByID(ctx, nestID)
	if err != nil {
		t.Fatalf("NestByID: %v", err)
	}
	pos, ok := nest.MotherPosition()
	if !ok || pos != (domain.Position{X: 10, Y: 20, Z: 30}) {
		t.Fatalf("mother position = %+v (ok=%v), want recorded location", pos, ok)
	}
}

func TestSaveParentDetailsWithoutLocation(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1})
	ctx := context.Background()

	nestID, err := fx.engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"})
	if err != nil {
		t.Fatalf("CreateNest: %v", err)
	}

	// Player 2's snapshot carries no location: the details persist but the
	// position write is reported as a precondition failure.
	err = fx.engine.SaveParentDetails(ctx, 2, domain.ParentDetails{
		NestID: nestID, Role: domain.RoleMother, DinoName: "Vel",
	})
	if !errors.As(err, &domain.ErrPrecondition{}) {
		t.Fatalf("SaveParentDetails = %v, want ErrPrecondition", err)
	}
	details, err := fx.store.ParentDetailsByNest(ctx, nestID)
	if err != nil {
		t.Fatalf("ParentDetailsByNest: %v", err)
	}
	if len(details) != 1 || details[0].DinoName != "Vel" {
		t.Fatalf("details = %+v, want the saved mother record", details)
	}
}

func TestSaveParentDetailsFatherSkipsPositionLookup(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1})
	ctx := context.Background()

	nestID, err := fx.engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"})
	if err != nil {
		t.Fatalf("CreateNest: %v", err)
	}
	before := len(fx.console.seen())
	err = fx.engine.SaveParentDetails(ctx, 2, domain.ParentDetails{
		NestID: nestID, Role: domain.RoleFather, DinoName: "Gor",
	})
	if err != nil {
		t.Fatalf("SaveParentDetails: %v", err)
	}
	if got := len(fx.console.seen()); got != before {
		t.Fatalf("father details issued %d remote commands, want 0", got-before)
	}
}

type memoryImages struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (m *memoryImages) Put(_ context.Context, key, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objs == nil {
		m.objs = map[string][]byte{}
	}
	m.objs[key] = append([]byte(nil), data...)
	return nil
}

func TestAttachNestImageStoresKeyOnNest(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1})
	images := &memoryImages{}
	engine := NewEngine(fx.store, fx.console, fakeRoster{1: "acct-1", 2: "acct-2"},
		Config{ServerName: "isle-1", NestLifetime: time.Hour, GrowthThreshold: 0.75},
		WithImageStore(images))
	ctx := context.Background()

	nestID, err := engine.CreateNest(ctx, CreateNestRequest{CreatedBy: 1, SpeciesCode: "Barsboldia"})
	if err != nil {
		t.Fatalf("CreateNest: %v", err)
	}
	key, err := engine.AttachNestImage(ctx, nestID, "image/png", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("AttachNestImage: %v", err)
	}
	if _, stored := images.objs[key]; !stored {
		t.Fatalf("image key %q not found in blob store", key)
	}
	nest, err := fx.store.NestByID(ctx, nestID)
	if err != nil {
		t.Fatalf("NestByID: %v", err)
	}
	if nest.ImageKey == nil || *nest.ImageKey != key {
		t.Fatalf("nest image key = %v, want %q", nest.ImageKey, key)
	}
}

func TestAttachNestImageWithoutStoreConfigured(t *testing.T) {
	fx := newFixture(t, domain.SpeciesRule{CanNest: true, EggCount: 1})
	_, err := fx.engine.AttachNestImage(context.Background(), 1, "image/png", nil)
	if !errors.As(err, &domain.ErrPrecondition{}) {
		t.Fatalf("AttachNestImage = %v, want ErrPrecondition", err)
	}
}
