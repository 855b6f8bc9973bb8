// Package nesting implements the nest and egg lifecycle: creation under
// per-season clutch caps, slot claiming, hatching with its in-game side
// effects, expiry, and season activation.
package nesting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nestcore/internal/domain"
	"nestcore/internal/metrics"
	"nestcore/internal/playerinfo"
)

// Console issues one remote command per call over its own connection.
type Console interface {
	Run(ctx context.Context, command string) (string, error)
}

// Roster resolves a player's external game account id.
type Roster interface {
	AccountID(ctx context.Context, playerID int64) (string, error)
}

// ImageStore persists uploaded nest images under caller-chosen keys.
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

// Config carries the engine's tunables.
type Config struct {
	// ServerName is stamped onto every nest created by this process.
	ServerName string
	// NestLifetime is the fixed open window applied at creation.
	NestLifetime time.Duration
	// GrowthThreshold is the minimum parent growth fraction for nesting.
	GrowthThreshold float64
}

// Engine orchestrates lifecycle operations across the store, the remote
// console, and the roster. All mutual exclusion lives in the store's
// conditional statements; the engine adds validation and side effects.
type Engine struct {
	store   domain.Store
	console Console
	roster  Roster
	images  ImageStore
	cfg     Config
	log     *slog.Logger
	met     *metrics.Metrics
}

// NewEngine wires an engine. Logger may be nil; images and met are optional.
func NewEngine(store domain.Store, console Console, roster Roster, cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		console: console,
		roster:  roster,
		cfg:     cfg,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithImageStore enables nest image uploads.
func WithImageStore(images ImageStore) EngineOption {
	return func(e *Engine) { e.images = images }
}

// WithMetrics enables lifecycle metrics.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.met = m }
}

// CreateNestRequest carries the caller-supplied inputs for a new nest. The
// creator is recorded as the mother unless the nest is asexual.
type CreateNestRequest struct {
	CreatedBy   int64
	SpeciesCode string
	FatherID    *int64
	Asexual     bool
}

// CreateNest validates the caller against the live game state and the active
// season's rules, then performs the atomic cap-increment-and-insert. The
// creator must currently embody the requested species and meet the parent
// growth threshold.
func (e *Engine) CreateNest(ctx context.Context, req CreateNestRequest) (nestID int64, err error) {
	defer func() { e.met.ObserveOp("create_nest", err) }()

	species, err := e.store.SpeciesByCode(ctx, req.SpeciesCode)
	if err != nil {
		return 0, err
	}
	rules, err := e.store.ActiveRules(ctx, species.ID)
	if err != nil {
		return 0, err
	}
	if !rules.CanNest {
		return 0, domain.ErrPrecondition{Reason: fmt.Sprintf("species %s cannot nest this season", species.Code)}
	}

	snap, err := e.lookupPlayer(ctx, req.CreatedBy)
	if err != nil {
		return 0, err
	}
	if snap.Species != species.Code {
		return 0, domain.ErrPrecondition{Reason: fmt.Sprintf("player is %q in game, not %q", snap.Species, species.Code)}
	}
	if snap.GrowthValue() < e.cfg.GrowthThreshold {
		return 0, domain.ErrPrecondition{
			Reason: fmt.Sprintf("growth %s is below the nesting threshold %.2f", snap.Growth, e.cfg.GrowthThreshold),
		}
	}

	n := domain.NewNest{
		SpeciesID:   species.ID,
		CreatedBy:   req.CreatedBy,
		FatherID:    req.FatherID,
		ServerName:  e.cfg.ServerName,
		Asexual:     req.Asexual,
		EggCount:    rules.EggCount,
		MaxClutches: rules.MaxClutchesPerPlayer,
		ExpiresIn:   e.cfg.NestLifetime,
	}
	if !req.Asexual {
		motherID := req.CreatedBy
		n.MotherID = &motherID
	}
	if snap.Pos != nil {
		n.MotherPos = &domain.Position{X: snap.Pos.X, Y: snap.Pos.Y, Z: snap.Pos.Z}
	}

	nestID, err = e.store.CreateNest(ctx, n)
	if err != nil {
		return 0, err
	}
	e.log.Info("nest created",
		"nest", nestID, "species", species.Code, "player", req.CreatedBy, "eggs", rules.EggCount)
	return nestID, nil
}

// ClaimFirstEgg claims the lowest free slot of an open nest for the player.
// ok is false when every slot is taken.
func (e *Engine) ClaimFirstEgg(ctx context.Context, nestID, playerID int64) (eggID int64, ok bool, err error) {
	defer func() { e.met.ObserveOp("claim_egg", err) }()

	nest, err := e.store.NestByID(ctx, nestID)
	if err != nil {
		return 0, false, err
	}
	if nest.Status != domain.StatusOpen {
		return 0, false, domain.ErrPrecondition{Reason: fmt.Sprintf("nest %d is no longer open", nestID)}
	}
	return e.store.ClaimFirstEgg(ctx, nestID, playerID)
}

// UnclaimEgg releases the player's claimed slot. ok is false when the player
// holds none; repeated calls stay false and never error.
func (e *Engine) UnclaimEgg(ctx context.Context, nestID, playerID int64) (slotIndex int, ok bool, err error) {
	defer func() { e.met.ObserveOp("unclaim_egg", err) }()
	return e.store.UnclaimEgg(ctx, nestID, playerID)
}

// Hatch requires the nest's mother position to be fully recorded; without it
// no remote command is issued. It then resets the player's in-game growth to
// the hatchling value, teleports them to the mother, and marks their claimed
// slot hatched. The remote commands and the local mark are not one
// transaction: when the mark fails after the commands succeeded, the
// mismatch is logged for manual reconciliation and the error returned.
func (e *Engine) Hatch(ctx context.Context, nestID, playerID int64) (eggID int64, ok bool, err error) {
	defer func() { e.met.ObserveOp("hatch", err) }()

	nest, err := e.store.NestByID(ctx, nestID)
	if err != nil {
		return 0, false, err
	}
	pos, havePos := nest.MotherPosition()
	if !havePos {
		return 0, false, domain.ErrPrecondition{Reason: "mother position is not recorded for this nest"}
	}

	accountID, err := e.roster.AccountID(ctx, playerID)
	if err != nil {
		return 0, false, err
	}
	if err := e.runCommand(ctx, "setattr", fmt.Sprintf("/setattr %s growth 0", accountID)); err != nil {
		return 0, false, err
	}
	teleport := fmt.Sprintf("/teleport (X=%g,Y=%g,Z=%g)", pos.X, pos.Y, pos.Z)
	if err := e.runCommand(ctx, "teleport", teleport); err != nil {
		return 0, false, err
	}

	eggID, ok, err = e.store.MarkEggHatched(ctx, nestID, playerID)
	if err != nil {
		// Remote state already changed; no compensation exists.
		e.log.Error("hatch marked failed after in-game commands succeeded",
			"nest", nestID, "player", playerID, "error", err)
		return 0, false, err
	}
	if ok {
		e.log.Info("egg hatched", "nest", nestID, "player", playerID, "egg", eggID)
	}
	return eggID, ok, nil
}

// CloseNest lets the creator end their nest early. Anyone else gets
// ErrForbidden. Idempotent once expired.
func (e *Engine) CloseNest(ctx context.Context, nestID, playerID int64) (err error) {
	defer func() { e.met.ObserveOp("close_nest", err) }()

	nest, err := e.store.NestByID(ctx, nestID)
	if err != nil {
		return err
	}
	if nest.CreatedBy != playerID {
		return domain.ErrForbidden{PlayerID: playerID, Action: fmt.Sprintf("close nest %d", nestID)}
	}
	return e.store.CloseNest(ctx, nestID)
}

// ExpireDueNests flips every overdue open nest and returns the affected rows.
func (e *Engine) ExpireDueNests(ctx context.Context) ([]domain.ExpiredNest, error) {
	expired, err := e.store.ExpireDueNests(ctx)
	e.met.ObserveOp("expire_nests", err)
	if err != nil {
		return nil, err
	}
	e.met.AddExpired(len(expired))
	return expired, nil
}

// SetActiveSeason activates the named season and appends an audit entry. A
// failed audit write is logged and swallowed; it never blocks the change.
func (e *Engine) SetActiveSeason(ctx context.Context, name string, changedBy int64) (domain.Season, error) {
	season, err := e.store.SetActiveSeason(ctx, name)
	e.met.ObserveOp("set_season", err)
	if err != nil {
		return domain.Season{}, err
	}
	change := domain.SeasonChange{ChangedBy: changedBy, SeasonName: season.Name}
	if auditErr := e.store.AppendSeasonChange(ctx, change); auditErr != nil {
		e.log.Warn("season audit entry not written",
			"season", season.Name, "changed_by", changedBy, "error", auditErr)
	}
	e.log.Info("season activated", "season", season.Name, "changed_by", changedBy)
	return season, nil
}

// SaveParentDetails upserts the cosmetic record for one parent. When the
// mother records hers, her live position is captured as the nest's hatch
// teleport target; a missing in-game location is reported as a precondition
// failure so she can retry, with the details themselves already saved.
func (e *Engine) SaveParentDetails(ctx context.Context, playerID int64, d domain.ParentDetails) (err error) {
	defer func() { e.met.ObserveOp("save_parent_details", err) }()

	if err := e.store.UpsertParentDetails(ctx, d); err != nil {
		return err
	}
	if d.Role != domain.RoleMother {
		return nil
	}
	snap, err := e.lookupPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if snap.Pos == nil {
		return domain.ErrPrecondition{Reason: "in-game location unavailable; details saved, position not recorded"}
	}
	pos := domain.Position{X: snap.Pos.X, Y: snap.Pos.Y, Z: snap.Pos.Z}
	if err := e.store.SetMotherPosition(ctx, d.NestID, pos); err != nil {
		return err
	}
	e.log.Info("mother position recorded", "nest", d.NestID, "player", playerID)
	return nil
}

// AttachNestImage stores an uploaded image and records its key on the nest.
func (e *Engine) AttachNestImage(ctx context.Context, nestID int64, contentType string, data []byte) (key string, err error) {
	defer func() { e.met.ObserveOp("attach_image", err) }()

	if e.images == nil {
		return "", domain.ErrPrecondition{Reason: "image storage is not configured"}
	}
	if _, err := e.store.NestByID(ctx, nestID); err != nil {
		return "", err
	}
	key = fmt.Sprintf("nests/%d/%s", nestID, uuid.NewString())
	if err := e.images.Put(ctx, key, contentType, data); err != nil {
		return "", fmt.Errorf("store nest image: %w", err)
	}
	if err := e.store.SetNestImage(ctx, nestID, key); err != nil {
		return "", err
	}
	return key, nil
}

// lookupPlayer resolves the player's account id and queries the live game
// state for it.
func (e *Engine) lookupPlayer(ctx context.Context, playerID int64) (playerinfo.Snapshot, error) {
	accountID, err := e.roster.AccountID(ctx, playerID)
	if err != nil {
		return playerinfo.Snapshot{}, err
	}
	raw, err := e.runCommandOut(ctx, "playerinfo", "/playerinfo "+accountID)
	if err != nil {
		return playerinfo.Snapshot{}, err
	}
	return playerinfo.Decode(raw), nil
}

func (e *Engine) runCommand(ctx context.Context, verb, command string) error {
	_, err := e.runCommandOut(ctx, verb, command)
	return err
}

func (e *Engine) runCommandOut(ctx context.Context, verb, command string) (string, error) {
	out, err := e.console.Run(ctx, command)
	e.met.ObserveConsole(verb, err)
	return out, err
}
