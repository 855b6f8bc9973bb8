package domain

import "context"

// Store is the persistence contract shared by the Postgres and SQLite
// backends. Every operation that must be exclusive under concurrency
// (clutch-cap increment, egg claim, nest expiry) is implemented as a single
// conditional statement whose WHERE clause encodes the precondition, so that
// at most one concurrent caller's write can satisfy it. Implementations must
// preserve that property regardless of the engine's isolation level.
type Store interface {
	// CreateSeason inserts an inactive season.
	CreateSeason(ctx context.Context, name string) (Season, error)

	// SetActiveSeason clears every active flag and sets the flag for the
	// season matching name case-insensitively, in one statement. Returns
	// ErrNotFound when no season matches; the clear still applies, leaving
	// no active season. On success all per-season stats rows are purged.
	SetActiveSeason(ctx context.Context, name string) (Season, error)

	// ActiveSeason returns the currently active season.
	ActiveSeason(ctx context.Context) (Season, error)

	// AppendSeasonChange records a season-activation audit entry.
	AppendSeasonChange(ctx context.Context, change SeasonChange) error

	// CreateSpecies registers a species under its case-sensitive code.
	CreateSpecies(ctx context.Context, code, name, imageURL string) (Species, error)

	// SpeciesByCode looks a species up by its case-sensitive code.
	SpeciesByCode(ctx context.Context, code string) (Species, error)

	// SetSpeciesRule upserts the per-(season, species) rule set.
	SetSpeciesRule(ctx context.Context, seasonID, speciesID int64, rule SpeciesRule) error

	// ActiveRules returns the rule set for the species under the active
	// season, or ErrNotFound when none is configured.
	ActiveRules(ctx context.Context, speciesID int64) (SpeciesRule, error)

	// CreateNest atomically ensures a stats row for (active season, creator,
	// species), conditionally increments it below MaxClutches (always, when
	// MaxClutches is 0), inserts the nest and its 1..EggCount slots, and
	// returns the nest id. When the increment affects no row the whole
	// transaction rolls back and ErrCapReached is returned.
	CreateNest(ctx context.Context, n NewNest) (int64, error)

	// ClaimFirstEgg claims the lowest unclaimed slot in one conditional
	// update. ok is false when no unclaimed slot remains.
	ClaimFirstEgg(ctx context.Context, nestID, playerID int64) (eggID int64, ok bool, err error)

	// UnclaimEgg releases the player's claimed, unhatched slot in the nest.
	// ok is false when the player holds none; repeated calls return false.
	UnclaimEgg(ctx context.Context, nestID, playerID int64) (slotIndex int, ok bool, err error)

	// MarkEggHatched stamps the player's claimed slot as hatched. ok is
	// false when the player holds no claimed slot in the nest.
	MarkEggHatched(ctx context.Context, nestID, playerID int64) (eggID int64, ok bool, err error)

	// NestByID fetches one nest.
	NestByID(ctx context.Context, nestID int64) (Nest, error)

	// CloseNest flips an open nest to expired. Idempotent once expired.
	CloseNest(ctx context.Context, nestID int64) error

	// ExpireDueNests flips every open nest whose expiry time has passed and
	// returns exactly the affected rows. Safe to call repeatedly and
	// concurrently; a second sweep finds nothing left to do.
	ExpireDueNests(ctx context.Context) ([]ExpiredNest, error)

	// SetNestMessage stores the external channel/message reference.
	SetNestMessage(ctx context.Context, nestID, channelID, messageID int64) error

	// SetMotherPosition records the mother's world position on the nest.
	SetMotherPosition(ctx context.Context, nestID int64, pos Position) error

	// SetNestImage stores the blob key for an uploaded nest image.
	SetNestImage(ctx context.Context, nestID int64, imageKey string) error

	// UpsertParentDetails writes the (nest, role) detail record, replacing
	// any previous one.
	UpsertParentDetails(ctx context.Context, d ParentDetails) error

	// ParentDetailsByNest lists the detail records for a nest.
	ParentDetailsByNest(ctx context.Context, nestID int64) ([]ParentDetails, error)

	// ListEggs returns a nest's slots ordered by slot index.
	ListEggs(ctx context.Context, nestID int64) ([]Egg, error)

	// SyncPlayers bulk-upserts roster rows into the player table.
	SyncPlayers(ctx context.Context, links []PlayerLink) error

	// AccountID resolves a player's external game account id.
	AccountID(ctx context.Context, playerID int64) (string, error)

	// ClutchesStarted reads the stats counter for the active season.
	ClutchesStarted(ctx context.Context, playerID, speciesID int64) (int, error)

	// Close releases the backend's resources.
	Close() error
}
