// Package domain defines the persistent entity model for nesting seasons,
// nests, egg slots and per-player clutch accounting, together with the
// storage contract every persistence backend must satisfy.
package domain

import "time"

// NestStatus enumerates the nest state machine. The only legal transition is
// StatusOpen -> StatusExpired; expired is terminal.
type NestStatus string

const (
	StatusOpen    NestStatus = "open"
	StatusExpired NestStatus = "expired"
)

// ParentRole identifies which parent a detail record describes.
type ParentRole string

const (
	RoleMother ParentRole = "mother"
	RoleFather ParentRole = "father"
)

// Season is a rule context. Exactly one season is active at any time; the
// flag is flipped for all rows in a single statement.
type Season struct {
	ID       int64
	Name     string
	IsActive bool
}

// Species is a nestable species known to the game.
type Species struct {
	ID       int64
	Code     string
	Name     string
	ImageURL string
}

// SpeciesRule is the per-(season, species) configuration in effect while its
// season is active. Read-only to this module.
type SpeciesRule struct {
	CanNest              bool
	EggCount             int
	MaxClutchesPerPlayer int // 0 means unlimited
}

// Position is a world coordinate triple.
type Position struct {
	X, Y, Z float64
}

// Nest groups the egg slots of one nesting attempt.
type Nest struct {
	ID         int64
	SeasonID   int64
	SpeciesID  int64
	MotherID   *int64
	FatherID   *int64
	CreatedBy  int64
	Status     NestStatus
	MotherX    *float64
	MotherY    *float64
	MotherZ    *float64
	ServerName string
	Asexual    bool
	ImageKey   *string
	Blurb      *string
	ChannelID  *int64
	MessageID  *int64
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// MotherPosition returns the stored mother coordinates, or false when any of
// the three components is still unset.
func (n Nest) MotherPosition() (Position, bool) {
	if n.MotherX == nil || n.MotherY == nil || n.MotherZ == nil {
		return Position{}, false
	}
	return Position{X: *n.MotherX, Y: *n.MotherY, Z: *n.MotherZ}, true
}

// Egg is one claimable slot in a nest. Slot indexes are unique within the
// nest and assigned 1..egg_count at nest creation.
type Egg struct {
	ID        int64
	NestID    int64
	SlotIndex int
	ClaimedBy *int64
	ClaimedAt *time.Time
	HatchedAt *time.Time
}

// ParentDetails is the cosmetic record a parent fills in for a nest. At most
// one record exists per (nest, role); writes are upserts.
type ParentDetails struct {
	NestID        int64
	Role          ParentRole
	DinoName      string
	Subspecies    string
	DominantSkin  string
	RecessiveSkin string
	ImmunityGene  string
	SheetURL      string
	Mutations     string
}

// NewNest carries the inputs for an atomic nest creation. MaxClutches and
// EggCount come from the active rule set; ExpiresIn is the fixed lifetime
// window applied at insert.
type NewNest struct {
	SpeciesID   int64
	CreatedBy   int64
	MotherID    *int64
	FatherID    *int64
	MotherPos   *Position
	ServerName  string
	Asexual     bool
	EggCount    int
	MaxClutches int
	ExpiresIn   time.Duration
}

// ExpiredNest is one row affected by an expiry sweep, carrying the external
// message reference the notification layer needs.
type ExpiredNest struct {
	ID        int64
	ChannelID *int64
	MessageID *int64
}

// PlayerLink maps an internal player identity to the external game account
// id mirrored from the registration roster.
type PlayerLink struct {
	PlayerID  int64
	AccountID string
}

// SeasonChange is an audit entry recording a season activation.
type SeasonChange struct {
	ChangedBy  int64
	SeasonName string
	ChangedAt  time.Time
}
