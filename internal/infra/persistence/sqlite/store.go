// Package sqlite provides the embedded store used for development and
// tests. It enforces the same single-conditional-statement semantics as the
// Postgres backend, so the concurrency properties hold on both.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register the cgo-free sqlite driver

	"nestcore/internal/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.Store = (*Store)(nil)

// Store persists nesting state to a SQLite database file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the database at path and applies the schema.
// An empty path selects an in-memory database.
func NewStore(path string) (*Store, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer; one pooled connection sidesteps
	// SQLITE_BUSY between concurrent transactions.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, now: time.Now}
	if err := s.applyDDL(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) applyDDL(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

// CreateSeason inserts an inactive season.
func (s *Store) CreateSeason(ctx context.Context, name string) (domain.Season, error) {
	season := domain.Season{Name: name}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO seasons (name) VALUES (?) RETURNING id`, name,
	).Scan(&season.ID)
	if err != nil {
		return domain.Season{}, fmt.Errorf("create season: %w", err)
	}
	return season, nil
}

// SetActiveSeason flips all flags in one statement, then purges stats rows.
func (s *Store) SetActiveSeason(ctx context.Context, name string) (domain.Season, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Season{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE seasons SET is_active = (lower(name) = lower(?))`, name,
	); err != nil {
		return domain.Season{}, fmt.Errorf("flip season flags: %w", err)
	}

	var season domain.Season
	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT id, name, is_active FROM seasons WHERE is_active = 1 LIMIT 1`,
	).Scan(&season.ID, &season.Name, &active)
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.Commit(); err != nil {
			return domain.Season{}, fmt.Errorf("commit: %w", err)
		}
		return domain.Season{}, domain.ErrNotFound{Entity: "season", Key: name}
	}
	if err != nil {
		return domain.Season{}, fmt.Errorf("select active season: %w", err)
	}
	season.IsActive = active != 0

	if _, err := tx.ExecContext(ctx, `DELETE FROM player_season_species_stats`); err != nil {
		return domain.Season{}, fmt.Errorf("purge season stats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Season{}, fmt.Errorf("commit: %w", err)
	}
	return season, nil
}

// ActiveSeason returns the season currently flagged active.
func (s *Store) ActiveSeason(ctx context.Context) (domain.Season, error) {
	var season domain.Season
	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_active FROM seasons WHERE is_active = 1 LIMIT 1`,
	).Scan(&season.ID, &season.Name, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Season{}, domain.ErrNotFound{Entity: "active season", Key: "-"}
	}
	if err != nil {
		return domain.Season{}, fmt.Errorf("select active season: %w", err)
	}
	season.IsActive = active != 0
	return season, nil
}

// AppendSeasonChange records a season activation for auditing.
func (s *Store) AppendSeasonChange(ctx context.Context, change domain.SeasonChange) error {
	at := change.ChangedAt
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO season_changes (changed_by, season_name, changed_at) VALUES (?, ?, ?)`,
		change.ChangedBy, change.SeasonName, at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append season change: %w", err)
	}
	return nil
}

// CreateSpecies registers a species.
func (s *Store) CreateSpecies(ctx context.Context, code, name, imageURL string) (domain.Species, error) {
	sp := domain.Species{Code: code, Name: name, ImageURL: imageURL}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO species (code, name, image_url) VALUES (?, ?, ?) RETURNING id`,
		code, name, imageURL,
	).Scan(&sp.ID)
	if err != nil {
		return domain.Species{}, fmt.Errorf("create species: %w", err)
	}
	return sp, nil
}

// SpeciesByCode resolves a case-sensitive species code.
func (s *Store) SpeciesByCode(ctx context.Context, code string) (domain.Species, error) {
	var sp domain.Species
	var imageURL sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, image_url FROM species WHERE code = ?`, code,
	).Scan(&sp.ID, &sp.Code, &sp.Name, &imageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Species{}, domain.ErrNotFound{Entity: "species", Key: code}
	}
	if err != nil {
		return domain.Species{}, fmt.Errorf("select species: %w", err)
	}
	sp.ImageURL = imageURL.String
	return sp, nil
}

// SetSpeciesRule upserts the rule row for (season, species).
func (s *Store) SetSpeciesRule(ctx context.Context, seasonID, speciesID int64, rule domain.SpeciesRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO season_species_rules (season_id, species_id, can_nest, egg_count, max_clutches_per_player)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (season_id, species_id) DO UPDATE SET
		  can_nest = excluded.can_nest,
		  egg_count = excluded.egg_count,
		  max_clutches_per_player = excluded.max_clutches_per_player`,
		seasonID, speciesID, boolToInt(rule.CanNest), rule.EggCount, rule.MaxClutchesPerPlayer,
	)
	if err != nil {
		return fmt.Errorf("set species rule: %w", err)
	}
	return nil
}

// ActiveRules joins the active season to its rule row for the species.
func (s *Store) ActiveRules(ctx context.Context, speciesID int64) (domain.SpeciesRule, error) {
	var rule domain.SpeciesRule
	var canNest int
	err := s.db.QueryRowContext(ctx, `
		SELECT r.can_nest, r.egg_count, r.max_clutches_per_player
		FROM seasons s
		JOIN season_species_rules r ON r.season_id = s.id
		WHERE s.is_active = 1 AND r.species_id = ?`,
		speciesID,
	).Scan(&canNest, &rule.EggCount, &rule.MaxClutchesPerPlayer)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SpeciesRule{}, domain.ErrNotFound{Entity: "species rule", Key: fmt.Sprintf("%d", speciesID)}
	}
	if err != nil {
		return domain.SpeciesRule{}, fmt.Errorf("select active rules: %w", err)
	}
	rule.CanNest = canNest != 0
	return rule, nil
}

// CreateNest performs the cap increment, nest insert and slot batch insert
// in one transaction, rolling back with ErrCapReached when the conditional
// increment affects no row.
func (s *Store) CreateNest(ctx context.Context, n domain.NewNest) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seasonID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM seasons WHERE is_active = 1 LIMIT 1`).Scan(&seasonID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound{Entity: "active season", Key: "-"}
	}
	if err != nil {
		return 0, fmt.Errorf("select active season: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO player_season_species_stats (season_id, player_id, species_id, clutches_started)
		VALUES (?, ?, ?, 0)
		ON CONFLICT (season_id, player_id, species_id) DO NOTHING`,
		seasonID, n.CreatedBy, n.SpeciesID,
	); err != nil {
		return 0, fmt.Errorf("ensure stats row: %w", err)
	}

	var started int
	err = tx.QueryRowContext(ctx, `
		UPDATE player_season_species_stats
		SET clutches_started = clutches_started + 1
		WHERE season_id = ?1 AND player_id = ?2 AND species_id = ?3
		  AND (?4 = 0 OR clutches_started < ?4)
		RETURNING clutches_started`,
		seasonID, n.CreatedBy, n.SpeciesID, n.MaxClutches,
	).Scan(&started)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrCapReached{SpeciesID: n.SpeciesID, Max: n.MaxClutches}
	}
	if err != nil {
		return 0, fmt.Errorf("bump clutch counter: %w", err)
	}

	var motherX, motherY, motherZ any
	if n.MotherPos != nil {
		motherX, motherY, motherZ = n.MotherPos.X, n.MotherPos.Y, n.MotherPos.Z
	}
	created := s.now().UTC()
	expires := created.Add(n.ExpiresIn)
	var nestID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO nests (season_id, species_id, mother_id, father_id, created_by_player_id,
		                   mother_x, mother_y, mother_z, server_name, asexual, status,
		                   created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'open', ?, ?)
		RETURNING id`,
		seasonID, n.SpeciesID, n.MotherID, n.FatherID, n.CreatedBy,
		motherX, motherY, motherZ, n.ServerName, boolToInt(n.Asexual),
		created.Unix(), expires.Unix(),
	).Scan(&nestID)
	if err != nil {
		return 0, fmt.Errorf("insert nest: %w", err)
	}

	if n.EggCount > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO eggs (nest_id, slot_index)
			WITH RECURSIVE seq(n) AS (
			  SELECT 1 UNION ALL SELECT n + 1 FROM seq WHERE n < ?2
			)
			SELECT ?1, n FROM seq`,
			nestID, n.EggCount,
		); err != nil {
			return 0, fmt.Errorf("insert egg slots: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return nestID, nil
}

// ClaimFirstEgg claims the lowest free slot in one conditional update.
func (s *Store) ClaimFirstEgg(ctx context.Context, nestID, playerID int64) (int64, bool, error) {
	var eggID int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE eggs
		SET claimed_by_player_id = ?2, claimed_at = ?3
		WHERE claimed_by_player_id IS NULL
		  AND id = (
		    SELECT id FROM eggs
		    WHERE nest_id = ?1 AND claimed_by_player_id IS NULL
		    ORDER BY slot_index
		    LIMIT 1
		  )
		  AND NOT EXISTS (
		    SELECT 1 FROM eggs
		    WHERE nest_id = ?1 AND claimed_by_player_id = ?2 AND hatched_at IS NULL
		  )
		RETURNING id`,
		nestID, playerID, s.now().Unix(),
	).Scan(&eggID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("claim egg: %w", err)
	}
	return eggID, true, nil
}

// UnclaimEgg releases the player's live slot in one conditional update.
func (s *Store) UnclaimEgg(ctx context.Context, nestID, playerID int64) (int, bool, error) {
	var slotIndex int
	err := s.db.QueryRowContext(ctx, `
		UPDATE eggs
		SET claimed_by_player_id = NULL, claimed_at = NULL
		WHERE nest_id = ? AND claimed_by_player_id = ? AND hatched_at IS NULL
		RETURNING slot_index`,
		nestID, playerID,
	).Scan(&slotIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("unclaim egg: %w", err)
	}
	return slotIndex, true, nil
}

// MarkEggHatched stamps the player's claimed slot; hatched is terminal.
func (s *Store) MarkEggHatched(ctx context.Context, nestID, playerID int64) (int64, bool, error) {
	var eggID int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE eggs
		SET hatched_at = ?
		WHERE nest_id = ? AND claimed_by_player_id = ? AND hatched_at IS NULL
		RETURNING id`,
		s.now().Unix(), nestID, playerID,
	).Scan(&eggID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("mark egg hatched: %w", err)
	}
	return eggID, true, nil
}

// NestByID fetches one nest row.
func (s *Store) NestByID(ctx context.Context, nestID int64) (domain.Nest, error) {
	var n domain.Nest
	var (
		motherID, fatherID, channelID, messageID sql.NullInt64
		motherX, motherY, motherZ                sql.NullFloat64
		serverName, imageKey, blurb              sql.NullString
		asexual                                  int
		createdAt, expiresAt                     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, season_id, species_id, mother_id, father_id, created_by_player_id,
		       status, mother_x, mother_y, mother_z, server_name, asexual,
		       image_key, blurb, channel_id, message_id, created_at, expires_at
		FROM nests WHERE id = ?`,
		nestID,
	).Scan(&n.ID, &n.SeasonID, &n.SpeciesID, &motherID, &fatherID, &n.CreatedBy,
		&n.Status, &motherX, &motherY, &motherZ, &serverName, &asexual,
		&imageKey, &blurb, &channelID, &messageID, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Nest{}, domain.ErrNotFound{Entity: "nest", Key: fmt.Sprintf("%d", nestID)}
	}
	if err != nil {
		return domain.Nest{}, fmt.Errorf("select nest: %w", err)
	}
	n.MotherID = nullInt(motherID)
	n.FatherID = nullInt(fatherID)
	n.ChannelID = nullInt(channelID)
	n.MessageID = nullInt(messageID)
	n.MotherX = nullFloat(motherX)
	n.MotherY = nullFloat(motherY)
	n.MotherZ = nullFloat(motherZ)
	n.ServerName = serverName.String
	n.ImageKey = nullStr(imageKey)
	n.Blurb = nullStr(blurb)
	n.Asexual = asexual != 0
	n.CreatedAt = time.Unix(createdAt, 0).UTC()
	n.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return n, nil
}

// CloseNest flips an open nest to expired; already-expired nests are a no-op.
func (s *Store) CloseNest(ctx context.Context, nestID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE nests SET status = 'expired' WHERE id = ? AND status = 'open'`, nestID,
	)
	if err != nil {
		return fmt.Errorf("close nest: %w", err)
	}
	return nil
}

// ExpireDueNests flips every due open nest and returns the affected rows.
func (s *Store) ExpireDueNests(ctx context.Context) ([]domain.ExpiredNest, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE nests
		SET status = 'expired'
		WHERE status = 'open' AND expires_at < ?
		RETURNING id, channel_id, message_id`,
		s.now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("expire nests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var expired []domain.ExpiredNest
	for rows.Next() {
		var e domain.ExpiredNest
		var channelID, messageID sql.NullInt64
		if err := rows.Scan(&e.ID, &channelID, &messageID); err != nil {
			return nil, fmt.Errorf("scan expired nest: %w", err)
		}
		e.ChannelID = nullInt(channelID)
		e.MessageID = nullInt(messageID)
		expired = append(expired, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired nests: %w", err)
	}
	return expired, nil
}

// SetNestMessage stores the external channel/message reference.
func (s *Store) SetNestMessage(ctx context.Context, nestID, channelID, messageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE nests SET channel_id = ?, message_id = ? WHERE id = ?`,
		channelID, messageID, nestID,
	)
	if err != nil {
		return fmt.Errorf("set nest message: %w", err)
	}
	return nil
}

// SetMotherPosition records the mother's world position on the nest.
func (s *Store) SetMotherPosition(ctx context.Context, nestID int64, pos domain.Position) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE nests SET mother_x = ?, mother_y = ?, mother_z = ? WHERE id = ?`,
		pos.X, pos.Y, pos.Z, nestID,
	)
	if err != nil {
		return fmt.Errorf("set mother position: %w", err)
	}
	return nil
}

// SetNestImage stores the blob key for an uploaded image.
func (s *Store) SetNestImage(ctx context.Context, nestID int64, imageKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE nests SET image_key = ? WHERE id = ?`, imageKey, nestID,
	)
	if err != nil {
		return fmt.Errorf("set nest image: %w", err)
	}
	return nil
}

// UpsertParentDetails writes the (nest, role) record.
func (s *Store) UpsertParentDetails(ctx context.Context, d domain.ParentDetails) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nest_parent_details (nest_id, parent_role, dino_name, subspecies,
		  dominant_skin, recessive_skin, immunity_gene, character_sheet_url, mutations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (nest_id, parent_role) DO UPDATE SET
		  dino_name = excluded.dino_name,
		  subspecies = excluded.subspecies,
		  dominant_skin = excluded.dominant_skin,
		  recessive_skin = excluded.recessive_skin,
		  immunity_gene = excluded.immunity_gene,
		  character_sheet_url = excluded.character_sheet_url,
		  mutations = excluded.mutations`,
		d.NestID, d.Role, d.DinoName, d.Subspecies,
		d.DominantSkin, d.RecessiveSkin, d.ImmunityGene, d.SheetURL, d.Mutations,
	)
	if err != nil {
		return fmt.Errorf("upsert parent details: %w", err)
	}
	return nil
}

// ParentDetailsByNest lists a nest's parent records.
func (s *Store) ParentDetailsByNest(ctx context.Context, nestID int64) ([]domain.ParentDetails, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT nest_id, parent_role, coalesce(dino_name, ''), coalesce(subspecies, ''),
		       coalesce(dominant_skin, ''), coalesce(recessive_skin, ''),
		       coalesce(immunity_gene, ''), coalesce(character_sheet_url, ''), coalesce(mutations, '')
		FROM nest_parent_details WHERE nest_id = ? ORDER BY parent_role`,
		nestID,
	)
	if err != nil {
		return nil, fmt.Errorf("select parent details: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ParentDetails
	for rows.Next() {
		var d domain.ParentDetails
		if err := rows.Scan(&d.NestID, &d.Role, &d.DinoName, &d.Subspecies,
			&d.DominantSkin, &d.RecessiveSkin, &d.ImmunityGene, &d.SheetURL, &d.Mutations); err != nil {
			return nil, fmt.Errorf("scan parent details: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parent details: %w", err)
	}
	return out, nil
}

// ListEggs returns a nest's slots in slot order.
func (s *Store) ListEggs(ctx context.Context, nestID int64) ([]domain.Egg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nest_id, slot_index, claimed_by_player_id, claimed_at, hatched_at
		FROM eggs WHERE nest_id = ? ORDER BY slot_index`,
		nestID,
	)
	if err != nil {
		return nil, fmt.Errorf("select eggs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Egg
	for rows.Next() {
		var e domain.Egg
		var claimedBy, claimedAt, hatchedAt sql.NullInt64
		if err := rows.Scan(&e.ID, &e.NestID, &e.SlotIndex, &claimedBy, &claimedAt, &hatchedAt); err != nil {
			return nil, fmt.Errorf("scan egg: %w", err)
		}
		e.ClaimedBy = nullInt(claimedBy)
		e.ClaimedAt = nullUnix(claimedAt)
		e.HatchedAt = nullUnix(hatchedAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eggs: %w", err)
	}
	return out, nil
}

// SyncPlayers bulk-upserts roster rows.
func (s *Store) SyncPlayers(ctx context.Context, links []domain.PlayerLink) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, link := range links {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO players (id, account_id) VALUES (?, ?)
			ON CONFLICT (id) DO UPDATE SET account_id = excluded.account_id`,
			link.PlayerID, link.AccountID,
		); err != nil {
			return fmt.Errorf("upsert player %d: %w", link.PlayerID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AccountID resolves the external game account id for a player.
func (s *Store) AccountID(ctx context.Context, playerID int64) (string, error) {
	var accountID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id FROM players WHERE id = ?`, playerID,
	).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound{Entity: "player account", Key: fmt.Sprintf("%d", playerID)}
	}
	if err != nil {
		return "", fmt.Errorf("select account id: %w", err)
	}
	if !accountID.Valid || accountID.String == "" {
		return "", domain.ErrNotFound{Entity: "player account", Key: fmt.Sprintf("%d", playerID)}
	}
	return accountID.String, nil
}

// ClutchesStarted reads the active-season counter, 0 when no row exists.
func (s *Store) ClutchesStarted(ctx context.Context, playerID, speciesID int64) (int, error) {
	var started int
	err := s.db.QueryRowContext(ctx, `
		SELECT st.clutches_started
		FROM seasons s
		JOIN player_season_species_stats st ON st.season_id = s.id
		WHERE s.is_active = 1 AND st.player_id = ? AND st.species_id = ?`,
		playerID, speciesID,
	).Scan(&started)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select clutch counter: %w", err)
	}
	return started, nil
}
