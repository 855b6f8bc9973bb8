package postgres

// schema is applied statement by statement on startup, mirroring how the
// process owns its own DDL instead of an external migration step.
const schema = `
CREATE TABLE IF NOT EXISTS players (
	id BIGINT PRIMARY KEY,
	account_id TEXT
);

CREATE TABLE IF NOT EXISTS seasons (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	is_active BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS species (
	id BIGSERIAL PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	image_url TEXT
);

CREATE TABLE IF NOT EXISTS season_species_rules (
	season_id BIGINT NOT NULL REFERENCES seasons(id),
	species_id BIGINT NOT NULL REFERENCES species(id),
	can_nest BOOLEAN NOT NULL DEFAULT TRUE,
	egg_count INTEGER NOT NULL DEFAULT 0,
	max_clutches_per_player INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (season_id, species_id)
);

CREATE TABLE IF NOT EXISTS nests (
	id BIGSERIAL PRIMARY KEY,
	season_id BIGINT NOT NULL REFERENCES seasons(id),
	species_id BIGINT NOT NULL REFERENCES species(id),
	mother_id BIGINT,
	father_id BIGINT,
	created_by_player_id BIGINT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open',
	mother_x DOUBLE PRECISION,
	mother_y DOUBLE PRECISION,
	mother_z DOUBLE PRECISION,
	server_name TEXT,
	asexual BOOLEAN NOT NULL DEFAULT FALSE,
	image_key TEXT,
	blurb TEXT,
	channel_id BIGINT,
	message_id BIGINT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS eggs (
	id BIGSERIAL PRIMARY KEY,
	nest_id BIGINT NOT NULL REFERENCES nests(id),
	slot_index INTEGER NOT NULL,
	claimed_by_player_id BIGINT,
	claimed_at TIMESTAMPTZ,
	hatched_at TIMESTAMPTZ,
	UNIQUE (nest_id, slot_index)
);

CREATE TABLE IF NOT EXISTS nest_parent_details (
	nest_id BIGINT NOT NULL REFERENCES nests(id),
	parent_role TEXT NOT NULL,
	dino_name TEXT,
	subspecies TEXT,
	dominant_skin TEXT,
	recessive_skin TEXT,
	immunity_gene TEXT,
	character_sheet_url TEXT,
	mutations TEXT,
	PRIMARY KEY (nest_id, parent_role)
);

CREATE TABLE IF NOT EXISTS player_season_species_stats (
	season_id BIGINT NOT NULL,
	player_id BIGINT NOT NULL,
	species_id BIGINT NOT NULL,
	clutches_started INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (season_id, player_id, species_id)
);

CREATE TABLE IF NOT EXISTS season_changes (
	id BIGSERIAL PRIMARY KEY,
	changed_by BIGINT NOT NULL,
	season_name TEXT NOT NULL,
	changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
