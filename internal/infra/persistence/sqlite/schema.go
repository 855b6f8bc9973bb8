package sqlite

// schema mirrors the Postgres layout with SQLite types. Timestamps are
// stored as unix seconds so comparisons stay integer-only.
const schema = `
CREATE TABLE IF NOT EXISTS players (
	id INTEGER PRIMARY KEY,
	account_id TEXT
);

CREATE TABLE IF NOT EXISTS seasons (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	is_active INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS species (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	image_url TEXT
);

CREATE TABLE IF NOT EXISTS season_species_rules (
	season_id INTEGER NOT NULL REFERENCES seasons(id),
	species_id INTEGER NOT NULL REFERENCES species(id),
	can_nest INTEGER NOT NULL DEFAULT 1,
	egg_count INTEGER NOT NULL DEFAULT 0,
	max_clutches_per_player INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (season_id, species_id)
);

CREATE TABLE IF NOT EXISTS nests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	season_id INTEGER NOT NULL REFERENCES seasons(id),
	species_id INTEGER NOT NULL REFERENCES species(id),
	mother_id INTEGER,
	father_id INTEGER,
	created_by_player_id INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'open',
	mother_x REAL,
	mother_y REAL,
	mother_z REAL,
	server_name TEXT,
	asexual INTEGER NOT NULL DEFAULT 0,
	image_key TEXT,
	blurb TEXT,
	channel_id INTEGER,
	message_id INTEGER,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS eggs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	nest_id INTEGER NOT NULL REFERENCES nests(id),
	slot_index INTEGER NOT NULL,
	claimed_by_player_id INTEGER,
	claimed_at INTEGER,
	hatched_at INTEGER,
	UNIQUE (nest_id, slot_index)
);

CREATE TABLE IF NOT EXISTS nest_parent_details (
	nest_id INTEGER NOT NULL REFERENCES nests(id),
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
	season_id INTEGER NOT NULL,
	player_id INTEGER NOT NULL,
	species_id INTEGER NOT NULL,
	clutches_started INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (season_id, player_id, species_id)
);

CREATE TABLE IF NOT EXISTS season_changes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	changed_by INTEGER NOT NULL,
	season_name TEXT NOT NULL,
	changed_at INTEGER NOT NULL
);
`
