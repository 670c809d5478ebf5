// Package store implements the on-disk record container (spec §4.H,
// §4.I): a single SQLite file per store, opened through the pure-Go
// modernc.org/sqlite driver so the module never needs cgo, in one of
// two schemas (Recording, optimised for append; Analysis, optimised
// for query) and one of two durability modes (Robust, Fast).
package store

// Schema selects which of the two on-disk layouts a store uses.
type Schema int

const (
	// Recording optimises append: a single records table with inline
	// identifier columns, indices limited to the id column.
	Recording Schema = iota
	// Analysis optimises query: records reference per-column
	// dictionary tables, with secondary indices on timestamp, process
	// id, and each dictionary reference.
	Analysis
)

func (s Schema) String() string {
	if s == Analysis {
		return "analysis"
	}
	return "recording"
}

// Durability selects the journalling/fsync trade-off a store opens
// with.
type Durability int

const (
	// Robust journals through a write-ahead log and fsyncs at commit;
	// survives a process crash or sudden power loss.
	Robust Durability = iota
	// Fast disables journalling and fsync; a crash may lose the last
	// few seconds of writes, and sudden power loss may corrupt the
	// file.
	Fast
)

// currentSchemaVersion is stamped into PRAGMA user_version on a file
// created by this version of the module. minSupportedSchemaVersion is
// the oldest version this module still knows how to migrate forward.
const (
	currentSchemaVersion     = 1
	minSupportedSchemaVersion = 1
)

// maxAddressableRecordID bounds how large a single store file may
// grow before Open refuses it with FileTooLarge — ids are allocated
// densely starting at 0, so this is also the maximum record count a
// single file may ever hold.
const maxAddressableRecordID = 1 << 40

const commonTablesDDL = `
CREATE TABLE IF NOT EXISTS texts (
	id   INTEGER PRIMARY KEY,
	text TEXT NOT NULL
);
`

const recordingSchemaDDL = commonTablesDDL + `
CREATE TABLE IF NOT EXISTS records (
	id                     INTEGER PRIMARY KEY,
	timestamp_utc_ticks    INTEGER NOT NULL,
	timezone_offset_ticks  INTEGER NOT NULL,
	high_precision_ts      INTEGER NOT NULL,
	lost_message_count     INTEGER NOT NULL DEFAULT 0,
	process_id             INTEGER NOT NULL,
	writer                 TEXT NOT NULL,
	level                  TEXT NOT NULL,
	application            TEXT NOT NULL,
	process_name           TEXT NOT NULL,
	tags                   TEXT NOT NULL DEFAULT ''
);
`

const analysisSchemaDDL = commonTablesDDL + `
CREATE TABLE IF NOT EXISTS writers (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS levels (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS applications (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS processes (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS records (
	id                     INTEGER PRIMARY KEY,
	timestamp_utc_ticks    INTEGER NOT NULL,
	timezone_offset_ticks  INTEGER NOT NULL,
	high_precision_ts      INTEGER NOT NULL,
	lost_message_count     INTEGER NOT NULL DEFAULT 0,
	process_id             INTEGER NOT NULL,
	writer_id              INTEGER NOT NULL REFERENCES writers(id),
	level_id               INTEGER NOT NULL REFERENCES levels(id),
	application_id         INTEGER NOT NULL REFERENCES applications(id),
	process_name_id        INTEGER NOT NULL REFERENCES processes(id),
	tags                   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records(timestamp_utc_ticks);
CREATE INDEX IF NOT EXISTS idx_records_process_id ON records(process_id);
CREATE INDEX IF NOT EXISTS idx_records_writer_id ON records(writer_id);
CREATE INDEX IF NOT EXISTS idx_records_level_id ON records(level_id);
CREATE INDEX IF NOT EXISTS idx_records_application_id ON records(application_id);
CREATE INDEX IF NOT EXISTS idx_records_process_name_id ON records(process_name_id);
`

func ddlFor(schema Schema) string {
	if schema == Analysis {
		return analysisSchemaDDL
	}
	return recordingSchemaDDL
}
