package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"

	"logcore/internal/metrics"
	"logcore/internal/record"
	"logcore/pkg/errors"
)

// Options configures Open.
type Options struct {
	Schema      Schema
	Durability  Durability
	AutoMigrate bool // false (the zero value) makes Open reject an older-but-supported file with MigrationRequired
}

// Engine is the store access engine (spec §4.I): append, appendBatch,
// readRange, prune and clear, each preserving the invariant that
// oldest/newest id reflect the actual rows present and that every
// records row has a matching texts row.
type Engine struct {
	db     *sql.DB
	schema Schema
	path   string

	mu      sync.Mutex
	oldest  int64
	newest  int64
	hasRows bool
}

// Open opens or creates a store file at path. A file created fresh is
// stamped with the current schema version; an existing file whose
// version is supported but old is migrated in place when
// opts.AutoMigrate is true, or rejected with MigrationRequired
// otherwise; an unsupported version fails with VersionNotSupported.
func Open(path string, opts Options) (*Engine, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.ReadFailed("opening store file").WithIdentifier(path).WithCause(err)
	}
	db.SetMaxOpenConns(1) // SQLite: one writer connection avoids SQLITE_BUSY churn

	if err := applyDurabilityPragmas(db, opts.Durability); err != nil {
		db.Close()
		return nil, err
	}

	version, err := userVersion(db)
	if err != nil {
		db.Close()
		return nil, errors.ReadFailed("reading schema version").WithIdentifier(path).WithCause(err)
	}

	switch {
	case version == 0:
		if _, err := db.Exec(ddlFor(opts.Schema)); err != nil {
			db.Close()
			return nil, errors.StoreFormat("creating schema").WithIdentifier(path).WithCause(err)
		}
		if err := setUserVersion(db, currentSchemaVersion); err != nil {
			db.Close()
			return nil, errors.WriteFailed("stamping schema version").WithIdentifier(path).WithCause(err)
		}
	case version > currentSchemaVersion:
		db.Close()
		return nil, errors.VersionNotSupported(fmt.Sprintf("store schema version %d is newer than this build supports (%d)", version, currentSchemaVersion)).WithIdentifier(path)
	case version < minSupportedSchemaVersion:
		db.Close()
		return nil, errors.VersionNotSupported(fmt.Sprintf("store schema version %d predates the oldest version this build can migrate (%d)", version, minSupportedSchemaVersion)).WithIdentifier(path)
	case version < currentSchemaVersion:
		if !opts.AutoMigrate {
			db.Close()
			return nil, errors.MigrationRequired(fmt.Sprintf("store schema version %d requires migration to %d", version, currentSchemaVersion)).WithIdentifier(path)
		}
		if err := migrate(db, version, currentSchemaVersion); err != nil {
			db.Close()
			return nil, errors.StoreFormat("migrating store").WithIdentifier(path).WithCause(err)
		}
	}

	e := &Engine{db: db, schema: opts.Schema, path: path}
	if err := e.loadBounds(); err != nil {
		db.Close()
		return nil, err
	}
	if e.hasRows && e.newest >= maxAddressableRecordID {
		db.Close()
		return nil, errors.FileTooLarge("store file exceeds the maximum addressable record count").WithIdentifier(path)
	}
	metrics.StoreRecordCount.Set(0)
	if e.hasRows {
		metrics.StoreRecordCount.Set(float64(e.newest - e.oldest + 1))
	}
	e.reportSizeBytes()
	return e, nil
}

func (e *Engine) reportSizeBytes() {
	if e.path == "" {
		return
	}
	info, err := os.Stat(e.path)
	if err != nil {
		return
	}
	metrics.StoreSizeBytes.Set(float64(info.Size()))
}

func applyDurabilityPragmas(db *sql.DB, d Durability) error {
	var stmts []string
	if d == Fast {
		stmts = []string{"PRAGMA journal_mode=MEMORY", "PRAGMA synchronous=OFF"}
	} else {
		stmts = []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=FULL"}
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return errors.ConfigError("applying durability pragma").WithCause(err)
		}
	}
	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}

func setUserVersion(db *sql.DB, v int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v))
	return err
}

func (e *Engine) loadBounds() error {
	var min, max sql.NullInt64
	if err := e.db.QueryRow("SELECT MIN(id), MAX(id) FROM records").Scan(&min, &max); err != nil {
		return errors.ReadFailed("reading record id bounds").WithCause(err)
	}
	e.hasRows = min.Valid
	if e.hasRows {
		e.oldest = min.Int64
		e.newest = max.Int64
	}
	return nil
}

func (e *Engine) Close() error { return e.db.Close() }

// Bounds reports the oldest and newest ids currently in the store.
// hasRows is false for an empty store.
func (e *Engine) Bounds() (oldest, newest int64, hasRows bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oldest, e.newest, e.hasRows
}

// Append inserts one record, interning its identifier strings and
// allocating the next id. On failure the transaction is rolled back
// and no id is consumed.
func (e *Engine) Append(ctx context.Context, rec *record.Record) (int64, error) {
	ids, err := e.AppendBatch(ctx, []*record.Record{rec})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AppendBatch inserts records atomically: either all land or none do.
func (e *Engine) AppendBatch(ctx context.Context, recs []*record.Record) ([]int64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	timer := prometheus.NewTimer(metrics.StoreAppendDuration)
	defer timer.ObserveDuration()

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.WriteFailed("beginning append transaction").WithCause(err)
	}
	defer tx.Rollback()

	nextID := int64(0)
	if e.hasRows {
		nextID = e.newest + 1
	}

	ids := make([]int64, 0, len(recs))
	for _, rec := range recs {
		id := nextID
		if err := e.insertOne(ctx, tx, id, rec); err != nil {
			return nil, errors.WriteFailed("appending record").WithCause(err)
		}
		ids = append(ids, id)
		nextID++
	}

	if nextID-1 >= maxAddressableRecordID {
		return nil, errors.FileTooLarge("append would exceed the maximum addressable record count")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.WriteFailed("committing append transaction").WithCause(err)
	}

	e.newest = nextID - 1
	if !e.hasRows {
		e.oldest = 0
		e.hasRows = true
	}
	metrics.StoreRecordCount.Set(float64(e.newest - e.oldest + 1))
	e.reportSizeBytes()
	return ids, nil
}

func (e *Engine) insertOne(ctx context.Context, tx *sql.Tx, id int64, rec *record.Record) error {
	if _, err := tx.ExecContext(ctx, "INSERT INTO texts (id, text) VALUES (?, ?)", id, rec.Text()); err != nil {
		return err
	}

	tagsJoined := joinTags(rec.Tags().Items())

	if e.schema == Analysis {
		writerID, err := internName(ctx, tx, "writers", rec.Writer())
		if err != nil {
			return err
		}
		levelID, err := internName(ctx, tx, "levels", rec.LevelName())
		if err != nil {
			return err
		}
		appID, err := internName(ctx, tx, "applications", rec.Application())
		if err != nil {
			return err
		}
		procID, err := internName(ctx, tx, "processes", rec.Process())
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO records
			(id, timestamp_utc_ticks, timezone_offset_ticks, high_precision_ts, lost_message_count, process_id, writer_id, level_id, application_id, process_name_id, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, rec.WallTime().UnixNano(), int64(rec.WallOffset()), rec.HighPrecisionNanos(), rec.LostMessageCount(), rec.ProcessID(),
			writerID, levelID, appID, procID, tagsJoined)
		return err
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO records
		(id, timestamp_utc_ticks, timezone_offset_ticks, high_precision_ts, lost_message_count, process_id, writer, level, application, process_name, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.WallTime().UnixNano(), int64(rec.WallOffset()), rec.HighPrecisionNanos(), rec.LostMessageCount(), rec.ProcessID(),
		rec.Writer(), rec.LevelName(), rec.Application(), rec.Process(), tagsJoined)
	return err
}

func internName(ctx context.Context, tx *sql.Tx, table, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, "INSERT INTO "+table+" (name) VALUES (?)", name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}

// Row is a materialised record read back from the store.
type Row struct {
	ID                  int64
	WallTime            time.Time
	WallOffset          time.Duration
	HighPrecisionNanos  int64
	LostMessageCount    int64
	ProcessID           int
	Writer              string
	LevelName           string
	Application         string
	Process             string
	Tags                []string
	Text                string
}

// ReadRange returns up to count contiguous records starting at fromID
// in ascending id order, invoking callback once per row. A fromID
// below the oldest id is treated as "start at oldest".
func (e *Engine) ReadRange(ctx context.Context, fromID int64, count int, callback func(Row) error) error {
	e.mu.Lock()
	oldest, hasRows := e.oldest, e.hasRows
	e.mu.Unlock()
	if !hasRows {
		return nil
	}
	if fromID < oldest {
		fromID = oldest
	}

	query := e.readRangeQuery()
	rows, err := e.db.QueryContext(ctx, query, fromID, count)
	if err != nil {
		return errors.ReadFailed("reading record range").WithCause(err)
	}
	defer rows.Close()

	for rows.Next() {
		row, tagsJoined, err := e.scanRow(rows)
		if err != nil {
			return errors.ReadFailed("scanning record row").WithCause(err)
		}
		row.Tags = splitTags(tagsJoined)
		if err := callback(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (e *Engine) readRangeQuery() string {
	if e.schema == Analysis {
		return `SELECT r.id, r.timestamp_utc_ticks, r.timezone_offset_ticks, r.high_precision_ts, r.lost_message_count, r.process_id,
			w.name, l.name, a.name, p.name, r.tags, t.text
			FROM records r
			JOIN writers w ON w.id = r.writer_id
			JOIN levels l ON l.id = r.level_id
			JOIN applications a ON a.id = r.application_id
			JOIN processes p ON p.id = r.process_name_id
			JOIN texts t ON t.id = r.id
			WHERE r.id >= ? ORDER BY r.id ASC LIMIT ?`
	}
	return `SELECT r.id, r.timestamp_utc_ticks, r.timezone_offset_ticks, r.high_precision_ts, r.lost_message_count, r.process_id,
		r.writer, r.level, r.application, r.process_name, r.tags, t.text
		FROM records r JOIN texts t ON t.id = r.id
		WHERE r.id >= ? ORDER BY r.id ASC LIMIT ?`
}

func (e *Engine) scanRow(rows *sql.Rows) (Row, string, error) {
	var row Row
	var tsNanos, offsetNanos int64
	var tags string
	err := rows.Scan(&row.ID, &tsNanos, &offsetNanos, &row.HighPrecisionNanos, &row.LostMessageCount, &row.ProcessID,
		&row.Writer, &row.LevelName, &row.Application, &row.Process, &tags, &row.Text)
	row.WallTime = time.Unix(0, tsNanos).UTC()
	row.WallOffset = time.Duration(offsetNanos)
	return row, tags, err
}

func splitTags(joined string) []string {
	if joined == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(joined); i++ {
		if i == len(joined) || joined[i] == ',' {
			out = append(out, joined[start:i])
			start = i + 1
		}
	}
	return out
}

// Prune removes the oldest records until count <= maxCount and every
// remaining record's timestamp >= now - maxAge, computing a single cut
// id from the max of the two candidate bounds. maxCount = -1 disables
// the count bound; maxAge <= 0 disables the age bound. Returns the
// inclusive cut id that was removed up to, or (-1, false) if nothing
// was pruned.
func (e *Engine) Prune(ctx context.Context, maxCount int64, maxAge time.Duration) (int64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hasRows {
		return -1, false, nil
	}

	total := e.newest - e.oldest + 1
	countCut := int64(-1)
	if maxCount >= 0 && total > maxCount {
		countCut = e.oldest + (total - maxCount) - 1
	}

	ageCut := int64(-1)
	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge).UnixNano()
		err := e.db.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(id), -1) FROM records WHERE timestamp_utc_ticks < ?", cutoff).Scan(&ageCut)
		if err != nil {
			return -1, false, errors.ReadFailed("computing age-based prune cut").WithCause(err)
		}
	}

	cut := countCut
	if ageCut > cut {
		cut = ageCut
	}
	if cut < e.oldest {
		return -1, false, nil
	}
	if cut > e.newest {
		cut = e.newest
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return -1, false, errors.WriteFailed("beginning prune transaction").WithCause(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id <= ?", cut); err != nil {
		return -1, false, errors.WriteFailed("pruning records").WithCause(err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM texts WHERE id <= ?", cut); err != nil {
		return -1, false, errors.WriteFailed("pruning texts").WithCause(err)
	}
	if err := tx.Commit(); err != nil {
		return -1, false, errors.WriteFailed("committing prune transaction").WithCause(err)
	}

	removed := cut - e.oldest + 1
	if cut == e.newest {
		e.hasRows = false
	} else {
		e.oldest = cut + 1
	}
	reason := "count"
	if ageCut > countCut {
		reason = "age"
	}
	metrics.StorePruneTotal.WithLabelValues(reason).Add(float64(removed))
	if e.hasRows {
		metrics.StoreRecordCount.Set(float64(e.newest - e.oldest + 1))
	} else {
		metrics.StoreRecordCount.Set(0)
	}
	return cut, true, nil
}

// Clear drops records and texts; when messagesOnly is false it also
// drops dictionary tables (Analysis schema only — Recording has none).
func (e *Engine) Clear(ctx context.Context, messagesOnly bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WriteFailed("beginning clear transaction").WithCause(err)
	}
	defer tx.Rollback()

	stmts := []string{"DELETE FROM records", "DELETE FROM texts"}
	if !messagesOnly && e.schema == Analysis {
		stmts = append(stmts, "DELETE FROM writers", "DELETE FROM levels", "DELETE FROM applications", "DELETE FROM processes")
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return errors.WriteFailed("clearing store").WithCause(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.WriteFailed("committing clear transaction").WithCause(err)
	}

	e.hasRows = false
	e.oldest, e.newest = 0, 0
	metrics.StoreRecordCount.Set(0)
	return nil
}
