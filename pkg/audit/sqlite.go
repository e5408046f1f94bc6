package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	owerr "github.com/odvcencio/overwatch/pkg/errors"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS audit_records (
	seq        INTEGER PRIMARY KEY,
	mission_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	actor      TEXT NOT NULL,
	summary    TEXT NOT NULL,
	fields     TEXT NOT NULL,
	at_unix_ns INTEGER NOT NULL,
	prev_hash  TEXT NOT NULL,
	hash       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_records_mission ON audit_records(mission_id, seq);
`

// SQLiteJournal persists the chain in a SQLite database.
type SQLiteJournal struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// OpenSQLite opens (or creates) a journal at dsn. ":memory:" gives a
// throwaway journal for tests.
func OpenSQLite(dsn string) (*SQLiteJournal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, owerr.New(owerr.ErrCodeInvalidInput, "audit path cannot be empty")
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, owerr.Wrap(err, owerr.ErrCodeStorageWrite, "create audit directory")
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, owerr.Wrap(err, owerr.ErrCodeStorageWrite, "open audit database")
	}
	// One connection: appends are serialized anyway, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, owerr.Wrap(err, owerr.ErrCodeStorageWrite, fmt.Sprintf("apply %q", pragma))
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, owerr.Wrap(err, owerr.ErrCodeStorageWrite, "create audit schema")
	}
	return &SQLiteJournal{db: db, now: time.Now}, nil
}

// Append implements Journal.
func (j *SQLiteJournal) Append(ctx context.Context, rec Record) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec = cloneRecord(rec)
	if rec.At.IsZero() {
		rec.At = j.now()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, owerr.Wrap(err, owerr.ErrCodeStorageWrite, "begin audit append")
	}
	defer func() { _ = tx.Rollback() }()

	var lastSeq sql.NullInt64
	var lastHash sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT seq, hash FROM audit_records ORDER BY seq DESC LIMIT 1`,
	).Scan(&lastSeq, &lastHash)
	if err != nil && err != sql.ErrNoRows {
		return Record{}, owerr.Wrap(err, owerr.ErrCodeStorageRead, "load audit chain head")
	}

	rec.Seq = uint64(lastSeq.Int64) + 1
	rec.PrevHash = lastHash.String
	rec.Hash = ChainHash(rec, rec.PrevHash)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_records (seq, mission_id, kind, actor, summary, fields, at_unix_ns, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Seq, rec.MissionID, rec.Kind, rec.Actor, rec.Summary, encodeFields(rec.Fields),
		rec.At.UTC().UnixNano(), rec.PrevHash, rec.Hash,
	); err != nil {
		return Record{}, owerr.Wrap(err, owerr.ErrCodeStorageWrite, "insert audit record")
	}
	if err := tx.Commit(); err != nil {
		return Record{}, owerr.Wrap(err, owerr.ErrCodeStorageWrite, "commit audit record")
	}
	return rec, nil
}

// List implements Journal.
func (j *SQLiteJournal) List(ctx context.Context, missionID string) ([]Record, error) {
	query := `SELECT seq, mission_id, kind, actor, summary, fields, at_unix_ns, prev_hash, hash
		FROM audit_records`
	var args []any
	if missionID != "" {
		query += ` WHERE mission_id = ?`
		args = append(args, missionID)
	}
	query += ` ORDER BY seq`
	return j.query(ctx, query, args...)
}

func (j *SQLiteJournal) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, owerr.Wrap(err, owerr.ErrCodeStorageRead, "query audit records")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec    Record
			seq    int64
			fields string
			atNs   int64
		)
		if err := rows.Scan(&seq, &rec.MissionID, &rec.Kind, &rec.Actor, &rec.Summary, &fields, &atNs, &rec.PrevHash, &rec.Hash); err != nil {
			return nil, owerr.Wrap(err, owerr.ErrCodeStorageRead, "scan audit record")
		}
		rec.Seq = uint64(seq)
		rec.At = time.Unix(0, atNs).UTC()
		if fields != "" && fields != "{}" {
			if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
				return nil, owerr.Wrap(err, owerr.ErrCodeStorageRead, "decode audit fields").
					WithContext("seq", rec.Seq)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, owerr.Wrap(err, owerr.ErrCodeStorageRead, "iterate audit records")
	}
	return out, nil
}

// Verify implements Journal.
func (j *SQLiteJournal) Verify(ctx context.Context) error {
	records, err := j.List(ctx, "")
	if err != nil {
		return err
	}
	return verifyChain(records)
}

// Close implements Journal.
func (j *SQLiteJournal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}
