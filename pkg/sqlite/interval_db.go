package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/Avi18971911/spanlife/pkg/quark"
	"github.com/Avi18971911/spanlife/pkg/state"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const createDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quarks (
	quark  INTEGER PRIMARY KEY,
	parent INTEGER NOT NULL,
	name   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS intervals (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	quark    INTEGER NOT NULL,
	start_ns INTEGER NOT NULL,
	end_ns   INTEGER NOT NULL,
	ongoing  INTEGER NOT NULL,
	value    BLOB
);

CREATE INDEX IF NOT EXISTS intervals_quark_start ON intervals (quark, start_ns);
`

const (
	schemaVersionKey = "schema_version"
	runIDKey         = "run_id"
)

// Snapshot is a persisted construction run: its attribute tree and every interval in commit order.
type Snapshot struct {
	RunID         uuid.UUID
	SchemaVersion int
	Tree          *quark.AttributeTree
	Intervals     []state.Interval
}

type IntervalDB interface {
	// Save replaces whatever the database holds with the contents of store.
	Save(ctx context.Context, runID uuid.UUID, store *state.MemoryStore) error
	Load(ctx context.Context) (*Snapshot, error)
	// CheckVersion fails with ErrSchemaVersionMismatch when the stored run was built under another version.
	CheckVersion(ctx context.Context) error
	Close() error
}

type IntervalDBImpl struct {
	db            *sqlx.DB
	schemaVersion int
	encMode       cbor.EncMode
	logger        *zap.Logger
}

func NewIntervalDB(path string, schemaVersion int, logger *zap.Logger) (*IntervalDBImpl, error) {
	db, err := sqlx.Open("sqlite3", path+"?cache=shared&mode=rwc&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open interval database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create interval tables: %w", err)
	}
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cbor encoder: %w", err)
	}
	return &IntervalDBImpl{
		db:            db,
		schemaVersion: schemaVersion,
		encMode:       encMode,
		logger:        logger,
	}, nil
}

func (idb *IntervalDBImpl) Save(ctx context.Context, runID uuid.UUID, store *state.MemoryStore) error {
	tx, err := idb.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, table := range []string{"meta", "quarks", "intervals"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear table %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(
		ctx,
		"INSERT INTO meta(key, value) VALUES(?, ?), (?, ?)",
		schemaVersionKey, strconv.Itoa(idb.schemaVersion),
		runIDKey, runID.String(),
	); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	insertQuark, err := tx.PreparexContext(ctx, "INSERT INTO quarks(quark, parent, name) VALUES(?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare quark insert: %w", err)
	}
	defer insertQuark.Close()
	tree := store.Tree()
	for i := 0; i < tree.Len(); i++ {
		q := quark.Quark(i)
		if _, err := insertQuark.ExecContext(ctx, int(q), int(tree.Parent(q)), tree.Name(q)); err != nil {
			return fmt.Errorf("failed to insert quark %d: %w", q, err)
		}
	}

	insertInterval, err := tx.PreparexContext(
		ctx,
		"INSERT INTO intervals(quark, start_ns, end_ns, ongoing, value) VALUES(?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare interval insert: %w", err)
	}
	defer insertInterval.Close()
	intervals := append(store.Intervals(), store.OngoingIntervals()...)
	for _, interval := range intervals {
		value, err := idb.encMode.Marshal(interval.Value)
		if err != nil {
			return fmt.Errorf("failed to encode value of quark %d: %w", interval.Quark, err)
		}
		if _, err := insertInterval.ExecContext(
			ctx, int(interval.Quark), interval.Start, interval.End, interval.Ongoing, value,
		); err != nil {
			return fmt.Errorf("failed to insert interval of quark %d: %w", interval.Quark, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", runID, err)
	}
	idb.logger.Info("Persisted interval store",
		zap.String("run_id", runID.String()),
		zap.Int("quarks", tree.Len()),
		zap.Int("intervals", len(intervals)),
	)
	return nil
}

type quarkRow struct {
	Quark  int    `db:"quark"`
	Parent int    `db:"parent"`
	Name   string `db:"name"`
}

type intervalRow struct {
	Quark   int    `db:"quark"`
	Start   int64  `db:"start_ns"`
	End     int64  `db:"end_ns"`
	Ongoing bool   `db:"ongoing"`
	Value   []byte `db:"value"`
}

func (idb *IntervalDBImpl) Load(ctx context.Context) (*Snapshot, error) {
	if err := idb.CheckVersion(ctx); err != nil {
		return nil, err
	}
	runID, err := idb.metaValue(ctx, runIDKey)
	if err != nil {
		return nil, err
	}
	parsedRunID, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run id %q: %w", runID, err)
	}

	var quarkRows []quarkRow
	if err := idb.db.SelectContext(ctx, &quarkRows, "SELECT quark, parent, name FROM quarks ORDER BY quark"); err != nil {
		return nil, fmt.Errorf("failed to load quarks: %w", err)
	}
	tree := quark.NewAttributeTree()
	for _, row := range quarkRows {
		q := tree.GetOrCreate(quark.Quark(row.Parent), row.Name)
		if q != quark.Quark(row.Quark) {
			return nil, fmt.Errorf("quark %d (%s) rebuilt as %d: %w", row.Quark, row.Name, q, ErrCorruptStore)
		}
	}

	var intervalRows []intervalRow
	if err := idb.db.SelectContext(
		ctx,
		&intervalRows,
		"SELECT quark, start_ns, end_ns, ongoing, value FROM intervals ORDER BY id",
	); err != nil {
		return nil, fmt.Errorf("failed to load intervals: %w", err)
	}
	intervals := make([]state.Interval, len(intervalRows))
	for i, row := range intervalRows {
		var value state.Value
		if err := cbor.Unmarshal(row.Value, &value); err != nil {
			return nil, fmt.Errorf("failed to decode value of quark %d: %w", row.Quark, err)
		}
		intervals[i] = state.Interval{
			Quark:   quark.Quark(row.Quark),
			Value:   value,
			Start:   row.Start,
			End:     row.End,
			Ongoing: row.Ongoing,
		}
	}

	return &Snapshot{
		RunID:         parsedRunID,
		SchemaVersion: idb.schemaVersion,
		Tree:          tree,
		Intervals:     intervals,
	}, nil
}

func (idb *IntervalDBImpl) CheckVersion(ctx context.Context) error {
	stored, err := idb.metaValue(ctx, schemaVersionKey)
	if err != nil {
		return err
	}
	version, err := strconv.Atoi(stored)
	if err != nil || version != idb.schemaVersion {
		return fmt.Errorf("stored version %q, expected %d: %w", stored, idb.schemaVersion, ErrSchemaVersionMismatch)
	}
	return nil
}

func (idb *IntervalDBImpl) metaValue(ctx context.Context, key string) (string, error) {
	var value string
	err := idb.db.GetContext(ctx, &value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrEmptyStore
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (idb *IntervalDBImpl) Close() error {
	return idb.db.Close()
}

var (
	ErrSchemaVersionMismatch = errors.New("store was built under a different schema version")
	ErrEmptyStore            = errors.New("store holds no construction run")
	ErrCorruptStore          = errors.New("store is corrupt")
)
