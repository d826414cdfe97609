package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

const slotTable = "report_slots"

// SQLBackend keeps slots as rows of report_slots(name, payload, updated_at),
// queried through ent's dialect-aware builder.
type SQLBackend struct {
	drv     *entsql.Driver
	onClose func()
	logger  *slog.Logger
}

// NewSQLBackend wraps an ent driver and creates the slot table if missing.
// onClose runs after the driver is closed (e.g. to release a pgx pool).
func NewSQLBackend(ctx context.Context, drv *entsql.Driver, onClose func(), logger *slog.Logger) (*SQLBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &SQLBackend{drv: drv, onClose: onClose, logger: logger}
	if err := b.migrate(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// slotTableDDL returns the CREATE TABLE statement for the dialect.
func slotTableDDL(d string) (string, error) {
	var updatedAt string
	switch d {
	case dialect.SQLite:
		updatedAt = "datetime"
	case dialect.Postgres:
		updatedAt = "timestamptz"
	default:
		return "", fmt.Errorf("unsupported dialect %q", d)
	}
	return "CREATE TABLE IF NOT EXISTS " + slotTable + " (" +
		"name varchar(255) NOT NULL PRIMARY KEY, " +
		"payload text NOT NULL, " +
		"updated_at " + updatedAt + " NOT NULL)", nil
}

func (b *SQLBackend) migrate(ctx context.Context) error {
	ddl, err := slotTableDDL(b.drv.Dialect())
	if err != nil {
		return err
	}
	if err := b.drv.Exec(ctx, ddl, []any{}, nil); err != nil {
		b.logger.Error("failed to create slot table", "dialect", b.drv.Dialect(), "error", err)
		return fmt.Errorf("create %s: %w", slotTable, err)
	}
	return nil
}

func (b *SQLBackend) Slot(name string) Slot { return &sqlSlot{b: b, name: name} }

func (b *SQLBackend) Ping(ctx context.Context) error { return b.drv.DB().PingContext(ctx) }

func (b *SQLBackend) Close() error {
	err := b.drv.Close()
	if b.onClose != nil {
		b.onClose()
	}
	return err
}

type sqlSlot struct {
	b    *SQLBackend
	name string
}

func (s *sqlSlot) Name() string { return s.name }

func (s *sqlSlot) Get(ctx context.Context) ([]byte, error) {
	t := entsql.Table(slotTable)
	q, args := entsql.Dialect(s.b.drv.Dialect()).
		Select(t.C("payload")).
		From(t).
		Where(entsql.EQ(t.C("name"), s.name)).
		Query()

	rows := &entsql.Rows{}
	if err := s.b.drv.Query(ctx, q, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrSlotEmpty
	}
	var payload string
	if err := rows.Scan(&payload); err != nil {
		return nil, err
	}
	return []byte(payload), rows.Err()
}

// Set is one upsert statement, so the row flips from old to new payload atomically.
func (s *sqlSlot) Set(ctx context.Context, payload []byte) error {
	q, args := entsql.Dialect(s.b.drv.Dialect()).
		Insert(slotTable).
		Columns("name", "payload", "updated_at").
		Values(s.name, string(payload), time.Now().UTC()).
		OnConflict(
			entsql.ConflictColumns("name"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if err := s.b.drv.Exec(ctx, q, args, nil); err != nil {
		s.b.logger.Error("failed to write slot", "slot", s.name, "error", err)
		return err
	}
	return nil
}

func (s *sqlSlot) Delete(ctx context.Context) error {
	q, args := entsql.Dialect(s.b.drv.Dialect()).
		Delete(slotTable).
		Where(entsql.EQ("name", s.name)).
		Query()
	var res entsql.Result
	if err := s.b.drv.Exec(ctx, q, args, &res); err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.b.logger.Debug("slot already empty", "slot", s.name)
	}
	return nil
}
