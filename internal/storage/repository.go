package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bilancio/internal/backend"
	"bilancio/internal/core"
	"bilancio/internal/log"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

var _ backend.Source = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database still answers; used for readiness.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const recordColumns = `id, reference, date, due_date, category, description, amount_cents, kind, source, status, party_id`

func (r *SQLiteRepository) ListRecords(ctx context.Context) ([]core.FinancialRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY date DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []core.FinancialRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetRecord(ctx context.Context, id string) (core.FinancialRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FinancialRecord{}, backend.ErrNotFound
	}
	if err != nil {
		return core.FinancialRecord{}, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) ListParties(ctx context.Context, role core.PartyRole) ([]core.Party, error) {
	query := `SELECT id, name, role, vat_number FROM parties`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, string(role))
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list parties: %w", err)
	}
	defer rows.Close()

	var out []core.Party
	for rows.Next() {
		var p core.Party
		var pr string
		if err := rows.Scan(&p.ID, &p.Name, &pr, &p.VATNumber); err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		p.Role = core.PartyRole(pr)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpsertParty(ctx context.Context, p core.Party) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO parties (id, name, role, vat_number) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role, vat_number = excluded.vat_number`,
		p.ID, p.Name, string(p.Role), p.VATNumber)
	if err != nil {
		return fmt.Errorf("upsert party: %w", err)
	}
	return nil
}

// CreateRecord inserts r, assigning a UUID when no id is set.
func (r *SQLiteRepository) CreateRecord(ctx context.Context, rec core.FinancialRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = core.StatusIssued
	}
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", backend.ErrInvalidRecord, err)
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Reference, rec.Date.String(), rec.DueDate.String(), rec.Category, rec.Description,
		rec.Amount.Cents, string(rec.Kind), string(rec.Source), string(rec.Status), rec.PartyID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return "", fmt.Errorf("%w: duplicate id %s", backend.ErrInvalidRecord, rec.ID)
		}
		return "", fmt.Errorf("create record: %w", err)
	}

	r.logger.InfoContext(ctx, "Record saved to SQLite",
		log.FieldRecordID, rec.ID,
		"kind", rec.Kind,
		"amount_cents", rec.Amount.Cents,
		"date", rec.Date.String())

	return rec.ID, nil
}

func (r *SQLiteRepository) MarkPaid(ctx context.Context, id string) (core.FinancialRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.FinancialRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.FinancialRecord{}, backend.ErrNotFound
	}
	if err != nil {
		return core.FinancialRecord{}, fmt.Errorf("get record %s: %w", id, err)
	}
	if rec.IsPaid() {
		return core.FinancialRecord{}, backend.ErrAlreadyPaid
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(core.StatusPaid), id); err != nil {
		return core.FinancialRecord{}, fmt.Errorf("mark paid: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.FinancialRecord{}, fmt.Errorf("commit: %w", err)
	}

	rec.Status = core.StatusPaid
	r.logger.InfoContext(ctx, "Record marked as paid", log.FieldRecordID, id)
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (core.FinancialRecord, error) {
	var (
		rec                            core.FinancialRecord
		date, due, kind, source, state string
		cents                          sql.NullInt64
	)
	if err := s.Scan(&rec.ID, &rec.Reference, &date, &due, &rec.Category, &rec.Description,
		&cents, &kind, &source, &state, &rec.PartyID); err != nil {
		return core.FinancialRecord{}, err
	}
	// ParseDate returns an empty or invalid Date alongside its error
	rec.Date, _ = core.ParseDate(date)
	rec.DueDate, _ = core.ParseDate(due)
	if cents.Valid {
		rec.Amount = &core.Money{Cents: cents.Int64}
	}
	rec.Kind = core.Kind(kind)
	rec.Source = core.Source(source)
	rec.Status = core.PaymentStatus(state)
	return rec, nil
}
