package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenda_os/backend/internal/models"
	"github.com/agenda_os/backend/internal/ticketing"
)

// Schema is the subset of the ticketing database the scheduler reads and
// writes. EnsureSchema applies it for development and integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS clients (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	cpf  TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS technicians (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL DEFAULT '',
	sector_id TEXT NOT NULL,
	priority  INT  NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS service_orders (
	id              TEXT PRIMARY KEY,
	client_id       TEXT NOT NULL REFERENCES clients(id),
	subject_code    TEXT NOT NULL DEFAULT '',
	sector_id       TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'ABERTA',
	created_at      TIMESTAMPTZ NOT NULL,
	technician_id   TEXT REFERENCES technicians(id),
	scheduled_start TIMESTAMPTZ,
	scheduled_end   TIMESTAMPTZ,
	period          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS service_orders_sector_start ON service_orders (sector_id, scheduled_start);
`

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, Schema)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) InsertClients(ctx context.Context, clients []models.Client) (int64, error) {
	rows := make([][]any, 0, len(clients))
	for _, c := range clients {
		rows = append(rows, []any{c.ID, c.Name, c.CPF})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"clients"}, []string{"id", "name", "cpf"}, pgx.CopyFromRows(rows))
}

func (s *Store) InsertTechnicians(ctx context.Context, techs []models.Technician) (int64, error) {
	rows := make([][]any, 0, len(techs))
	for _, t := range techs {
		rows = append(rows, []any{t.ID, t.Name, t.SectorID, t.Priority})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"technicians"}, []string{"id", "name", "sector_id", "priority"}, pgx.CopyFromRows(rows))
}

func (s *Store) InsertOrders(ctx context.Context, orders []models.ServiceOrder) (int64, error) {
	rows := make([][]any, 0, len(orders))
	for _, o := range orders {
		status := o.Status
		if status == "" {
			status = "ABERTA"
		}
		rows = append(rows, []any{o.ID, o.ClientID, o.SubjectCode, o.SectorID, o.Description, status, o.CreatedAt,
			nullString(o.TechnicianID), o.ScheduledStart, o.ScheduledEnd, string(o.Period)})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"service_orders"},
		[]string{"id", "client_id", "subject_code", "sector_id", "description", "status", "created_at", "technician_id", "scheduled_start", "scheduled_end", "period"},
		pgx.CopyFromRows(rows))
}

func (s *Store) FindClientByCPF(ctx context.Context, cpf string) (models.Client, error) {
	var c models.Client
	err := s.Pool.QueryRow(ctx, `SELECT id, name, cpf FROM clients WHERE cpf = $1`, cpf).Scan(&c.ID, &c.Name, &c.CPF)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Client{}, ticketing.ErrNotFound
	}
	return c, err
}

const orderColumns = `id, client_id, subject_code, sector_id, description, status, created_at,
	technician_id, scheduled_start, scheduled_end, period`

func scanOrder(row pgx.Row) (models.ServiceOrder, error) {
	var (
		o      models.ServiceOrder
		techID *string
		period string
	)
	if err := row.Scan(&o.ID, &o.ClientID, &o.SubjectCode, &o.SectorID, &o.Description, &o.Status, &o.CreatedAt,
		&techID, &o.ScheduledStart, &o.ScheduledEnd, &period); err != nil {
		return models.ServiceOrder{}, err
	}
	if techID != nil {
		o.TechnicianID = *techID
	}
	o.Period = models.Period(period)
	return o, nil
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]models.ServiceOrder, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ServiceOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListOpenOrders(ctx context.Context, clientID string) ([]models.ServiceOrder, error) {
	return s.queryOrders(ctx, `SELECT `+orderColumns+` FROM service_orders
		WHERE client_id = $1 AND status <> $2
		ORDER BY created_at ASC, id ASC`, clientID, ticketing.StatusScheduled)
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (models.ServiceOrder, error) {
	o, err := scanOrder(s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM service_orders WHERE id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ServiceOrder{}, ticketing.ErrNotFound
	}
	return o, err
}

func (s *Store) ListTechnicians(ctx context.Context, sectorID string) ([]models.Technician, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, sector_id, priority FROM technicians WHERE sector_id = $1 ORDER BY priority ASC, id ASC`, sectorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Technician
	for rows.Next() {
		var t models.Technician
		if err := rows.Scan(&t.ID, &t.Name, &t.SectorID, &t.Priority); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListScheduledOrders returns orders of the sector starting within the
// calendar days [from, to].
func (s *Store) ListScheduledOrders(ctx context.Context, sectorID string, from, to time.Time) ([]models.ServiceOrder, error) {
	return s.queryOrders(ctx, `SELECT `+orderColumns+` FROM service_orders
		WHERE sector_id = $1 AND technician_id IS NOT NULL
			AND scheduled_start >= $2 AND scheduled_start < $3
		ORDER BY id ASC`, sectorID, from, to.AddDate(0, 0, 1))
}

// AssignSchedule writes the slot under a row lock. Writing the same slot
// twice leaves the row unchanged.
func (s *Store) AssignSchedule(ctx context.Context, orderID string, date time.Time, period models.Period, technicianID string) error {
	start, end := ticketing.PeriodWindow(date, period)
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM service_orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ticketing.ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE service_orders SET
				technician_id = $2,
				scheduled_start = $3,
				scheduled_end = $4,
				period = $5,
				status = $6
			WHERE id = $1
		`, orderID, technicianID, start, end, string(period), ticketing.StatusScheduled)
		return err
	})
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
