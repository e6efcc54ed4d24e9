package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"weddinghub/internal/capacity"
	"weddinghub/internal/model"
	"weddinghub/internal/rsvp"
)

// RSVPFilter narrows the admin listing. Nil fields match everything.
type RSVPFilter struct {
	EventID    *int64
	ActivityID *int64
	GuestID    *int64
	Status     *model.Status
}

// RSVPListRow is the denormalized admin listing row.
type RSVPListRow struct {
	model.RSVP
	GuestFirstName string
	GuestLastName  string
	GuestEmail     string
	EventName      *string
	ActivityName   *string
}

// AlertRow is one capacity-bounded entity with its committed total.
type AlertRow struct {
	EntityType string
	EntityID   int64
	Name       string
	Capacity   int
	Committed  int
}

// ReminderRecipient is a guest still owing a response for an entity.
type ReminderRecipient struct {
	FirstName  string
	LastName   string
	Email      string
	EntityName string
}

type Repository interface {
	rsvp.Store

	CreateGuest(ctx context.Context, g *model.Guest) (int64, error)
	GetGuestByID(ctx context.Context, id int64) (*model.Guest, error)
	CreateEvent(ctx context.Context, e *model.Event) (int64, error)
	CreateActivity(ctx context.Context, a *model.Activity) (int64, error)

	EntitySnapshot(ctx context.Context, ref rsvp.EntityRef) (capacity.Snapshot, error)
	GuestRSVPs(ctx context.Context, guestID int64) ([]model.RSVP, error)
	ListRSVPs(ctx context.Context, f RSVPFilter) ([]RSVPListRow, error)
	DeleteRSVP(ctx context.Context, id int64) error
	CapacityAlerts(ctx context.Context) ([]AlertRow, error)
	PendingRecipients(ctx context.Context, ref rsvp.EntityRef) ([]ReminderRecipient, error)

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

// mapStorageErr classifies driver errors for the coordinator: serialization
// failures, deadlocks and lost unique-index races become retryable; foreign
// key misses mean the referenced guest no longer exists.
func mapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%s: %w", pqErr.Message, rsvp.ErrSerialization)
		case "23505":
			return fmt.Errorf("concurrent rsvp for the same guest and entity: %w", rsvp.ErrSerialization)
		case "23503":
			return rsvp.NewNotFound("guest not found")
		}
	}
	return err
}

// SubmitTx locks the target entity row for the duration of fn, so concurrent
// submits against the same entity serialize and the committed total read
// inside fn stays valid through the upsert.
func (r *repository) SubmitTx(ctx context.Context, ref rsvp.EntityRef, fn func(tx rsvp.Tx) error) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&submitTx{tx: tx, ctx: ctx}); err != nil {
		_ = tx.Rollback()
		return mapStorageErr(err)
	}

	if err := tx.Commit(); err != nil {
		return mapStorageErr(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

type submitTx struct {
	tx  *sql.Tx
	ctx context.Context
}

func entityTable(ref rsvp.EntityRef) string {
	if ref.Kind() == rsvp.KindEvent {
		return "events"
	}
	return "activities"
}

func rsvpRefColumn(ref rsvp.EntityRef) string {
	if ref.Kind() == rsvp.KindEvent {
		return "event_id"
	}
	return "activity_id"
}

func (t *submitTx) Entity(ref rsvp.EntityRef) (*rsvp.Entity, error) {
	query := fmt.Sprintf(`
		SELECT id, name, capacity, rsvp_deadline
		FROM %s
		WHERE id = $1
		FOR UPDATE
	`, entityTable(ref))

	var (
		ent      rsvp.Entity
		cap      sql.NullInt64
		deadline sql.NullTime
	)
	err := t.tx.QueryRowContext(t.ctx, query, ref.ID()).Scan(&ent.ID, &ent.Name, &cap, &deadline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rsvp.NewNotFound(string(ref.Kind()) + " not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s row: %w", entityTable(ref), err)
	}
	if cap.Valid {
		n := int(cap.Int64)
		ent.Capacity = &n
	}
	if deadline.Valid {
		d := deadline.Time
		ent.RSVPDeadline = &d
	}
	return &ent, nil
}

func (t *submitTx) ExistingRSVP(guestID int64, ref rsvp.EntityRef) (*model.RSVP, error) {
	query := fmt.Sprintf(`
		SELECT id, guest_id, event_id, activity_id, status, guest_count, responded_at, created_at, updated_at
		FROM rsvps
		WHERE guest_id = $1 AND %s = $2
	`, rsvpRefColumn(ref))

	row := t.tx.QueryRowContext(t.ctx, query, guestID, ref.ID())
	rec, err := scanRSVP(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read existing rsvp: %w", err)
	}
	return rec, nil
}

func (t *submitTx) Committed(ref rsvp.EntityRef) (int, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(COALESCE(guest_count, 1)), 0)
		FROM rsvps
		WHERE %s = $1 AND status = 'attending'
	`, rsvpRefColumn(ref))

	var committed int
	if err := t.tx.QueryRowContext(t.ctx, query, ref.ID()).Scan(&committed); err != nil {
		return 0, fmt.Errorf("failed to sum committed seats: %w", err)
	}
	return committed, nil
}

func (t *submitTx) Upsert(rec *model.RSVP) (*model.RSVP, error) {
	if rec.ID == 0 {
		query := `
			INSERT INTO rsvps (guest_id, event_id, activity_id, status, guest_count, responded_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			RETURNING id, created_at, updated_at
		`
		err := t.tx.QueryRowContext(t.ctx, query,
			rec.GuestID, rec.EventID, rec.ActivityID, rec.Status, rec.GuestCount, rec.RespondedAt,
		).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert rsvp: %w", err)
		}
		return rec, nil
	}

	query := `
		UPDATE rsvps
		SET status = $1, guest_count = $2, responded_at = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING created_at, updated_at
	`
	err := t.tx.QueryRowContext(t.ctx, query,
		rec.Status, rec.GuestCount, rec.RespondedAt, rec.ID,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update rsvp: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRSVP(row rowScanner) (*model.RSVP, error) {
	var (
		rec         model.RSVP
		eventID     sql.NullInt64
		activityID  sql.NullInt64
		guestCount  sql.NullInt64
		respondedAt sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.GuestID, &eventID, &activityID, &rec.Status,
		&guestCount, &respondedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if eventID.Valid {
		rec.EventID = &eventID.Int64
	}
	if activityID.Valid {
		rec.ActivityID = &activityID.Int64
	}
	if guestCount.Valid {
		n := int(guestCount.Int64)
		rec.GuestCount = &n
	}
	if respondedAt.Valid {
		d := respondedAt.Time
		rec.RespondedAt = &d
	}
	return &rec, nil
}

func (r *repository) CreateGuest(ctx context.Context, g *model.Guest) (int64, error) {
	query := `
		INSERT INTO guests (first_name, last_name, email, group_id, age_category, guest_category)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		g.FirstName, g.LastName, g.Email, g.GroupID, g.AgeCategory, g.GuestCategory,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert guest: %w", err)
	}
	return g.ID, nil
}

func (r *repository) GetGuestByID(ctx context.Context, id int64) (*model.Guest, error) {
	query := `
		SELECT id, first_name, last_name, COALESCE(email, ''), group_id, age_category, guest_category, created_at, updated_at
		FROM guests
		WHERE id = $1
	`
	var (
		g       model.Guest
		groupID sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.FirstName, &g.LastName, &g.Email, &groupID,
		&g.AgeCategory, &g.GuestCategory, &g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rsvp.NewNotFound("guest not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guest: %w", err)
	}
	if groupID.Valid {
		g.GroupID = &groupID.Int64
	}
	return &g, nil
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) (int64, error) {
	query := `
		INSERT INTO events (name, description, start_time, end_time, location, capacity, rsvp_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		e.Name, e.Description, e.StartTime, e.EndTime, e.Location, e.Capacity, e.RSVPDeadline,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return e.ID, nil
}

func (r *repository) CreateActivity(ctx context.Context, a *model.Activity) (int64, error) {
	query := `
		INSERT INTO activities (name, description, start_time, end_time, location, capacity, rsvp_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.Name, a.Description, a.StartTime, a.EndTime, a.Location, a.Capacity, a.RSVPDeadline,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert activity: %w", err)
	}
	return a.ID, nil
}

// EntitySnapshot derives capacity and committed total in one query, so the
// pair always reflects a single consistent read.
func (r *repository) EntitySnapshot(ctx context.Context, ref rsvp.EntityRef) (capacity.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT e.capacity,
		       COALESCE(SUM(COALESCE(r.guest_count, 1)) FILTER (WHERE r.status = 'attending'), 0)
		FROM %s e
		LEFT JOIN rsvps r ON r.%s = e.id
		WHERE e.id = $1
		GROUP BY e.id, e.capacity
	`, entityTable(ref), rsvpRefColumn(ref))

	var (
		snap capacity.Snapshot
		cap  sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, ref.ID()).Scan(&cap, &snap.Committed)
	if errors.Is(err, sql.ErrNoRows) {
		return capacity.Snapshot{}, rsvp.NewNotFound(string(ref.Kind()) + " not found")
	}
	if err != nil {
		return capacity.Snapshot{}, fmt.Errorf("failed to read capacity snapshot: %w", err)
	}
	if cap.Valid {
		n := int(cap.Int64)
		snap.Capacity = &n
	}
	return snap, nil
}

func (r *repository) GuestRSVPs(ctx context.Context, guestID int64) ([]model.RSVP, error) {
	query := `
		SELECT id, guest_id, event_id, activity_id, status, guest_count, responded_at, created_at, updated_at
		FROM rsvps
		WHERE guest_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, guestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get guest rsvps: %w", err)
	}
	defer rows.Close()

	var out []model.RSVP
	for rows.Next() {
		rec, err := scanRSVP(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rsvp: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *repository) ListRSVPs(ctx context.Context, f RSVPFilter) ([]RSVPListRow, error) {
	query := `
		SELECT r.id, r.guest_id, r.event_id, r.activity_id, r.status, r.guest_count,
		       r.responded_at, r.created_at, r.updated_at,
		       g.first_name, g.last_name, COALESCE(g.email, ''),
		       e.name, a.name
		FROM rsvps r
		JOIN guests g ON g.id = r.guest_id
		LEFT JOIN events e ON e.id = r.event_id
		LEFT JOIN activities a ON a.id = r.activity_id
		WHERE ($1::bigint IS NULL OR r.event_id = $1)
		  AND ($2::bigint IS NULL OR r.activity_id = $2)
		  AND ($3::bigint IS NULL OR r.guest_id = $3)
		  AND ($4::text IS NULL OR r.status = $4)
		ORDER BY r.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, f.EventID, f.ActivityID, f.GuestID, f.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to list rsvps: %w", err)
	}
	defer rows.Close()

	var out []RSVPListRow
	for rows.Next() {
		var (
			row         RSVPListRow
			eventID     sql.NullInt64
			activityID  sql.NullInt64
			guestCount  sql.NullInt64
			respondedAt sql.NullTime
			eventName   sql.NullString
			actName     sql.NullString
		)
		err := rows.Scan(
			&row.ID, &row.GuestID, &eventID, &activityID, &row.Status, &guestCount,
			&respondedAt, &row.CreatedAt, &row.UpdatedAt,
			&row.GuestFirstName, &row.GuestLastName, &row.GuestEmail,
			&eventName, &actName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rsvp listing row: %w", err)
		}
		if eventID.Valid {
			row.EventID = &eventID.Int64
		}
		if activityID.Valid {
			row.ActivityID = &activityID.Int64
		}
		if guestCount.Valid {
			n := int(guestCount.Int64)
			row.GuestCount = &n
		}
		if respondedAt.Valid {
			d := respondedAt.Time
			row.RespondedAt = &d
		}
		if eventName.Valid {
			row.EventName = &eventName.String
		}
		if actName.Valid {
			row.ActivityName = &actName.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DeleteRSVP is the admin cleanup path. It bypasses the coordinator on
// purpose: removing a row only ever frees capacity.
func (r *repository) DeleteRSVP(ctx context.Context, id int64) error {
	var deleted int64
	err := r.db.QueryRowContext(ctx, `DELETE FROM rsvps WHERE id = $1 RETURNING id`, id).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return rsvp.NewNotFound("rsvp not found")
	}
	if err != nil {
		return fmt.Errorf("failed to delete rsvp: %w", err)
	}
	return nil
}

func (r *repository) CapacityAlerts(ctx context.Context) ([]AlertRow, error) {
	var out []AlertRow
	for _, src := range []struct {
		entityType string
		table      string
		refCol     string
	}{
		{"event", "events", "event_id"},
		{"activity", "activities", "activity_id"},
	} {
		query := fmt.Sprintf(`
			SELECT e.id, e.name, e.capacity,
			       COALESCE(SUM(COALESCE(r.guest_count, 1)) FILTER (WHERE r.status = 'attending'), 0)
			FROM %s e
			LEFT JOIN rsvps r ON r.%s = e.id
			WHERE e.capacity IS NOT NULL
			GROUP BY e.id, e.name, e.capacity
			ORDER BY e.id
		`, src.table, src.refCol)

		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s capacity rows: %w", src.entityType, err)
		}
		for rows.Next() {
			row := AlertRow{EntityType: src.entityType}
			if err := rows.Scan(&row.EntityID, &row.Name, &row.Capacity, &row.Committed); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s capacity row: %w", src.entityType, err)
			}
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

func (r *repository) PendingRecipients(ctx context.Context, ref rsvp.EntityRef) ([]ReminderRecipient, error) {
	query := fmt.Sprintf(`
		SELECT g.first_name, g.last_name, g.email, e.name
		FROM rsvps r
		JOIN guests g ON g.id = r.guest_id
		JOIN %s e ON e.id = r.%s
		WHERE r.%s = $1 AND r.status = 'pending' AND COALESCE(g.email, '') <> ''
		ORDER BY g.last_name, g.first_name
	`, entityTable(ref), rsvpRefColumn(ref), rsvpRefColumn(ref))

	rows, err := r.db.QueryContext(ctx, query, ref.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to read pending recipients: %w", err)
	}
	defer rows.Close()

	var out []ReminderRecipient
	for rows.Next() {
		var rec ReminderRecipient
		if err := rows.Scan(&rec.FirstName, &rec.LastName, &rec.Email, &rec.EntityName); err != nil {
			return nil, fmt.Errorf("failed to scan pending recipient: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
