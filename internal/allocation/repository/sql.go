package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	allocerrors "concierge/internal/allocation/errors"
	"concierge/pkg/config"
	sqltx "concierge/pkg/db/sql"
	"concierge/pkg/model"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_mysql.sql
var mysqlSchema string

const (
	requestColumns = "id, step_id, establishment_id, status, version, proposed_price, response_note, responded_by, responded_at, expires_at, created_at"
	stepColumns    = "id, journey_id, ordinal, universe, description, budget_min, budget_max, status, accepted_request_id, accepted_establishment_id, accepted_at, confirmed_price, deleted_at, created_at"
	journeyColumns = "id, title, desired_start, desired_end, party_size, city, concierge_id, status, deleted_at, created_at, updated_at"
)

type sqlStore struct {
	cfg       *config.Config
	db        *sql.DB
	driver    string
	txManager sqltx.TransactionManager
}

// NewSQLStore serves MySQL and SQLite. All statements use ? placeholders,
// which both drivers accept.
func NewSQLStore(cfg *config.Config) Store {
	return &sqlStore{
		cfg:       cfg,
		db:        cfg.Client.SQL,
		driver:    cfg.Client.SQLDriver,
		txManager: sqltx.NewTransactionManager(cfg.Client.SQL),
	}
}

// MigrateSQL applies the embedded schema for driver. Statements are
// idempotent.
func MigrateSQL(ctx context.Context, db *sql.DB, driver string) error {
	schema := sqliteSchema
	if driver == config.StoreMySQL {
		schema = mysqlSchema
	}

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (s *sqlStore) conn(ctx context.Context) sqltx.Querier {
	return sqltx.Conn(ctx, s.db)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*model.StepRequest, error) {
	var (
		r         model.StepRequest
		price     sql.NullFloat64
		note, by  sql.NullString
		respondAt sql.NullTime
		expiresAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.StepID, &r.EstablishmentID, &r.Status, &r.Version,
		&price, &note, &by, &respondAt, &expiresAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.ProposedPrice = floatPtr(price)
	r.ResponseNote = stringPtr(note)
	r.RespondedBy = stringPtr(by)
	r.RespondedAt = timePtr(respondAt)
	r.ExpiresAt = timePtr(expiresAt)
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func scanStep(row rowScanner) (*model.Step, error) {
	var (
		st                       model.Step
		budgetMin, budgetMax     sql.NullFloat64
		acceptedReq, acceptedEst sql.NullString
		acceptedAt, deletedAt    sql.NullTime
		confirmedPrice           sql.NullFloat64
	)
	err := row.Scan(&st.ID, &st.JourneyID, &st.Order, &st.Universe, &st.Description,
		&budgetMin, &budgetMax, &st.Status, &acceptedReq, &acceptedEst, &acceptedAt,
		&confirmedPrice, &deletedAt, &st.CreatedAt)
	if err != nil {
		return nil, err
	}
	st.BudgetMin = floatPtr(budgetMin)
	st.BudgetMax = floatPtr(budgetMax)
	st.AcceptedRequestID = stringPtr(acceptedReq)
	st.AcceptedEstablishmentID = stringPtr(acceptedEst)
	st.AcceptedAt = timePtr(acceptedAt)
	st.ConfirmedPrice = floatPtr(confirmedPrice)
	st.DeletedAt = timePtr(deletedAt)
	st.CreatedAt = st.CreatedAt.UTC()
	return &st, nil
}

func scanJourney(row rowScanner) (*model.Journey, error) {
	var (
		j         model.Journey
		deletedAt sql.NullTime
	)
	err := row.Scan(&j.ID, &j.Title, &j.DesiredStart, &j.DesiredEnd, &j.PartySize, &j.City,
		&j.ConciergeID, &j.Status, &deletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.DeletedAt = timePtr(deletedAt)
	j.DesiredStart = j.DesiredStart.UTC()
	j.DesiredEnd = j.DesiredEnd.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func (s *sqlStore) FindRequest(ctx context.Context, id string) (*model.StepRequest, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+requestColumns+" FROM step_requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, allocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find step request: %w", err)
	}
	return r, nil
}

func (s *sqlStore) queryRequests(ctx context.Context, query string, args ...any) ([]*model.StepRequest, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.StepRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) FindRequestsByStep(ctx context.Context, stepID string) ([]*model.StepRequest, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	out, err := s.queryRequests(ctx,
		"SELECT "+requestColumns+" FROM step_requests WHERE step_id = ? ORDER BY created_at, id", stepID)
	if err != nil {
		return nil, fmt.Errorf("failed to find step requests: %w", err)
	}
	return out, nil
}

func (s *sqlStore) ListRequests(ctx context.Context, filter model.RequestFilter) ([]*model.StepRequest, int64, error) {
	if len(filter.EstablishmentIDs) == 0 {
		return []*model.StepRequest{}, 0, nil
	}

	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	where := "establishment_id IN (" + placeholders(len(filter.EstablishmentIDs)) + ")"
	args := make([]any, 0, len(filter.EstablishmentIDs)+3)
	for _, id := range filter.EstablishmentIDs {
		args = append(args, id)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int64
	if err := s.conn(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM step_requests WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count step requests: %w", err)
	}

	limit := config.NormalizePaginationLimit(filter.Limit)
	out, err := s.queryRequests(ctx,
		"SELECT "+requestColumns+" FROM step_requests WHERE "+where+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		append(args, limit, config.NormalizeOffset(filter.Offset))...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list step requests: %w", err)
	}
	if out == nil {
		out = []*model.StepRequest{}
	}
	return out, total, nil
}

func (s *sqlStore) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.StepRequest, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	out, err := s.queryRequests(ctx,
		"SELECT "+requestColumns+" FROM step_requests WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ? ORDER BY expires_at, id LIMIT ?",
		model.RequestPending, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired step requests: %w", err)
	}
	return out, nil
}

func (s *sqlStore) CreateRequests(ctx context.Context, requests []*model.StepRequest) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	for _, r := range requests {
		_, err := s.conn(ctx).ExecContext(ctx,
			"INSERT INTO step_requests ("+requestColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			r.ID, r.StepID, r.EstablishmentID, r.Status, r.Version, nullFloat(r.ProposedPrice),
			nullString(r.ResponseNote), nullString(r.RespondedBy), nullTime(r.RespondedAt),
			nullTime(r.ExpiresAt), r.CreatedAt.UTC())
		if err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("%w: step request for establishment %s", allocerrors.ErrDuplicate, r.EstablishmentID)
			}
			return fmt.Errorf("failed to create step request: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) TransitionRequest(ctx context.Context, id string, expectedVersion int64, t model.RequestTransition) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	var respondedAt any
	if !t.RespondedAt.IsZero() {
		respondedAt = t.RespondedAt.UTC()
	}

	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE step_requests SET
			status = ?,
			proposed_price = COALESCE(?, proposed_price),
			response_note = COALESCE(?, response_note),
			responded_by = COALESCE(?, responded_by),
			responded_at = COALESCE(?, responded_at),
			version = version + 1
		WHERE id = ? AND version = ?`,
		t.Status, nullFloat(t.ProposedPrice), nullString(t.ResponseNote), nullString(t.RespondedBy),
		respondedAt, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to transition step request: %w", err)
	}
	return expectOneRow(res, allocerrors.ErrVersionConflict)
}

func (s *sqlStore) SupersedePending(ctx context.Context, stepID, exceptRequestID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	res, err := s.conn(ctx).ExecContext(ctx,
		"UPDATE step_requests SET status = ?, version = version + 1 WHERE step_id = ? AND status = ? AND id <> ?",
		model.RequestSuperseded, stepID, model.RequestPending, exceptRequestID)
	if err != nil {
		return 0, fmt.Errorf("failed to supersede step requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

func (s *sqlStore) FindStep(ctx context.Context, id string) (*model.Step, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	st, err := scanStep(s.conn(ctx).QueryRowContext(ctx, "SELECT "+stepColumns+" FROM steps WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, allocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find step: %w", err)
	}
	return st, nil
}

func (s *sqlStore) FindStepsByJourney(ctx context.Context, journeyID string) ([]*model.Step, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT "+stepColumns+" FROM steps WHERE journey_id = ? AND deleted_at IS NULL ORDER BY ordinal, id", journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find steps: %w", err)
	}
	defer rows.Close()

	var out []*model.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *sqlStore) CreateStep(ctx context.Context, st *model.Step) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO steps ("+stepColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		st.ID, st.JourneyID, st.Order, st.Universe, st.Description, nullFloat(st.BudgetMin),
		nullFloat(st.BudgetMax), st.Status, nullString(st.AcceptedRequestID),
		nullString(st.AcceptedEstablishmentID), nullTime(st.AcceptedAt), nullFloat(st.ConfirmedPrice),
		nullTime(st.DeletedAt), st.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create step: %w", err)
	}
	return nil
}

func (s *sqlStore) ClaimStep(ctx context.Context, stepID string, award model.StepAward) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE steps SET
			status = ?,
			accepted_request_id = ?,
			accepted_establishment_id = ?,
			accepted_at = ?,
			confirmed_price = ?
		WHERE id = ? AND deleted_at IS NULL
			AND (accepted_request_id IS NULL OR accepted_request_id = ?)`,
		model.StepAccepted, award.RequestID, award.EstablishmentID, award.AcceptedAt.UTC(),
		nullFloat(award.ConfirmedPrice), stepID, award.RequestID)
	if err != nil {
		return fmt.Errorf("failed to claim step: %w", err)
	}
	if err := expectOneRow(res, allocerrors.ErrStepClaimed); err != nil {
		if _, findErr := s.FindStep(ctx, stepID); errors.Is(findErr, allocerrors.ErrNotFound) {
			return allocerrors.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *sqlStore) SetStepStatus(ctx context.Context, stepID, status string) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	res, err := s.conn(ctx).ExecContext(ctx,
		"UPDATE steps SET status = ? WHERE id = ? AND deleted_at IS NULL AND accepted_request_id IS NULL AND status <> ?",
		status, stepID, status)
	if err != nil {
		return false, fmt.Errorf("failed to set step status: %w", err)
	}
	return changed(res)
}

func (s *sqlStore) FindJourney(ctx context.Context, id string) (*model.Journey, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	j, err := scanJourney(s.conn(ctx).QueryRowContext(ctx, "SELECT "+journeyColumns+" FROM journeys WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, allocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find journey: %w", err)
	}
	return j, nil
}

func (s *sqlStore) ListActiveJourneyIDs(ctx context.Context, limit int, offset int64) ([]string, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT id FROM journeys WHERE deleted_at IS NULL AND status <> ? ORDER BY created_at, id LIMIT ? OFFSET ?",
		model.JourneyCancelled, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan journey id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqlStore) CreateJourney(ctx context.Context, j *model.Journey) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO journeys ("+journeyColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		j.ID, j.Title, j.DesiredStart.UTC(), j.DesiredEnd.UTC(), j.PartySize, j.City, j.ConciergeID,
		j.Status, nullTime(j.DeletedAt), j.CreatedAt.UTC(), j.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create journey: %w", err)
	}
	return nil
}

func (s *sqlStore) SetJourneyStatus(ctx context.Context, journeyID, status string, at time.Time) (bool, error) {
	allowed := model.JourneyStatusesAtOrBelow(status)
	if len(allowed) == 0 {
		return false, nil
	}

	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	args := []any{status, at.UTC(), journeyID, status}
	for _, a := range allowed {
		args = append(args, a)
	}
	res, err := s.conn(ctx).ExecContext(ctx,
		"UPDATE journeys SET status = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL AND status <> ? AND status IN ("+placeholders(len(allowed))+")",
		args...)
	if err != nil {
		return false, fmt.Errorf("failed to set journey status: %w", err)
	}
	return changed(res)
}

func (s *sqlStore) FindEstablishment(ctx context.Context, id string) (*model.Establishment, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var e model.Establishment
	err := s.conn(ctx).QueryRowContext(ctx,
		"SELECT id, name, contact_email, contact_phone, created_at FROM establishments WHERE id = ?", id).
		Scan(&e.ID, &e.Name, &e.ContactEmail, &e.ContactPhone, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, allocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find establishment: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (s *sqlStore) UpsertEstablishment(ctx context.Context, e *model.Establishment) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	query := `INSERT INTO establishments (id, name, contact_email, contact_phone, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, contact_email = excluded.contact_email, contact_phone = excluded.contact_phone`
	if s.driver == config.StoreMySQL {
		query = `INSERT INTO establishments (id, name, contact_email, contact_phone, created_at) VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE name = VALUES(name), contact_email = VALUES(contact_email), contact_phone = VALUES(contact_phone)`
	}

	if _, err := s.conn(ctx).ExecContext(ctx, query, e.ID, e.Name, e.ContactEmail, e.ContactPhone, e.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert establishment: %w", err)
	}
	return nil
}

func (s *sqlStore) InsertCredentialIfAbsent(ctx context.Context, cred *model.ScanCredential) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	verb := "INSERT OR IGNORE"
	if s.driver == config.StoreMySQL {
		verb = "INSERT IGNORE"
	}
	res, err := s.conn(ctx).ExecContext(ctx,
		verb+" INTO scan_credentials (request_id, secret, created_at) VALUES (?, ?, ?)",
		cred.RequestID, cred.Secret, cred.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert scan credential: %w", err)
	}
	return changed(res)
}

func (s *sqlStore) FindCredential(ctx context.Context, requestID string) (*model.ScanCredential, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var c model.ScanCredential
	err := s.conn(ctx).QueryRowContext(ctx,
		"SELECT request_id, secret, created_at FROM scan_credentials WHERE request_id = ?", requestID).
		Scan(&c.RequestID, &c.Secret, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, allocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find scan credential: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *sqlStore) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.txManager.ExecuteTransaction(ctx, fn)
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func expectOneRow(res sql.Result, zero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return zero
	}
	return nil
}

func changed(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func isDuplicate(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
