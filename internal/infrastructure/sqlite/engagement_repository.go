package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

const engagementColumns = `engagement_id, listing_id, buyer_need_id, buyer_id, supplier_id, status, tier, path,
	match_score, match_rank, pricing, phases, hold_expires_at, tour, onboarding, agreement_version,
	outcome, admin_notes, flagged, flag_reason, version, created_at, updated_at`

const agreementColumns = `agreement_id, engagement_id, version, status, terms, terms_digest, pricing, sent_at,
	expires_at, buyer_signed_at, supplier_signed_at, cancelled_at, updated_at`

// EngagementRepository implements engagement.Repository on SQLite.
type EngagementRepository struct {
	db *sql.DB
}

func NewEngagementRepository(db *sql.DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

type documents struct {
	pricing, phases, tour, onboarding, outcome string
}

func encodeDocuments(e *engagement.Engagement) (documents, error) {
	var d documents
	for _, doc := range []struct {
		dst *string
		v   interface{}
	}{
		{&d.pricing, e.Pricing},
		{&d.phases, e.Phases},
		{&d.tour, e.Tour},
		{&d.onboarding, e.Onboarding},
		{&d.outcome, e.Outcome},
	} {
		raw, err := json.Marshal(doc.v)
		if err != nil {
			return d, err
		}
		*doc.dst = string(raw)
	}
	return d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *EngagementRepository) Create(ctx context.Context, e *engagement.Engagement, created *engagement.Event) error {
	d, err := encodeDocuments(e)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO engagements (`+engagementColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, e.EngagementID.String(), e.ListingID, e.BuyerNeedID, e.BuyerID, e.SupplierID, string(e.Status), string(e.Tier), string(e.Path),
		e.MatchScore, e.MatchRank, d.pricing, d.phases, formatTimePtr(e.HoldExpiresAt), d.tour, d.onboarding, e.AgreementVersion,
		d.outcome, e.Admin.Notes, boolInt(e.Admin.Flagged), e.Admin.FlagReason, e.Version, formatTime(e.CreatedAt), formatTime(e.UpdatedAt)); err != nil {
		return fmt.Errorf("insert engagement: %w", err)
	}
	if created != nil {
		if err := insertEvent(ctx, tx, created); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *EngagementRepository) GetByID(ctx context.Context, engagementID uuid.UUID) (*engagement.Engagement, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+engagementColumns+` FROM engagements WHERE engagement_id = ?`, engagementID.String())
	return scanEngagement(row)
}

func (r *EngagementRepository) List(ctx context.Context, filter engagement.Filter, limit, offset int) ([]*engagement.Engagement, error) {
	var where []string
	var args []interface{}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.SupplierID != nil {
		where = append(where, "supplier_id = ?")
		args = append(args, *filter.SupplierID)
	}
	if filter.BuyerID != nil {
		where = append(where, "buyer_id = ?")
		args = append(args, *filter.BuyerID)
	}
	if filter.Flagged != nil {
		where = append(where, "flagged = ?")
		args = append(args, boolInt(*filter.Flagged))
	}
	query := `SELECT ` + engagementColumns + ` FROM engagements`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEngagements(rows)
}

func (r *EngagementRepository) Commit(ctx context.Context, c *engagement.Commit) error {
	e := c.Engagement
	d, err := encodeDocuments(e)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE engagements
		SET buyer_id = ?, status = ?, pricing = ?, phases = ?, hold_expires_at = ?, tour = ?, onboarding = ?,
			agreement_version = ?, outcome = ?,
			flagged = CASE WHEN ? IS NULL THEN flagged ELSE 1 END, flag_reason = COALESCE(?, flag_reason),
			version = ?, updated_at = ?
		WHERE engagement_id = ? AND version = ?
	`, e.BuyerID, string(e.Status), d.pricing, d.phases, formatTimePtr(e.HoldExpiresAt), d.tour, d.onboarding,
		e.AgreementVersion, d.outcome, nullString(c.Flag), nullString(c.Flag),
		e.Version, formatTime(e.UpdatedAt), e.EngagementID.String(), c.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("update engagement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engagement.ErrStaleState
	}

	if c.Event != nil {
		if err := insertEvent(ctx, tx, c.Event); err != nil {
			return err
		}
	}
	for _, a := range c.Agreements {
		if err := upsertAgreement(ctx, tx, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *engagement.Event) error {
	var payload interface{}
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO engagement_events
		(event_id, engagement_id, sequence, transition, actor_role, actor_id, from_status, to_status, payload, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`, ev.EventID.String(), ev.EngagementID.String(), ev.Sequence, string(ev.Transition), string(ev.Actor.Role), ev.Actor.ID,
		string(ev.FromStatus), string(ev.ToStatus), payload, formatTime(ev.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return engagement.ErrStaleState
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func upsertAgreement(ctx context.Context, tx *sql.Tx, a *agreement.Agreement) error {
	pricing, err := json.Marshal(a.Pricing)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO engagement_agreements (`+agreementColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(engagement_id, version) DO UPDATE SET
			status             = excluded.status,
			buyer_signed_at    = excluded.buyer_signed_at,
			supplier_signed_at = excluded.supplier_signed_at,
			cancelled_at       = excluded.cancelled_at,
			updated_at         = excluded.updated_at
	`, a.AgreementID.String(), a.EngagementID.String(), a.Version, string(a.Status), a.Terms, a.TermsDigest, string(pricing),
		formatTime(a.SentAt), formatTime(a.ExpiresAt), formatTimePtr(a.BuyerSignedAt), formatTimePtr(a.SupplierSignedAt),
		formatTimePtr(a.CancelledAt), formatTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert agreement v%d: %w", a.Version, err)
	}
	return nil
}

func (r *EngagementRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*engagement.Engagement, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+engagementColumns+`
		FROM engagements
		WHERE hold_expires_at IS NOT NULL AND hold_expires_at <= ?
		ORDER BY hold_expires_at ASC
		LIMIT ?
	`, formatTime(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEngagements(rows)
}

func (r *EngagementRepository) ListEvents(ctx context.Context, engagementID uuid.UUID, afterSequence int64, limit int) ([]*engagement.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, engagement_id, sequence, transition, actor_role, actor_id, from_status, to_status, payload, created_at
		FROM engagement_events
		WHERE engagement_id = ? AND sequence > ?
		ORDER BY sequence ASC
		LIMIT ?
	`, engagementID.String(), afterSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engagement.Event
	for rows.Next() {
		var (
			ev                         engagement.Event
			eventID, engID, createdAt  string
			transition, role, from, to string
			payload                    sql.NullString
		)
		if err := rows.Scan(&eventID, &engID, &ev.Sequence, &transition, &role, &ev.Actor.ID, &from, &to, &payload, &createdAt); err != nil {
			return nil, err
		}
		if ev.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, err
		}
		if ev.EngagementID, err = uuid.Parse(engID); err != nil {
			return nil, err
		}
		if ev.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		ev.Transition = engagement.Transition(transition)
		ev.Actor.Role = engagement.ActorRole(role)
		ev.FromStatus = engagement.Status(from)
		ev.ToStatus = engagement.Status(to)
		if payload.Valid && payload.String != "" {
			ev.Payload = json.RawMessage(payload.String)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (r *EngagementRepository) UpdateAdminOverlay(ctx context.Context, engagementID uuid.UUID, overlay engagement.AdminOverlay, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE engagements SET admin_notes = ?, flagged = ?, flag_reason = ?, updated_at = ?
		WHERE engagement_id = ?
	`, overlay.Notes, boolInt(overlay.Flagged), overlay.FlagReason, formatTime(updatedAt), engagementID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", engagement.ErrNotFound, engagementID)
	}
	return nil
}

func (r *EngagementRepository) GetAgreement(ctx context.Context, engagementID uuid.UUID, version int) (*agreement.Agreement, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+agreementColumns+` FROM engagement_agreements WHERE engagement_id = ? AND version = ?`,
		engagementID.String(), version)
	return scanAgreement(row)
}

func (r *EngagementRepository) ListAgreements(ctx context.Context, engagementID uuid.UUID) ([]*agreement.Agreement, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+agreementColumns+` FROM engagement_agreements WHERE engagement_id = ? ORDER BY version ASC`,
		engagementID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*agreement.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func collectEngagements(rows *sql.Rows) ([]*engagement.Engagement, error) {
	var out []*engagement.Engagement
	for rows.Next() {
		e, err := scanEngagement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEngagement(row scanner) (*engagement.Engagement, error) {
	var (
		e                      engagement.Engagement
		d                      documents
		id, status, tier, path string
		buyerID, holdExpiresAt sql.NullString
		createdAt, updatedAt   string
		flagged                int
	)
	if err := row.Scan(&id, &e.ListingID, &e.BuyerNeedID, &buyerID, &e.SupplierID, &status, &tier, &path,
		&e.MatchScore, &e.MatchRank, &d.pricing, &d.phases, &holdExpiresAt, &d.tour, &d.onboarding, &e.AgreementVersion,
		&d.outcome, &e.Admin.Notes, &flagged, &e.Admin.FlagReason, &e.Version, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	var err error
	if e.EngagementID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if buyerID.Valid {
		b := buyerID.String
		e.BuyerID = &b
	}
	e.Status = engagement.Status(status)
	e.Tier = engagement.Tier(tier)
	e.Path = engagement.Path(path)
	e.Admin.Flagged = flagged == 1
	if e.HoldExpiresAt, err = parseTimePtr(holdExpiresAt); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	for _, doc := range []struct {
		raw string
		dst interface{}
	}{
		{d.pricing, &e.Pricing},
		{d.phases, &e.Phases},
		{d.tour, &e.Tour},
		{d.onboarding, &e.Onboarding},
		{d.outcome, &e.Outcome},
	} {
		if doc.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(doc.raw), doc.dst); err != nil {
			return nil, fmt.Errorf("decode engagement %s: %w", id, err)
		}
	}
	return &e, nil
}

func scanAgreement(row scanner) (*agreement.Agreement, error) {
	var (
		a                                   agreement.Agreement
		id, engID, status, pricing          string
		sentAt, expiresAt, updatedAt        string
		buyerSigned, supplierSigned, cancel sql.NullString
	)
	if err := row.Scan(&id, &engID, &a.Version, &status, &a.Terms, &a.TermsDigest, &pricing, &sentAt,
		&expiresAt, &buyerSigned, &supplierSigned, &cancel, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	var err error
	if a.AgreementID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if a.EngagementID, err = uuid.Parse(engID); err != nil {
		return nil, err
	}
	a.Status = agreement.Status(status)
	if err := json.Unmarshal([]byte(pricing), &a.Pricing); err != nil {
		return nil, fmt.Errorf("decode agreement pricing: %w", err)
	}
	if a.SentAt, err = parseTime(sentAt); err != nil {
		return nil, err
	}
	if a.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if a.BuyerSignedAt, err = parseTimePtr(buyerSigned); err != nil {
		return nil, err
	}
	if a.SupplierSignedAt, err = parseTimePtr(supplierSigned); err != nil {
		return nil, err
	}
	if a.CancelledAt, err = parseTimePtr(cancel); err != nil {
		return nil, err
	}
	return &a, nil
}
