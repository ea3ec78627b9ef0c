package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

const engagementColumns = `engagement_id, listing_id, buyer_need_id, buyer_id, supplier_id, status, tier, path,
	match_score, match_rank, pricing, phases, hold_expires_at, tour, onboarding, agreement_version,
	outcome, admin_notes, flagged, flag_reason, version, created_at, updated_at`

const agreementColumns = `agreement_id, engagement_id, version, status, terms, terms_digest, pricing, sent_at,
	expires_at, buyer_signed_at, supplier_signed_at, cancelled_at, updated_at`

// EngagementRepository implements engagement.Repository.
type EngagementRepository struct {
	pool *pgxpool.Pool
}

func NewEngagementRepository(pool *pgxpool.Pool) *EngagementRepository {
	return &EngagementRepository{pool: pool}
}

// documents holds the JSONB columns of an engagement row.
type documents struct {
	pricing, phases, tour, onboarding, outcome []byte
}

func encodeDocuments(e *engagement.Engagement) (documents, error) {
	var d documents
	var err error
	if d.pricing, err = json.Marshal(e.Pricing); err != nil {
		return d, err
	}
	if d.phases, err = json.Marshal(e.Phases); err != nil {
		return d, err
	}
	if d.tour, err = json.Marshal(e.Tour); err != nil {
		return d, err
	}
	if d.onboarding, err = json.Marshal(e.Onboarding); err != nil {
		return d, err
	}
	if d.outcome, err = json.Marshal(e.Outcome); err != nil {
		return d, err
	}
	return d, nil
}

func (r *EngagementRepository) Create(ctx context.Context, e *engagement.Engagement, created *engagement.Event) error {
	d, err := encodeDocuments(e)
	if err != nil {
		return err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO engagements (`+engagementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`, e.EngagementID, e.ListingID, e.BuyerNeedID, e.BuyerID, e.SupplierID, e.Status, e.Tier, e.Path,
		e.MatchScore, e.MatchRank, d.pricing, d.phases, e.HoldExpiresAt, d.tour, d.onboarding, e.AgreementVersion,
		d.outcome, e.Admin.Notes, e.Admin.Flagged, e.Admin.FlagReason, e.Version, e.CreatedAt, e.UpdatedAt); err != nil {
		return fmt.Errorf("insert engagement: %w", err)
	}
	if created != nil {
		if err := insertEvent(ctx, tx, created); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *EngagementRepository) GetByID(ctx context.Context, engagementID uuid.UUID) (*engagement.Engagement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+engagementColumns+` FROM engagements WHERE engagement_id=$1`, engagementID)
	return scanEngagement(row)
}

func (r *EngagementRepository) List(ctx context.Context, filter engagement.Filter, limit, offset int) ([]*engagement.Engagement, error) {
	var where []string
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != nil {
		add("status=$%d", *filter.Status)
	}
	if filter.SupplierID != nil {
		add("supplier_id=$%d", *filter.SupplierID)
	}
	if filter.BuyerID != nil {
		add("buyer_id=$%d", *filter.BuyerID)
	}
	if filter.Flagged != nil {
		add("flagged=$%d", *filter.Flagged)
	}

	query := `SELECT ` + engagementColumns + ` FROM engagements`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limitArg(limit), offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, engagement_id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
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
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE engagements
		SET buyer_id=$1, status=$2, pricing=$3, phases=$4, hold_expires_at=$5, tour=$6, onboarding=$7,
			agreement_version=$8, outcome=$9,
			flagged = flagged OR $10::text IS NOT NULL, flag_reason = COALESCE($10::text, flag_reason),
			version=$11, updated_at=$12
		WHERE engagement_id=$13 AND version=$14
	`, e.BuyerID, e.Status, d.pricing, d.phases, e.HoldExpiresAt, d.tour, d.onboarding,
		e.AgreementVersion, d.outcome, c.Flag,
		e.Version, e.UpdatedAt, e.EngagementID, c.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("update engagement: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
	return tx.Commit(ctx)
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev *engagement.Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO engagement_events
		(event_id, engagement_id, sequence, transition, actor_role, actor_id, from_status, to_status, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, ev.EventID, ev.EngagementID, ev.Sequence, ev.Transition, ev.Actor.Role, ev.Actor.ID, ev.FromStatus, ev.ToStatus, nullJSON(ev.Payload), ev.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return engagement.ErrStaleState
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func upsertAgreement(ctx context.Context, tx pgx.Tx, a *agreement.Agreement) error {
	pricing, err := json.Marshal(a.Pricing)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO engagement_agreements (`+agreementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (engagement_id, version) DO UPDATE
		SET status=EXCLUDED.status,
			buyer_signed_at=EXCLUDED.buyer_signed_at,
			supplier_signed_at=EXCLUDED.supplier_signed_at,
			cancelled_at=EXCLUDED.cancelled_at,
			updated_at=EXCLUDED.updated_at
	`, a.AgreementID, a.EngagementID, a.Version, a.Status, a.Terms, a.TermsDigest, pricing, a.SentAt,
		a.ExpiresAt, a.BuyerSignedAt, a.SupplierSignedAt, a.CancelledAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert agreement v%d: %w", a.Version, err)
	}
	return nil
}

func (r *EngagementRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*engagement.Engagement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+engagementColumns+`
		FROM engagements
		WHERE hold_expires_at IS NOT NULL AND hold_expires_at <= $1
		ORDER BY hold_expires_at ASC
		LIMIT $2
	`, now, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEngagements(rows)
}

func (r *EngagementRepository) ListEvents(ctx context.Context, engagementID uuid.UUID, afterSequence int64, limit int) ([]*engagement.Event, error) {
	query := `
		SELECT event_id, engagement_id, sequence, transition, actor_role, actor_id, from_status, to_status, payload, created_at
		FROM engagement_events
		WHERE engagement_id=$1 AND sequence>$2
		ORDER BY sequence ASC`
	args := []interface{}{engagementID, afterSequence}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engagement.Event
	for rows.Next() {
		var ev engagement.Event
		var payload []byte
		if err := rows.Scan(&ev.EventID, &ev.EngagementID, &ev.Sequence, &ev.Transition, &ev.Actor.Role, &ev.Actor.ID,
			&ev.FromStatus, &ev.ToStatus, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			ev.Payload = payload
		}
		ev.CreatedAt = ev.CreatedAt.UTC()
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (r *EngagementRepository) UpdateAdminOverlay(ctx context.Context, engagementID uuid.UUID, overlay engagement.AdminOverlay, updatedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE engagements
		SET admin_notes=$1, flagged=$2, flag_reason=$3, updated_at=$4
		WHERE engagement_id=$5
	`, overlay.Notes, overlay.Flagged, overlay.FlagReason, updatedAt, engagementID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", engagement.ErrNotFound, engagementID)
	}
	return nil
}

func (r *EngagementRepository) GetAgreement(ctx context.Context, engagementID uuid.UUID, version int) (*agreement.Agreement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+agreementColumns+` FROM engagement_agreements WHERE engagement_id=$1 AND version=$2`, engagementID, version)
	return scanAgreement(row)
}

func (r *EngagementRepository) ListAgreements(ctx context.Context, engagementID uuid.UUID) ([]*agreement.Agreement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+agreementColumns+` FROM engagement_agreements WHERE engagement_id=$1 ORDER BY version ASC`, engagementID)
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

func collectEngagements(rows pgx.Rows) ([]*engagement.Engagement, error) {
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

func scanEngagement(row pgx.Row) (*engagement.Engagement, error) {
	var e engagement.Engagement
	var d documents
	if err := row.Scan(&e.EngagementID, &e.ListingID, &e.BuyerNeedID, &e.BuyerID, &e.SupplierID, &e.Status, &e.Tier, &e.Path,
		&e.MatchScore, &e.MatchRank, &d.pricing, &d.phases, &e.HoldExpiresAt, &d.tour, &d.onboarding, &e.AgreementVersion,
		&d.outcome, &e.Admin.Notes, &e.Admin.Flagged, &e.Admin.FlagReason, &e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := decodeDocuments(&e, d); err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	e.HoldExpiresAt = utcPtr(e.HoldExpiresAt)
	return &e, nil
}

func decodeDocuments(e *engagement.Engagement, d documents) error {
	for _, doc := range []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"pricing", d.pricing, &e.Pricing},
		{"phases", d.phases, &e.Phases},
		{"tour", d.tour, &e.Tour},
		{"onboarding", d.onboarding, &e.Onboarding},
		{"outcome", d.outcome, &e.Outcome},
	} {
		if len(doc.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(doc.raw, doc.dst); err != nil {
			return fmt.Errorf("decode %s: %w", doc.name, err)
		}
	}
	return nil
}

func scanAgreement(row pgx.Row) (*agreement.Agreement, error) {
	var a agreement.Agreement
	var pricing []byte
	if err := row.Scan(&a.AgreementID, &a.EngagementID, &a.Version, &a.Status, &a.Terms, &a.TermsDigest, &pricing, &a.SentAt,
		&a.ExpiresAt, &a.BuyerSignedAt, &a.SupplierSignedAt, &a.CancelledAt, &a.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(pricing, &a.Pricing); err != nil {
		return nil, fmt.Errorf("decode agreement pricing: %w", err)
	}
	a.SentAt = a.SentAt.UTC()
	a.ExpiresAt = a.ExpiresAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.BuyerSignedAt = utcPtr(a.BuyerSignedAt)
	a.SupplierSignedAt = utcPtr(a.SupplierSignedAt)
	a.CancelledAt = utcPtr(a.CancelledAt)
	return &a, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as no limit.
func limitArg(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
