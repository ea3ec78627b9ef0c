package engagement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/hold"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/onboarding"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/pricing"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/tour"
)

// Path routes an engagement through the tour or instant-book branch.
type Path string

const (
	PathTour        Path = "tour"
	PathInstantBook Path = "instant_book"
)

func ParsePath(raw string) (Path, error) {
	switch p := Path(raw); p {
	case PathTour, PathInstantBook:
		return p, nil
	default:
		return "", fmt.Errorf("unknown path %q", raw)
	}
}

// Tier is the priority class assigned by the match producer.
type Tier string

// Phases holds one timestamp per phase. Each is set once and never overwritten.
type Phases struct {
	OfferSentAt            *time.Time `json:"offerSentAt,omitempty"`
	OfferRespondedAt       *time.Time `json:"offerRespondedAt,omitempty"`
	MatchedAt              *time.Time `json:"matchedAt,omitempty"`
	BuyerReviewStartedAt   *time.Time `json:"buyerReviewStartedAt,omitempty"`
	BuyerAcceptedAt        *time.Time `json:"buyerAcceptedAt,omitempty"`
	AccountCreatedAt       *time.Time `json:"accountCreatedAt,omitempty"`
	GuaranteeSignedAt      *time.Time `json:"guaranteeSignedAt,omitempty"`
	AddressRevealedAt      *time.Time `json:"addressRevealedAt,omitempty"`
	TourRequestedAt        *time.Time `json:"tourRequestedAt,omitempty"`
	TourConfirmedAt        *time.Time `json:"tourConfirmedAt,omitempty"`
	TourCompletedAt        *time.Time `json:"tourCompletedAt,omitempty"`
	InstantBookRequestedAt *time.Time `json:"instantBookRequestedAt,omitempty"`
	InstantBookConfirmedAt *time.Time `json:"instantBookConfirmedAt,omitempty"`
	BuyerConfirmedAt       *time.Time `json:"buyerConfirmedAt,omitempty"`
	AgreementSentAt        *time.Time `json:"agreementSentAt,omitempty"`
	AgreementSignedAt      *time.Time `json:"agreementSignedAt,omitempty"`
	OnboardingStartedAt    *time.Time `json:"onboardingStartedAt,omitempty"`
	OnboardingCompletedAt  *time.Time `json:"onboardingCompletedAt,omitempty"`
	CompletedAt            *time.Time `json:"completedAt,omitempty"`
}

func (p *Phases) slot(s Status) **time.Time {
	switch s {
	case StatusDealPingSent:
		return &p.OfferSentAt
	case StatusDealPingAccepted:
		return &p.OfferRespondedAt
	case StatusMatched:
		return &p.MatchedAt
	case StatusBuyerReviewing:
		return &p.BuyerReviewStartedAt
	case StatusBuyerAccepted:
		return &p.BuyerAcceptedAt
	case StatusAccountCreated:
		return &p.AccountCreatedAt
	case StatusGuaranteeSigned:
		return &p.GuaranteeSignedAt
	case StatusAddressRevealed:
		return &p.AddressRevealedAt
	case StatusTourRequested:
		return &p.TourRequestedAt
	case StatusTourConfirmed:
		return &p.TourConfirmedAt
	case StatusTourCompleted:
		return &p.TourCompletedAt
	case StatusInstantBookRequested:
		return &p.InstantBookRequestedAt
	case StatusBuyerConfirmed:
		return &p.BuyerConfirmedAt
	case StatusAgreementSent:
		return &p.AgreementSentAt
	case StatusAgreementSigned:
		return &p.AgreementSignedAt
	case StatusOnboarding:
		return &p.OnboardingStartedAt
	case StatusActive:
		return &p.OnboardingCompletedAt
	case StatusCompleted:
		return &p.CompletedAt
	default:
		return nil
	}
}

// Mark sets the timestamp for entering s unless it is already set.
func (p *Phases) Mark(s Status, now time.Time) {
	slot := p.slot(s)
	if slot == nil || *slot != nil {
		return
	}
	stamp := now
	*slot = &stamp
}

// MarkInstantBookConfirmed records the supplier's instant-book confirmation.
func (p *Phases) MarkInstantBookConfirmed(now time.Time) {
	if p.InstantBookConfirmedAt == nil {
		stamp := now
		p.InstantBookConfirmedAt = &stamp
	}
}

// Latest returns the most recent phase timestamp, if any.
func (p Phases) Latest() *time.Time {
	var latest *time.Time
	for _, ts := range []*time.Time{
		p.OfferSentAt, p.OfferRespondedAt, p.MatchedAt, p.BuyerReviewStartedAt,
		p.BuyerAcceptedAt, p.AccountCreatedAt, p.GuaranteeSignedAt, p.AddressRevealedAt,
		p.TourRequestedAt, p.TourConfirmedAt, p.TourCompletedAt, p.InstantBookRequestedAt,
		p.InstantBookConfirmedAt, p.BuyerConfirmedAt, p.AgreementSentAt, p.AgreementSignedAt,
		p.OnboardingStartedAt, p.OnboardingCompletedAt, p.CompletedAt,
	} {
		if ts != nil && (latest == nil || ts.After(*latest)) {
			latest = ts
		}
	}
	return latest
}

// Outcome records how an engagement left the happy path.
type Outcome struct {
	Actor        *Actor     `json:"actor,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	TerminatedAt *time.Time `json:"terminatedAt,omitempty"`
}

// AdminOverlay is operator metadata. It never affects lifecycle decisions.
type AdminOverlay struct {
	Notes      string `json:"notes,omitempty"`
	Flagged    bool   `json:"flagged"`
	FlagReason string `json:"flagReason,omitempty"`
}

// Engagement is one buyer/supplier transaction tracked end to end.
type Engagement struct {
	EngagementID     uuid.UUID            `json:"engagementId"`
	ListingID        string               `json:"listingId"`
	BuyerNeedID      string               `json:"buyerNeedId"`
	BuyerID          *string              `json:"buyerId,omitempty"`
	SupplierID       string               `json:"supplierId"`
	Status           Status               `json:"status"`
	Tier             Tier                 `json:"tier"`
	Path             Path                 `json:"path"`
	MatchScore       float64              `json:"matchScore"`
	MatchRank        int                  `json:"matchRank"`
	Pricing          pricing.Snapshot     `json:"pricing"`
	Phases           Phases               `json:"phases"`
	HoldExpiresAt    *time.Time           `json:"holdExpiresAt,omitempty"`
	Tour             tour.Schedule        `json:"tour"`
	Onboarding       onboarding.Checklist `json:"onboarding"`
	AgreementVersion int                  `json:"agreementVersion"`
	Outcome          Outcome              `json:"outcome"`
	Admin            AdminOverlay         `json:"admin"`
	Version          int64                `json:"version"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// MatchInput is what the match producer supplies to open an engagement.
type MatchInput struct {
	ListingID   string           `json:"listingId"`
	BuyerNeedID string           `json:"buyerNeedId"`
	SupplierID  string           `json:"supplierId"`
	BuyerID     *string          `json:"buyerId,omitempty"`
	Tier        Tier             `json:"tier"`
	Path        Path             `json:"path"`
	MatchScore  float64          `json:"matchScore"`
	MatchRank   int              `json:"matchRank"`
	Pricing     pricing.Snapshot `json:"pricing"`
}

var (
	errMissingListing  = errors.New("listingId is required")
	errMissingNeed     = errors.New("buyerNeedId is required")
	errMissingSupplier = errors.New("supplierId is required")
)

// Validate checks the match input before an engagement is opened.
func (in MatchInput) Validate() error {
	if strings.TrimSpace(in.ListingID) == "" {
		return errMissingListing
	}
	if strings.TrimSpace(in.BuyerNeedID) == "" {
		return errMissingNeed
	}
	if strings.TrimSpace(in.SupplierID) == "" {
		return errMissingSupplier
	}
	if _, err := ParsePath(string(in.Path)); err != nil {
		return err
	}
	return in.Pricing.Validate()
}

// New opens an engagement in deal_ping_sent with the offer window armed.
func New(in MatchInput, policy hold.Policy, now time.Time) *Engagement {
	e := &Engagement{
		EngagementID: uuid.New(),
		ListingID:    in.ListingID,
		BuyerNeedID:  in.BuyerNeedID,
		BuyerID:      in.BuyerID,
		SupplierID:   in.SupplierID,
		Status:       StatusDealPingSent,
		Tier:         in.Tier,
		Path:         in.Path,
		MatchScore:   in.MatchScore,
		MatchRank:    in.MatchRank,
		Pricing:      in.Pricing,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	e.Phases.Mark(StatusDealPingSent, now)
	e.HoldExpiresAt = policy.Next(hold.PhaseNone, StatusDealPingSent.HoldPhase(), nil, now)
	return e
}

// Clone returns a copy safe to mutate. Time pointers are shared but are only
// ever replaced, never written through.
func (e *Engagement) Clone() *Engagement {
	c := *e
	return &c
}

// HoldExpired evaluates the hold lazily against now.
func (e *Engagement) HoldExpired(now time.Time) bool {
	return e.Status.HasHold() && hold.Expired(e.HoldExpiresAt, now)
}

// RemainingHold returns max(0, deadline-now), or false when no hold is armed.
func (e *Engagement) RemainingHold(now time.Time) (time.Duration, bool) {
	if !e.Status.HasHold() {
		return 0, false
	}
	return hold.Remaining(e.HoldExpiresAt, now)
}

// IsParty reports whether actor is this engagement's own buyer or supplier.
// Buyers are matched by id only once an account has been attached.
func (e *Engagement) IsParty(actor Actor) bool {
	switch actor.Role {
	case RoleBuyer:
		return e.BuyerID == nil || *e.BuyerID == actor.ID
	case RoleSupplier:
		return e.SupplierID == actor.ID
	default:
		return true
	}
}

// CanView reports whether actor may read the engagement and its timeline.
func (e *Engagement) CanView(actor Actor) bool {
	switch actor.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleBuyer, RoleSupplier:
		return e.IsParty(actor)
	default:
		return false
	}
}

// Terminate records the outcome of a decline, cancel or expiry.
func (e *Engagement) Terminate(actor Actor, reason string, now time.Time) {
	a := actor
	stamp := now
	e.Outcome = Outcome{Actor: &a, Reason: reason, TerminatedAt: &stamp}
}

// CheckInvariants verifies the record-level invariants that must hold after
// every commit.
func (e *Engagement) CheckInvariants() error {
	if !e.Status.IsValid() {
		return fmt.Errorf("invalid status %q", e.Status)
	}
	if e.Status.HasHold() != (e.HoldExpiresAt != nil) {
		return fmt.Errorf("hold deadline present=%t in status %s", e.HoldExpiresAt != nil, e.Status)
	}
	if e.Status.IsTermination() != (e.Outcome.TerminatedAt != nil) {
		return fmt.Errorf("termination timestamp present=%t in status %s", e.Outcome.TerminatedAt != nil, e.Status)
	}
	if e.Outcome.TerminatedAt != nil {
		if latest := e.Phases.Latest(); latest != nil && latest.After(*e.Outcome.TerminatedAt) {
			return fmt.Errorf("phase progress at %s after termination at %s", latest, e.Outcome.TerminatedAt)
		}
		if e.Phases.OnboardingCompletedAt != nil {
			return errors.New("terminated engagement reached active")
		}
	}
	if e.Status == StatusActive && !e.Onboarding.Complete() {
		return errors.New("active engagement with incomplete onboarding")
	}
	return nil
}
