package agreement

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/pricing"
)

// Status is derived from signatures and expiry; see Recompute.
type Status string

const (
	StatusPending        Status = "pending"
	StatusBuyerSigned    Status = "buyer_signed"
	StatusSupplierSigned Status = "supplier_signed"
	StatusFullySigned    Status = "fully_signed"
	StatusExpired        Status = "expired"
	StatusCancelled      Status = "cancelled"
)

// Role is the signing party.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSupplier Role = "supplier"
)

// DefaultTTL is how long an unsigned agreement stays open.
const DefaultTTL = 72 * time.Hour

var (
	ErrExpired     = errors.New("agreement has expired")
	ErrCancelled   = errors.New("agreement was cancelled")
	ErrInvalidRole = errors.New("invalid signing role")
)

// Agreement is one version of the contract sent for an engagement. A reissue
// creates a new version and leaves the previous one in place.
type Agreement struct {
	AgreementID      uuid.UUID        `json:"agreementId"`
	EngagementID     uuid.UUID        `json:"engagementId"`
	Version          int              `json:"version"`
	Status           Status           `json:"status"`
	Terms            string           `json:"terms"`
	TermsDigest      string           `json:"termsDigest"`
	Pricing          pricing.Snapshot `json:"pricing"`
	SentAt           time.Time        `json:"sentAt"`
	ExpiresAt        time.Time        `json:"expiresAt"`
	BuyerSignedAt    *time.Time       `json:"buyerSignedAt,omitempty"`
	SupplierSignedAt *time.Time       `json:"supplierSignedAt,omitempty"`
	CancelledAt      *time.Time       `json:"cancelledAt,omitempty"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// New creates a pending agreement version.
func New(engagementID uuid.UUID, version int, terms string, snapshot pricing.Snapshot, sentAt time.Time, ttl time.Duration) *Agreement {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Agreement{
		AgreementID:  uuid.New(),
		EngagementID: engagementID,
		Version:      version,
		Status:       StatusPending,
		Terms:        terms,
		TermsDigest:  Digest(terms),
		Pricing:      snapshot,
		SentAt:       sentAt,
		ExpiresAt:    sentAt.Add(ttl),
		UpdatedAt:    sentAt,
	}
}

// Digest fingerprints rendered terms so signatures can be tied to exact text.
func Digest(terms string) string {
	sum := sha3.Sum256([]byte(terms))
	return hex.EncodeToString(sum[:])
}

// ParseRole validates a raw signing role.
func ParseRole(raw string) (Role, error) {
	switch r := Role(raw); r {
	case RoleBuyer, RoleSupplier:
		return r, nil
	default:
		return "", ErrInvalidRole
	}
}

// Clone returns an independent copy.
func (a *Agreement) Clone() *Agreement {
	c := *a
	return &c
}

// FullySigned is true when both parties have signed.
func (a *Agreement) FullySigned() bool {
	return a.BuyerSignedAt != nil && a.SupplierSignedAt != nil
}

// Recompute derives Status from the signature slots and the clock. A fully
// signed agreement never expires afterwards. Returns true when Status changed.
func (a *Agreement) Recompute(now time.Time) bool {
	prev := a.Status
	switch {
	case a.CancelledAt != nil:
		a.Status = StatusCancelled
	case a.FullySigned():
		a.Status = StatusFullySigned
	case !now.Before(a.ExpiresAt):
		a.Status = StatusExpired
	case a.BuyerSignedAt != nil:
		a.Status = StatusBuyerSigned
	case a.SupplierSignedAt != nil:
		a.Status = StatusSupplierSigned
	default:
		a.Status = StatusPending
	}
	return prev != a.Status
}

// Sign records a signature. Signing twice for the same role is a no-op and
// returns false.
func (a *Agreement) Sign(role Role, now time.Time) (bool, error) {
	a.Recompute(now)
	switch a.Status {
	case StatusCancelled:
		return false, ErrCancelled
	case StatusExpired:
		return false, ErrExpired
	}

	var slot **time.Time
	switch role {
	case RoleBuyer:
		slot = &a.BuyerSignedAt
	case RoleSupplier:
		slot = &a.SupplierSignedAt
	default:
		return false, ErrInvalidRole
	}
	if *slot != nil {
		return false, nil
	}
	stamp := now
	*slot = &stamp
	a.UpdatedAt = now
	a.Recompute(now)
	return true, nil
}

// Supersede cancels an agreement that is still awaiting signatures. Expired
// and fully signed versions are left as they are.
func (a *Agreement) Supersede(now time.Time) bool {
	a.Recompute(now)
	switch a.Status {
	case StatusPending, StatusBuyerSigned, StatusSupplierSigned:
		stamp := now
		a.CancelledAt = &stamp
		a.UpdatedAt = now
		a.Recompute(now)
		return true
	}
	return false
}

// IsExpired evaluates expiry lazily at now.
func (a *Agreement) IsExpired(now time.Time) bool {
	return !a.FullySigned() && a.CancelledAt == nil && !now.Before(a.ExpiresAt)
}
