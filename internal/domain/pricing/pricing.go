package pricing

import (
	"errors"
	"math"
)

var ErrInvalidPricing = errors.New("invalid pricing snapshot")

// Snapshot is the pricing captured when the match was made. Agreements copy it
// so later rate changes never alter an agreement that was already sent.
type Snapshot struct {
	SupplierRate          float64 `json:"supplierRate"`
	BuyerRate             float64 `json:"buyerRate"`
	MonthlySupplierPayout float64 `json:"monthlySupplierPayout"`
	MonthlyBuyerTotal     float64 `json:"monthlyBuyerTotal"`
	AllocatedSquareFeet   int     `json:"allocatedSquareFeet"`
	TermMonths            int     `json:"termMonths"`
}

// Validate checks the snapshot for obviously broken values.
func (s Snapshot) Validate() error {
	for _, v := range []float64{s.SupplierRate, s.BuyerRate, s.MonthlySupplierPayout, s.MonthlyBuyerTotal} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidPricing
		}
	}
	if s.AllocatedSquareFeet < 0 || s.TermMonths < 0 {
		return ErrInvalidPricing
	}
	return nil
}

// MonthlyMargin is what the platform keeps each month.
func (s Snapshot) MonthlyMargin() float64 {
	return s.MonthlyBuyerTotal - s.MonthlySupplierPayout
}

// TotalContractValue returns the buyer total over the full term.
func (s Snapshot) TotalContractValue() float64 {
	return s.MonthlyBuyerTotal * float64(s.TermMonths)
}
