package onboarding

import (
	"errors"
	"fmt"
	"time"
)

// Item is one of the independent onboarding requirements.
type Item string

const (
	ItemInsurance        Item = "insurance"
	ItemCompanyDocuments Item = "company_documents"
	ItemPaymentMethod    Item = "payment_method"
)

var ErrUnknownItem = errors.New("unknown onboarding item")

// Items lists every requirement in display order.
func Items() []Item {
	return []Item{ItemInsurance, ItemCompanyDocuments, ItemPaymentMethod}
}

func ParseItem(raw string) (Item, error) {
	for _, item := range Items() {
		if string(item) == raw {
			return item, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownItem, raw)
}

// Checklist tracks when each requirement was satisfied. Each slot is set once.
type Checklist struct {
	InsuranceAt        *time.Time `json:"insuranceAt,omitempty"`
	CompanyDocumentsAt *time.Time `json:"companyDocumentsAt,omitempty"`
	PaymentMethodAt    *time.Time `json:"paymentMethodAt,omitempty"`
}

func (c *Checklist) slot(item Item) (**time.Time, error) {
	switch item {
	case ItemInsurance:
		return &c.InsuranceAt, nil
	case ItemCompanyDocuments:
		return &c.CompanyDocumentsAt, nil
	case ItemPaymentMethod:
		return &c.PaymentMethodAt, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItem, item)
	}
}

// Submit records an item. Resubmitting a satisfied item changes nothing.
func (c *Checklist) Submit(item Item, now time.Time) (bool, error) {
	slot, err := c.slot(item)
	if err != nil {
		return false, err
	}
	if *slot != nil {
		return false, nil
	}
	stamp := now
	*slot = &stamp
	return true, nil
}

// Done reports whether item has been satisfied.
func (c Checklist) Done(item Item) bool {
	slot, err := c.slot(item)
	return err == nil && *slot != nil
}

// Complete is true once every item is satisfied.
func (c Checklist) Complete() bool {
	return len(c.Remaining()) == 0
}

func (c Checklist) Remaining() []Item {
	var out []Item
	for _, item := range Items() {
		if !c.Done(item) {
			out = append(out, item)
		}
	}
	return out
}
