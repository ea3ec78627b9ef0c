// Package terms renders agreement text from a text/template.
package terms

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
)

// DefaultTemplate is used when no template file is configured.
const DefaultTemplate = `WAREHOUSE SPACE AGREEMENT (version {{.Version}})

Engagement: {{.EngagementID}}
Listing:    {{.ListingID}}
Supplier:   {{.SupplierID}}
Buyer:      {{if .BuyerID}}{{.BuyerID}}{{else}}(pending account){{end}}

Allocated space:   {{.Pricing.AllocatedSquareFeet}} sq ft
Term:              {{.Pricing.TermMonths}} months
Buyer rate:        {{.Pricing.BuyerRate | money}} per sq ft / month
Monthly total:     {{.Pricing.MonthlyBuyerTotal | money}}
Contract value:    {{.Pricing.TotalContractValue | money}}

Issued {{.SentAt | date}}. This offer lapses unless both parties sign before {{.ExpiresAt | date}}.
`

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"date":  func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}

// Renderer implements agreement.Renderer.
type Renderer struct {
	tmpl *template.Template
}

// New parses text as the agreement template.
func New(text string) (*Renderer, error) {
	tmpl, err := template.New("agreement").Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse agreement template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// FromFile loads the template at path, or the default when path is empty.
func FromFile(path string) (*Renderer, error) {
	if path == "" {
		return New(DefaultTemplate)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agreement template: %w", err)
	}
	return New(string(raw))
}

func (r *Renderer) Render(ctx context.Context, in agreement.RenderInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("render agreement v%d: %w", in.Version, err)
	}
	out := strings.TrimSpace(buf.String())
	if out == "" {
		return "", fmt.Errorf("render agreement v%d: template produced no text", in.Version)
	}
	return out, nil
}
