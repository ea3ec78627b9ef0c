package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/lifecycle"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

// Duration decodes TOML strings such as "72h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("duration %q must be positive", text)
	}
	d.Duration = v
	return nil
}

// policyFile mirrors the lifecycle policy TOML:
//
//	[hold]
//	offer_window = "24h"
//	acceptance_hold = "72h"
//	reservation_hold = "48h"
//
//	[agreement]
//	ttl = "168h"
//
//	[tour]
//	max_reschedules = 2
//
//	[guards]
//	activate = "agreement_fully_signed"
type policyFile struct {
	Hold struct {
		OfferWindow     *Duration `toml:"offer_window"`
		AcceptanceHold  *Duration `toml:"acceptance_hold"`
		ReservationHold *Duration `toml:"reservation_hold"`
	} `toml:"hold"`
	Agreement struct {
		TTL *Duration `toml:"ttl"`
	} `toml:"agreement"`
	Tour struct {
		MaxReschedules *int `toml:"max_reschedules"`
	} `toml:"tour"`
	Guards map[string]string `toml:"guards"`
}

// LoadPolicy returns the default lifecycle policy with the values in path
// applied on top. An empty path yields the defaults.
func LoadPolicy(path string) (lifecycle.Policy, error) {
	p := lifecycle.DefaultPolicy()
	if path == "" {
		return p, nil
	}
	var f policyFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return p, fmt.Errorf("decode policy %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return p, fmt.Errorf("policy %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return applyPolicy(p, f)
}

func applyPolicy(p lifecycle.Policy, f policyFile) (lifecycle.Policy, error) {
	if f.Hold.OfferWindow != nil {
		p.Hold.OfferWindow = f.Hold.OfferWindow.Duration
	}
	if f.Hold.AcceptanceHold != nil {
		p.Hold.AcceptanceHold = f.Hold.AcceptanceHold.Duration
	}
	if f.Hold.ReservationHold != nil {
		p.Hold.ReservationHold = f.Hold.ReservationHold.Duration
	}
	if f.Agreement.TTL != nil {
		p.AgreementTTL = f.Agreement.TTL.Duration
	}
	if f.Tour.MaxReschedules != nil {
		if *f.Tour.MaxReschedules <= 0 {
			return p, fmt.Errorf("tour.max_reschedules must be positive")
		}
		p.RescheduleMax = *f.Tour.MaxReschedules
	}
	if len(f.Guards) > 0 {
		known := make(map[engagement.Transition]bool)
		for _, e := range engagement.DefaultGraph().Edges() {
			known[e.Transition] = true
		}
		p.ExtraGuards = make(map[engagement.Transition]string, len(f.Guards))
		for name, expr := range f.Guards {
			t := engagement.Transition(name)
			if !known[t] {
				return p, fmt.Errorf("guards: unknown transition %q", name)
			}
			if strings.TrimSpace(expr) == "" {
				return p, fmt.Errorf("guards.%s: empty expression", name)
			}
			if err := lifecycle.ValidateGuard(expr); err != nil {
				return p, fmt.Errorf("guards.%s: %w", name, err)
			}
			p.ExtraGuards[t] = expr
		}
	}
	return p, nil
}
