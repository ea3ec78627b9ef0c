package engagement

import (
	"sort"
	"strings"
)

// Transition names an edge of the lifecycle graph. Timeline events carry the
// transition that produced them.
type Transition string

const (
	TransitionCreate               Transition = "create"
	TransitionAcceptDealPing       Transition = "accept_deal_ping"
	TransitionMatch                Transition = "match"
	TransitionPresentOffer         Transition = "present_offer"
	TransitionAcceptOffer          Transition = "accept_offer"
	TransitionCreateAccount        Transition = "create_account"
	TransitionSignGuarantee        Transition = "sign_guarantee"
	TransitionRevealAddress        Transition = "reveal_address"
	TransitionRequestTour          Transition = "request_tour"
	TransitionConfirmTour          Transition = "confirm_tour"
	TransitionProposeTourTime      Transition = "propose_tour_time"
	TransitionRescheduleTour       Transition = "reschedule_tour"
	TransitionAcceptTourTime       Transition = "accept_tour_time"
	TransitionCompleteTour         Transition = "complete_tour"
	TransitionRecordTourOutcome    Transition = "record_tour_outcome"
	TransitionRequestInstantBook   Transition = "request_instant_book"
	TransitionConfirmInstantBook   Transition = "confirm_instant_book"
	TransitionSendAgreement        Transition = "send_agreement"
	TransitionSignAgreement        Transition = "sign_agreement"
	TransitionReissueAgreement     Transition = "reissue_agreement"
	TransitionStartOnboarding      Transition = "start_onboarding"
	TransitionSubmitOnboardingItem Transition = "submit_onboarding_item"
	TransitionActivate             Transition = "activate"
	TransitionComplete             Transition = "complete"
	TransitionDecline              Transition = "decline"
	TransitionCancel               Transition = "cancel"
	TransitionExpire               Transition = "expire"
)

// exits may fire after a hold has lapsed; every other edge out of a hold
// status requires the hold to still be open.
var exits = map[Transition]bool{
	TransitionDecline: true,
	TransitionCancel:  true,
	TransitionExpire:  true,
}

// Edge is one allowed move. Several edges may share From and Transition; the
// first whose actor list and guard both pass is taken.
type Edge struct {
	From       Status
	Transition Transition
	To         Status
	Actors     []ActorRole
	Guard      string
	Reschedule bool
}

// Allows reports whether role may fire the edge.
func (e Edge) Allows(role ActorRole) bool {
	for _, r := range e.Actors {
		if r == role {
			return true
		}
	}
	return false
}

// Graph is the declared transition table.
type Graph struct {
	edges []Edge
	index map[Status]map[Transition][]Edge
}

var (
	buyerOnly      = []ActorRole{RoleBuyer}
	supplierOnly   = []ActorRole{RoleSupplier}
	systemOnly     = []ActorRole{RoleSystem}
	eitherParty    = []ActorRole{RoleBuyer, RoleSupplier}
	operators      = []ActorRole{RoleSystem, RoleAdmin}
	tourCompleters = []ActorRole{RoleSupplier, RoleSystem}
	cancellers     = []ActorRole{RoleBuyer, RoleSupplier, RoleAdmin}
)

func forwardEdges() []Edge {
	return []Edge{
		{From: StatusDealPingSent, Transition: TransitionAcceptDealPing, To: StatusDealPingAccepted, Actors: buyerOnly},
		{From: StatusDealPingAccepted, Transition: TransitionMatch, To: StatusMatched, Actors: systemOnly},
		{From: StatusMatched, Transition: TransitionPresentOffer, To: StatusBuyerReviewing, Actors: systemOnly},
		{From: StatusBuyerReviewing, Transition: TransitionAcceptOffer, To: StatusBuyerAccepted, Actors: buyerOnly},
		{From: StatusBuyerAccepted, Transition: TransitionCreateAccount, To: StatusAccountCreated, Actors: buyerOnly},
		{From: StatusAccountCreated, Transition: TransitionSignGuarantee, To: StatusGuaranteeSigned, Actors: buyerOnly},
		{From: StatusGuaranteeSigned, Transition: TransitionRevealAddress, To: StatusAddressRevealed, Actors: systemOnly},

		{From: StatusAddressRevealed, Transition: TransitionRequestTour, To: StatusTourRequested, Actors: buyerOnly, Guard: FactPath + " == 'tour'"},
		{From: StatusTourRequested, Transition: TransitionConfirmTour, To: StatusTourConfirmed, Actors: supplierOnly},
		{From: StatusTourRequested, Transition: TransitionProposeTourTime, To: StatusTourRescheduled, Actors: supplierOnly, Reschedule: true},
		{From: StatusTourConfirmed, Transition: TransitionRescheduleTour, To: StatusTourRescheduled, Actors: eitherParty, Reschedule: true},
		{From: StatusTourRescheduled, Transition: TransitionRescheduleTour, To: StatusTourRescheduled, Actors: eitherParty, Reschedule: true},
		{From: StatusTourRescheduled, Transition: TransitionAcceptTourTime, To: StatusTourConfirmed, Actors: eitherParty},
		{From: StatusTourConfirmed, Transition: TransitionCompleteTour, To: StatusTourCompleted, Actors: tourCompleters},
		{From: StatusTourCompleted, Transition: TransitionRecordTourOutcome, To: StatusBuyerConfirmed, Actors: buyerOnly, Guard: FactTourOutcome + " == 'confirmed'"},
		{From: StatusTourCompleted, Transition: TransitionRecordTourOutcome, To: StatusDeclinedByBuyer, Actors: buyerOnly, Guard: FactTourOutcome + " == 'passed'"},
		{From: StatusTourCompleted, Transition: TransitionRecordTourOutcome, To: StatusTourCompleted, Actors: buyerOnly, Guard: FactTourOutcome + " == 'adjustment_needed'"},

		{From: StatusAddressRevealed, Transition: TransitionRequestInstantBook, To: StatusInstantBookRequested, Actors: buyerOnly, Guard: FactPath + " == 'instant_book'"},
		{From: StatusInstantBookRequested, Transition: TransitionConfirmInstantBook, To: StatusBuyerConfirmed, Actors: supplierOnly},

		{From: StatusBuyerConfirmed, Transition: TransitionSendAgreement, To: StatusAgreementSent, Actors: systemOnly},
		{From: StatusAgreementSent, Transition: TransitionSignAgreement, To: StatusAgreementSigned, Actors: eitherParty, Guard: FactAgreementFullySigned},
		{From: StatusAgreementSent, Transition: TransitionSignAgreement, To: StatusAgreementSent, Actors: eitherParty, Guard: "!" + FactAgreementFullySigned},
		{From: StatusAgreementSent, Transition: TransitionReissueAgreement, To: StatusAgreementSent, Actors: operators, Guard: "!" + FactAgreementFullySigned},
		{From: StatusAgreementSigned, Transition: TransitionStartOnboarding, To: StatusOnboarding, Actors: systemOnly},
		{From: StatusOnboarding, Transition: TransitionSubmitOnboardingItem, To: StatusOnboarding, Actors: buyerOnly},
		{From: StatusOnboarding, Transition: TransitionActivate, To: StatusActive, Actors: operators, Guard: FactOnboardingComplete + " && " + FactAgreementFullySigned},
		{From: StatusActive, Transition: TransitionComplete, To: StatusCompleted, Actors: operators},
	}
}

func exitEdges() []Edge {
	var out []Edge
	for _, s := range allStatuses {
		if !s.BeforeActive() {
			continue
		}
		if s == StatusDealPingSent {
			out = append(out, Edge{From: s, Transition: TransitionDecline, To: StatusDealPingDeclined, Actors: eitherParty})
		} else {
			out = append(out,
				Edge{From: s, Transition: TransitionDecline, To: StatusDeclinedByBuyer, Actors: buyerOnly},
				Edge{From: s, Transition: TransitionDecline, To: StatusDeclinedBySupplier, Actors: supplierOnly},
			)
		}
		out = append(out, Edge{From: s, Transition: TransitionCancel, To: StatusCancelled, Actors: cancellers})

		if s.HasHold() {
			to := StatusExpired
			if s == StatusDealPingSent {
				to = StatusDealPingExpired
			}
			out = append(out, Edge{From: s, Transition: TransitionExpire, To: to, Actors: systemOnly, Guard: FactHoldExpired})
		}
	}
	return out
}

// NewGraph builds the lifecycle graph. extraGuards are ANDed onto every edge
// of the named transition.
func NewGraph(extraGuards map[Transition]string) *Graph {
	g := &Graph{index: make(map[Status]map[Transition][]Edge)}
	for _, e := range append(forwardEdges(), exitEdges()...) {
		if e.From.HasHold() && !exits[e.Transition] {
			e.Guard = and("!"+FactHoldExpired, e.Guard)
		}
		if extra := strings.TrimSpace(extraGuards[e.Transition]); extra != "" {
			e.Guard = and(e.Guard, extra)
		}
		g.edges = append(g.edges, e)
		byTransition, ok := g.index[e.From]
		if !ok {
			byTransition = make(map[Transition][]Edge)
			g.index[e.From] = byTransition
		}
		byTransition[e.Transition] = append(byTransition[e.Transition], e)
	}
	return g
}

func DefaultGraph() *Graph {
	return NewGraph(nil)
}

func and(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return ""
	case 1:
		return kept[0]
	}
	for i, p := range kept {
		kept[i] = "(" + p + ")"
	}
	return strings.Join(kept, " && ")
}

// Edges returns every declared edge.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Outgoing returns the edges leaving from for transition t, in declaration order.
func (g *Graph) Outgoing(from Status, t Transition) []Edge {
	return g.index[from][t]
}

// Transitions lists the transitions declared out of from, sorted by name.
func (g *Graph) Transitions(from Status) []Transition {
	out := make([]Transition, 0, len(g.index[from]))
	for t := range g.index[from] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasEdge reports whether a from→to move via t is declared, ignoring guards.
func (g *Graph) HasEdge(from Status, t Transition, to Status) bool {
	for _, e := range g.index[from][t] {
		if e.To == to {
			return true
		}
	}
	return false
}

// Guards returns the distinct guard expressions, for precompilation.
func (g *Graph) Guards() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range g.edges {
		if e.Guard != "" && !seen[e.Guard] {
			seen[e.Guard] = true
			out = append(out, e.Guard)
		}
	}
	return out
}
