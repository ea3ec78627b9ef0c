package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Knetic/govaluate"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

var (
	errNotBoolean  = errors.New("guard did not evaluate to boolean")
	errUnknownFact = errors.New("unknown fact")
)

// guardEvaluator compiles guard expressions once and evaluates them against
// engagement facts. Empty guards always pass.
type guardEvaluator struct {
	mu    sync.RWMutex
	exprs map[string]*govaluate.EvaluableExpression
}

// newGuardEvaluator compiles guards and dry-runs each one against zero-valued
// facts, so a guard that cannot yield a boolean fails here instead of on
// every later transition.
func newGuardEvaluator(guards []string) (*guardEvaluator, error) {
	g := &guardEvaluator{exprs: make(map[string]*govaluate.EvaluableExpression)}
	for _, guard := range guards {
		if err := g.check(guard); err != nil {
			return nil, fmt.Errorf("guard %q: %w", guard, err)
		}
	}
	return g, nil
}

// ValidateGuard reports whether expr is usable as a transition guard.
func ValidateGuard(expr string) error {
	return (&guardEvaluator{exprs: make(map[string]*govaluate.EvaluableExpression)}).check(expr)
}

func zeroFacts() map[string]interface{} {
	return (&engagement.Engagement{}).Facts(engagement.FactInput{})
}

func (g *guardEvaluator) check(guard string) error {
	guard = strings.TrimSpace(guard)
	if guard == "" {
		return nil
	}
	expr, err := g.compile(guard)
	if err != nil {
		return err
	}
	facts := zeroFacts()
	for _, name := range expr.Vars() {
		if _, ok := facts[name]; !ok {
			return fmt.Errorf("%w: %s", errUnknownFact, name)
		}
	}
	_, err = g.evaluate(guard, facts)
	return err
}

func (g *guardEvaluator) compile(guard string) (*govaluate.EvaluableExpression, error) {
	g.mu.RLock()
	expr, ok := g.exprs[guard]
	g.mu.RUnlock()
	if ok {
		return expr, nil
	}
	expr, err := govaluate.NewEvaluableExpression(guard)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.exprs[guard] = expr
	g.mu.Unlock()
	return expr, nil
}

func (g *guardEvaluator) evaluate(guard string, facts map[string]interface{}) (bool, error) {
	guard = strings.TrimSpace(guard)
	if guard == "" {
		return true, nil
	}
	expr, err := g.compile(guard)
	if err != nil {
		return false, err
	}
	result, err := expr.Evaluate(facts)
	if err != nil {
		return false, err
	}
	v, ok := result.(bool)
	if !ok {
		return false, errNotBoolean
	}
	return v, nil
}
