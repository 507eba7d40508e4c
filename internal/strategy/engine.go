// Package strategy turns a feature snapshot and the current position side
// into a directional signal.
//
// A signal is the sum of votes from an ordered list of independent rules.
// Each rule returns +1 (buy), -1 (sell) or 0 and may look at the position
// side to suppress votes that would add to an existing position. Which rules
// run is a configuration decision (see RulesByName).
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"breakout-trader/internal/logger"
	"breakout-trader/internal/model"
)

// VoteFunc scores a snapshot for the given side. Implementations must not
// mutate the snapshot.
type VoteFunc func(snap *model.FeatureSnapshot, side model.Side) int

// Rule is a named vote function.
type Rule struct {
	Name string
	Vote VoteFunc
}

var registry = map[string]func() Rule{
	"donchian": DonchianBreakout,
	"macd":     MACDCrossover,
}

// DefaultRules is the default composition: Donchian breakout only.
var DefaultRules = []string{"donchian"}

// RuleNames lists the registered rule names, sorted.
func RuleNames() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RulesByName builds rules in the given order. Unknown names are an error.
func RulesByName(names []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		ctor, ok := registry[n]
		if !ok {
			return nil, fmt.Errorf("unknown signal rule %q (known: %s)", n, strings.Join(RuleNames(), ","))
		}
		seen[n] = true
		rules = append(rules, ctor())
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("no signal rules enabled")
	}
	return rules, nil
}

// Engine sums votes from its rules.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine running rules in order.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// Rules returns the names of the active rules.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}

// Evaluate runs every rule and resolves the net vote:
// net >= 1 is BUY, net <= -1 is SELL, anything else NONE.
func (e *Engine) Evaluate(ctx context.Context, snap *model.FeatureSnapshot, side model.Side) model.SignalResult {
	if side == "" {
		side = model.SideNone
	}
	res := model.SignalResult{
		Direction:   model.DirectionNone,
		HasPosition: side != model.SideNone,
		Votes:       make(map[string]int, len(e.rules)),
	}
	if snap.Len() < 2 {
		return res
	}

	for _, r := range e.rules {
		v := r.Vote(snap, side)
		res.Votes[r.Name] = v
		res.Net += v
		if v != 0 {
			slog.Info("rule voted",
				append(logger.Attrs(ctx), "rule", r.Name, "vote", v, "side", side.String())...)
		}
	}

	switch {
	case res.Net >= 1:
		res.Direction = model.DirectionBuy
	case res.Net <= -1:
		res.Direction = model.DirectionSell
	}
	return res
}
