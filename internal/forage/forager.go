// Package forage implements the tiered source-selection policy: a
// 3-tier ladder promoted by consecutive successes and demoted by
// consecutive failures, with round-robin selection inside a tier.
package forage

import (
	"context"
	"fmt"
	"log"

	"github.com/bracketlabs/bracket/internal/model"
	"github.com/bracketlabs/bracket/internal/source"
)

// Config holds the ladder settings.
type Config struct {
	SuccessesToPromote int
	FailuresToDemote   int
}

// DefaultConfig returns the default ladder settings.
func DefaultConfig() Config {
	return Config{SuccessesToPromote: 5, FailuresToDemote: 3}
}

// State is the forager's mutable counters, an explicit value object so
// it can be checkpointed and restored rather than living as ambient
// globals.
type State struct {
	CurrentTier          int `json:"current_tier"`
	ConsecutiveFailures  int `json:"consecutive_failures"`
	ConsecutiveSuccesses int `json:"consecutive_successes"`
}

// Forager selects sources from the current tier and tracks streaks.
// Tier 1 is most reliable; higher tiers are more experimental.
type Forager struct {
	sources map[int][]source.Source
	config  Config
	state   State
	cursor  map[int]int // round-robin position per tier
}

// New creates a forager starting at tier 1.
func New(sources map[int][]source.Source, config Config) *Forager {
	if config.SuccessesToPromote <= 0 {
		config.SuccessesToPromote = 5
	}
	if config.FailuresToDemote <= 0 {
		config.FailuresToDemote = 3
	}
	return &Forager{
		sources: sources,
		config:  config,
		state:   State{CurrentTier: 1},
		cursor:  make(map[int]int),
	}
}

// State returns a copy of the current counters for checkpointing.
func (f *Forager) State() State { return f.state }

// Restore replaces the counters, clamping the tier into range.
func (f *Forager) Restore(state State) {
	if state.CurrentTier < 1 {
		state.CurrentTier = 1
	}
	if max := f.maxTier(); state.CurrentTier > max {
		state.CurrentTier = max
	}
	f.state = state
}

// CurrentTier returns the active tier.
func (f *Forager) CurrentTier() int { return f.state.CurrentTier }

// Forage selects the next source in the current tier (falling back to
// lower tiers when the tier is empty) and fetches content. An empty
// curiosity asks the source for random content.
func (f *Forager) Forage(ctx context.Context, curiosity string) (*model.SourceResult, error) {
	tier, candidates := f.tierSources()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no sources configured for tier %d or below", f.state.CurrentTier)
	}

	src := candidates[f.cursor[tier]%len(candidates)]
	f.cursor[tier]++

	var result *model.SourceResult
	var err error
	if curiosity != "" {
		result, err = src.Fetch(ctx, curiosity)
	} else {
		result, err = src.FetchRandom(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", src.Name(), err)
	}
	if result.Content == "" {
		return nil, fmt.Errorf("source %q returned empty content", src.Name())
	}
	return result, nil
}

// RecordSuccess resets the failure streak and promotes the tier after
// enough consecutive successes.
func (f *Forager) RecordSuccess() {
	f.state.ConsecutiveFailures = 0
	f.state.ConsecutiveSuccesses++

	if f.state.ConsecutiveSuccesses >= f.config.SuccessesToPromote && f.state.CurrentTier < f.maxTier() {
		old := f.state.CurrentTier
		f.state.CurrentTier++
		f.state.ConsecutiveSuccesses = 0
		log.Printf("forage: tier promotion %d -> %d", old, f.state.CurrentTier)
	}
}

// RecordFailure resets the success streak and demotes the tier after
// enough consecutive failures. Tier never drops below 1.
func (f *Forager) RecordFailure() {
	f.state.ConsecutiveSuccesses = 0
	f.state.ConsecutiveFailures++

	if f.state.ConsecutiveFailures >= f.config.FailuresToDemote && f.state.CurrentTier > 1 {
		old := f.state.CurrentTier
		f.state.CurrentTier--
		f.state.ConsecutiveFailures = 0
		log.Printf("forage: tier demotion %d -> %d", old, f.state.CurrentTier)
	}
}

// tierSources returns the nearest non-empty tier at or below current.
func (f *Forager) tierSources() (int, []source.Source) {
	for tier := f.state.CurrentTier; tier >= 1; tier-- {
		if srcs := f.sources[tier]; len(srcs) > 0 {
			return tier, srcs
		}
	}
	return 0, nil
}

func (f *Forager) maxTier() int {
	max := 1
	for tier, srcs := range f.sources {
		if len(srcs) > 0 && tier > max {
			max = tier
		}
	}
	return max
}
