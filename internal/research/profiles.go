package research

import "research/backend/internal/config"

const (
	defaultNumQueries         = 2
	defaultRelevanceThreshold = 0.5
	defaultSearchConcurrency  = 1
)

// MaxNumQueries caps the queries generated for one run.
const MaxNumQueries = 10

type Options struct {
	NumQueries         int
	RelevanceThreshold float64
	SearchConcurrency  int
	IncludeDomains     []string
	ExcludeDomains     []string
	OnProgress         func(Progress)
}

// Overrides are per-request adjustments. Nil fields keep the base value.
type Overrides struct {
	NumQueries         *int
	RelevanceThreshold *float64
	IncludeDomains     []string
	ExcludeDomains     []string
}

func DefaultOptions() Options {
	return Options{
		NumQueries:         defaultNumQueries,
		RelevanceThreshold: defaultRelevanceThreshold,
		SearchConcurrency:  defaultSearchConcurrency,
	}
}

func OptionsFromConfig(cfg config.Config) Options {
	return ResolveOptions(Options{
		NumQueries:         cfg.ResearchNumQueries,
		RelevanceThreshold: cfg.ResearchRelevanceThreshold,
		SearchConcurrency:  cfg.SearchConcurrency,
	}, Overrides{})
}

// ResolveOptions applies overrides to base and clamps the result.
func ResolveOptions(base Options, overrides Overrides) Options {
	resolved := base

	if overrides.NumQueries != nil {
		resolved.NumQueries = *overrides.NumQueries
	}
	if overrides.RelevanceThreshold != nil {
		resolved.RelevanceThreshold = *overrides.RelevanceThreshold
	}
	if len(overrides.IncludeDomains) > 0 {
		resolved.IncludeDomains = overrides.IncludeDomains
	}
	if len(overrides.ExcludeDomains) > 0 {
		resolved.ExcludeDomains = overrides.ExcludeDomains
	}

	if resolved.NumQueries < 1 {
		resolved.NumQueries = defaultNumQueries
	}
	if resolved.NumQueries > MaxNumQueries {
		resolved.NumQueries = MaxNumQueries
	}
	if resolved.RelevanceThreshold < 0 {
		resolved.RelevanceThreshold = 0
	}
	if resolved.RelevanceThreshold > 1 {
		resolved.RelevanceThreshold = 1
	}
	if resolved.SearchConcurrency < 1 {
		resolved.SearchConcurrency = defaultSearchConcurrency
	}
	return resolved
}
