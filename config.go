package planrun

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"
	"github.com/planrun/planrun/catalog"
	"github.com/planrun/planrun/events"
	"github.com/planrun/planrun/flags"
)

// Config holds the application configuration
type Config struct {
	ProfileFile              string        // Path to the filter profile file, empty when no filtering is configured
	Profile                  string        // Profile ID to select from the profile file
	RunInterval              time.Duration // Interval between test runs
	RunOnce                  bool          // Indicates if the service should exit after one test run
	Parallel                 bool          // Run eligible tests concurrently
	MaxWorkers               int           // Number of concurrent test case workers (0 = unbounded)
	TimeLimit                time.Duration // Default time limit for individual test cases (0 = none)
	DeliverExpectationEvents bool          // Deliver expectationChecked events, including passing ones
	JSONLFile                string        // Path to write a JSON-lines event stream, empty to disable
	Log                      log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	profileFile := ctx.String(flags.ProfileFile.Name)
	profile := ctx.String(flags.Profile.Name)
	if profileFile != "" && profile == "" {
		return nil, fmt.Errorf("flag %s requires %s to select a profile", flags.ProfileFile.Name, flags.Profile.Name)
	}
	if profileFile != "" {
		var err error
		profileFile, err = filepath.Abs(profileFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for profile file '%s': %w", ctx.String(flags.ProfileFile.Name), err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	maxWorkers := ctx.Int(flags.MaxWorkers.Name)
	if maxWorkers < 0 {
		return nil, fmt.Errorf("max-workers must not be negative, got %d", maxWorkers)
	}

	return &Config{
		ProfileFile:              profileFile,
		Profile:                  profile,
		RunInterval:              runInterval,
		RunOnce:                  runOnce,
		Parallel:                 ctx.Bool(flags.Parallel.Name),
		MaxWorkers:               maxWorkers,
		TimeLimit:                ctx.Duration(flags.TimeLimit.Name),
		DeliverExpectationEvents: ctx.Bool(flags.DeliverExpectationEvents.Name),
		JSONLFile:                ctx.String(flags.JSONLFile.Name),
		Log:                      log,
	}, nil
}

// Filter resolves the configured profile into an event filter. A zero filter
// is returned when no profile file is configured.
func (c *Config) Filter() (events.Filter, error) {
	if c.ProfileFile == "" {
		return events.Filter{}, nil
	}
	profiles, err := catalog.LoadProfiles(c.ProfileFile)
	if err != nil {
		return events.Filter{}, fmt.Errorf("failed to load profile file '%s': %w", c.ProfileFile, err)
	}
	p, err := profiles.Profile(c.Profile)
	if err != nil {
		return events.Filter{}, err
	}
	return p.Filter(), nil
}
