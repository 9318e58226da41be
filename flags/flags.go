package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "PLANRUN"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	ProfileFile = &cli.StringFlag{
		Name:    "profiles",
		Value:   "",
		EnvVars: prefixEnvVars("PROFILES"),
		Usage:   "Path to a filter profile file (eg. 'profiles.yaml')",
	}
	Profile = &cli.StringFlag{
		Name:    "profile",
		Value:   "",
		EnvVars: prefixEnvVars("PROFILE"),
		Usage:   "Profile to select from the profile file (eg. 'smoke')",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Parallel = &cli.BoolFlag{
		Name:    "parallel",
		Value:   true,
		EnvVars: prefixEnvVars("PARALLEL"),
		Usage:   "Run eligible tests concurrently",
	}
	MaxWorkers = &cli.IntFlag{
		Name:    "max-workers",
		Value:   0,
		EnvVars: prefixEnvVars("MAX_WORKERS"),
		Usage:   "Maximum number of concurrently running test cases (0 = unbounded)",
	}
	TimeLimit = &cli.DurationFlag{
		Name:    "time-limit",
		Value:   0,
		EnvVars: prefixEnvVars("TIME_LIMIT"),
		Usage:   "Default time limit applied to every test case (0 = none)",
	}
	DeliverExpectationEvents = &cli.BoolFlag{
		Name:    "deliver-expectation-events",
		Value:   false,
		EnvVars: prefixEnvVars("DELIVER_EXPECTATION_EVENTS"),
		Usage:   "Deliver an event for every checked expectation, including passing ones",
	}
	JSONLFile = &cli.StringFlag{
		Name:    "jsonl",
		Value:   "",
		EnvVars: prefixEnvVars("JSONL"),
		Usage:   "Path to write a JSON-lines event stream (empty = disabled)",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level: debug, info, warn, error",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	ProfileFile,
	Profile,
	RunInterval,
	Parallel,
	MaxWorkers,
	TimeLimit,
	DeliverExpectationEvents,
	JSONLFile,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	if ctx.IsSet(Profile.Name) && !ctx.IsSet(ProfileFile.Name) {
		return fmt.Errorf("flag %s requires %s to be set", Profile.Name, ProfileFile.Name)
	}
	return nil
}
