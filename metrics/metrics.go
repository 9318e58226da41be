package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/planrun/planrun/events"
	"github.com/planrun/planrun/types"
)

const (
	MetricsNamespace = "planrun"
)

var (
	Debug                bool = true
	validStatuses             = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusTimeout}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of executed tests by terminal status",
	}, []string{
		"run_id",
		"status",
	})

	issuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "issues_total",
		Help:      "Count of recorded issues by kind",
	}, []string{
		"run_id",
		"kind",
		"known",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of test runs",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of test runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordTest counts one terminal test status within a run.
func RecordTest(runID string, status types.TestStatus) {
	if !isValidStatus(status) {
		log.Error("RecordTest - invalid status", "status", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"run_id", runID,
			"status", status)
	}
	testsTotal.WithLabelValues(runID, string(status)).Inc()
}

// RecordIssue counts one recorded issue by kind and known reclassification.
func RecordIssue(runID string, kind events.IssueKind, known bool) {
	if Debug {
		log.Debug("metric inc",
			"m", "issues_total",
			"run_id", runID,
			"kind", kind,
			"known", known)
	}
	issuesTotal.WithLabelValues(runID, string(kind), fmt.Sprintf("%t", known)).Inc()
}

// RecordRun reports a completed run's result and duration.
func RecordRun(runID string, result types.TestStatus, duration time.Duration) {
	runResults.WithLabelValues(runID, string(result)).Set(1)
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidStatus(status types.TestStatus) bool {
	return slices.Contains(validStatuses, status)
}

// Observer bridges the event pipeline to the metrics above: plug it into
// the run's handler chain to count tests and issues as they happen.
func Observer(runID string) func(events.Event) {
	return func(e events.Event) {
		switch e.Kind {
		case events.EventTestEnded:
			RecordTest(runID, e.Status)
		case events.EventTestSkipped:
			RecordTest(runID, types.TestStatusSkip)
		case events.EventIssueRecorded:
			if e.Issue != nil {
				RecordIssue(runID, e.Issue.Kind, e.Issue.IsKnown())
			}
		}
	}
}
