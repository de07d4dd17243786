package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Report collects the outcomes of one provisioning run.
type Report struct {
	RunID   string
	Started time.Time
	Results []StepResult
}

func newReport() *Report {
	return &Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
}

func (r *Report) Add(res StepResult) {
	r.Results = append(r.Results, res)
}

// Failed returns the number of failed steps.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			n++
		}
	}
	return n
}

// WriteFile appends the report to provision-<runid>.txt under dir and
// returns the file path.
func (r *Report) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("provision-%s.txt", r.RunID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("opening report file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "run %s started %s\n",
		r.RunID, r.Started.Format(time.RFC3339)); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	for _, res := range r.Results {
		line := fmt.Sprintf("%s: %s (%s)", res.Step, res.Status, res.Duration.Round(time.Millisecond))
		if res.Status == StatusFailed {
			line += fmt.Sprintf(" action=%q exit=%d err=%v", res.Action, res.ExitStatus, res.Err)
		}
		if _, err := fmt.Fprintln(f, line); err != nil {
			return "", fmt.Errorf("writing report: %w", err)
		}
	}
	if _, err := fmt.Fprintln(f); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	return path, nil
}
