package provision

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/schollz/progressbar/v3"

	"github.com/mflod/vconf/internal/config"
	"github.com/mflod/vconf/internal/pkgmanager"
	"github.com/mflod/vconf/internal/utils/logger"
	"github.com/mflod/vconf/internal/utils/shell"
)

// Status is the outcome of one provisioning step.
type Status int

const (
	StatusUnknown Status = iota
	StatusPresent        // check passed, install skipped
	StatusInstalled      // check failed, install ran and succeeded
	StatusFailed
	StatusSkipped // dry run
)

func (s Status) String() string {
	switch s {
	case StatusPresent:
		return "present"
	case StatusInstalled:
		return "installed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// StepResult records what happened to one step.
type StepResult struct {
	Step       string
	Status     Status
	Action     string // the failing install action, when Status is StatusFailed
	ExitStatus int
	Err        error
	Duration   time.Duration
}

// StepError is the error of a failed step. It carries the failing action's
// exit status so callers can exit with the same code the action did.
type StepError struct {
	Step       string
	Action     string
	ExitStatus int
	Err        error
}

func (e *StepError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("step %s: action %q: %v", e.Step, e.Action, e.Err)
	}
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ExecFunc matches shell.ExecCmd and is the engine's seam for tests.
type ExecFunc func(cmdStr string, sudo bool, workDir string, envVal []string) (string, error)

// Options configures an Engine.
type Options struct {
	WorkDir   string // working directory for all commands; empty means inherit
	ReportDir string // where run reports land; empty disables reports
	KeepGoing bool   // continue past failed steps, aggregate errors
	DryRun    bool   // run checks only, report what would be installed
	Progress  bool   // render a step progress bar
}

// Engine converges steps onto the host.
type Engine struct {
	opts   Options
	exec   ExecFunc // presence checks
	stream ExecFunc // install actions, output streamed to the log
}

func NewEngine(opts Options) *Engine {
	return &Engine{
		opts:   opts,
		exec:   shell.ExecCmd,
		stream: shell.ExecCmdWithStream,
	}
}

// Check runs only the presence check of a step. It never mutates the host.
// A check that could not start follows the step's on_check_error policy,
// same as Ensure: the default reports the target absent, "fail" errors out.
func (e *Engine) Check(step config.Step) (bool, error) {
	step, err := pkgmanager.Expand(step)
	if err != nil {
		return false, err
	}
	_, err = e.exec(step.Check, false, e.opts.WorkDir, nil)
	if err == nil {
		return true, nil
	}
	if shell.ExitStatus(err) < 0 && step.OnCheckError == config.OnCheckErrorFail {
		return false, fmt.Errorf("check for %s could not run: %w", step.Name, err)
	}
	return false, nil
}

// Ensure converges one step: if the presence check passes the step is a
// no-op, otherwise the install actions run in order, stopping at the first
// failure. The install runs at most once; idempotence across invocations
// comes from the check, not from the installer.
func (e *Engine) Ensure(step config.Step) StepResult {
	log := logger.Logger()
	start := time.Now()
	res := StepResult{Step: step.Name}

	step, err := pkgmanager.Expand(step)
	if err != nil {
		res.Status = StatusFailed
		res.ExitStatus = -1
		res.Err = &StepError{Step: res.Step, ExitStatus: -1, Err: err}
		res.Duration = time.Since(start)
		return res
	}

	_, checkErr := e.exec(step.Check, false, e.opts.WorkDir, nil)
	if checkErr == nil {
		log.Infof("%s is already installed", step.Name)
		res.Status = StatusPresent
		res.Duration = time.Since(start)
		return res
	}

	// A check that never ran (interpreter missing, malformed command) is
	// distinct from a clean "absent" exit; the step's policy decides.
	if shell.ExitStatus(checkErr) < 0 && step.OnCheckError == config.OnCheckErrorFail {
		res.Status = StatusFailed
		res.ExitStatus = -1
		res.Err = &StepError{
			Step:       step.Name,
			ExitStatus: -1,
			Err:        fmt.Errorf("check could not run: %w", checkErr),
		}
		res.Duration = time.Since(start)
		return res
	}

	if e.opts.DryRun {
		log.Infof("%s is not installed, would install", step.Name)
		res.Status = StatusSkipped
		res.Duration = time.Since(start)
		return res
	}

	log.Infof("Installing %s", step.Name)
	for _, action := range step.Install {
		if _, err := e.stream(action, step.Sudo, e.opts.WorkDir, nil); err != nil {
			res.Status = StatusFailed
			res.Action = action
			res.ExitStatus = shell.ExitStatus(err)
			res.Err = &StepError{
				Step:       step.Name,
				Action:     action,
				ExitStatus: res.ExitStatus,
				Err:        err,
			}
			res.Duration = time.Since(start)
			return res
		}
	}

	log.Infof("Installed %s", step.Name)
	res.Status = StatusInstalled
	res.Duration = time.Since(start)
	return res
}

// Run converges all steps. A missing working directory is fatal before any
// step executes. Step failures stop the run unless KeepGoing is set, in
// which case the run finishes and the failures come back aggregated.
func (e *Engine) Run(steps []config.Step) (*Report, error) {
	log := logger.Logger()
	report := newReport()

	if e.opts.WorkDir != shell.HostDir {
		if _, err := os.Stat(e.opts.WorkDir); err != nil {
			return report, fmt.Errorf("working directory %s is not accessible: %w", e.opts.WorkDir, err)
		}
	}

	var bar *progressbar.ProgressBar
	if e.opts.Progress {
		bar = progressbar.Default(int64(len(steps)), "provisioning")
	}

	var merr *multierror.Error
	for _, step := range steps {
		res := e.Ensure(step)
		report.Add(res)
		if bar != nil {
			_ = bar.Add(1)
		}

		if res.Status == StatusFailed {
			log.Errorf("Step %s failed: %v", res.Step, res.Err)
			if !e.opts.KeepGoing {
				e.writeReport(report)
				return report, res.Err
			}
			merr = multierror.Append(merr, res.Err)
		}
	}

	e.writeReport(report)
	return report, merr.ErrorOrNil()
}

// writeReport persists the run report. Report trouble is worth a log line,
// never a failed run.
func (e *Engine) writeReport(report *Report) {
	if e.opts.ReportDir == "" {
		return
	}
	path, err := report.WriteFile(e.opts.ReportDir)
	if err != nil {
		logger.Logger().Warnf("Failed to write provisioning report: %v", err)
		return
	}
	logger.Logger().Debugf("Wrote provisioning report to %s", path)
}
