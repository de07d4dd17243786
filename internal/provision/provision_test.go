package provision

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mflod/vconf/internal/config"
)

// exitError produces a real *exec.ExitError carrying the given code.
func exitError(t *testing.T, code int) error {
	t.Helper()
	err := exec.Command("/bin/sh", "-c", fmt.Sprintf("exit %d", code)).Run()
	if err == nil {
		t.Fatalf("expected exit %d to fail", code)
	}
	return err
}

// fakeExec records every command it is asked to run and replies from a
// script of per-command errors.
type fakeExec struct {
	calls []string
	errs  map[string]error
}

func (f *fakeExec) run(cmdStr string, sudo bool, workDir string, envVal []string) (string, error) {
	f.calls = append(f.calls, cmdStr)
	return "", f.errs[cmdStr]
}

func newTestEngine(opts Options, check, install *fakeExec) *Engine {
	e := NewEngine(opts)
	e.exec = check.run
	e.stream = install.run
	return e
}

func TestEnsurePresentSkipsInstall(t *testing.T) {
	check := &fakeExec{}
	install := &fakeExec{}
	e := newTestEngine(Options{}, check, install)

	res := e.Ensure(config.Step{
		Name:    "haveged",
		Check:   "pacman -Qi haveged",
		Install: []string{"pacman -S --noconfirm haveged"},
	})

	if res.Status != StatusPresent {
		t.Fatalf("expected present, got %s (err: %v)", res.Status, res.Err)
	}
	if len(install.calls) != 0 {
		t.Fatalf("install must not run for a present target, ran %v", install.calls)
	}
}

func TestEnsureAbsentRunsInstallActionsInOrder(t *testing.T) {
	check := &fakeExec{errs: map[string]error{"check": exitError(t, 1)}}
	install := &fakeExec{}
	e := newTestEngine(Options{}, check, install)

	res := e.Ensure(config.Step{
		Name:    "python3-pgpdump",
		Check:   "check",
		Install: []string{"pip3 install -U pip", "pip3 install pgpdump"},
	})

	if res.Status != StatusInstalled {
		t.Fatalf("expected installed, got %s (err: %v)", res.Status, res.Err)
	}
	want := []string{"pip3 install -U pip", "pip3 install pgpdump"}
	if len(install.calls) != len(want) {
		t.Fatalf("expected %d install actions, got %v", len(want), install.calls)
	}
	for i, cmd := range want {
		if install.calls[i] != cmd {
			t.Errorf("action %d: expected %q, got %q", i, cmd, install.calls[i])
		}
	}
}

func TestEnsureInstallFailureStopsAndAttributes(t *testing.T) {
	check := &fakeExec{errs: map[string]error{"check": exitError(t, 1)}}
	install := &fakeExec{errs: map[string]error{"step-b": exitError(t, 7)}}
	e := newTestEngine(Options{}, check, install)

	res := e.Ensure(config.Step{
		Name:    "thing",
		Check:   "check",
		Install: []string{"step-a", "step-b", "step-c"},
	})

	if res.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if res.Action != "step-b" {
		t.Errorf("expected failure attributed to step-b, got %q", res.Action)
	}
	if res.ExitStatus != 7 {
		t.Errorf("expected exit status 7, got %d", res.ExitStatus)
	}
	if len(install.calls) != 2 {
		t.Errorf("expected install to stop after the failing action, ran %v", install.calls)
	}

	var stepErr *StepError
	if !errors.As(res.Err, &stepErr) {
		t.Fatalf("expected a StepError, got %T: %v", res.Err, res.Err)
	}
	if stepErr.ExitStatus != 7 || stepErr.Action != "step-b" {
		t.Errorf("StepError should carry the failing action and status, got %+v", stepErr)
	}
}

func TestCheckHonorsCheckErrorPolicy(t *testing.T) {
	check := &fakeExec{errs: map[string]error{"broken": errors.New("interpreter missing")}}
	install := &fakeExec{}
	e := newTestEngine(Options{}, check, install)

	// Default policy treats an unrunnable check as absent.
	present, err := e.Check(config.Step{Name: "a", Check: "broken", Install: []string{"x"}})
	if err != nil {
		t.Fatalf("default policy must not error: %v", err)
	}
	if present {
		t.Error("unrunnable check should report absent under the default policy")
	}

	_, err = e.Check(config.Step{
		Name:         "b",
		Check:        "broken",
		Install:      []string{"x"},
		OnCheckError: config.OnCheckErrorFail,
	})
	if err == nil {
		t.Fatal("expected error under on_check_error=fail")
	}
}

func TestEnsureCheckErrorPolicyFail(t *testing.T) {
	check := &fakeExec{errs: map[string]error{"broken": errors.New("interpreter missing")}}
	install := &fakeExec{}
	e := newTestEngine(Options{}, check, install)

	res := e.Ensure(config.Step{
		Name:         "thing",
		Check:        "broken",
		Install:      []string{"install"},
		OnCheckError: config.OnCheckErrorFail,
	})

	if res.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if res.ExitStatus != -1 {
		t.Errorf("expected exit status -1 for a check that never ran, got %d", res.ExitStatus)
	}
	if len(install.calls) != 0 {
		t.Errorf("install must not run under on_check_error=fail, ran %v", install.calls)
	}
}

func TestEnsureCheckErrorDefaultsToInstall(t *testing.T) {
	check := &fakeExec{errs: map[string]error{"broken": errors.New("interpreter missing")}}
	install := &fakeExec{}
	e := newTestEngine(Options{}, check, install)

	res := e.Ensure(config.Step{
		Name:    "thing",
		Check:   "broken",
		Install: []string{"install"},
	})

	if res.Status != StatusInstalled {
		t.Fatalf("expected installed, got %s (err: %v)", res.Status, res.Err)
	}
	if len(install.calls) != 1 {
		t.Errorf("expected one install action, ran %v", install.calls)
	}
}

func TestEnsureDryRunSkipsInstall(t *testing.T) {
	check := &fakeExec{errs: map[string]error{"check": exitError(t, 1)}}
	install := &fakeExec{}
	e := newTestEngine(Options{DryRun: true}, check, install)

	res := e.Ensure(config.Step{Name: "thing", Check: "check", Install: []string{"install"}})

	if res.Status != StatusSkipped {
		t.Fatalf("expected skipped, got %s", res.Status)
	}
	if len(install.calls) != 0 {
		t.Errorf("dry run must not install, ran %v", install.calls)
	}
}

func TestRunMissingWorkdirIsFatalBeforeAnyStep(t *testing.T) {
	check := &fakeExec{}
	install := &fakeExec{}
	e := newTestEngine(Options{WorkDir: filepath.Join(t.TempDir(), "missing")}, check, install)

	report, err := e.Run([]config.Step{{Name: "thing", Check: "check", Install: []string{"install"}}})
	if err == nil {
		t.Fatal("expected error for missing workdir")
	}
	if len(report.Results) != 0 {
		t.Errorf("no step may run with a missing workdir, got %d results", len(report.Results))
	}
	if len(check.calls) != 0 || len(install.calls) != 0 {
		t.Errorf("no command may run with a missing workdir, ran %v / %v", check.calls, install.calls)
	}
}

func TestRunStopsAtFirstFailedStep(t *testing.T) {
	check := &fakeExec{errs: map[string]error{"check-a": exitError(t, 1), "check-b": exitError(t, 1)}}
	install := &fakeExec{errs: map[string]error{"install-a": exitError(t, 2)}}
	e := newTestEngine(Options{}, check, install)

	report, err := e.Run([]config.Step{
		{Name: "a", Check: "check-a", Install: []string{"install-a"}},
		{Name: "b", Check: "check-b", Install: []string{"install-b"}},
	})
	if err == nil {
		t.Fatal("expected error from failing step")
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected run to stop after the first failure, got %d results", len(report.Results))
	}
	if report.Failed() != 1 {
		t.Errorf("expected 1 failed step, got %d", report.Failed())
	}
}

func TestRunKeepGoingAggregatesFailures(t *testing.T) {
	check := &fakeExec{errs: map[string]error{
		"check-a": exitError(t, 1),
		"check-b": exitError(t, 1),
	}}
	install := &fakeExec{errs: map[string]error{
		"install-a": exitError(t, 2),
		"install-b": exitError(t, 3),
	}}
	e := newTestEngine(Options{KeepGoing: true}, check, install)

	report, err := e.Run([]config.Step{
		{Name: "a", Check: "check-a", Install: []string{"install-a"}},
		{Name: "b", Check: "check-b", Install: []string{"install-b"}},
		{Name: "c", Check: "check-c", Install: []string{"install-c"}},
	})
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(report.Results) != 3 {
		t.Fatalf("expected all steps to run under keep-going, got %d results", len(report.Results))
	}
	if report.Failed() != 2 {
		t.Errorf("expected 2 failed steps, got %d", report.Failed())
	}
	for _, name := range []string{"a", "b"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("aggregated error should mention step %s: %v", name, err)
		}
	}
}

func TestCheckReportsPresence(t *testing.T) {
	check := &fakeExec{errs: map[string]error{"check-absent": exitError(t, 1)}}
	install := &fakeExec{}
	e := newTestEngine(Options{}, check, install)

	present, err := e.Check(config.Step{Name: "a", Check: "check-present", Install: []string{"x"}})
	if err != nil || !present {
		t.Fatalf("expected present, got %v (err: %v)", present, err)
	}

	present, err = e.Check(config.Step{Name: "b", Check: "check-absent", Install: []string{"x"}})
	if err != nil || present {
		t.Fatalf("expected absent, got %v (err: %v)", present, err)
	}

	if len(install.calls) != 0 {
		t.Errorf("check must never install, ran %v", install.calls)
	}
}
