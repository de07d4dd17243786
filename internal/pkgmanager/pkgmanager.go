package pkgmanager

import (
	"fmt"
	"sort"

	"github.com/mflod/vconf/internal/config"
	"github.com/mflod/vconf/internal/utils/shell"
	"github.com/mflod/vconf/internal/utils/system"
)

// Manager knows how to query and install one package through a specific
// package manager. Commands are returned as strings and executed by the
// provisioning engine, so managers stay side-effect free and testable.
type Manager interface {
	// Name is the registry key, e.g. "pacman".
	Name() string

	// CheckCmd returns a command that exits 0 iff pkg is installed.
	CheckCmd(pkg string) string

	// InstallCmds returns the ordered commands that install pkg.
	InstallCmds(pkg string) []string

	// NeedsSudo reports whether the install commands require elevation.
	NeedsSudo() bool
}

var managers = make(map[string]Manager)

// Register makes a Manager available under its Name().
func Register(m Manager) {
	managers[m.Name()] = m
}

// Get returns the Manager by name.
func Get(name string) (Manager, bool) {
	m, ok := managers[name]
	return m, ok
}

// Names returns the registered manager names, sorted.
func Names() []string {
	names := make([]string, 0, len(managers))
	for name := range managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect returns the Manager matching the host OS.
func Detect() (Manager, error) {
	name, err := system.GetHostOsPkgManager()
	if err != nil {
		return nil, err
	}
	m, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("package manager %s is not supported", name)
	}
	if !shell.IsCommandExist(name) {
		return nil, fmt.Errorf("package manager %s not found on PATH", name)
	}
	return m, nil
}

// Expand turns a manager-form step into a concrete command-form step.
// Command-form steps pass through unchanged. The manager name "system"
// means the host OS default.
func Expand(s config.Step) (config.Step, error) {
	if s.Manager == "" {
		return s, nil
	}

	var (
		m   Manager
		ok  bool
		err error
	)
	if s.Manager == "system" {
		m, err = Detect()
		if err != nil {
			return s, fmt.Errorf("step %q: %w", s.Name, err)
		}
	} else if m, ok = Get(s.Manager); !ok {
		return s, fmt.Errorf("step %q: unknown package manager %q", s.Name, s.Manager)
	}

	out := s
	out.Manager = ""
	out.Package = ""
	out.Check = m.CheckCmd(s.Package)
	out.Install = m.InstallCmds(s.Package)
	out.Sudo = s.Sudo || m.NeedsSudo()
	return out, nil
}
