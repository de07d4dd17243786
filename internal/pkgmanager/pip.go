package pkgmanager

import "fmt"

func init() {
	Register(pip{})
}

// pip installs Python packages. The presence check imports the module in a
// throwaway interpreter, which is the only reliable signal that the package
// is usable, not merely listed.
type pip struct{}

func (pip) Name() string { return "pip" }

func (pip) CheckCmd(pkg string) string {
	return fmt.Sprintf("python3 -c \"import %s\"", pkg)
}

func (pip) InstallCmds(pkg string) []string {
	// Old pips fail to resolve some wheels, upgrade first.
	return []string{
		"pip3 install -U pip",
		"pip3 install " + pkg,
	}
}

func (pip) NeedsSudo() bool { return false }
