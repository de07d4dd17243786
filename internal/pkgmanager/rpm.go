package pkgmanager

func init() {
	Register(rpmManager{name: "yum"})
	Register(rpmManager{name: "tdnf"})
}

// rpmManager covers the rpm family: yum on Fedora/RHEL, tdnf on Azure Linux
// and the Edge Microvisor Toolkit. The query side is plain rpm either way.
type rpmManager struct {
	name string
}

func (m rpmManager) Name() string { return m.name }

func (m rpmManager) CheckCmd(pkg string) string {
	return "rpm -q " + pkg
}

func (m rpmManager) InstallCmds(pkg string) []string {
	return []string{m.name + " install -y " + pkg}
}

func (m rpmManager) NeedsSudo() bool { return true }
