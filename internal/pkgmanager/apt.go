package pkgmanager

func init() {
	Register(apt{})
}

type apt struct{}

func (apt) Name() string { return "apt" }

func (apt) CheckCmd(pkg string) string {
	return "dpkg -s " + pkg
}

func (apt) InstallCmds(pkg string) []string {
	return []string{"apt-get install -y " + pkg}
}

func (apt) NeedsSudo() bool { return true }
