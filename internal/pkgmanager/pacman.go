package pkgmanager

func init() {
	Register(pacman{})
}

type pacman struct{}

func (pacman) Name() string { return "pacman" }

func (pacman) CheckCmd(pkg string) string {
	return "pacman -Qi " + pkg
}

func (pacman) InstallCmds(pkg string) []string {
	return []string{"pacman -S --noconfirm " + pkg}
}

func (pacman) NeedsSudo() bool { return true }
