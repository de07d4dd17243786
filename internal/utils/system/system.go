package system

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mflod/vconf/internal/utils/logger"
	"github.com/mflod/vconf/internal/utils/shell"
)

var (
	OsReleaseFile = "/etc/os-release"

	// execCmd is swapped out in tests.
	execCmd = shell.ExecCmd
)

// GetHostOsInfo detects the host OS name, version and architecture.
func GetHostOsInfo() (map[string]string, error) {
	log := logger.Logger()
	var hostOsInfo = map[string]string{
		"name":    "",
		"version": "",
		"arch":    "",
	}

	output, err := execCmd("uname -m", false, shell.HostDir, nil)
	if err != nil {
		return hostOsInfo, fmt.Errorf("failed to get host architecture: %w", err)
	}
	hostOsInfo["arch"] = strings.TrimSpace(output)

	if _, err := os.Stat(OsReleaseFile); err == nil {
		file, err := os.Open(OsReleaseFile)
		if err == nil {
			defer file.Close()
			scanner := bufio.NewScanner(file)

			for scanner.Scan() {
				line := scanner.Text()
				if strings.HasPrefix(line, "NAME=") {
					parts := strings.SplitN(line, "=", 2)
					if len(parts) == 2 {
						hostOsInfo["name"] = strings.Trim(strings.TrimSpace(parts[1]), "\"")
					}
				} else if strings.HasPrefix(line, "VERSION_ID=") {
					parts := strings.SplitN(line, "=", 2)
					if len(parts) == 2 {
						hostOsInfo["version"] = strings.Trim(strings.TrimSpace(parts[1]), "\"")
					}
				}
			}

			log.Debugf("Detected OS info: %s %s %s",
				hostOsInfo["name"], hostOsInfo["version"], hostOsInfo["arch"])
			return hostOsInfo, nil
		}
	}

	// No os-release, ask lsb_release instead.
	output, err = execCmd("lsb_release -si", false, shell.HostDir, nil)
	if err != nil {
		return hostOsInfo, fmt.Errorf("failed to get host OS name: %w", err)
	}
	if strings.TrimSpace(output) != "" {
		hostOsInfo["name"] = strings.TrimSpace(output)
		output, err = execCmd("lsb_release -sr", false, shell.HostDir, nil)
		if err != nil {
			return hostOsInfo, fmt.Errorf("failed to get host OS version: %w", err)
		}
		hostOsInfo["version"] = strings.TrimSpace(output)
		log.Debugf("Detected OS info: %s %s %s",
			hostOsInfo["name"], hostOsInfo["version"], hostOsInfo["arch"])
		return hostOsInfo, nil
	}

	return hostOsInfo, fmt.Errorf("failed to detect host OS info")
}

// GetHostOsPkgManager maps the detected distribution to its package manager.
func GetHostOsPkgManager() (string, error) {
	hostOsInfo, err := GetHostOsInfo()
	if err != nil {
		return "", err
	}
	return PkgManagerForOs(hostOsInfo["name"])
}

// PkgManagerForOs returns the package manager used by the named distribution.
func PkgManagerForOs(name string) (string, error) {
	switch name {
	case "Arch Linux", "Manjaro Linux":
		return "pacman", nil
	case "Ubuntu", "Debian", "Debian GNU/Linux", "eLxr":
		return "apt", nil
	case "Fedora", "CentOS", "Red Hat Enterprise Linux":
		return "yum", nil
	case "Microsoft Azure Linux", "Edge Microvisor Toolkit":
		return "tdnf", nil
	default:
		return "", fmt.Errorf("unsupported host OS: %s", name)
	}
}
