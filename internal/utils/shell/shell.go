package shell

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/mflod/vconf/internal/utils/logger"
)

// HostDir means "run in the invoking process's working directory".
var HostDir string = ""

// GetOSEnvirons returns the system environment variables as a map.
func GetOSEnvirons() map[string]string {
	environ := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			environ[parts[0]] = parts[1]
		}
	}
	return environ
}

// GetOSProxyEnvirons retrieves HTTP and HTTPS proxy environment variables,
// which sudo strips unless they are re-stated on the command line.
func GetOSProxyEnvirons() map[string]string {
	proxyEnv := make(map[string]string)
	for key, value := range GetOSEnvirons() {
		if strings.Contains(strings.ToLower(key), "http_proxy") ||
			strings.Contains(strings.ToLower(key), "https_proxy") {
			proxyEnv[key] = value
		}
	}
	return proxyEnv
}

// getShell returns the preferred shell, falling back to /bin/sh if bash is not available
func getShell() string {
	shells := []string{"/bin/bash", "/usr/bin/bash", "/bin/sh"}
	for _, shell := range shells {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	return "/bin/sh" // fallback
}

// IsCommandExist checks if a command exists on the host
func IsCommandExist(cmd string) bool {
	shell := getShell()
	output, _ := exec.Command(shell, "-c", "command -v "+cmd).Output()
	return len(bytes.TrimSpace(output)) > 0
}

// newCmd prepares an exec.Cmd for cmdStr. A nonexistent workDir is an
// error before anything executes: installation must never start in the
// wrong directory.
func newCmd(cmdStr string, sudo bool, workDir string, envVal []string) (*exec.Cmd, error) {
	log := logger.Logger()

	fullCmdStr := cmdStr
	if sudo {
		envValStr := ""
		for _, env := range envVal {
			envValStr += env + " "
		}
		for key, value := range GetOSProxyEnvirons() {
			envValStr += key + "=" + value + " "
		}
		fullCmdStr = "sudo " + envValStr + cmdStr
	}

	cmd := exec.Command(getShell(), "-c", fullCmdStr)
	if !sudo && len(envVal) > 0 {
		cmd.Env = append(os.Environ(), envVal...)
	}

	if workDir != HostDir {
		if _, err := os.Stat(workDir); err != nil {
			return nil, fmt.Errorf("working directory %s is not accessible: %w", workDir, err)
		}
		cmd.Dir = workDir
		log.Debugf("Exec in %s: [%s]", workDir, fullCmdStr)
	} else {
		log.Debugf("Exec: [%s]", fullCmdStr)
	}

	return cmd, nil
}

// ExecCmd executes a command and returns its combined output
func ExecCmd(cmdStr string, sudo bool, workDir string, envVal []string) (string, error) {
	log := logger.Logger()
	cmd, err := newCmd(cmdStr, sudo, workDir, envVal)
	if err != nil {
		return "", err
	}

	output, err := cmd.CombinedOutput()
	outputStr := string(output)

	if err != nil {
		if outputStr != "" {
			log.Infof(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s: %w", cmdStr, err)
	}
	if outputStr != "" {
		log.Debugf(outputStr)
	}
	return outputStr, nil
}

// maxStreamLine bounds a single streamed output line. Package managers can
// emit lines well past bufio.Scanner's 64K default.
const maxStreamLine = 1024 * 1024

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxStreamLine)
	return scanner
}

// ExecCmdWithStream executes a command and streams its output to the log
// line by line, for long-running installer commands.
func ExecCmdWithStream(cmdStr string, sudo bool, workDir string, envVal []string) (string, error) {
	var outputStr string
	log := logger.Logger()

	cmd, err := newCmd(cmdStr, sudo, workDir, envVal)
	if err != nil {
		return "", err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe for command %s: %w", cmdStr, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe for command %s: %w", cmdStr, err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", cmdStr, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := newLineScanner(stdout)
		for scanner.Scan() {
			str := scanner.Text()
			if str != "" {
				outputStr += str + "\n"
				log.Infof(str)
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warnf("Reading stdout of %s: %v", cmdStr, err)
		}
	}()

	go func() {
		defer wg.Done()
		scanner := newLineScanner(stderr)
		for scanner.Scan() {
			str := scanner.Text()
			if str != "" {
				log.Infof(str)
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warnf("Reading stderr of %s: %v", cmdStr, err)
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return outputStr, fmt.Errorf("failed to exec %s: %w", cmdStr, err)
	}

	return outputStr, nil
}

// ExitStatus extracts the child process exit code from an ExecCmd error.
// It returns -1 when the command never ran (shell missing, bad workDir)
// and 0 for a nil error.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
