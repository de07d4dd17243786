package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Check-error policies: what to do when the presence check command itself
// cannot run (interpreter missing, malformed command). "install" treats the
// target as absent and proceeds; "fail" aborts the step.
const (
	OnCheckErrorInstall = "install"
	OnCheckErrorFail    = "fail"
)

// Step declares one dependency to converge. A step is written in exactly one
// of two forms: command form (Check + Install) or manager form
// (Manager + Package), the latter expanded by the pkgmanager registry.
type Step struct {
	Name         string   `yaml:"name" json:"name"`
	Check        string   `yaml:"check,omitempty" json:"check,omitempty"`
	Install      []string `yaml:"install,omitempty" json:"install,omitempty"`
	Manager      string   `yaml:"manager,omitempty" json:"manager,omitempty"`
	Package      string   `yaml:"package,omitempty" json:"package,omitempty"`
	Sudo         bool     `yaml:"sudo,omitempty" json:"sudo,omitempty"`
	OnCheckError string   `yaml:"on_check_error,omitempty" json:"on_check_error,omitempty"`
}

// Config is a full provisioning run definition.
type Config struct {
	Workdir   string `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	ReportDir string `yaml:"report_dir,omitempty" json:"report_dir,omitempty"`
	Steps     []Step `yaml:"steps" json:"steps"`
}

// Load reads, schema-validates and structurally validates a provisioning
// config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate enforces the structural rules the schema cannot express.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, s := range c.Steps {
		if s.Name == "" {
			return fmt.Errorf("step %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("step %q: duplicate name", s.Name)
		}
		seen[s.Name] = true

		cmdForm := s.Check != "" || len(s.Install) > 0
		mgrForm := s.Manager != "" || s.Package != ""
		switch {
		case cmdForm && mgrForm:
			return fmt.Errorf("step %q: check/install and manager/package are mutually exclusive", s.Name)
		case cmdForm:
			if s.Check == "" {
				return fmt.Errorf("step %q: check is required with install", s.Name)
			}
			if len(s.Install) == 0 {
				return fmt.Errorf("step %q: install is required with check", s.Name)
			}
		case mgrForm:
			if s.Manager == "" || s.Package == "" {
				return fmt.Errorf("step %q: manager and package go together", s.Name)
			}
		default:
			return fmt.Errorf("step %q: either check/install or manager/package is required", s.Name)
		}

		switch s.OnCheckError {
		case "", OnCheckErrorInstall, OnCheckErrorFail:
		default:
			return fmt.Errorf("step %q: invalid on_check_error %q (expected install|fail)",
				s.Name, s.OnCheckError)
		}
	}
	return nil
}

// FindStep returns the named step.
func (c *Config) FindStep(name string) (Step, bool) {
	for _, s := range c.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// Builtin returns the default provisioning config: the dependencies of the
// messenger dev VM. pgpdump backs PGP packet parsing in the application;
// haveged keeps the VM's entropy pool filled so key generation does not stall.
func Builtin() *Config {
	return &Config{
		Steps: []Step{
			{
				Name:  "python3-pgpdump",
				Check: `python3 -c "import pgpdump"`,
				Install: []string{
					"pip3 install -U pip",
					"pip3 install pgpdump",
				},
			},
			{
				Name:    "haveged",
				Manager: "system",
				Package: "haveged",
			},
		},
	}
}
