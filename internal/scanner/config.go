package scanner

const (
	RuntimeExec   = "exec"
	RuntimeDocker = "docker"
)

// Config selects the runtime and the command lines for each tool.
//
// Command templates may use {target}, {mode}, {job_id}, {output} and
// {reports_dir}; they are substituted per argument, never through a shell.
type Config struct {
	Runtime string `yaml:"runtime"`

	// MaxOutputBytes caps each of stdout and stderr.
	MaxOutputBytes int `yaml:"max_output_bytes"`

	SAST   StaticConfig  `yaml:"sast"`
	DAST   DynamicConfig `yaml:"dast"`
	Docker DockerConfig  `yaml:"docker"`
}

type StaticConfig struct {
	Command       []string `yaml:"command"`
	DefaultTarget string   `yaml:"default_target"`
	Image         string   `yaml:"image"`
	WorkDir       string   `yaml:"work_dir"`
	Env           []string `yaml:"env"`
}

type DynamicConfig struct {
	Simple  []string `yaml:"simple"`
	Full    []string `yaml:"full"`
	Image   string   `yaml:"image"`
	WorkDir string   `yaml:"work_dir"`
	Env     []string `yaml:"env"`
}

// DockerConfig holds sandbox limits for the container runtime.
type DockerConfig struct {
	User        string `yaml:"user"`
	MemoryBytes int64  `yaml:"memory_bytes"`
	NanoCPUs    int64  `yaml:"nano_cpus"`
	PidsLimit   int64  `yaml:"pids_limit"`
	NetworkMode string `yaml:"network_mode"`
}

// DefaultConfig wraps the bundled scripts and runs them as local processes.
func DefaultConfig() Config {
	return Config{
		Runtime:        RuntimeExec,
		MaxOutputBytes: 10 << 20,
		SAST: StaticConfig{
			Command:       []string{"./scripts/run-sast.sh", "{target}", "{output}"},
			DefaultTarget: ".",
			Image:         "semgrep/semgrep:latest",
		},
		DAST: DynamicConfig{
			Simple: []string{"./scripts/run-dast.sh", "simple", "{target}", "{output}"},
			Full:   []string{"./scripts/run-dast.sh", "full", "{target}", "{output}"},
			Image:  "ghcr.io/zaproxy/zaproxy:stable",
		},
		Docker: DockerConfig{
			User:        "1000:1000",
			MemoryBytes: 1 << 30,
			NanoCPUs:    1_000_000_000,
			PidsLimit:   256,
			NetworkMode: "bridge",
		},
	}
}
