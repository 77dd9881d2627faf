package scanner

import (
	"fmt"
	"path/filepath"

	"github.com/docker/docker/client"

	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/model"
)

// Output tells a scanner which report types it refreshes and which file
// its tool writes.
type Output struct {
	ReportTypes []string
	File        string
}

// Build wires both analyzers for the configured runtime. The returned
// close func releases the docker client, if one was opened.
func Build(cfg Config, reportsDir string, outputs map[model.JobType]Output, logger logging.Logger) (*Set, func() error, error) {
	absReports, err := filepath.Abs(reportsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve reports dir: %w", err)
	}

	var (
		docker    *client.Client
		closeFunc = func() error { return nil }
	)
	if cfg.Runtime == RuntimeDocker {
		docker, err = NewDockerClient()
		if err != nil {
			return nil, nil, fmt.Errorf("docker client: %w", err)
		}
		closeFunc = docker.Close
	}

	runnerFor := func(image, workDir string, env []string) (Runner, string, error) {
		switch cfg.Runtime {
		case RuntimeDocker:
			r, err := NewDockerRunner(docker, image, absReports, cfg.Docker, env, logger)
			return r, containerReportsDir, err
		case RuntimeExec, "":
			return &CommandRunner{WorkDir: workDir, Env: env}, absReports, nil
		default:
			return nil, "", fmt.Errorf("unknown scanner runtime %q", cfg.Runtime)
		}
	}

	set := NewSet()

	sastOut := outputs[model.JobTypeSAST]
	runner, dir, err := runnerFor(cfg.SAST.Image, cfg.SAST.WorkDir, cfg.SAST.Env)
	if err != nil {
		closeFunc()
		return nil, nil, err
	}
	static, err := NewStaticAnalyzer(cfg.SAST, sastOut.ReportTypes, Options{
		Runner:         runner,
		MaxOutputBytes: cfg.MaxOutputBytes,
		Vars:           map[string]string{"output": filepath.Join(dir, sastOut.File), "reports_dir": dir},
	})
	if err != nil {
		closeFunc()
		return nil, nil, err
	}
	set.Register(model.JobTypeSAST, static)

	dastOut := outputs[model.JobTypeDAST]
	runner, dir, err = runnerFor(cfg.DAST.Image, cfg.DAST.WorkDir, cfg.DAST.Env)
	if err != nil {
		closeFunc()
		return nil, nil, err
	}
	dynamic, err := NewDynamicAnalyzer(cfg.DAST, dastOut.ReportTypes, Options{
		Runner:         runner,
		MaxOutputBytes: cfg.MaxOutputBytes,
		Vars:           map[string]string{"output": filepath.Join(dir, dastOut.File), "reports_dir": dir},
	})
	if err != nil {
		closeFunc()
		return nil, nil, err
	}
	set.Register(model.JobTypeDAST, dynamic)

	logger.Info("scanners configured",
		logging.Field{Key: "runtime", Value: cfg.Runtime},
		logging.Field{Key: "reports_dir", Value: absReports})
	return set, closeFunc, nil
}
