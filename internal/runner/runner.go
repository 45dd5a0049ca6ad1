// Package runner executes command descriptors in container sandboxes and
// maps declared outputs back to host paths.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/BV-BRC/tool-runner/internal/descriptor"
	"github.com/BV-BRC/tool-runner/internal/engine"
	"github.com/BV-BRC/tool-runner/internal/mount"
)

// Options configures a Runner. The zero value runs podman from PATH with a
// fresh temporary data directory.
type Options struct {
	Runtime        engine.Runtime
	EnginePath     string
	ExtraArgs      []string
	ImageOverrides map[string]string
	DataDir        string
	Environ        map[string]string

	// Executor overrides the subprocess executor; tests install a spy here.
	Executor engine.Executor
}

// Runner executes exactly one container per descriptor. Its configuration
// is snapshotted at construction and never mutated, so concurrent Execute
// calls on the same Runner are safe.
type Runner struct {
	runtime    engine.Runtime
	enginePath string
	extraArgs  []string
	overrides  map[string]string
	dataDir    string
	environ    map[string]string
	exec       engine.Executor
}

// New creates a Runner from opts, creating the data directory if needed.
func New(opts Options) (*Runner, error) {
	rt := opts.Runtime
	if rt == "" {
		rt = engine.RuntimePodman
	}
	enginePath := opts.EnginePath
	if enginePath == "" {
		enginePath = string(rt)
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dir, err := os.MkdirTemp("", "tool-runner-")
		if err != nil {
			return nil, err
		}
		dataDir = dir
	} else if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	executor := opts.Executor
	if executor == nil {
		executor = engine.ProcessExecutor{}
	}

	return &Runner{
		runtime:    rt,
		enginePath: enginePath,
		extraArgs:  append([]string(nil), opts.ExtraArgs...),
		overrides:  copyMap(opts.ImageOverrides),
		dataDir:    dataDir,
		environ:    copyMap(opts.Environ),
		exec:       executor,
	}, nil
}

// DataDir returns the host scratch root under which per-invocation
// directories are created.
func (r *Runner) DataDir() string { return r.dataDir }

// ExecutionError reports a container process that ran and exited nonzero.
// It carries the full assembled argv and both captured streams for
// diagnostic display; retry policy belongs to the caller.
type ExecutionError struct {
	ExitCode int
	Argv     []string
	Stdout   string
	Stderr   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("container exited with code %d: %s", e.ExitCode, strings.Join(e.Argv, " "))
}

// Execute runs one descriptor and returns the declared outputs resolved to
// host paths. All per-invocation state (mounts, translation table, scratch
// directory) is owned by this call and shared with nothing.
func (r *Runner) Execute(ctx context.Context, inv *descriptor.Invocation) (map[string]string, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	scratch := filepath.Join(r.dataDir, uuid.NewString())
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return nil, err
	}

	ev, err := descriptor.NewEvaluator(inv.Params)
	if err != nil {
		return nil, err
	}

	mapper := mount.NewMapper(scratch)

	// Declared outputs first, so argument tokens can reference them.
	type declaredOutput struct {
		id            string
		optional      bool
		containerPath string
	}
	outputs := make([]declaredOutput, 0, len(inv.Outputs))
	containerByID := make(map[string]string, len(inv.Outputs))
	for _, out := range inv.Outputs {
		rel, err := ev.Interpolate(out.Path)
		if err != nil {
			return nil, err
		}
		containerPath, err := mapper.OutputPath(rel)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, declaredOutput{
			id:            out.ID,
			optional:      out.Optional,
			containerPath: containerPath,
		})
		containerByID[out.ID] = containerPath
	}

	cargs := make([]string, 0, len(inv.Args))
	for _, a := range inv.Args {
		switch {
		case a.OutputRef != "":
			cargs = append(cargs, containerByID[a.OutputRef])
		case a.File:
			containerPath, err := mapper.InputFile(a.Value)
			if err != nil {
				return nil, err
			}
			cargs = append(cargs, containerPath)
		default:
			cargs = append(cargs, a.Value)
		}
	}

	workDir := inv.WorkDir
	if workDir == "" {
		if root, ok := mapper.ScratchRoot(); ok {
			workDir = root
		}
	}

	image := engine.ResolveImage(inv.Image, r.overrides, r.runtime)

	argv, err := engine.Command{
		Runtime:    r.runtime,
		EnginePath: r.enginePath,
		ExtraArgs:  r.extraArgs,
		Image:      image,
		Mounts:     mapper.Entries(),
		Env:        r.environ,
		WorkDir:    workDir,
		Argv:       cargs,
	}.Assemble()
	if err != nil {
		return nil, err
	}

	result, err := r.exec.Run(ctx, argv)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, &ExecutionError{
			ExitCode: result.ExitCode,
			Argv:     result.Argv,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
		}
	}

	resolved := make(map[string]string, len(outputs))
	table := mapper.Table()
	for _, out := range outputs {
		hostPath, ok := table.ToHost(out.containerPath)
		if !ok {
			return nil, fmt.Errorf("runner: no host mapping for output %q", out.id)
		}
		if _, err := os.Stat(hostPath); err != nil {
			if os.IsNotExist(err) {
				if out.optional {
					continue
				}
				return nil, fmt.Errorf("runner: declared output %q not produced at %s", out.id, hostPath)
			}
			return nil, err
		}
		resolved[out.id] = hostPath
	}
	return resolved, nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
