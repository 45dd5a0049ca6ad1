package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Result is the raw outcome of one engine subprocess: exit code, fully
// captured streams, and the argv that was run, for error reporting.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Argv     []string
}

// Executor runs an assembled engine command and captures its output.
type Executor interface {
	Run(ctx context.Context, argv []string) (*Result, error)
}

// ExecutableNotFoundError reports a container engine binary that could not
// be located or executed.
type ExecutableNotFoundError struct {
	Path string
	Err  error
}

func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf("engine executable not found: %q", e.Path)
}

func (e *ExecutableNotFoundError) Unwrap() error { return e.Err }

// ProcessExecutor invokes the engine CLI as a blocking subprocess.
type ProcessExecutor struct{}

// passthroughEnv is what the engine process itself gets to see; the
// container environment is set entirely via the assembled flags.
var passthroughEnv = []string{"PATH", "HOME", "USER", "TMPDIR", "XDG_RUNTIME_DIR"}

// Run spawns argv[0] with the remaining arguments, waits for it to finish
// and captures both streams in full. A nonzero exit is not an error here;
// exit-code interpretation belongs to the caller.
func (ProcessExecutor) Run(ctx context.Context, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("engine: empty command")
	}
	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, &ExecutableNotFoundError{Path: argv[0], Err: err}
	}

	cmd := exec.CommandContext(ctx, bin, argv[1:]...)
	cmd.Env = minimalEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err != nil {
		// A caller-level timeout is a cancellation, not a normal nonzero
		// exit.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				Argv:     argv,
			}, nil
		}
		return nil, err
	}

	return &Result{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Argv:     argv,
	}, nil
}

func minimalEnv() []string {
	env := make([]string, 0, len(passthroughEnv))
	for _, k := range passthroughEnv {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}
