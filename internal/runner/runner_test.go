package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BV-BRC/tool-runner/internal/descriptor"
	"github.com/BV-BRC/tool-runner/internal/engine"
	"github.com/BV-BRC/tool-runner/internal/mount"
)

// spyExecutor records invocations instead of spawning the engine. onRun,
// when set, can inspect the argv and create expected output files on the
// host side of the read-write mounts.
type spyExecutor struct {
	calls    [][]string
	exitCode int
	stdout   string
	stderr   string
	onRun    func(argv []string)
}

func (s *spyExecutor) Run(ctx context.Context, argv []string) (*engine.Result, error) {
	s.calls = append(s.calls, argv)
	if s.onRun != nil {
		s.onRun(argv)
	}
	return &engine.Result{
		ExitCode: s.exitCode,
		Stdout:   s.stdout,
		Stderr:   s.stderr,
		Argv:     argv,
	}, nil
}

// hostDirForMount finds the host side of the mount whose container root is
// containerRoot by scanning -v specs in the assembled argv.
func hostDirForMount(argv []string, containerRoot string) string {
	for _, tok := range argv {
		if i := strings.Index(tok, ":"+containerRoot+":"); i > 0 {
			return tok[:i]
		}
	}
	return ""
}

func newTestRunner(t *testing.T, spy *spyExecutor) *Runner {
	t.Helper()
	r, err := New(Options{
		EnginePath: "podman",
		DataDir:    t.TempDir(),
		Environ:    map[string]string{"TOOL_THREADS": "4"},
		Executor:   spy,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestExecuteResolvesOutputs(t *testing.T) {
	inDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(inDir, "in.txt"), []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	spy := &spyExecutor{
		onRun: func(argv []string) {
			// Simulate the tool writing its declared output into the
			// read-write mount.
			hostDir := hostDirForMount(argv, "/mnt/out0")
			if hostDir == "" {
				t.Fatal("no read-write mount found in argv")
			}
			if err := os.WriteFile(filepath.Join(hostDir, "out.txt"), []byte("result"), 0644); err != nil {
				t.Fatal(err)
			}
		},
	}
	r := newTestRunner(t, spy)

	inv := &descriptor.Invocation{
		Tool:  "tool",
		Image: "example/tool:1.0",
		Args: []descriptor.Arg{
			{Value: "tool"},
			{Value: filepath.Join(inDir, "in.txt"), File: true},
			{OutputRef: "result"},
		},
		Outputs: []descriptor.Output{{ID: "result", Path: "out.txt"}},
	}

	outputs, err := r.Execute(context.Background(), inv)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	hostPath, ok := outputs["result"]
	if !ok {
		t.Fatalf("output %q not resolved: %v", "result", outputs)
	}
	if filepath.Base(hostPath) != "out.txt" {
		t.Errorf("resolved output = %q", hostPath)
	}
	if _, err := os.Stat(hostPath); err != nil {
		t.Errorf("resolved output does not exist: %v", err)
	}

	if len(spy.calls) != 1 {
		t.Fatalf("expected one engine invocation, got %d", len(spy.calls))
	}
	argv := spy.calls[0]
	joined := strings.Join(argv, " ")
	for _, want := range []string{
		"podman run --rm --userns=keep-id",
		":/mnt/in0:ro",
		":/mnt/out0",
		"-e TOOL_THREADS=4",
		"-w /mnt/out0",
		"example/tool:1.0 tool /mnt/in0/in.txt /mnt/out0/out.txt",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("argv missing %q:\n%s", want, joined)
		}
	}
}

func TestExecuteNonzeroExit(t *testing.T) {
	spy := &spyExecutor{exitCode: 2, stderr: "boom"}
	r := newTestRunner(t, spy)

	inv := &descriptor.Invocation{
		Image: "example/tool:1.0",
		Args:  []descriptor.Arg{{Value: "tool"}},
	}

	_, err := r.Execute(context.Background(), inv)
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %T: %v", err, err)
	}
	if execErr.ExitCode != 2 {
		t.Errorf("exit code = %d, want 2", execErr.ExitCode)
	}
	if execErr.Stderr != "boom" {
		t.Errorf("stderr = %q", execErr.Stderr)
	}
	if len(execErr.Argv) == 0 || execErr.Argv[0] != "podman" {
		t.Errorf("argv not carried: %q", execErr.Argv)
	}
}

func TestExecuteMissingInputSkipsSubprocess(t *testing.T) {
	spy := &spyExecutor{}
	r := newTestRunner(t, spy)

	inv := &descriptor.Invocation{
		Image: "example/tool:1.0",
		Args: []descriptor.Arg{
			{Value: "tool"},
			{Value: filepath.Join(t.TempDir(), "missing.txt"), File: true},
		},
	}

	_, err := r.Execute(context.Background(), inv)
	var pathErr *mount.PathResolutionError
	if !errors.As(err, &pathErr) {
		t.Fatalf("expected PathResolutionError, got %T: %v", err, err)
	}
	if len(spy.calls) != 0 {
		t.Errorf("subprocess was spawned %d times, want 0", len(spy.calls))
	}
}

func TestExecuteMissingDeclaredOutput(t *testing.T) {
	spy := &spyExecutor{} // zero exit, but the tool writes nothing
	r := newTestRunner(t, spy)

	inv := &descriptor.Invocation{
		Image:   "example/tool:1.0",
		Args:    []descriptor.Arg{{Value: "tool"}},
		Outputs: []descriptor.Output{{ID: "result", Path: "out.txt"}},
	}

	_, err := r.Execute(context.Background(), inv)
	if err == nil || !strings.Contains(err.Error(), "not produced") {
		t.Errorf("expected missing-output error, got %v", err)
	}
}

func TestExecuteOptionalOutputMayBeAbsent(t *testing.T) {
	spy := &spyExecutor{}
	r := newTestRunner(t, spy)

	inv := &descriptor.Invocation{
		Image:   "example/tool:1.0",
		Args:    []descriptor.Arg{{Value: "tool"}},
		Outputs: []descriptor.Output{{ID: "log", Path: "tool.log", Optional: true}},
	}

	outputs, err := r.Execute(context.Background(), inv)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(outputs) != 0 {
		t.Errorf("outputs = %v, want none", outputs)
	}
}

func TestExecuteInterpolatesOutputTemplates(t *testing.T) {
	spy := &spyExecutor{
		onRun: func(argv []string) {
			hostDir := hostDirForMount(argv, "/mnt/out0")
			if hostDir == "" {
				t.Fatal("no read-write mount found in argv")
			}
			if err := os.WriteFile(filepath.Join(hostDir, "sample01.sam"), nil, 0644); err != nil {
				t.Fatal(err)
			}
		},
	}
	r := newTestRunner(t, spy)

	inv := &descriptor.Invocation{
		Image:   "example/tool:1.0",
		Args:    []descriptor.Arg{{Value: "tool"}, {OutputRef: "aln"}},
		Params:  map[string]interface{}{"sample": "sample01"},
		Outputs: []descriptor.Output{{ID: "aln", Path: "$(params.sample).sam"}},
	}

	outputs, err := r.Execute(context.Background(), inv)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if filepath.Base(outputs["aln"]) != "sample01.sam" {
		t.Errorf("outputs = %v", outputs)
	}
}

func TestExecuteUsesFreshScratchPerInvocation(t *testing.T) {
	spy := &spyExecutor{
		onRun: func(argv []string) {
			hostDir := hostDirForMount(argv, "/mnt/out0")
			if hostDir != "" {
				os.WriteFile(filepath.Join(hostDir, "out.txt"), nil, 0644)
			}
		},
	}
	r := newTestRunner(t, spy)

	inv := func() *descriptor.Invocation {
		return &descriptor.Invocation{
			Image:   "example/tool:1.0",
			Args:    []descriptor.Arg{{Value: "tool"}, {OutputRef: "result"}},
			Outputs: []descriptor.Output{{ID: "result", Path: "out.txt"}},
		}
	}

	first, err := r.Execute(context.Background(), inv())
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Execute(context.Background(), inv())
	if err != nil {
		t.Fatal(err)
	}
	if first["result"] == second["result"] {
		t.Errorf("invocations shared a scratch directory: %q", first["result"])
	}
}

func TestExecuteValidatesDescriptor(t *testing.T) {
	spy := &spyExecutor{}
	r := newTestRunner(t, spy)

	_, err := r.Execute(context.Background(), &descriptor.Invocation{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(spy.calls) != 0 {
		t.Errorf("subprocess was spawned for invalid descriptor")
	}
}
