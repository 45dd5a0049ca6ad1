package engine

import (
	"reflect"
	"strings"
	"testing"

	"github.com/BV-BRC/tool-runner/internal/mount"
)

func exampleCommand(rt Runtime) Command {
	return Command{
		Runtime:    rt,
		EnginePath: string(rt),
		Image:      "example/tool:1.0",
		Mounts: []mount.Entry{
			{HostPath: "/scratch", ContainerPath: "/mnt/out0", Mode: mount.ReadWrite},
			{HostPath: "/data", ContainerPath: "/mnt/in0", Mode: mount.ReadOnly},
		},
		Env: map[string]string{
			"ZVAR": "z",
			"AVAR": "a",
		},
		WorkDir: "/mnt/out0",
		Argv:    []string{"tool", "/mnt/in0/in.txt", "/mnt/out0/out.txt"},
	}
}

func TestAssemblePodman(t *testing.T) {
	argv, err := exampleCommand(RuntimePodman).Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	want := []string{
		"podman", "run", "--rm", "--userns=keep-id",
		"-v", "/data:/mnt/in0:ro",
		"-v", "/scratch:/mnt/out0:rw",
		"-e", "AVAR=a",
		"-e", "ZVAR=z",
		"-w", "/mnt/out0",
		"example/tool:1.0",
		"tool", "/mnt/in0/in.txt", "/mnt/out0/out.txt",
	}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %q\nwant  %q", argv, want)
	}
}

func TestAssembleApptainer(t *testing.T) {
	argv, err := exampleCommand(RuntimeApptainer).Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	want := []string{
		"apptainer", "exec", "--cleanenv",
		"--bind", "/data:/mnt/in0:ro",
		"--bind", "/scratch:/mnt/out0:rw",
		"--env", "AVAR=a",
		"--env", "ZVAR=z",
		"--pwd", "/mnt/out0",
		"example/tool:1.0",
		"tool", "/mnt/in0/in.txt", "/mnt/out0/out.txt",
	}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %q\nwant  %q", argv, want)
	}
}

func TestAssembleDeterministic(t *testing.T) {
	// Mounts and env arrive unordered; repeated assembly must be
	// byte-identical.
	cmd := exampleCommand(RuntimePodman)
	first, err := cmd.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := cmd.Assemble()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("assembly not deterministic:\n%q\n%q", first, again)
		}
	}
}

func TestAssembleExtraArgs(t *testing.T) {
	cmd := exampleCommand(RuntimePodman)
	cmd.ExtraArgs = []string{"--network", "none"}
	argv, err := cmd.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(argv, " ")
	if !strings.Contains(joined, "run --rm --userns=keep-id --network none -v ") {
		t.Errorf("extra args not placed after subcommand: %q", joined)
	}
}

func TestAssembleUnsupportedRuntime(t *testing.T) {
	cmd := exampleCommand("docker")
	if _, err := cmd.Assemble(); err == nil {
		t.Error("expected error for unsupported runtime")
	}
}

func TestAssembleRejectsIllegalMountPath(t *testing.T) {
	cmd := exampleCommand(RuntimePodman)
	cmd.Mounts = []mount.Entry{
		{HostPath: "/da:ta", ContainerPath: "/mnt/in0", Mode: mount.ReadOnly},
	}
	if _, err := cmd.Assemble(); err == nil {
		t.Error("expected error for illegal mount path")
	}
}

func TestResolveImage(t *testing.T) {
	overrides := map[string]string{
		"biocontainers/bwa:0.7.17": "registry.local/bwa:patched",
	}

	testCases := []struct {
		name    string
		logical string
		runtime Runtime
		want    string
	}{
		{
			name:    "override hit",
			logical: "biocontainers/bwa:0.7.17",
			runtime: RuntimePodman,
			want:    "registry.local/bwa:patched",
		},
		{
			name:    "override miss",
			logical: "python:3.11",
			runtime: RuntimePodman,
			want:    "python:3.11",
		},
		{
			name:    "apptainer adds docker scheme",
			logical: "python:3.11",
			runtime: RuntimeApptainer,
			want:    "docker://python:3.11",
		},
		{
			name:    "apptainer keeps sif path",
			logical: "/containers/bwa.sif",
			runtime: RuntimeApptainer,
			want:    "/containers/bwa.sif",
		},
		{
			name:    "apptainer keeps explicit uri",
			logical: "library://sylabs/examples/lolcow:latest",
			runtime: RuntimeApptainer,
			want:    "library://sylabs/examples/lolcow:latest",
		},
		{
			name:    "override applied before normalization",
			logical: "biocontainers/bwa:0.7.17",
			runtime: RuntimeApptainer,
			want:    "docker://registry.local/bwa:patched",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveImage(tc.logical, overrides, tc.runtime)
			if got != tc.want {
				t.Errorf("ResolveImage(%q) = %q, want %q", tc.logical, got, tc.want)
			}
		})
	}
}
