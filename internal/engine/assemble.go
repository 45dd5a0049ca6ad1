package engine

import (
	"fmt"
	"sort"

	"github.com/BV-BRC/tool-runner/internal/mount"
)

// Command holds everything needed to assemble one engine invocation.
type Command struct {
	Runtime    Runtime
	EnginePath string
	ExtraArgs  []string
	Image      string
	Mounts     []mount.Entry
	Env        map[string]string
	WorkDir    string
	Argv       []string // container-relative executable and arguments
}

// Assemble builds the full engine argument vector. It is a pure function
// and deterministic: mounts are ordered by container path and environment
// variables by name, so identical inputs yield byte-identical argv.
func (c Command) Assemble() ([]string, error) {
	switch c.Runtime {
	case RuntimePodman:
		return c.assemblePodman()
	case RuntimeApptainer:
		return c.assembleApptainer()
	default:
		return nil, fmt.Errorf("engine: unsupported runtime %q", c.Runtime)
	}
}

func (c Command) assemblePodman() ([]string, error) {
	// keep-id maps the invoking user into the container so files written
	// to read-write mounts are owned by the host user.
	args := []string{c.EnginePath, "run", "--rm", "--userns=keep-id"}
	args = append(args, c.ExtraArgs...)

	for _, m := range sortedMounts(c.Mounts) {
		spec, err := m.Spec()
		if err != nil {
			return nil, err
		}
		args = append(args, "-v", spec)
	}
	for _, k := range sortedKeys(c.Env) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, c.Env[k]))
	}
	if c.WorkDir != "" {
		args = append(args, "-w", c.WorkDir)
	}
	args = append(args, c.Image)
	args = append(args, c.Argv...)
	return args, nil
}

func (c Command) assembleApptainer() ([]string, error) {
	// Apptainer already runs as the invoking user; --cleanenv keeps the
	// container environment to what is passed explicitly.
	args := []string{c.EnginePath, "exec", "--cleanenv"}
	args = append(args, c.ExtraArgs...)

	for _, m := range sortedMounts(c.Mounts) {
		spec, err := m.Spec()
		if err != nil {
			return nil, err
		}
		args = append(args, "--bind", spec)
	}
	for _, k := range sortedKeys(c.Env) {
		args = append(args, "--env", fmt.Sprintf("%s=%s", k, c.Env[k]))
	}
	if c.WorkDir != "" {
		args = append(args, "--pwd", c.WorkDir)
	}
	args = append(args, c.Image)
	args = append(args, c.Argv...)
	return args, nil
}

func sortedMounts(mounts []mount.Entry) []mount.Entry {
	out := make([]mount.Entry, len(mounts))
	copy(out, mounts)
	sort.Slice(out, func(i, j int) bool {
		return out[i].ContainerPath < out[j].ContainerPath
	})
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
