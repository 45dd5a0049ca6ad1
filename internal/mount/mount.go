// Package mount computes the bind-mount set for a single container
// invocation and maintains the translation table between host paths and
// their in-container mount points.
package mount

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Mode is the access mode of a bind mount.
type Mode string

const (
	ReadOnly  Mode = "ro"
	ReadWrite Mode = "rw"
)

// Entry is a single bind mount: a host directory exposed inside the
// container at ContainerPath.
type Entry struct {
	HostPath      string
	ContainerPath string
	Mode          Mode
}

// Spec returns the engine mount specification "host:container:mode".
// Paths containing characters the engine CLI cannot escape are rejected.
func (e Entry) Spec() (string, error) {
	for _, c := range e.HostPath + e.ContainerPath {
		if c == ',' || c == ':' || c == '\\' {
			return "", fmt.Errorf("mount: illegal character %q in path", c)
		}
	}
	return e.HostPath + ":" + e.ContainerPath + ":" + string(e.Mode), nil
}

// PathResolutionError reports a declared input path that does not exist on
// the host at mount-computation time.
type PathResolutionError struct {
	Path string
	Err  error
}

func (e *PathResolutionError) Error() string {
	return fmt.Sprintf("input path not found: %q", e.Path)
}

func (e *PathResolutionError) Unwrap() error { return e.Err }

// Mapper accumulates the mount set for one invocation. Each invocation
// builds its own Mapper; it is not safe for concurrent use.
type Mapper struct {
	scratchDir string
	byHost     map[string]*Entry // canonical host dir -> entry
	table      *Table
	inputNext  int
	outputNext int
}

// NewMapper creates a Mapper rooted at the invocation's host scratch
// directory. Output templates resolve relative to scratchDir.
func NewMapper(scratchDir string) *Mapper {
	return &Mapper{
		scratchDir: scratchDir,
		byHost:     make(map[string]*Entry),
		table:      newTable(),
	}
}

// InputFile registers a host input file and returns the path at which it
// will be visible inside the container. The containing directory is mounted
// read-only; files sharing a directory share one mount.
func (m *Mapper) InputFile(hostPath string) (string, error) {
	canonical, err := canonicalize(hostPath)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(canonical)
	entry, ok := m.byHost[dir]
	if !ok {
		root := fmt.Sprintf("/mnt/in%d", m.inputNext)
		m.inputNext++
		entry = m.register(dir, root, ReadOnly)
	}
	return path.Join(entry.ContainerPath, filepath.Base(canonical)), nil
}

// OutputPath registers a declared output template, relative to the scratch
// directory, and returns its container path. The containing directory is
// created if absent and mounted read-write.
func (m *Mapper) OutputPath(template string) (string, error) {
	rel, err := cleanTemplate(template)
	if err != nil {
		return "", err
	}
	hostDir := filepath.Join(m.scratchDir, filepath.Dir(rel))
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return "", err
	}
	canonical, err := canonicalize(hostDir)
	if err != nil {
		return "", err
	}
	entry, ok := m.byHost[canonical]
	if !ok {
		root := fmt.Sprintf("/mnt/out%d", m.outputNext)
		m.outputNext++
		entry = m.register(canonical, root, ReadWrite)
	} else if entry.Mode == ReadOnly {
		// A directory referenced first as an input and later as an output
		// location keeps its mount point but must be writable.
		entry.Mode = ReadWrite
	}
	return path.Join(entry.ContainerPath, filepath.Base(rel)), nil
}

// ScratchRoot returns the container path at which the scratch directory
// itself is mounted, if any output template placed a mount there.
func (m *Mapper) ScratchRoot() (string, bool) {
	canonical, err := canonicalize(m.scratchDir)
	if err != nil {
		return "", false
	}
	entry, ok := m.byHost[canonical]
	if !ok {
		return "", false
	}
	return entry.ContainerPath, true
}

// Entries returns the computed mount set ordered by container path.
func (m *Mapper) Entries() []Entry {
	entries := make([]Entry, 0, len(m.byHost))
	for _, e := range m.byHost {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ContainerPath < entries[j].ContainerPath
	})
	return entries
}

// Table returns the translation table built from the registered mounts.
func (m *Mapper) Table() *Table { return m.table }

func (m *Mapper) register(hostDir, containerRoot string, mode Mode) *Entry {
	entry := &Entry{HostPath: hostDir, ContainerPath: containerRoot, Mode: mode}
	m.byHost[hostDir] = entry
	m.table.add(hostDir, containerRoot)
	return entry
}

// canonicalize resolves a host path to its absolute, symlink-free form.
// Two paths naming the same filesystem object canonicalize identically, so
// they resolve to the same container mount point.
func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &PathResolutionError{Path: p, Err: err}
		}
		return "", err
	}
	return resolved, nil
}

func cleanTemplate(template string) (string, error) {
	if template == "" {
		return "", fmt.Errorf("mount: empty output template")
	}
	if filepath.IsAbs(template) {
		return "", fmt.Errorf("mount: output template must be relative: %q", template)
	}
	rel := filepath.Clean(template)
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("mount: output template escapes scratch directory: %q", template)
	}
	return rel, nil
}
