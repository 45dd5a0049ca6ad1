package mount

import (
	"path"
	"path/filepath"
	"strings"
)

// Table translates paths between host and container for one invocation.
// It is built alongside the mount set and is read-only afterwards.
type Table struct {
	hostToContainer map[string]string
	containerToHost map[string]string
}

func newTable() *Table {
	return &Table{
		hostToContainer: make(map[string]string),
		containerToHost: make(map[string]string),
	}
}

func (t *Table) add(hostDir, containerRoot string) {
	t.hostToContainer[hostDir] = containerRoot
	t.containerToHost[containerRoot] = hostDir
}

// ToContainer translates a host path into its container equivalent by
// longest-prefix match against the mounted host directories.
func (t *Table) ToContainer(hostPath string) (string, bool) {
	canonical, err := canonicalize(hostPath)
	if err != nil {
		return "", false
	}
	for p := canonical; ; p = filepath.Dir(p) {
		if root, ok := t.hostToContainer[p]; ok {
			rel, err := filepath.Rel(p, canonical)
			if err != nil {
				return "", false
			}
			if rel == "." {
				return root, true
			}
			return path.Join(root, filepath.ToSlash(rel)), true
		}
		if p == filepath.Dir(p) {
			return "", false
		}
	}
}

// ToHost translates a container path back into the host path it maps to.
func (t *Table) ToHost(containerPath string) (string, bool) {
	clean := path.Clean(containerPath)
	for p := clean; ; p = path.Dir(p) {
		if hostDir, ok := t.containerToHost[p]; ok {
			rel := strings.TrimPrefix(clean, p)
			rel = strings.TrimPrefix(rel, "/")
			if rel == "" {
				return hostDir, true
			}
			return filepath.Join(hostDir, filepath.FromSlash(rel)), true
		}
		if p == path.Dir(p) {
			return "", false
		}
	}
}
