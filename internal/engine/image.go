// Package engine builds and executes container engine command lines for
// podman and apptainer.
package engine

import "strings"

// Runtime identifies the container engine CLI.
type Runtime string

const (
	RuntimePodman    Runtime = "podman"
	RuntimeApptainer Runtime = "apptainer"
)

// ResolveImage maps a logical image reference through the override table
// and normalizes the result for the target runtime. Pulling is left to the
// engine at run time.
func ResolveImage(logical string, overrides map[string]string, rt Runtime) string {
	image := logical
	if replacement, ok := overrides[logical]; ok {
		image = replacement
	}
	if rt == RuntimeApptainer {
		return normalizeApptainerImage(image)
	}
	return image
}

// normalizeApptainerImage converts bare registry references to docker://
// URIs. Local SIF files and explicit URIs pass through untouched.
func normalizeApptainerImage(image string) string {
	if strings.HasSuffix(image, ".sif") {
		return image
	}
	if !strings.Contains(image, "://") {
		return "docker://" + image
	}
	return image
}
