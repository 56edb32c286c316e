package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeDirName is the per-project state directory.
const HomeDirName = ".specrunner"

// HomeEnvVar overrides the state directory location.
const HomeEnvVar = "SPECRUNNER_HOME"

// projectMarkers identify the root of a Ruby project.
var projectMarkers = []string{HomeDirName, "Gemfile", ".rspec"}

// GetSpecrunnerHome returns the specrunner state directory
// Priority order:
//  1. SPECRUNNER_HOME environment variable (if set)
//  2. .specrunner under the nearest ancestor that looks like a Ruby project
//  3. .specrunner under the current working directory (fallback)
//
// The directory is created if it doesn't exist
func GetSpecrunnerHome() (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("create specrunner home directory: %w", err)
		}
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	root := cwd
	if found, err := FindProjectRoot(cwd); err == nil {
		root = found
	}

	home := filepath.Join(root, HomeDirName)
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create specrunner home directory: %w", err)
	}
	return home, nil
}

// FindProjectRoot walks up from dir to the first directory holding a
// project marker.
func FindProjectRoot(dir string) (string, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("project root not found above %s (looking for %s, Gemfile or .rspec)", dir, HomeDirName)
}
