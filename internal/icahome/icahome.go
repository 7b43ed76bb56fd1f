// Package icahome resolves the ICA install root ($ICA_HOME) used by the
// config loader, token store, and trust store.
package icahome

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/ica-mcp/proxy/internal/mcperrors"
)

const versionMarker = "VERSION"

var errMissingHome = errors.New("ICA_HOME could not be resolved; set the ICA_HOME environment variable")

// Resolve returns the ICA install root.
//
// Resolution order:
//  1. the ICA_HOME environment variable, if set;
//  2. inference from the on-disk layout of scriptFile, which is expected to
//     live at "<HOME>/skills/<name>/scripts/<file>" — the inferred root is
//     accepted only if a VERSION marker file exists there.
//
// Returns "" if neither resolves.
func Resolve(scriptFile string) string {
	if v := os.Getenv("ICA_HOME"); v != "" {
		return v
	}
	return inferFromLayout(scriptFile)
}

// inferFromLayout walks up from scriptFile looking for the "skills/<name>/scripts"
// layout and returns the directory that contains "skills" when a VERSION
// marker is present there.
func inferFromLayout(scriptFile string) string {
	if scriptFile == "" {
		return ""
	}
	abs, err := filepath.Abs(scriptFile)
	if err != nil {
		return ""
	}
	scriptsDir := filepath.Dir(abs)          // .../skills/<name>/scripts
	skillDir := filepath.Dir(scriptsDir)     // .../skills/<name>
	skillsDir := filepath.Dir(skillDir)      // .../skills
	root := filepath.Dir(skillsDir)          // <HOME>
	if filepath.Base(skillsDir) != "skills" {
		return ""
	}
	if _, err := os.Stat(filepath.Join(root, versionMarker)); err != nil {
		return ""
	}
	return root
}

// RequireForWrite resolves ICA_HOME and returns an error suitable for
// propagation as a ConfigurationError when a caller needs to persist state
// (tokens, trust) and no root could be determined.
func RequireForWrite(scriptFile string) (string, error) {
	root := Resolve(scriptFile)
	if root == "" {
		return "", mcperrors.Configuration("icahome.RequireForWrite", errMissingHome)
	}
	return root, nil
}
