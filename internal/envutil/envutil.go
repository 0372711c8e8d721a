// Package envutil reads process-level environment switches.
package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the deployment environment of the shell
const EnvVar = "LEANSOCIAL_ENV"

// Name returns the normalised environment name, "production" when unset
func Name() string {
	switch env := strings.ToLower(strings.TrimSpace(os.Getenv(EnvVar))); env {
	case "":
		return "production"
	case "dev":
		return "development"
	default:
		return env
	}
}

// IsDev reports whether secrets may be given inline in the config file
func IsDev() bool {
	return Name() == "development"
}
