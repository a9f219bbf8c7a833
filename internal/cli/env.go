package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// Environment variables that point at an env file and win over --env.
var overrideVars = []string{"EVENT_PIPELINE_ENV_FILE", "HORSE_ENV_FILE"}

// EnvLoader loads a .env file chosen by --env, an override variable, or a fallback.
type EnvLoader struct {
	value       *string
	defaultPath string
}

// AddEnvFlag registers an --env flag on fs and returns its loader.
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	if strings.TrimSpace(defaultPath) == "" {
		defaultPath = defaultEnvFile
	}
	if description == "" {
		description = "Path to the .env file"
	}
	return &EnvLoader{
		value:       fs.String("env", defaultPath, description),
		defaultPath: defaultPath,
	}
}

// Load applies the first env file that can be read, in this order: override
// variables, the --env value, its basename, then the default path. Values in the
// file replace variables already set in the process. It returns the path used.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	for _, path := range l.candidates() {
		if err := godotenv.Overload(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("failed to load env file from %s", l.requested())
}

func (l *EnvLoader) candidates() []string {
	var paths []string
	for _, envVar := range overrideVars {
		if custom := strings.TrimSpace(os.Getenv(envVar)); custom != "" {
			paths = append(paths, custom)
		}
	}

	requested := l.requested()
	paths = append(paths, requested)
	if base := filepath.Base(requested); base != "" && base != requested {
		paths = append(paths, base)
	}
	if requested != l.defaultPath {
		paths = append(paths, l.defaultPath)
	}
	return paths
}

func (l *EnvLoader) requested() string {
	if l.value != nil {
		if trimmed := strings.TrimSpace(*l.value); trimmed != "" {
			return trimmed
		}
	}
	return l.defaultPath
}
