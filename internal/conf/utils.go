package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/notematch/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for notematch.yaml,
// in order of preference.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	paths := []string{"."}
	if runtime.GOOS == "windows" {
		return append(paths, filepath.Join(homeDir, "AppData", "Roaming", "notematch")), nil
	}
	return append(paths,
		filepath.Join(homeDir, ".config", "notematch"),
		"/etc/notematch",
	), nil
}
