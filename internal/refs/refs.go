// Package refs switches dependency references in package manifests between
// their linked form ("workspace:*", "link:...") and their file-path form
// ("file:...").
package refs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"strings"

	"github.com/conciliate-app/wrapkit/internal/config"
	"github.com/spf13/afero"
)

// Mode selects which reference map is applied.
type Mode string

const (
	// Original applies the linked map as-is.
	Original Mode = "original"
	// File applies the file map, falling back to the linked map.
	File Mode = "file"
	// SkipWrappers applies the merged map minus every in-repo wrapper.
	SkipWrappers Mode = "skip-wrappers"
)

// Modes lists every valid mode.
var Modes = []Mode{Original, File, SkipWrappers}

// WorkspacePrefix marks a linked reference to a package in this repository.
const WorkspacePrefix = "workspace:"

// Map file names inside the maps directory.
const (
	OriginalMapFile = "package-map.original.json"
	FileMapFile     = "package-map.file.json"
)

// Map maps a package name to a dependency reference.
type Map map[string]string

// ParseMode validates a mode argument.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", config.Errorf("mode", "invalid mode %q: use original, file or skip-wrappers", s)
}

// needsFileMap reports whether the mode reads the file map.
func (m Mode) needsFileMap() bool { return m != Original }

// LoadMaps reads the reference maps needed by mode from dir. The linked map
// is always read; the file map only when the mode uses it. Maps are read
// fresh on every call.
func LoadMaps(fsys afero.Fs, dir string, mode Mode) (original, file Map, err error) {
	original, err = loadMap(fsys, filepath.Join(dir, OriginalMapFile))
	if err != nil {
		return nil, nil, err
	}
	if mode.needsFileMap() {
		file, err = loadMap(fsys, filepath.Join(dir, FileMapFile))
		if err != nil {
			return nil, nil, err
		}
	}
	return original, file, nil
}

func loadMap(fsys afero.Fs, path string) (Map, error) {
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, config.Errorf("maps", "map file %s does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read map file %s: %w", path, err)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, config.Errorf("maps", "map file %s: %v", path, err)
	}
	if m == nil {
		m = Map{}
	}
	return m, nil
}

// Resolve computes the effective reference map for mode. It does not
// modify its inputs.
func Resolve(mode Mode, original, file Map) Map {
	merged := maps.Clone(original)
	if merged == nil {
		merged = Map{}
	}
	if mode == Original {
		return merged
	}
	maps.Copy(merged, file)
	if mode == SkipWrappers {
		for name := range merged {
			if strings.HasPrefix(original[name], WorkspacePrefix) {
				delete(merged, name)
			}
		}
	}
	return merged
}
