package harness

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed scenarios/*.yaml
var bundledFS embed.FS

// Bundled returns the scenarios shipped with reqsync, sorted by name.
// They use the default layout.
func Bundled() ([]*Scenario, error) {
	paths, err := fs.Glob(bundledFS, "scenarios/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		data, err := bundledFS.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		s, err := ParseScenario(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, s)
	}
	return out, nil
}
