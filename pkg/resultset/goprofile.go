package resultset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/cover"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/paths"
)

// GoCoverSuite names the single suite of an imported Go cover profile.
const GoCoverSuite = "go-cover"

func isGoProfile(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("mode:"))
}

// parseGoProfile converts a `go test -coverprofile` file. Each block marks
// its lines executable with the highest count of any block covering them.
func parseGoProfile(path string, data []byte, opts Options) (*coverage.ModelData, error) {
	profiles, err := cover.ParseProfilesFromReader(bytes.NewReader(bytes.TrimLeft(data, " \t\r\n")))
	if err != nil {
		return nil, &coverage.FormatError{Path: path, Reason: "invalid Go cover profile", Err: err}
	}
	if len(profiles) == 0 {
		return nil, &coverage.FormatError{Path: path, Reason: "no test suite with coverage data found"}
	}

	modPath := modulePath(opts.Root)
	m := newMerger(opts.Root, opts.CaseSensitive)
	for _, p := range profiles {
		m.add(profileFile(p.FileName, modPath, opts.Root), coverage.Entry{
			Lines:     profileLines(p.Blocks),
			OpenEnded: true,
		})
	}
	opts.Logger.SafeLog("Go cover profile " + path + " has no timestamp; time-based staleness checks will be disabled.")

	entries, _ := m.result()
	return &coverage.ModelData{
		CoverageMap:   entries,
		Timestamp:     0,
		ResultsetPath: path,
		SuiteNames:    []string{GoCoverSuite},
		Fingerprint:   Fingerprint(data),
	}, nil
}

func profileLines(blocks []cover.ProfileBlock) coverage.Lines {
	last := 0
	for _, b := range blocks {
		if b.EndLine > last {
			last = b.EndLine
		}
	}
	lines := make(coverage.Lines, last)
	for i := range lines {
		lines[i] = coverage.NotExecutable
	}
	for _, b := range blocks {
		for l := b.StartLine; l <= b.EndLine; l++ {
			if l < 1 {
				continue
			}
			if b.Count > lines[l-1] {
				lines[l-1] = b.Count
			}
		}
	}
	return lines
}

// profileFile maps an import-path file name onto the project root.
func profileFile(name, modPath, root string) string {
	if modPath != "" {
		if name == modPath {
			return paths.Expand(".", root)
		}
		if rest, ok := strings.CutPrefix(name, modPath+"/"); ok {
			return paths.Expand(filepath.FromSlash(rest), root)
		}
	}
	return filepath.FromSlash(name)
}

func modulePath(root string) string {
	if root == "" {
		root = "."
	}
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

