package staleness

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/paths"
)

const baseTS = int64(1700000000)

func writeSource(t *testing.T, root, rel, content string, mtime int64) string {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	mt := time.Unix(mtime, 0)
	require.NoError(t, os.Chtimes(p, mt, mt))
	return p
}

func entry(lines ...int) coverage.Entry {
	return coverage.Entry{Lines: coverage.Lines(lines)}
}

func newChecker(root string, ts int64, opts ...Option) *Checker {
	return New(root, ts, append([]Option{WithNormalizer(paths.NewNormalizer(paths.StaticCase(true)))}, opts...)...)
}

func TestCheckFileVerdicts(t *testing.T) {
	root := t.TempDir()
	n := coverage.NotExecutable
	tests := []struct {
		name    string
		content string
		mtime   int64
		entry   coverage.Entry
		ts      int64
		want    coverage.Verdict
	}{
		{"ok", "a\nb\nc\n", baseTS, entry(1, 0, n), baseTS, coverage.VerdictOK},
		{"equal mtime is fresh", "a\nb\n", baseTS, entry(1, 1), baseTS, coverage.VerdictOK},
		{"newer", "a\nb\n", baseTS + 10, entry(1, 1), baseTS, coverage.VerdictNewer},
		{"zero timestamp disables newer", "a\n", baseTS + 10, entry(1), 0, coverage.VerdictOK},
		{"length mismatch", "a\nb\nc\n", baseTS, entry(1, 1), baseTS, coverage.VerdictLengthMismatch},
		{"length mismatch beats newer", "a\nb\nc\n", baseTS + 10, entry(1, 1), baseTS, coverage.VerdictLengthMismatch},
		{"no trailing newline", "a\nb", baseTS, entry(1, 1), baseTS, coverage.VerdictOK},
		{"empty coverage never mismatches", "a\nb\n", baseTS, entry(), baseTS, coverage.VerdictOK},
		{"empty file", "", baseTS, entry(1), baseTS, coverage.VerdictLengthMismatch},
		{"open ended longer source", "a\nb\nc\nd\n", baseTS, coverage.Entry{Lines: coverage.Lines{1, 1}, OpenEnded: true}, baseTS, coverage.VerdictOK},
		{"open ended shorter source", "a\n", baseTS, coverage.Entry{Lines: coverage.Lines{1, 1}, OpenEnded: true}, baseTS, coverage.VerdictLengthMismatch},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeSource(t, root, filepath.Join("case", string(rune('a'+i))+".rb"), tt.content, tt.mtime)
			r := newChecker(root, tt.ts).CheckFile(p, tt.entry)
			assert.Equal(t, tt.want, r.Verdict)
			assert.True(t, r.Exists)
			assert.Equal(t, len(tt.entry.Lines), r.CoverageLines)
			assert.Equal(t, tt.ts, r.CoverageTimestamp)
		})
	}
}

func TestCheckFileMissing(t *testing.T) {
	root := t.TempDir()
	r := newChecker(root, baseTS).CheckFile(filepath.Join(root, "gone.rb"), entry(1))
	assert.Equal(t, coverage.VerdictMissing, r.Verdict)
	assert.False(t, r.Exists)

	require.NoError(t, os.Mkdir(filepath.Join(root, "dir.rb"), 0755))
	r = newChecker(root, baseTS).CheckFile(filepath.Join(root, "dir.rb"), entry(1))
	assert.Equal(t, coverage.VerdictMissing, r.Verdict)
}

func TestCheckFileReportsFacts(t *testing.T) {
	root := t.TempDir()
	p := writeSource(t, root, "lib/foo.rb", "a\nb\nc\n", baseTS+10)
	r := newChecker(root, baseTS).CheckFile(p, entry(1, 1, 1))
	assert.Equal(t, coverage.VerdictNewer, r.Verdict)
	assert.Equal(t, baseTS+10, r.FileMtime.Unix())
	assert.Equal(t, 3, r.SourceLines)
}

type fakeInfo struct{ fs.FileInfo }

func (fakeInfo) Mode() fs.FileMode  { return 0644 }
func (fakeInfo) ModTime() time.Time { return time.Unix(baseTS, 0) }

func TestCheckFileReadAndStatErrors(t *testing.T) {
	okStat := func(string) (os.FileInfo, error) { return fakeInfo{}, nil }
	denied := func(string) (io.ReadCloser, error) { return nil, fs.ErrPermission }

	r := newChecker("/p", baseTS, WithFileSystem(okStat, denied)).CheckFile("/p/a.rb", entry(1))
	assert.Equal(t, coverage.VerdictUnreadable, r.Verdict)
	assert.ErrorIs(t, r.Err, fs.ErrPermission)

	statDenied := func(string) (os.FileInfo, error) { return nil, fs.ErrPermission }
	r = newChecker("/p", baseTS, WithFileSystem(statDenied, denied)).CheckFile("/p/a.rb", entry(1))
	assert.Equal(t, coverage.VerdictUnreadable, r.Verdict)

	statBroken := func(string) (os.FileInfo, error) { return nil, errors.New("stale NFS handle") }
	r = newChecker("/p", baseTS, WithFileSystem(statBroken, denied)).CheckFile("/p/a.rb", entry(1))
	assert.Equal(t, coverage.VerdictError, r.Verdict)
}

func TestCheckProject(t *testing.T) {
	root := t.TempDir()
	n := coverage.NotExecutable
	fresh := writeSource(t, root, "lib/fresh.rb", "a\n", baseTS)
	newer := writeSource(t, root, "lib/newer.rb", "a\n", baseTS+10)
	short := writeSource(t, root, "lib/short.rb", "a\n", baseTS+10)
	writeSource(t, root, "lib/untested.rb", "a\n", baseTS)
	outside := writeSource(t, root, "spec/helper.rb", "a\n", baseTS+10)

	cov := map[string]coverage.Entry{
		fresh:                                entry(1),
		newer:                                entry(1),
		short:                                entry(1, n, 0),
		filepath.Join(root, "lib/deleted.rb"): entry(1),
		outside:                              entry(1),
	}

	r := newChecker(root, baseTS).CheckProject(cov, []string{"lib/**/*.rb"})
	assert.Equal(t, []string{"lib/newer.rb"}, r.Newer)
	assert.Equal(t, []string{"lib/deleted.rb"}, r.Missing)
	assert.Equal(t, []string{"lib/short.rb"}, r.LengthMismatch)
	assert.Equal(t, []string{"lib/untested.rb"}, r.MissingTracked)
	assert.Empty(t, r.Unreadable)
	assert.NotContains(t, r.Files, outside)
	assert.Equal(t, coverage.VerdictOK, r.Files[fresh])
	assert.True(t, r.Stale())
	assert.Equal(t, coverage.VerdictLengthMismatch, r.Verdict())
	assert.False(t, r.TimestampMissing)

	all := newChecker(root, baseTS).CheckProject(cov, nil)
	assert.Equal(t, []string{"lib/newer.rb", "spec/helper.rb"}, all.Newer)
	assert.Empty(t, all.MissingTracked)

	se := r.StaleError("/p/.resultset.json")
	assert.Equal(t, r.Newer, se.Newer)
	assert.Equal(t, "/p/.resultset.json", se.ResultsetPath)
}

func TestCheckProjectFreshAndTimestampMissing(t *testing.T) {
	root := t.TempDir()
	p := writeSource(t, root, "a.rb", "x\n", baseTS+100)
	r := newChecker(root, 0).CheckProject(map[string]coverage.Entry{p: entry(1)}, nil)
	assert.False(t, r.Stale())
	assert.True(t, r.TimestampMissing)
	assert.Equal(t, coverage.VerdictOK, r.Verdict())
}

func TestCheckFileIgnoresSubSecondMtime(t *testing.T) {
	root := t.TempDir()
	p := writeSource(t, root, "a.rb", "a\n", baseTS)
	mt := time.Unix(baseTS, 900_000_000)
	require.NoError(t, os.Chtimes(p, mt, mt))

	r := newChecker(root, baseTS).CheckFile(p, entry(1))
	assert.Equal(t, coverage.VerdictOK, r.Verdict)
}
