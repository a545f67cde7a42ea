// Package datacache keeps parsed resultsets in memory and notices when the
// file on disk changes, without reparsing on every lookup.
//
// Validation goes from cheapest to most expensive: a stat signature (mtime
// with nanoseconds, size, device, inode), then an MD5 digest of the content
// when the signature moved, then a full reload when the digest differs.
package datacache

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/paths"
	"github.com/jupierce/cov-loupe/pkg/resultset"
)

// Signature is the file metadata compared on every lookup.
type Signature struct {
	ModTimeSec  int64
	ModTimeNsec int64
	Size        int64
	Device      uint64
	Inode       uint64
}

// LoadFunc parses a resultset.
type LoadFunc func(resultsetPath, root string, logger coverage.Logger) (*coverage.ModelData, error)

// StatFunc returns the current signature of a file.
type StatFunc func(path string) (Signature, error)

// DigestFunc returns a content digest of a file.
type DigestFunc func(path string) (string, error)

// Stats counts how lookups were answered.
type Stats struct {
	Entries       int   `json:"entries"`
	Hits          int64 `json:"hits"`
	DigestChecks  int64 `json:"digest_checks"`
	Reloads       int64 `json:"reloads"`
	UncachedLoads int64 `json:"uncached_loads"`
}

type cacheKey struct {
	resultset string
	root      string
}

func (k cacheKey) String() string {
	return k.resultset + "\x00" + k.root
}

type entry struct {
	data   *coverage.ModelData
	sig    Signature
	digest string
}

// Cache maps (resultset path, root) to the most recently loaded ModelData.
// It is safe for concurrent use. Validation and reload of one key are
// serialized; different keys proceed independently.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*entry
	flight  singleflight.Group

	load   LoadFunc
	stat   StatFunc
	digest DigestFunc
	cases  paths.CaseDetector

	hits          atomic.Int64
	digestChecks  atomic.Int64
	reloads       atomic.Int64
	uncachedLoads atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLoader replaces the resultset loader.
func WithLoader(fn LoadFunc) Option {
	return func(c *Cache) { c.load = fn }
}

// WithStatFunc replaces the signature source.
func WithStatFunc(fn StatFunc) Option {
	return func(c *Cache) { c.stat = fn }
}

// WithDigestFunc replaces the content digest.
func WithDigestFunc(fn DigestFunc) Option {
	return func(c *Cache) { c.digest = fn }
}

// WithCaseDetector sets how the default loader decides whether coverage keys
// are compared case-insensitively.
func WithCaseDetector(d paths.CaseDetector) Option {
	return func(c *Cache) { c.cases = d }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[cacheKey]*entry),
		stat:    statSignature,
		digest:  fileDigest,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cases == nil {
		c.cases = paths.NewVolumeCache()
	}
	if c.load == nil {
		c.load = c.defaultLoad
	}
	return c
}

// CaseDetector returns the detector the cache keys coverage by, so models
// sharing the cache can compare paths the same way.
func (c *Cache) CaseDetector() paths.CaseDetector { return c.cases }

func (c *Cache) defaultLoad(resultsetPath, root string, logger coverage.Logger) (*coverage.ModelData, error) {
	return resultset.Load(resultsetPath, resultset.Options{
		Root:          root,
		CaseSensitive: c.cases.VolumeCaseSensitive(root),
		Logger:        logger,
	})
}

// Get returns the ModelData for the resultset, loading it if it is not
// cached or if the file has changed since it was cached. Load errors are
// returned as is; an entry that was cached before is left in place.
func (c *Cache) Get(resultsetPath, root string, logger coverage.Logger) (*coverage.ModelData, error) {
	logger = coverage.OrNop(logger)
	key := cacheKey{resultset: resultsetPath, root: root}

	v, err, _ := c.flight.Do(key.String(), func() (interface{}, error) {
		return c.validate(key, logger)
	})
	if err != nil {
		return nil, err
	}
	return v.(*coverage.ModelData), nil
}

// validate runs inside the key's singleflight call.
func (c *Cache) validate(key cacheKey, logger coverage.Logger) (*coverage.ModelData, error) {
	sig, err := c.stat(key.resultset)
	if err != nil {
		return c.loadUncached(key, logger)
	}

	cached := c.lookup(key)
	if cached != nil && cached.sig == sig {
		c.hits.Add(1)
		cacheHits.Inc()
		return cached.data, nil
	}

	c.digestChecks.Add(1)
	cacheDigestChecks.Inc()
	digest, err := c.digest(key.resultset)
	if err != nil {
		logger.SafeLog("Coverage cache could not digest " + key.resultset + ": " + err.Error())
		return c.loadUncached(key, logger)
	}

	if cached != nil && cached.digest == digest {
		c.store(key, &entry{data: cached.data, sig: sig, digest: digest})
		c.hits.Add(1)
		cacheHits.Inc()
		return cached.data, nil
	}

	data, err := c.load(key.resultset, key.root, logger)
	if err != nil {
		cacheLoadErrors.Inc()
		return nil, err
	}
	// The loader fingerprints the exact bytes it parsed; prefer that over a
	// digest taken a moment earlier.
	if data.Fingerprint != "" {
		digest = data.Fingerprint
	}
	c.store(key, &entry{data: data, sig: sig, digest: digest})
	c.reloads.Add(1)
	cacheReloads.Inc()
	return data, nil
}

func (c *Cache) loadUncached(key cacheKey, logger coverage.Logger) (*coverage.ModelData, error) {
	c.uncachedLoads.Add(1)
	cacheUncachedLoads.Inc()
	data, err := c.load(key.resultset, key.root, logger)
	if err != nil {
		cacheLoadErrors.Inc()
		return nil, err
	}
	return data, nil
}

func (c *Cache) lookup(key cacheKey) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}

func (c *Cache) store(key cacheKey, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

// Clear drops every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*entry)
}

// Len returns the number of cached resultsets.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:       c.Len(),
		Hits:          c.hits.Load(),
		DigestChecks:  c.digestChecks.Load(),
		Reloads:       c.reloads.Load(),
		UncachedLoads: c.uncachedLoads.Load(),
	}
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
