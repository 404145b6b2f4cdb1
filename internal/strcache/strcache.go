// Package strcache maintains the persistent per-document string cache.
// Enumerating strings through the host is minutes-scale on large
// binaries, so queries never touch the backend: they are served from an
// in-memory snapshot loaded from a sqlite artifact that an explicit
// build step produced earlier.
package strcache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"

	"binkb/internal/backend"
	"binkb/internal/errors"
	"binkb/internal/logging"
)

// artifactVersion is the on-disk format version. Bump on any schema or
// semantics change; readers reject newer artifacts instead of guessing.
const artifactVersion = 1

// Entry is one cached string. Address is in built-base coordinates;
// the snapshot translates on the way in and out.
type Entry struct {
	Address  uint64
	Segment  string
	Content  string
	Encoding string
}

// Snapshot is an immutable view of one build of the cache. Readers get
// the whole struct by pointer and never see a partial update.
type Snapshot struct {
	entries    []Entry // sorted by address ascending
	index      map[uint64]int
	builtBase  uint64
	builtAt    time.Time
	stateToken string
	path       string
}

// BuiltAt returns when the snapshot's artifact was built.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// StateToken returns the backend state token captured at build time.
func (s *Snapshot) StateToken() string { return s.stateToken }

// Path returns the artifact the snapshot was loaded from or built to.
func (s *Snapshot) Path() string { return s.path }

// Len returns the number of cached strings.
func (s *Snapshot) Len() int { return len(s.entries) }

// translate maps a current-coordinates address into built coordinates.
func (s *Snapshot) translate(addr, currentBase uint64) uint64 {
	return addr - currentBase + s.builtBase
}

// untranslate maps a built-coordinates address into current coordinates.
func (s *Snapshot) untranslate(addr, currentBase uint64) uint64 {
	return addr - s.builtBase + currentBase
}

// Lookup finds the string at addr, given the document's current base.
// Rebase since build time is remapped transparently.
func (s *Snapshot) Lookup(addr, currentBase uint64) (Entry, bool) {
	i, ok := s.index[s.translate(addr, currentBase)]
	if !ok {
		return Entry{}, false
	}
	e := s.entries[i]
	e.Address = s.untranslate(e.Address, currentBase)
	return e, true
}

// All returns every entry in ascending address order, remapped to the
// document's current base. The slice is fresh and safe to keep.
func (s *Snapshot) All(currentBase uint64) []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	for i := range out {
		out[i].Address = s.untranslate(out[i].Address, currentBase)
	}
	return out
}

// Store holds the live snapshot for one document. Swaps are atomic;
// a query racing a rebuild sees either the old or the new snapshot,
// never a mix.
type Store struct {
	snap   atomic.Pointer[Snapshot]
	logger *logging.Logger
}

// NewStore creates an empty store. A store with no snapshot reports
// NotCached until Build or LoadArtifact succeeds.
func NewStore(logger *logging.Logger) *Store {
	return &Store{logger: logger}
}

// Snapshot returns the current snapshot, or a NotCached error.
func (st *Store) Snapshot(docID string) (*Snapshot, error) {
	s := st.snap.Load()
	if s == nil {
		return nil, errors.NewNotCached(docID)
	}
	return s, nil
}

// Invalidate drops the entry at addr from the in-memory snapshot, if
// present. Used when an annotation re-types the address away from a
// string kind; the artifact is left alone and refreshed at next build.
func (st *Store) Invalidate(addr, currentBase uint64) {
	for {
		old := st.snap.Load()
		if old == nil {
			return
		}
		built := old.translate(addr, currentBase)
		i, ok := old.index[built]
		if !ok {
			return
		}

		next := &Snapshot{
			entries:    make([]Entry, 0, len(old.entries)-1),
			index:      make(map[uint64]int, len(old.entries)-1),
			builtBase:  old.builtBase,
			builtAt:    old.builtAt,
			stateToken: old.stateToken,
			path:       old.path,
		}
		next.entries = append(next.entries, old.entries[:i]...)
		next.entries = append(next.entries, old.entries[i+1:]...)
		for j, e := range next.entries {
			next.index[e.Address] = j
		}
		if st.snap.CompareAndSwap(old, next) {
			return
		}
	}
}

// ArtifactPath determines where the document's cache artifact lives.
// The default co-locates it with the host's own save artifact so the
// two travel together; cacheDir overrides that for read-only save
// locations.
func ArtifactPath(doc backend.DocumentInfo, cacheDir string) (string, error) {
	if cacheDir != "" {
		return filepath.Join(cacheDir, doc.ID+".strings.db"), nil
	}
	if doc.SavePath == "" {
		return "", errors.NewInvalidFormat("cache path",
			"document has never been saved and no cache directory is configured")
	}
	return doc.SavePath + ".strings.db", nil
}

// fingerprint ties an artifact to one document identity. Path is part
// of the input so a copied artifact is not silently served for a
// different binary at the same doc ID.
func fingerprint(doc backend.DocumentInfo) string {
	h := blake2b.Sum256([]byte(doc.ID + "|" + doc.Path))
	return hex.EncodeToString(h[:])
}

// Build enumerates the document's strings through the backend, writes a
// fresh artifact at path, and swaps it in as the live snapshot. The
// write goes to a temp file first; the rename makes readers of the old
// artifact unaffected by a failed build. progress, when non-nil, is
// called with a 0..100 percentage.
func (st *Store) Build(ctx context.Context, b backend.Backend, doc backend.DocumentInfo, path string, progress func(int)) (*Snapshot, error) {
	report := func(pct int) {
		if progress != nil {
			progress(pct)
		}
	}
	report(0)

	token, err := b.StateToken(ctx, doc.ID)
	if err != nil {
		return nil, errors.NewBackendUnavailable("StateToken", err)
	}

	raw, err := b.Strings(ctx, doc.ID)
	if err != nil {
		return nil, errors.NewBackendUnavailable("Strings", err)
	}
	report(50)

	entries := make([]Entry, len(raw))
	for i, s := range raw {
		entries[i] = Entry{Address: s.Address, Segment: s.Segment, Content: s.Content, Encoding: s.Encoding}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })

	builtAt := time.Now().UTC()
	if err := writeArtifact(ctx, path, doc, entries, builtAt, token); err != nil {
		return nil, err
	}
	report(90)

	snap := newSnapshot(entries, doc.BaseAddress, builtAt, token, path)
	st.snap.Store(snap)
	st.logger.Info("string cache built", map[string]interface{}{
		"docId":   doc.ID,
		"strings": len(entries),
		"path":    path,
	})
	report(100)
	return snap, nil
}

// LoadArtifact loads an existing artifact into the store. A missing
// file is NotCached. A corrupt or foreign artifact degrades to
// NotCached with a warning rather than failing the query; only a
// too-new format version is a hard error.
func (st *Store) LoadArtifact(ctx context.Context, doc backend.DocumentInfo, path string) (*Snapshot, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewNotCached(doc.ID)
	}

	snap, err := readArtifact(ctx, doc, path)
	if err != nil {
		if errors.HasCode(err, errors.CacheVersionMismatch) {
			return nil, err
		}
		st.logger.Warn("string cache artifact unusable, treating as uncached", map[string]interface{}{
			"docId": doc.ID,
			"path":  path,
			"error": err.Error(),
		})
		return nil, errors.NewNotCached(doc.ID)
	}

	st.snap.Store(snap)
	st.logger.Debug("string cache loaded", map[string]interface{}{
		"docId":   doc.ID,
		"strings": snap.Len(),
		"path":    path,
	})
	return snap, nil
}

func newSnapshot(entries []Entry, builtBase uint64, builtAt time.Time, token, path string) *Snapshot {
	idx := make(map[uint64]int, len(entries))
	for i, e := range entries {
		idx[e.Address] = i
	}
	return &Snapshot{
		entries:    entries,
		index:      idx,
		builtBase:  builtBase,
		builtAt:    builtAt,
		stateToken: token,
		path:       path,
	}
}

const schema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE strings (
	address  INTEGER PRIMARY KEY,
	segment  TEXT NOT NULL,
	content  TEXT NOT NULL,
	encoding TEXT NOT NULL
);
`

func writeArtifact(ctx context.Context, path string, doc backend.DocumentInfo, entries []Entry, builtAt time.Time, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp := path + ".tmp"
	os.Remove(tmp)

	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return fmt.Errorf("failed to create cache artifact: %w", err)
	}

	err = func() error {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = OFF"); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return err
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		meta := map[string]string{
			"version":     strconv.Itoa(artifactVersion),
			"fingerprint": fingerprint(doc),
			"base":        strconv.FormatUint(doc.BaseAddress, 10),
			"built_at":    builtAt.Format(time.RFC3339Nano),
			"state_token": token,
		}
		for k, v := range meta {
			if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
				return err
			}
		}

		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO strings (address, segment, content, encoding) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, int64(e.Address), e.Segment, e.Content, e.Encoding); err != nil {
				return err
			}
		}
		return tx.Commit()
	}()
	closeErr := db.Close()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache artifact: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize cache artifact: %w", closeErr)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace cache artifact: %w", err)
	}
	return nil
}

func readArtifact(ctx context.Context, doc backend.DocumentInfo, path string) (*Snapshot, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache artifact: %w", err)
	}
	defer db.Close()

	meta := make(map[string]string)
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("failed to read cache meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, err
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ver, err := strconv.Atoi(meta["version"])
	if err != nil {
		return nil, fmt.Errorf("missing artifact version")
	}
	if ver != artifactVersion {
		return nil, errors.New(errors.CacheVersionMismatch,
			fmt.Sprintf("cache artifact is format v%d, this build reads v%d", ver, artifactVersion), nil)
	}
	if meta["fingerprint"] != fingerprint(doc) {
		return nil, fmt.Errorf("artifact fingerprint does not match document")
	}
	base, err := strconv.ParseUint(meta["base"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed base address in artifact")
	}
	builtAt, err := time.Parse(time.RFC3339Nano, meta["built_at"])
	if err != nil {
		return nil, fmt.Errorf("malformed build timestamp in artifact")
	}

	var entries []Entry
	rows, err = db.QueryContext(ctx,
		"SELECT address, segment, content, encoding FROM strings ORDER BY address ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to read cached strings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var addr int64
		var e Entry
		if err := rows.Scan(&addr, &e.Segment, &e.Content, &e.Encoding); err != nil {
			return nil, err
		}
		e.Address = uint64(addr)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return newSnapshot(entries, base, builtAt, meta["state_token"], path), nil
}

// Stats summarizes the store's live snapshot for reporting.
type Stats struct {
	Cached    bool   `json:"cached"`
	Strings   int    `json:"strings"`
	BuiltAt   string `json:"builtAt,omitempty"`
	Path      string `json:"path,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
	Stale     bool   `json:"stale"`
}

// StatsFor reports on the live snapshot. currentToken is the backend's
// current state token; a differing token marks the snapshot stale.
func (st *Store) StatsFor(currentToken string) Stats {
	s := st.snap.Load()
	if s == nil {
		return Stats{}
	}
	out := Stats{
		Cached:  true,
		Strings: s.Len(),
		BuiltAt: s.builtAt.Format(time.RFC3339),
		Path:    s.path,
		Stale:   currentToken != "" && currentToken != s.stateToken,
	}
	if fi, err := os.Stat(s.path); err == nil {
		out.SizeBytes = fi.Size()
	}
	return out
}
