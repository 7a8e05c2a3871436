// Package workspace provides the versioned, content-addressed file
// store that agent tools operate against.
//
// Every write creates a new version unless its content hash matches the
// current latest version, in which case the existing version is
// returned and no new row is created. Deletes are soft: prior versions
// remain addressable by hash.
package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quillworks/quill/internal/apperr"
)

// Version is one immutable revision of a workspace file.
type Version struct {
	ID      string `json:"id"`
	Hash    string `json:"hash"`
	Size    int    `json:"size"`
	Created int64  `json:"created"`
}

// fileRecord is the persisted per-file version history.
type fileRecord struct {
	Path     string    `json:"path"`
	Versions []Version `json:"versions"`
	Deleted  bool      `json:"deleted"`
	Updated  int64     `json:"updated"`
}

// Entry describes a file or folder for listings.
type Entry struct {
	Path    string `json:"path"`
	IsDir   bool   `json:"isDir"`
	Version string `json:"version,omitempty"`
	Size    int    `json:"size,omitempty"`
	Updated int64  `json:"updated,omitempty"`
}

// Store is a versioned file store rooted at a directory, with one
// subtree per workspace.
type Store struct {
	root  string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir, locks: make(map[string]*sync.Mutex)}
}

// NormalizePath validates and canonicalizes a workspace path. The
// result is absolute-form ("/a/b") with no parent-directory segments.
func NormalizePath(p string) (string, error) {
	if p == "" {
		return "", apperr.New(apperr.KindValidation, "path is required")
	}
	if strings.Contains(p, "\x00") {
		return "", apperr.New(apperr.KindValidation, "path contains NUL byte")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", apperr.Newf(apperr.KindValidation, "path %q contains parent-directory segment", p)
		}
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		cleaned = "/"
	}
	return cleaned, nil
}

func (s *Store) metaFile(workspaceID, wsPath string) string {
	return filepath.Join(s.root, workspaceID, "meta", filepath.FromSlash(strings.TrimPrefix(wsPath, "/"))) + ".json"
}

func (s *Store) metaDir(workspaceID, wsPath string) string {
	return filepath.Join(s.root, workspaceID, "meta", filepath.FromSlash(strings.TrimPrefix(wsPath, "/")))
}

func (s *Store) blobFile(workspaceID, hash string) string {
	return filepath.Join(s.root, workspaceID, "blobs", hash[:2], hash)
}

// Read returns the latest content and version of a file.
func (s *Store) Read(ctx context.Context, workspaceID, wsPath string) ([]byte, *Version, error) {
	wsPath, err := NormalizePath(wsPath)
	if err != nil {
		return nil, nil, err
	}

	rec, err := s.loadRecord(workspaceID, wsPath)
	if err != nil {
		return nil, nil, err
	}
	if rec.Deleted || len(rec.Versions) == 0 {
		return nil, nil, apperr.Newf(apperr.KindNotFound, "file not found: %s", wsPath)
	}

	latest := rec.Versions[len(rec.Versions)-1]
	content, err := os.ReadFile(s.blobFile(workspaceID, latest.Hash))
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternal, "read blob", err)
	}
	return content, &latest, nil
}

// WriteVersion writes content as a new version of a file. If the
// content hash matches the current latest version, the existing version
// is returned and created is false.
func (s *Store) WriteVersion(ctx context.Context, workspaceID, wsPath string, content []byte) (*Version, bool, error) {
	wsPath, err := NormalizePath(wsPath)
	if err != nil {
		return nil, false, err
	}
	if wsPath == "/" {
		return nil, false, apperr.New(apperr.KindValidation, "cannot write workspace root")
	}

	lock := s.lockFor(workspaceID + wsPath)
	lock.Lock()
	defer lock.Unlock()

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	rec, err := s.loadRecord(workspaceID, wsPath)
	if apperr.Is(err, apperr.KindNotFound) {
		rec = &fileRecord{Path: wsPath}
	} else if err != nil {
		return nil, false, err
	}

	// Content-hash dedup: same hash as the live latest version is a no-op.
	if !rec.Deleted && len(rec.Versions) > 0 {
		latest := rec.Versions[len(rec.Versions)-1]
		if latest.Hash == hash {
			return &latest, false, nil
		}
	}

	blobPath := s.blobFile(workspaceID, hash)
	if _, statErr := os.Stat(blobPath); os.IsNotExist(statErr) {
		if err := os.MkdirAll(filepath.Dir(blobPath), 0755); err != nil {
			return nil, false, apperr.Wrap(apperr.KindInternal, "create blob dir", err)
		}
		if err := os.WriteFile(blobPath, content, 0644); err != nil {
			return nil, false, apperr.Wrap(apperr.KindInternal, "write blob", err)
		}
	}

	now := time.Now().UnixMilli()
	version := Version{
		ID:      ulid.Make().String(),
		Hash:    hash,
		Size:    len(content),
		Created: now,
	}
	rec.Versions = append(rec.Versions, version)
	rec.Deleted = false
	rec.Updated = now

	if err := s.saveRecord(workspaceID, wsPath, rec); err != nil {
		return nil, false, err
	}
	return &version, true, nil
}

// SoftDelete marks a file deleted, or removes an empty folder.
// Deleting a folder that still has live children is a conflict.
func (s *Store) SoftDelete(ctx context.Context, workspaceID, wsPath string) error {
	wsPath, err := NormalizePath(wsPath)
	if err != nil {
		return err
	}

	lock := s.lockFor(workspaceID + wsPath)
	lock.Lock()
	defer lock.Unlock()

	rec, recErr := s.loadRecord(workspaceID, wsPath)
	if recErr == nil {
		if rec.Deleted {
			return apperr.Newf(apperr.KindNotFound, "file not found: %s", wsPath)
		}
		rec.Deleted = true
		rec.Updated = time.Now().UnixMilli()
		return s.saveRecord(workspaceID, wsPath, rec)
	}

	// Not a file record; try folder.
	if s.isDir(workspaceID, wsPath) {
		children, err := s.List(ctx, workspaceID, wsPath)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return apperr.Newf(apperr.KindConflict, "folder not empty: %s", wsPath)
		}
		if err := os.Remove(s.metaDir(workspaceID, wsPath)); err != nil && !os.IsNotExist(err) {
			return apperr.Wrap(apperr.KindInternal, "remove folder", err)
		}
		return nil
	}

	return recErr
}

// Mkdir creates an empty folder. Creating an existing folder is a no-op.
func (s *Store) Mkdir(ctx context.Context, workspaceID, wsPath string) error {
	wsPath, err := NormalizePath(wsPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.metaDir(workspaceID, wsPath), 0755); err != nil {
		return apperr.Wrap(apperr.KindInternal, "create folder", err)
	}
	return nil
}

// Touch creates an empty file if missing. Touching an existing file
// only bumps its updated time.
func (s *Store) Touch(ctx context.Context, workspaceID, wsPath string) (*Version, error) {
	wsPath, err := NormalizePath(wsPath)
	if err != nil {
		return nil, err
	}

	if rec, err := s.loadRecord(workspaceID, wsPath); err == nil && !rec.Deleted && len(rec.Versions) > 0 {
		rec.Updated = time.Now().UnixMilli()
		if err := s.saveRecord(workspaceID, wsPath, rec); err != nil {
			return nil, err
		}
		latest := rec.Versions[len(rec.Versions)-1]
		return &latest, nil
	}

	version, _, err := s.WriteVersion(ctx, workspaceID, wsPath, nil)
	return version, err
}

// Move renames a file. The destination must not already exist.
func (s *Store) Move(ctx context.Context, workspaceID, from, to string) (*Version, error) {
	from, err := NormalizePath(from)
	if err != nil {
		return nil, err
	}
	to, err = NormalizePath(to)
	if err != nil {
		return nil, err
	}

	if rec, err := s.loadRecord(workspaceID, to); err == nil && !rec.Deleted {
		return nil, apperr.Newf(apperr.KindConflict, "destination exists: %s", to)
	}

	content, _, err := s.Read(ctx, workspaceID, from)
	if err != nil {
		return nil, err
	}

	version, _, err := s.WriteVersion(ctx, workspaceID, to, content)
	if err != nil {
		return nil, err
	}
	if err := s.SoftDelete(ctx, workspaceID, from); err != nil {
		return nil, err
	}
	return version, nil
}

// Stat returns the entry for a file or folder.
func (s *Store) Stat(ctx context.Context, workspaceID, wsPath string) (*Entry, error) {
	wsPath, err := NormalizePath(wsPath)
	if err != nil {
		return nil, err
	}

	if rec, err := s.loadRecord(workspaceID, wsPath); err == nil {
		if rec.Deleted || len(rec.Versions) == 0 {
			return nil, apperr.Newf(apperr.KindNotFound, "not found: %s", wsPath)
		}
		latest := rec.Versions[len(rec.Versions)-1]
		return &Entry{
			Path:    wsPath,
			Version: latest.ID,
			Size:    latest.Size,
			Updated: rec.Updated,
		}, nil
	}

	if s.isDir(workspaceID, wsPath) {
		return &Entry{Path: wsPath, IsDir: true}, nil
	}
	return nil, apperr.Newf(apperr.KindNotFound, "not found: %s", wsPath)
}

// List returns the live entries directly under a folder.
func (s *Store) List(ctx context.Context, workspaceID, wsPath string) ([]Entry, error) {
	wsPath, err := NormalizePath(wsPath)
	if err != nil {
		return nil, err
	}

	dir := s.metaDir(workspaceID, wsPath)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "read folder", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() {
			entries = append(entries, Entry{
				Path:  path.Join(wsPath, name),
				IsDir: true,
			})
			continue
		}
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		childPath := path.Join(wsPath, strings.TrimSuffix(name, ".json"))
		entry, err := s.Stat(ctx, workspaceID, childPath)
		if apperr.Is(err, apperr.KindNotFound) {
			continue // soft-deleted
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Walk visits every live file in the workspace in path order.
func (s *Store) Walk(ctx context.Context, workspaceID string, fn func(Entry) error) error {
	return s.walkDir(ctx, workspaceID, "/", fn)
}

func (s *Store) walkDir(ctx context.Context, workspaceID, dir string, fn func(Entry) error) error {
	entries, err := s.List(ctx, workspaceID, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir {
			if err := s.walkDir(ctx, workspaceID, entry.Path, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) isDir(workspaceID, wsPath string) bool {
	info, err := os.Stat(s.metaDir(workspaceID, wsPath))
	return err == nil && info.IsDir()
}

func (s *Store) loadRecord(workspaceID, wsPath string) (*fileRecord, error) {
	data, err := os.ReadFile(s.metaFile(workspaceID, wsPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Newf(apperr.KindNotFound, "file not found: %s", wsPath)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "read file record", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "decode file record", err)
	}
	return &rec, nil
}

func (s *Store) saveRecord(workspaceID, wsPath string, rec *fileRecord) error {
	path := s.metaFile(workspaceID, wsPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.Wrap(apperr.KindInternal, "create record dir", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode file record", err)
	}
	tmp := fmt.Sprintf("%s.tmp", path)
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return apperr.Wrap(apperr.KindInternal, "write file record", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.KindInternal, "rename file record", err)
	}
	return nil
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
