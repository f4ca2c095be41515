package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"notekeeper-zipjobs/internal/common"
)

const (
	metaDir = ".meta"
	tmpDir  = ".tmp"
)

// LocalStore keeps blobs on the filesystem under root. Content types live in
// JSON sidecars under root/.meta; blobs without a sidecar are sniffed.
type LocalStore struct {
	root string
}

type localMeta struct {
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local blob root is empty")
	}
	for _, dir := range []string{root, filepath.Join(root, metaDir), filepath.Join(root, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create blob dir: %w", err)
		}
	}
	return &LocalStore{root: root}, nil
}

func (l *LocalStore) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *LocalStore) metaPath(key string) string {
	return filepath.Join(l.root, metaDir, filepath.FromSlash(key)+".json")
}

// Put writes body to a temp file and renames it into place, so readers never
// observe a partial blob.
func (l *LocalStore) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Join(l.root, tmpDir), "upload-*")
	if err != nil {
		return fmt.Errorf("%w: create temp blob: %w", common.ErrUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp blob: %w", common.ErrUnavailable, err)
	}
	if contentType == "" {
		if mt, err := mimetype.DetectFile(tmp.Name()); err == nil {
			contentType = mt.String()
		}
	}

	dst := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: create blob dir: %w", common.ErrUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("%w: move blob into place: %w", common.ErrUnavailable, err)
	}
	return l.writeMeta(key, localMeta{ContentType: contentType, CreatedAt: time.Now().UTC()})
}

func (l *LocalStore) writeMeta(key string, m localMeta) error {
	p := l.metaPath(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("%w: create meta dir: %w", common.ErrUnavailable, err)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal blob meta: %w", err)
	}
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		return fmt.Errorf("%w: write blob meta: %w", common.ErrUnavailable, err)
	}
	return nil
}

func (l *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	if err := validKey(key); err != nil {
		return nil, Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Object{}, err
	}
	f, err := os.Open(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Object{}, fmt.Errorf("%w: blob %s", common.ErrNotFound, key)
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("%w: open blob: %w", common.ErrUnavailable, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Object{}, fmt.Errorf("%w: stat blob: %w", common.ErrUnavailable, err)
	}
	return f, l.describe(key, info), nil
}

func (l *LocalStore) describe(key string, info fs.FileInfo) Object {
	obj := Object{Key: key, Size: info.Size(), CreatedAt: info.ModTime().UTC()}
	if raw, err := os.ReadFile(l.metaPath(key)); err == nil {
		var m localMeta
		if json.Unmarshal(raw, &m) == nil {
			obj.ContentType = m.ContentType
			if !m.CreatedAt.IsZero() {
				obj.CreatedAt = m.CreatedAt
			}
		}
	}
	if obj.ContentType == "" {
		if mt, err := mimetype.DetectFile(l.path(key)); err == nil {
			obj.ContentType = mt.String()
		}
	}
	return obj
}

func (l *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: stat blob: %w", common.ErrUnavailable, err)
	}
	return true, nil
}

func (l *LocalStore) Delete(_ context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	err := os.Remove(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: delete blob: %w", common.ErrUnavailable, err)
	}
	_ = os.Remove(l.metaPath(key))
	return true, nil
}

// List returns the blobs whose key starts with prefix, sorted by key.
func (l *LocalStore) List(ctx context.Context, prefix string) ([]Object, error) {
	out := []Object{}
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if d.IsDir() {
			if key == metaDir || key == tmpDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, l.describe(key, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list blobs: %w", common.ErrUnavailable, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
