// Package archive builds zip files from named attachment streams.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// Entry is one file to place in the archive.
type Entry struct {
	Name     string
	Modified time.Time
}

// OpenFunc opens the content of a named entry. The archive closes the reader.
type OpenFunc func(ctx context.Context, name string) (io.ReadCloser, error)

// Archive is a finished zip file on local disk.
type Archive struct {
	Path    string
	Size    int64
	Entries []string
}

// Build writes one deflated entry per attachment into a temp file under dir
// (os.TempDir when empty). Entries are written in name order and each one is
// streamed, never held in memory. On error the temp file is removed.
func Build(ctx context.Context, dir string, entries []Entry, open OpenFunc) (*Archive, error) {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return nil, fmt.Errorf("duplicate archive entry %q", sorted[i].Name)
		}
	}

	f, err := os.CreateTemp(dir, "zipjob-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	a := &Archive{Path: f.Name()}
	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(a.Path)
		}
	}()

	zw := zip.NewWriter(f)
	for _, e := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := addEntry(ctx, zw, e, open); err != nil {
			return nil, err
		}
		a.Entries = append(a.Entries, e.Name)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	a.Size = info.Size()
	ok = true
	return a, nil
}

func addEntry(ctx context.Context, zw *zip.Writer, e Entry, open OpenFunc) error {
	rc, err := open(ctx, e.Name)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Name, err)
	}
	defer rc.Close()

	hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
	if !e.Modified.IsZero() {
		hdr.Modified = e.Modified
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", e.Name, err)
	}
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("write entry %s: %w", e.Name, err)
	}
	return nil
}

// Open reads the finished archive.
func (a *Archive) Open() (*os.File, error) {
	return os.Open(a.Path)
}

// Remove deletes the local file. Safe to call more than once.
func (a *Archive) Remove() error {
	err := os.Remove(a.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
