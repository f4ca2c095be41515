// Package attachments manages the binary objects owned by an entity.
package attachments

import (
	"context"
	"fmt"
	"io"
	"strings"

	"notekeeper-zipjobs/internal/blob"
	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/models"
)

// Service reads and writes attachments through a blob store.
type Service struct {
	blobs    blob.Store
	maxCount int
	maxBytes int64
}

// NewService limits each entity to maxCount attachments of at most maxBytes
// each. A non-positive limit disables that check.
func NewService(blobs blob.Store, maxCount int, maxBytes int64) *Service {
	return &Service{blobs: blobs, maxCount: maxCount, maxBytes: maxBytes}
}

// List returns the entity's attachments sorted by name.
func (s *Service) List(ctx context.Context, entityID string) ([]models.Attachment, error) {
	prefix := blob.AttachmentPrefix(entityID)
	objs, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	out := make([]models.Attachment, 0, len(objs))
	for _, o := range objs {
		name := strings.TrimPrefix(o.Key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		out = append(out, models.Attachment{
			EntityID:    entityID,
			Name:        name,
			ContentType: o.ContentType,
			Size:        o.Size,
			CreatedAt:   o.CreatedAt,
		})
	}
	return out, nil
}

// Open streams one attachment. The caller closes the reader.
func (s *Service) Open(ctx context.Context, entityID, name string) (io.ReadCloser, models.Attachment, error) {
	if err := blob.ValidName(name); err != nil {
		return nil, models.Attachment{}, err
	}
	rc, obj, err := s.blobs.Get(ctx, blob.AttachmentKey(entityID, name))
	if err != nil {
		return nil, models.Attachment{}, fmt.Errorf("open attachment %s: %w", name, err)
	}
	return rc, models.Attachment{
		EntityID:    entityID,
		Name:        name,
		ContentType: obj.ContentType,
		Size:        obj.Size,
		CreatedAt:   obj.CreatedAt,
	}, nil
}

// Put stores an attachment, replacing one with the same name. created is
// false when an existing attachment was replaced. Adding a new name beyond
// the per-entity limit fails with common.ErrAttachmentLimit.
func (s *Service) Put(ctx context.Context, entityID, name string, body io.Reader, size int64, contentType string) (bool, error) {
	if err := blob.ValidName(name); err != nil {
		return false, err
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return false, fmt.Errorf("%w: attachment is %d bytes, limit is %d", common.ErrValidation, size, s.maxBytes)
	}
	key := blob.AttachmentKey(entityID, name)
	exists, err := s.blobs.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check attachment: %w", err)
	}
	if !exists && s.maxCount > 0 {
		current, err := s.List(ctx, entityID)
		if err != nil {
			return false, err
		}
		if len(current) >= s.maxCount {
			return false, fmt.Errorf("%w: entity already has %d attachments", common.ErrAttachmentLimit, len(current))
		}
	}
	cr := &cappedReader{r: body, max: s.maxBytes}
	if err := s.blobs.Put(ctx, key, cr, size, contentType); err != nil {
		if cr.exceeded {
			return false, cr.err()
		}
		return false, fmt.Errorf("store attachment: %w", err)
	}
	return !exists, nil
}

// Delete removes one attachment and reports whether it existed.
func (s *Service) Delete(ctx context.Context, entityID, name string) (bool, error) {
	if err := blob.ValidName(name); err != nil {
		return false, err
	}
	return s.blobs.Delete(ctx, blob.AttachmentKey(entityID, name))
}

// DeleteAll removes every attachment of the entity.
func (s *Service) DeleteAll(ctx context.Context, entityID string) error {
	list, err := s.List(ctx, entityID)
	if err != nil {
		return err
	}
	for _, a := range list {
		if _, err := s.blobs.Delete(ctx, blob.AttachmentKey(entityID, a.Name)); err != nil {
			return fmt.Errorf("delete attachment %s: %w", a.Name, err)
		}
	}
	return nil
}

// cappedReader fails the read that takes the stream past max bytes, so a
// store aborts the write before the previous object is replaced. A
// non-positive max disables the cap.
type cappedReader struct {
	r        io.Reader
	max      int64
	n        int64
	exceeded bool
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.exceeded {
		return 0, c.err()
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.max > 0 && c.n > c.max {
		c.exceeded = true
		return 0, c.err()
	}
	return n, err
}

func (c *cappedReader) err() error {
	return fmt.Errorf("%w: attachment exceeds %d bytes", common.ErrValidation, c.max)
}
