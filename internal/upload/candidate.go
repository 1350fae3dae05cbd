package upload

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Candidate is a file offered by drag-and-drop or the file picker that has
// not been validated yet.
type Candidate interface {
	Name() string
	MediaType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

const (
	octetStream = "application/octet-stream"
	spoolPrefix = "spool-"
)

// IsVideo reports whether a media type names a video.
func IsVideo(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "video/")
}

// FileCandidate is a candidate spooled to a local file.
type FileCandidate struct {
	name      string
	mediaType string
	size      int64
	path      string
}

func (c *FileCandidate) Name() string      { return c.name }
func (c *FileCandidate) MediaType() string { return c.mediaType }
func (c *FileCandidate) Size() int64       { return c.size }

func (c *FileCandidate) Open() (io.ReadCloser, error) {
	return os.Open(c.path)
}

// Remove deletes the spool file.
func (c *FileCandidate) Remove() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SpoolPart copies a multipart file part into dir and returns it as a
// candidate. At most limit+1 bytes are read: a part longer than limit is
// reported with size limit+1 and is never read to the end. The media type
// comes from the part header, or from the content when the client sent none.
func SpoolPart(part *multipart.Part, dir string, limit int64) (*FileCandidate, error) {
	f, err := os.CreateTemp(dir, spoolPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(part, limit+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to spool %q: %w", part.FileName(), err)
	}

	c := &FileCandidate{
		name:      filepath.Base(part.FileName()),
		mediaType: part.Header.Get("Content-Type"),
		size:      written,
		path:      f.Name(),
	}

	if c.mediaType == "" || c.mediaType == octetStream {
		if m, err := mimetype.DetectFile(c.path); err == nil {
			c.mediaType = m.String()
		}
	}

	return c, nil
}

// CleanSpool removes spool files left in dir, such as those of requests cut
// short by a crash. It returns how many it removed.
func CleanSpool(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read spool dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), spoolPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
