package preview

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// Serve streams a preview, honouring a single byte range.
func (r *Registry) Serve(w http.ResponseWriter, req *http.Request, id string) error {
	entry, ok := r.Lookup(id)
	if !ok {
		http.Error(w, "preview not found", http.StatusNotFound)
		return nil
	}

	file, err := os.Open(entry.Path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "preview not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open preview: %w", err)
	}
	defer file.Close()

	size := entry.Size

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType(entry))
	w.Header().Set("Cache-Control", "private, no-store")

	br, ok, err := ParseRange(req.Header.Get("Range"), size)
	if errors.Is(err, ErrUnsatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if !ok {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if req.Method == http.MethodHead {
			return nil
		}
		_, err := io.Copy(w, file)
		return err
	}

	w.Header().Set("Content-Length", strconv.FormatInt(br.Length(), 10))
	w.Header().Set("Content-Range", br.Header(size))
	w.WriteHeader(http.StatusPartialContent)
	if req.Method == http.MethodHead {
		return nil
	}

	if _, err := file.Seek(br.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	_, err = io.CopyN(w, file, br.Length())
	return err
}

func contentType(e *Entry) string {
	if e.MediaType != "" {
		return e.MediaType
	}
	if ct := mime.TypeByExtension(filepath.Ext(e.Name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
