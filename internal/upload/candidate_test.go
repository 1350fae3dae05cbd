package upload

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func firstPart(t *testing.T, filename, contentType string, body []byte) *multipart.Part {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	pw, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	pw.Write(body)
	mw.Close()

	part, err := multipart.NewReader(&buf, mw.Boundary()).NextPart()
	if err != nil {
		t.Fatalf("NextPart() error = %v", err)
	}
	return part
}

func TestSpoolPart_DeclaredType(t *testing.T) {
	dir := t.TempDir()
	part := firstPart(t, "clip.mp4", "video/mp4", []byte("not really a video"))

	c, err := SpoolPart(part, dir, 1024)
	if err != nil {
		t.Fatalf("SpoolPart() error = %v", err)
	}
	defer c.Remove()

	if c.Name() != "clip.mp4" {
		t.Errorf("Name() = %q, want clip.mp4", c.Name())
	}
	if c.MediaType() != "video/mp4" {
		t.Errorf("MediaType() = %q, want video/mp4", c.MediaType())
	}
	if c.Size() != int64(len("not really a video")) {
		t.Errorf("Size() = %d", c.Size())
	}

	rc, err := c.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "not really a video" {
		t.Errorf("content = %q", data)
	}
}

func TestSpoolPart_SniffsMissingType(t *testing.T) {
	dir := t.TempDir()
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	part := firstPart(t, "picture", "", png)

	c, err := SpoolPart(part, dir, 1024)
	if err != nil {
		t.Fatalf("SpoolPart() error = %v", err)
	}
	defer c.Remove()

	if c.MediaType() != "image/png" {
		t.Errorf("MediaType() = %q, want image/png", c.MediaType())
	}
	if IsVideo(c.MediaType()) {
		t.Error("sniffed PNG must not count as video")
	}
}

func TestSpoolPart_CapsOversizedPart(t *testing.T) {
	dir := t.TempDir()
	part := firstPart(t, "big.mp4", "video/mp4", []byte(strings.Repeat("x", 100)))

	c, err := SpoolPart(part, dir, 10)
	if err != nil {
		t.Fatalf("SpoolPart() error = %v", err)
	}
	defer c.Remove()

	if c.Size() != 11 {
		t.Errorf("Size() = %d, want 11", c.Size())
	}

	w := New(newFakeStore(), WithMaxSize(10))
	if err := w.Validate(c); err == nil {
		t.Error("Validate() should reject a capped part")
	}
}

func TestSpoolPart_StripsDirectories(t *testing.T) {
	dir := t.TempDir()
	part := firstPart(t, "../../etc/clip.mov", "video/quicktime", []byte("abc"))

	c, err := SpoolPart(part, dir, 1024)
	if err != nil {
		t.Fatalf("SpoolPart() error = %v", err)
	}
	defer c.Remove()

	if c.Name() != "clip.mov" {
		t.Errorf("Name() = %q, want clip.mov", c.Name())
	}
}

func TestFileCandidate_Remove(t *testing.T) {
	dir := t.TempDir()
	part := firstPart(t, "clip.mp4", "video/mp4", []byte("abc"))

	c, err := SpoolPart(part, dir, 1024)
	if err != nil {
		t.Fatalf("SpoolPart() error = %v", err)
	}

	if err := c.Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(c.path); !os.IsNotExist(err) {
		t.Errorf("spool file still exists: %v", err)
	}
	if err := c.Remove(); err != nil {
		t.Errorf("second Remove() error = %v", err)
	}
}

func TestCleanSpool(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"spool-1", "spool-2", "keep.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	n, err := CleanSpool(dir)
	if err != nil {
		t.Fatalf("CleanSpool() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CleanSpool() = %d, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.txt")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "spool-1")); !os.IsNotExist(err) {
		t.Errorf("spool file still exists: %v", err)
	}
}

func TestCleanSpool_MissingDir(t *testing.T) {
	if _, err := CleanSpool(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("CleanSpool() should fail for a missing directory")
	}
}
