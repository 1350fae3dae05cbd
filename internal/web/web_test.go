package web

import (
	"bytes"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-edit/internal/upload"
)

func render(t *testing.T, data PageData) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Render(&buf, data); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return buf.String()
}

func TestRender_Idle(t *testing.T) {
	out := render(t, PageData{View: upload.View{
		State:        upload.StateIdle,
		ErrorMessage: "Please upload a video file",
		MaxSizeLabel: "100MB",
		PickerArmed:  true,
	}})

	for _, want := range []string{
		"Drag and drop a video file here, or click to select",
		"Maximum file size: 100MB",
		"Please upload a video file",
		`accept="video/*"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("idle page missing %q", want)
		}
	}
	if strings.Contains(out, "<video") || strings.Contains(out, "New Upload") {
		t.Error("idle page must not render the populated view")
	}
	if strings.Count(out, "picker.click();") != 1 {
		t.Error("picker must only be opened from the drop zone click handler")
	}
}

func TestRender_Populated(t *testing.T) {
	out := render(t, PageData{View: upload.View{
		State:       upload.StatePopulated,
		FileName:    "<clip>.mp4",
		Instruction: "cut the intro",
		PreviewURL:  "/preview/abc",
	}})

	for _, want := range []string{
		`src="/preview/abc"`,
		"Edit the video with natural language",
		"cut the intro",
		"New Upload",
		"&lt;clip&gt;.mp4",
		`action="/widget/reset"`,
		`reset.addEventListener("submit"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("populated page missing %q", want)
		}
	}
	if strings.Contains(out, "Maximum file size") {
		t.Error("populated page must not render the drop target")
	}
	if strings.Count(out, "picker.click();") != 1 {
		t.Error("picker must only be opened from the New Upload handler")
	}
}
