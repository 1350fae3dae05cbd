// Package upload implements the upload widget: single-file intake with
// validation, a revocable preview and an editable instruction.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// DefaultMaxSize is the default upload limit (100 MiB).
const DefaultMaxSize int64 = 100 * 1024 * 1024

const mebibyte = 1024 * 1024

// State is the rendering state of a widget.
type State string

const (
	StateIdle      State = "idle"
	StatePopulated State = "populated"
)

// Handle is a revocable reference to a candidate's bytes used for rendering.
type Handle struct {
	ID  string
	URL string
}

// PreviewStore acquires and releases preview handles.
type PreviewStore interface {
	Acquire(ctx context.Context, c Candidate) (Handle, error)
	Release(h Handle) error
}

// Session is the transient state held by one widget instance.
type Session struct {
	SelectedFile Candidate
	Preview      *Handle
	FileName     string
	ErrorMessage string
	Instruction  string
}

// View is a snapshot of a widget for rendering.
type View struct {
	State        State
	FileName     string
	ErrorMessage string
	Instruction  string
	PreviewURL   string
	PreviewID    string
	MaxSize      int64
	MaxSizeLabel string
	PickerArmed  bool
}

// Widget owns one UploadSession. A widget is not safe for concurrent use;
// callers apply events serially.
type Widget struct {
	maxSize  int64
	previews PreviewStore
	onUpload func(Candidate)
	logger   *slog.Logger

	session Session
	armed   bool
	closed  bool
}

// Option configures a Widget.
type Option func(*Widget)

// WithMaxSize overrides the size limit in bytes.
func WithMaxSize(n int64) Option {
	return func(w *Widget) {
		if n > 0 {
			w.maxSize = n
		}
	}
}

// WithOnUpload sets the acceptance callback.
func WithOnUpload(fn func(Candidate)) Option {
	return func(w *Widget) {
		w.onUpload = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Widget) {
		w.logger = l
	}
}

// New creates an empty widget in the Idle state.
func New(previews PreviewStore, opts ...Option) *Widget {
	w := &Widget{
		maxSize:  DefaultMaxSize,
		previews: previews,
		armed:    true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// LimitLabel formats a byte limit in whole megabytes, rounding down.
func LimitLabel(maxSize int64) string {
	return fmt.Sprintf("%dMB", maxSize/mebibyte)
}

// MaxSize returns the configured limit in bytes.
func (w *Widget) MaxSize() int64 {
	return w.maxSize
}

// State returns Populated while a file is selected and Idle otherwise.
func (w *Widget) State() State {
	if w.session.SelectedFile != nil {
		return StatePopulated
	}
	return StateIdle
}

// Session returns a copy of the current session.
func (w *Widget) Session() Session {
	s := w.session
	if s.Preview != nil {
		h := *s.Preview
		s.Preview = &h
	}
	return s
}

// Drop applies a drop or picker selection. Only the first candidate is
// considered. Validation failures are recorded in the session's error
// message and are not returned. The returned error reports a failure to
// acquire the preview; the session keeps its previous file in that case.
func (w *Widget) Drop(ctx context.Context, candidates []Candidate) error {
	if w.closed {
		return nil
	}
	w.session.ErrorMessage = ""

	if len(candidates) == 0 || candidates[0] == nil {
		return nil
	}
	c := candidates[0]

	if verr := w.validate(c); verr != nil {
		w.session.ErrorMessage = verr.Message
		w.log().Debug("candidate rejected", "file", c.Name(), "reason", verr.Kind)
		return nil
	}

	h, err := w.previews.Acquire(ctx, c)
	if err != nil {
		w.session.ErrorMessage = "Could not prepare a preview for this file"
		return fmt.Errorf("failed to acquire preview for %q: %w", c.Name(), err)
	}

	w.releasePreview()
	w.session.SelectedFile = c
	w.session.Preview = &h
	w.session.FileName = c.Name()
	w.armed = false

	if w.onUpload != nil {
		w.onUpload(c)
	}
	return nil
}

// Validate checks a candidate against the widget's rules without changing
// any state.
func (w *Widget) Validate(c Candidate) error {
	if verr := w.validate(c); verr != nil {
		return verr
	}
	return nil
}

func (w *Widget) validate(c Candidate) *ValidationError {
	if !IsVideo(c.MediaType()) {
		return wrongMediaType()
	}
	if c.Size() > w.maxSize {
		return tooLarge(w.maxSize)
	}
	return nil
}

// Reset returns the widget to Idle, releasing the preview, and re-arms the
// picker for a new attempt.
func (w *Widget) Reset() {
	w.releasePreview()
	w.session = Session{}
	w.armed = true
}

// SetInstruction updates the instruction text.
func (w *Widget) SetInstruction(text string) {
	w.session.Instruction = text
}

// Close tears the widget down and releases its preview. Further calls are
// no-ops.
func (w *Widget) Close() {
	if w.closed {
		return
	}
	w.releasePreview()
	w.session = Session{}
	w.armed = false
	w.closed = true
}

// Closed reports whether Close has been called.
func (w *Widget) Closed() bool {
	return w.closed
}

// View returns a rendering snapshot.
func (w *Widget) View() View {
	v := View{
		State:        w.State(),
		FileName:     w.session.FileName,
		ErrorMessage: w.session.ErrorMessage,
		Instruction:  w.session.Instruction,
		MaxSize:      w.maxSize,
		MaxSizeLabel: LimitLabel(w.maxSize),
		PickerArmed:  w.armed,
	}
	if w.session.Preview != nil {
		v.PreviewURL = w.session.Preview.URL
		v.PreviewID = w.session.Preview.ID
	}
	return v
}

func (w *Widget) releasePreview() {
	if w.session.Preview == nil {
		return
	}
	h := *w.session.Preview
	w.session.Preview = nil
	if err := w.previews.Release(h); err != nil {
		w.log().Warn("failed to release preview", "preview_id", h.ID, "error", err)
	}
}

func (w *Widget) log() *slog.Logger {
	if w.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return w.logger
}
