package services

import (
	"context"
	"image"

	"lumen/internal/domain/models"
)

// ScreenState tags the two-state screen model. Only StateImageCaptured
// carries image and transcript payload.
type ScreenState string

const (
	StateInitial       ScreenState = "initial"
	StateImageCaptured ScreenState = "image_captured"
)

// ImageSource distinguishes how an image entered the session. All three enter
// the same describe path; the source is surfaced for narration only.
type ImageSource string

const (
	SourceCamera  ImageSource = "camera"
	SourceGallery ImageSource = "gallery"
	SourceShare   ImageSource = "share"
)

// SessionSnapshot is an immutable view of the session state machine, rendered
// to subscribers after every transition. Slices are copies; holders may keep
// them across transitions.
type SessionSnapshot struct {
	State        ScreenState          `json:"state"`
	ImageRefs    []string             `json:"image_refs"`
	Transcript   []models.ChatMessage `json:"transcript"`
	StagedImages int                  `json:"staged_images"`
	CaptureID    int64                `json:"capture_id"`
	IsLoading    bool                 `json:"is_loading"`
	IsAITyping   bool                 `json:"is_ai_typing"`
	Error        string               `json:"error,omitempty"`
}

// SessionService owns the home screen state machine: image capture, staged
// image composition, message sending, persistence of transcript updates, and
// restoration of past sessions.
//
// Only one vision call is meaningful at a time; Describe and SendMessage
// return domain.ErrBusy while a previous call is outstanding. There is no
// cancellation or queueing.
type SessionService interface {
	// Describe enters the image-captured state with the given image, appends
	// the initial user-authored transcript entry, and requests the opening
	// description from the vision model. The first successful assistant
	// response persists the session.
	Describe(ctx context.Context, img image.Image, source ImageSource) (SessionSnapshot, error)

	// SendMessage appends a user entry, consumes any staged images, and
	// requests the next assistant response. A successful exchange is
	// persisted under the session's existing row id; a failed one leaves the
	// transcript and staged images untouched.
	SendMessage(ctx context.Context, text string) (SessionSnapshot, error)

	// StageImages attaches images to the next outgoing message, up to the
	// configured maximum total. Offers beyond the cap are silently dropped.
	StageImages(ctx context.Context, imgs ...image.Image) (SessionSnapshot, error)

	// RemoveStagedImage discards one staged image by position.
	RemoveStagedImage(ctx context.Context, index int) (SessionSnapshot, error)

	// Restore loads a persisted session by id and enters the image-captured
	// state with its exact transcript and image references.
	Restore(ctx context.Context, captureID int64) (SessionSnapshot, error)

	// ExportImage copies the session's first image into the shared gallery.
	ExportImage(ctx context.Context) (string, error)

	// Reset discards the in-memory session without touching persisted
	// history.
	Reset(ctx context.Context) SessionSnapshot

	// DismissError clears the surfaced error, if any.
	DismissError(ctx context.Context) SessionSnapshot

	// Snapshot returns the current state.
	Snapshot(ctx context.Context) SessionSnapshot

	// Watch subscribes to state snapshots. The current snapshot is replayed
	// to each new subscriber, then every transition is pushed.
	Watch(ctx context.Context) (<-chan SessionSnapshot, func(), error)
}
