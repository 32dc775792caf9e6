package service

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"

	"lumen/internal/domain"
	"lumen/internal/domain/models"
	"lumen/internal/domain/repositories"
	"lumen/internal/domain/services"
	"lumen/internal/events"
)

// initialUserMessage is the user-authored entry opening every transcript.
const initialUserMessage = "Image captured."

// sessionService implements the SessionService interface. It is the single
// owner of the home screen state; every mutation happens under mu and every
// transition publishes an immutable snapshot to subscribers.
//
// Vision calls run in a detached goroutine so callers get the loading
// snapshot immediately. A generation counter stamps each call; a result whose
// generation no longer matches (the session was reset or replaced meanwhile)
// is dropped unobserved rather than folded into a newer session.
type sessionService struct {
	describe     *DescribeImageUseCase
	continueChat *ContinueChatUseCase
	save         *SaveCaptureUseCase
	prefs        repositories.PreferenceRepository
	captures     repositories.CaptureRepository
	images       repositories.ImageStore
	language     string
	logger       *slog.Logger

	mu         sync.Mutex
	generation uint64
	state      services.ScreenState
	transcript []models.ChatMessage
	imageRefs  []string
	staged     []image.Image
	captureID  int64
	isLoading  bool
	isAITyping bool
	lastError  string

	broadcast *events.Broadcaster[services.SessionSnapshot]
}

// NewSessionService creates the home state machine in its initial state.
func NewSessionService(
	describe *DescribeImageUseCase,
	continueChat *ContinueChatUseCase,
	save *SaveCaptureUseCase,
	prefs repositories.PreferenceRepository,
	captures repositories.CaptureRepository,
	images repositories.ImageStore,
	language string,
	logger *slog.Logger,
) services.SessionService {
	s := &sessionService{
		describe:     describe,
		continueChat: continueChat,
		save:         save,
		prefs:        prefs,
		captures:     captures,
		images:       images,
		language:     language,
		logger:       logger,
		state:        services.StateInitial,
		broadcast:    events.NewBroadcaster[services.SessionSnapshot](),
	}
	s.broadcast.Publish(s.snapshotLocked())
	return s
}

// Describe starts a new session around the given image. The previous
// in-memory session, if any, is replaced; persisted history is untouched.
func (s *sessionService) Describe(ctx context.Context, img image.Image, source services.ImageSource) (services.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isLoading || s.isAITyping {
		return s.snapshotLocked(), &domain.BusyError{Message: "a description is already in progress"}
	}

	apiKey, err := s.apiKey(ctx)
	if err != nil {
		s.lastError = err.Error()
		s.publishLocked()
		return s.snapshotLocked(), err
	}

	ref, err := s.images.Save(ctx, img)
	if err != nil {
		s.logger.Error("image persist failed", "source", source, "error", err)
		s.lastError = "could not save the captured image"
		s.publishLocked()
		return s.snapshotLocked(), fmt.Errorf("persist image: %w", err)
	}

	s.generation++
	gen := s.generation
	s.state = services.StateImageCaptured
	s.transcript = []models.ChatMessage{{Content: initialUserMessage, FromUser: true}}
	s.imageRefs = []string{ref}
	s.staged = nil
	s.captureID = 0
	s.isLoading = true
	s.lastError = ""
	s.publishLocked()

	// The opening call carries no history: the "Image captured." entry is a
	// transcript artifact, not part of the wire conversation.
	go s.runDescribe(context.WithoutCancel(ctx), gen, apiKey, img)

	return s.snapshotLocked(), nil
}

func (s *sessionService) runDescribe(ctx context.Context, gen uint64, apiKey string, img image.Image) {
	text, err := s.describe.Invoke(ctx, apiKey, img, nil, s.language)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		// The session was reset or replaced while the call was in flight;
		// its result is not observed.
		return
	}

	s.isLoading = false
	if err != nil {
		s.lastError = err.Error()
		s.publishLocked()
		return
	}

	s.transcript = append(s.transcript, models.ChatMessage{Content: text})
	s.persistLocked(ctx)
	s.publishLocked()
}

// SendMessage appends a user entry and requests the next assistant response,
// consuming any staged images on success.
func (s *sessionService) SendMessage(ctx context.Context, text string) (services.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != services.StateImageCaptured {
		return s.snapshotLocked(), &domain.ValidationError{Message: domain.ErrNoActiveSession.Error()}
	}
	if s.isLoading || s.isAITyping {
		return s.snapshotLocked(), &domain.BusyError{Message: domain.ErrBusy.Error()}
	}
	if strings.TrimSpace(text) == "" {
		return s.snapshotLocked(), &domain.ValidationError{Message: "message must not be empty"}
	}

	apiKey, err := s.apiKey(ctx)
	if err != nil {
		s.lastError = err.Error()
		s.publishLocked()
		return s.snapshotLocked(), err
	}

	s.transcript = append(s.transcript, models.ChatMessage{Content: text, FromUser: true})
	s.isAITyping = true
	s.lastError = ""
	s.publishLocked()

	gen := s.generation
	history := s.transcriptCopyLocked()
	history = history[:len(history)-1] // the new entry travels as the prompt
	staged := make([]image.Image, len(s.staged))
	copy(staged, s.staged)

	go s.runSend(context.WithoutCancel(ctx), gen, apiKey, text, history, staged)

	return s.snapshotLocked(), nil
}

func (s *sessionService) runSend(ctx context.Context, gen uint64, apiKey, text string, history []models.ChatMessage, staged []image.Image) {
	reply, err := s.continueChat.Invoke(ctx, apiKey, text, history, staged, s.language)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}

	s.isAITyping = false
	if err != nil {
		// The user entry stays (transcript is append-only) and staged images
		// are retained so the user can retry.
		s.lastError = err.Error()
		s.publishLocked()
		return
	}

	s.transcript = append(s.transcript, models.ChatMessage{Content: reply})

	// Staged images were consumed by the successful send: persist each one
	// and attach its reference to the session.
	for _, img := range staged {
		ref, saveErr := s.images.Save(ctx, img)
		if saveErr != nil {
			s.logger.Error("staged image persist failed", "error", saveErr)
			continue
		}
		s.imageRefs = append(s.imageRefs, ref)
	}
	s.staged = nil

	s.persistLocked(ctx)
	s.publishLocked()
}

// StageImages attaches images to the next outgoing message. The staged total
// never exceeds the configured maximum; excess offers are silently dropped.
func (s *sessionService) StageImages(ctx context.Context, imgs ...image.Image) (services.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != services.StateImageCaptured {
		return s.snapshotLocked(), &domain.ValidationError{Message: domain.ErrNoActiveSession.Error()}
	}

	limit := models.DefaultMaxImagesInChat
	if prefs, err := s.prefs.Get(ctx); err == nil && prefs.MaxImagesInChat > 0 {
		limit = prefs.MaxImagesInChat
	}

	for _, img := range imgs {
		if len(s.staged) >= limit {
			break
		}
		s.staged = append(s.staged, img)
	}
	s.publishLocked()
	return s.snapshotLocked(), nil
}

// RemoveStagedImage discards one staged image by position.
func (s *sessionService) RemoveStagedImage(ctx context.Context, index int) (services.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.staged) {
		return s.snapshotLocked(), &domain.ValidationError{Message: fmt.Sprintf("no staged image at index %d", index)}
	}
	s.staged = append(s.staged[:index], s.staged[index+1:]...)
	s.publishLocked()
	return s.snapshotLocked(), nil
}

// Restore loads a persisted session and enters the image-captured state with
// its exact transcript and image references.
func (s *sessionService) Restore(ctx context.Context, captureID int64) (services.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isLoading || s.isAITyping {
		return s.snapshotLocked(), &domain.BusyError{Message: domain.ErrBusy.Error()}
	}

	session, err := s.captures.GetByID(ctx, captureID)
	if err != nil {
		s.lastError = "could not find the capture in history"
		s.publishLocked()
		return s.snapshotLocked(), err
	}

	// Resolving the first image up front keeps restore failures (missing or
	// unreadable file) on this call instead of the next send.
	if len(session.ImageRefs) > 0 {
		if _, err := s.images.Load(ctx, session.ImageRefs[0]); err != nil {
			s.logger.Error("restore image load failed", "capture_id", captureID, "error", err)
			s.lastError = "could not load the image from history"
			s.publishLocked()
			return s.snapshotLocked(), fmt.Errorf("load session image: %w", err)
		}
	}

	s.generation++
	s.state = services.StateImageCaptured
	s.transcript = session.Transcript
	s.imageRefs = session.ImageRefs
	s.staged = nil
	s.captureID = session.ID
	s.isLoading = false
	s.isAITyping = false
	s.lastError = ""
	s.publishLocked()

	return s.snapshotLocked(), nil
}

// ExportImage copies the session's first image into the shared gallery.
func (s *sessionService) ExportImage(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != services.StateImageCaptured || len(s.imageRefs) == 0 {
		return "", &domain.ValidationError{Message: domain.ErrNoActiveSession.Error()}
	}

	path, err := s.images.Export(ctx, s.imageRefs[0])
	if err != nil {
		s.lastError = "could not save the image to the gallery"
		s.publishLocked()
		return "", err
	}
	return path, nil
}

// Reset discards the in-memory session. Persisted history is untouched.
func (s *sessionService) Reset(ctx context.Context) services.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.state = services.StateInitial
	s.transcript = nil
	s.imageRefs = nil
	s.staged = nil
	s.captureID = 0
	s.isLoading = false
	s.isAITyping = false
	s.lastError = ""
	s.publishLocked()
	return s.snapshotLocked()
}

// DismissError clears the surfaced error, if any.
func (s *sessionService) DismissError(ctx context.Context) services.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = ""
	s.publishLocked()
	return s.snapshotLocked()
}

// Snapshot returns the current state.
func (s *sessionService) Snapshot(ctx context.Context) services.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Watch subscribes to state snapshots with replay-current semantics.
func (s *sessionService) Watch(ctx context.Context) (<-chan services.SessionSnapshot, func(), error) {
	ch, cancel := s.broadcast.Subscribe()
	return ch, cancel, nil
}

// persistLocked saves the current transcript and image references under the
// session's row id, recording the id allocated on first save. Persistence is
// best-effort: a failed save is logged, not surfaced.
func (s *sessionService) persistLocked(ctx context.Context) {
	session := &models.CaptureSession{
		ID:         s.captureID,
		ImageRefs:  append([]string(nil), s.imageRefs...),
		Transcript: s.transcriptCopyLocked(),
	}
	if err := s.save.Invoke(ctx, session); err != nil {
		s.logger.Error("capture persist failed", "capture_id", s.captureID, "error", err)
		return
	}
	s.captureID = session.ID
}

func (s *sessionService) apiKey(ctx context.Context) (string, error) {
	prefs, err := s.prefs.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("read preferences: %w", err)
	}
	if strings.TrimSpace(prefs.APIKey) == "" {
		return "", &domain.PreconditionError{Message: "API key not configured. Set it in settings."}
	}
	return prefs.APIKey, nil
}

func (s *sessionService) transcriptCopyLocked() []models.ChatMessage {
	return append([]models.ChatMessage(nil), s.transcript...)
}

func (s *sessionService) snapshotLocked() services.SessionSnapshot {
	return services.SessionSnapshot{
		State:        s.state,
		ImageRefs:    append([]string(nil), s.imageRefs...),
		Transcript:   s.transcriptCopyLocked(),
		StagedImages: len(s.staged),
		CaptureID:    s.captureID,
		IsLoading:    s.isLoading,
		IsAITyping:   s.isAITyping,
		Error:        s.lastError,
	}
}

func (s *sessionService) publishLocked() {
	s.broadcast.Publish(s.snapshotLocked())
}
