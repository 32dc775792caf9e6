package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"lumen/internal/domain"
	"lumen/internal/domain/models"
	"lumen/internal/domain/services"
)

// fakeVision answers generation calls from a scripted respond function and
// records every request it sees.
type fakeVision struct {
	mu       sync.Mutex
	requests []*services.VisionRequest
	respond  func(req *services.VisionRequest) (string, error)
}

func (f *fakeVision) GenerateContent(ctx context.Context, req *services.VisionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return "a description", nil
	}
	return respond(req)
}

func (f *fakeVision) recorded() []*services.VisionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*services.VisionRequest(nil), f.requests...)
}

type memCaptureRepo struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]models.CaptureSession
	upserts int
}

func newMemCaptureRepo() *memCaptureRepo {
	return &memCaptureRepo{rows: make(map[int64]models.CaptureSession)}
}

func (r *memCaptureRepo) Upsert(ctx context.Context, session *models.CaptureSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if session.ID == 0 {
		r.nextID++
		session.ID = r.nextID
	}
	r.rows[session.ID] = *session
	return nil
}

func (r *memCaptureRepo) GetByID(ctx context.Context, id int64) (*models.CaptureSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &row, nil
}

func (r *memCaptureRepo) List(ctx context.Context) ([]models.CaptureSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]models.CaptureSession, 0, len(r.rows))
	for _, row := range r.rows {
		sessions = append(sessions, row)
	}
	return sessions, nil
}

func (r *memCaptureRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memCaptureRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = make(map[int64]models.CaptureSession)
	return nil
}

func (r *memCaptureRepo) rowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type memPrefsRepo struct {
	mu    sync.Mutex
	prefs models.UserPreferences
}

func newMemPrefsRepo(apiKey string) *memPrefsRepo {
	prefs := models.DefaultPreferences()
	prefs.APIKey = apiKey
	return &memPrefsRepo{prefs: prefs}
}

func (r *memPrefsRepo) Get(ctx context.Context) (models.UserPreferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prefs, nil
}

func (r *memPrefsRepo) Set(ctx context.Context, req *models.UpdatePreferencesRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.APIKey != nil {
		r.prefs.APIKey = *req.APIKey
	}
	if req.MaxImagesInChat != nil {
		r.prefs.MaxImagesInChat = *req.MaxImagesInChat
	}
	return nil
}

func (r *memPrefsRepo) SetHasRated(ctx context.Context, rated bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs.HasRated = rated
	return nil
}

func (r *memPrefsRepo) SetLastPromptTime(ctx context.Context, unixMillis int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs.LastPromptTime = time.UnixMilli(unixMillis)
	return nil
}

func (r *memPrefsRepo) Watch(ctx context.Context) (<-chan models.UserPreferences, func(), error) {
	ch := make(chan models.UserPreferences, 1)
	ch <- r.prefs
	return ch, func() {}, nil
}

type memImageStore struct {
	mu     sync.Mutex
	nextID int
	files  map[string]image.Image
}

func newMemImageStore() *memImageStore {
	return &memImageStore{files: make(map[string]image.Image)}
}

func (s *memImageStore) Save(ctx context.Context, img image.Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ref := fmt.Sprintf("IMG_%04d.jpg", s.nextID)
	s.files[ref] = img
	return ref, nil
}

func (s *memImageStore) Export(ctx context.Context, ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[ref]; !ok {
		return "", domain.ErrNotFound
	}
	return "/gallery/" + ref, nil
}

func (s *memImageStore) Load(ctx context.Context, ref string) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.files[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return img, nil
}

func (s *memImageStore) Delete(ctx context.Context, refs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		delete(s.files, ref)
	}
	return nil
}

type sessionFixture struct {
	svc      services.SessionService
	vision   *fakeVision
	captures *memCaptureRepo
	prefs    *memPrefsRepo
	images   *memImageStore
}

func newSessionFixture(apiKey string) *sessionFixture {
	vision := &fakeVision{}
	captures := newMemCaptureRepo()
	prefs := newMemPrefsRepo(apiKey)
	images := newMemImageStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewSessionService(
		NewDescribeImageUseCase(vision),
		NewContinueChatUseCase(vision),
		NewSaveCaptureUseCase(captures),
		prefs,
		captures,
		images,
		"en",
		logger,
	)
	return &sessionFixture{svc: svc, vision: vision, captures: captures, prefs: prefs, images: images}
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 2, 2))
}

// waitSnapshot blocks until a published snapshot satisfies the predicate.
func waitSnapshot(t *testing.T, svc services.SessionService, want func(services.SessionSnapshot) bool) services.SessionSnapshot {
	t.Helper()
	snapshots, cancel, err := svc.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snapshots:
			if want(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot, current = %+v", svc.Snapshot(context.Background()))
		}
	}
}

func settled(snap services.SessionSnapshot) bool {
	return !snap.IsLoading && !snap.IsAITyping
}

func TestDescribeOpensSessionAndPersists(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	snap, err := f.svc.Describe(ctx, testImage(), services.SourceCamera)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if snap.State != services.StateImageCaptured {
		t.Errorf("state = %q, want %q", snap.State, services.StateImageCaptured)
	}
	if !snap.IsLoading {
		t.Error("expected loading snapshot immediately after Describe")
	}
	if len(snap.Transcript) != 1 || !snap.Transcript[0].FromUser {
		t.Fatalf("opening transcript = %+v, want one user entry", snap.Transcript)
	}
	if snap.Transcript[0].Content != "Image captured." {
		t.Errorf("opening entry = %q, want %q", snap.Transcript[0].Content, "Image captured.")
	}

	done := waitSnapshot(t, f.svc, settled)
	if len(done.Transcript) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(done.Transcript))
	}
	if done.Transcript[1].FromUser {
		t.Error("second entry should be the assistant's")
	}
	if done.CaptureID == 0 {
		t.Error("session should carry the persisted row id")
	}
	if f.captures.rowCount() != 1 {
		t.Errorf("persisted rows = %d, want 1", f.captures.rowCount())
	}

	reqs := f.vision.recorded()
	if len(reqs) != 1 {
		t.Fatalf("vision calls = %d, want 1", len(reqs))
	}
	if len(reqs[0].History) != 0 {
		t.Errorf("opening call history length = %d, want 0", len(reqs[0].History))
	}
	if len(reqs[0].Images) != 1 {
		t.Errorf("opening call images = %d, want 1", len(reqs[0].Images))
	}
}

func TestDescribeWithoutAPIKey(t *testing.T) {
	f := newSessionFixture("")

	_, err := f.svc.Describe(context.Background(), testImage(), services.SourceCamera)
	var precondition *domain.PreconditionError
	if !errors.As(err, &precondition) {
		t.Fatalf("Describe() error = %v, want PreconditionError", err)
	}

	snap := f.svc.Snapshot(context.Background())
	if snap.State != services.StateInitial {
		t.Errorf("state = %q, want %q", snap.State, services.StateInitial)
	}
	if snap.Error == "" {
		t.Error("missing API key should be surfaced on the snapshot")
	}
}

func TestSendMessagePersistsUnderSameRow(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	if _, err := f.svc.Describe(ctx, testImage(), services.SourceCamera); err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	first := waitSnapshot(t, f.svc, settled)

	if _, err := f.svc.SendMessage(ctx, "what color is it?"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	second := waitSnapshot(t, f.svc, func(s services.SessionSnapshot) bool {
		return settled(s) && len(s.Transcript) == 4
	})

	if second.CaptureID != first.CaptureID {
		t.Errorf("row id changed from %d to %d across persists", first.CaptureID, second.CaptureID)
	}
	if f.captures.rowCount() != 1 {
		t.Errorf("persisted rows = %d, want 1", f.captures.rowCount())
	}

	row, err := f.captures.GetByID(ctx, second.CaptureID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(row.Transcript) != 4 {
		t.Errorf("persisted transcript length = %d, want 4", len(row.Transcript))
	}

	reqs := f.vision.recorded()
	if len(reqs) != 2 {
		t.Fatalf("vision calls = %d, want 2", len(reqs))
	}
	// The chat call's history holds the exchange so far but not the entry
	// traveling as the prompt.
	if len(reqs[1].History) != 2 {
		t.Errorf("chat call history length = %d, want 2", len(reqs[1].History))
	}
	if reqs[1].Prompt != "what color is it?" {
		t.Errorf("chat prompt = %q", reqs[1].Prompt)
	}
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name        string
		openSession bool
		text        string
	}{
		{name: "no active session", openSession: false, text: "hello"},
		{name: "blank message", openSession: true, text: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture("key")
			if tt.openSession {
				if _, err := f.svc.Describe(context.Background(), testImage(), services.SourceCamera); err != nil {
					t.Fatalf("Describe() error = %v", err)
				}
				waitSnapshot(t, f.svc, settled)
			}

			_, err := f.svc.SendMessage(context.Background(), tt.text)
			var validation *domain.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("SendMessage(%q) error = %v, want ValidationError", tt.text, err)
			}
		})
	}
}

func TestFailedSendKeepsUserEntryAndStagedImages(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	if _, err := f.svc.Describe(ctx, testImage(), services.SourceCamera); err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	waitSnapshot(t, f.svc, settled)

	f.vision.mu.Lock()
	f.vision.respond = func(req *services.VisionRequest) (string, error) {
		return "", errors.New("model unavailable")
	}
	f.vision.mu.Unlock()

	if _, err := f.svc.StageImages(ctx, testImage()); err != nil {
		t.Fatalf("StageImages() error = %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, "tell me more"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	snap := waitSnapshot(t, f.svc, func(s services.SessionSnapshot) bool {
		return settled(s) && s.Error != ""
	})

	// The transcript is append-only: the user entry stays even though the
	// exchange failed, and the staged image survives for a retry.
	if len(snap.Transcript) != 3 {
		t.Errorf("transcript length = %d, want 3", len(snap.Transcript))
	}
	if !snap.Transcript[2].FromUser || snap.Transcript[2].Content != "tell me more" {
		t.Errorf("last entry = %+v, want the user's message", snap.Transcript[2])
	}
	if snap.StagedImages != 1 {
		t.Errorf("staged images = %d, want 1", snap.StagedImages)
	}
	if len(snap.ImageRefs) != 1 {
		t.Errorf("image refs = %d, want 1 (failed send must not attach images)", len(snap.ImageRefs))
	}

	// The failed exchange is not persisted.
	row, err := f.captures.GetByID(ctx, snap.CaptureID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(row.Transcript) != 2 {
		t.Errorf("persisted transcript length = %d, want 2", len(row.Transcript))
	}
}

func TestSuccessfulSendConsumesStagedImages(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	if _, err := f.svc.Describe(ctx, testImage(), services.SourceCamera); err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	waitSnapshot(t, f.svc, settled)

	if _, err := f.svc.StageImages(ctx, testImage(), testImage()); err != nil {
		t.Fatalf("StageImages() error = %v", err)
	}
	if _, err := f.svc.RemoveStagedImage(ctx, 0); err != nil {
		t.Fatalf("RemoveStagedImage() error = %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, "and this one?"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	snap := waitSnapshot(t, f.svc, func(s services.SessionSnapshot) bool {
		return settled(s) && len(s.Transcript) == 4
	})

	if snap.StagedImages != 0 {
		t.Errorf("staged images = %d, want 0 after a successful send", snap.StagedImages)
	}
	if len(snap.ImageRefs) != 2 {
		t.Errorf("image refs = %d, want 2", len(snap.ImageRefs))
	}

	reqs := f.vision.recorded()
	if got := len(reqs[len(reqs)-1].Images); got != 1 {
		t.Errorf("outgoing images on chat call = %d, want exactly 1", got)
	}
}

func TestStageImagesHonorsCap(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	if _, err := f.svc.Describe(ctx, testImage(), services.SourceCamera); err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	waitSnapshot(t, f.svc, settled)

	snap, err := f.svc.StageImages(ctx, testImage(), testImage(), testImage(), testImage(), testImage())
	if err != nil {
		t.Fatalf("StageImages() error = %v", err)
	}
	if snap.StagedImages != models.DefaultMaxImagesInChat {
		t.Errorf("staged images = %d, want cap %d", snap.StagedImages, models.DefaultMaxImagesInChat)
	}

	// Further offers past the cap are silently dropped, not an error.
	snap, err = f.svc.StageImages(ctx, testImage())
	if err != nil {
		t.Fatalf("StageImages() past cap error = %v", err)
	}
	if snap.StagedImages != models.DefaultMaxImagesInChat {
		t.Errorf("staged images = %d after excess offer, want %d", snap.StagedImages, models.DefaultMaxImagesInChat)
	}
}

func TestRemoveStagedImageOutOfRange(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	if _, err := f.svc.Describe(ctx, testImage(), services.SourceCamera); err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	waitSnapshot(t, f.svc, settled)

	_, err := f.svc.RemoveStagedImage(ctx, 0)
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("RemoveStagedImage() error = %v, want ValidationError", err)
	}
}

func TestBusyWhileCallInFlight(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	release := make(chan struct{})
	f.vision.respond = func(req *services.VisionRequest) (string, error) {
		<-release
		return "late description", nil
	}

	if _, err := f.svc.Describe(ctx, testImage(), services.SourceCamera); err != nil {
		t.Fatalf("Describe() error = %v", err)
	}

	_, err := f.svc.Describe(ctx, testImage(), services.SourceCamera)
	var busy *domain.BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("second Describe() error = %v, want BusyError", err)
	}

	close(release)
	waitSnapshot(t, f.svc, settled)
}

func TestResetDropsInFlightResult(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	release := make(chan struct{})
	f.vision.respond = func(req *services.VisionRequest) (string, error) {
		<-release
		return "stale description", nil
	}

	if _, err := f.svc.Describe(ctx, testImage(), services.SourceCamera); err != nil {
		t.Fatalf("Describe() error = %v", err)
	}

	snap := f.svc.Reset(ctx)
	if snap.State != services.StateInitial {
		t.Fatalf("state after reset = %q, want %q", snap.State, services.StateInitial)
	}

	close(release)

	// The stale result must never fold into the reset session or persist.
	time.Sleep(50 * time.Millisecond)
	snap = f.svc.Snapshot(ctx)
	if snap.State != services.StateInitial || len(snap.Transcript) != 0 {
		t.Errorf("stale result leaked into reset session: %+v", snap)
	}
	if f.captures.rowCount() != 0 {
		t.Errorf("persisted rows = %d, want 0", f.captures.rowCount())
	}
}

func TestRestoreReproducesPersistedSession(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	ref, err := f.images.Save(ctx, testImage())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	stored := &models.CaptureSession{
		ImageRefs: []string{ref},
		Transcript: []models.ChatMessage{
			{Content: "Image captured.", FromUser: true},
			{Content: "A red bicycle leaning on a wall."},
			{Content: "what brand?", FromUser: true},
			{Content: "The frame reads Brompton."},
		},
		Timestamp: time.Now(),
	}
	if err := f.captures.Upsert(ctx, stored); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	snap, err := f.svc.Restore(ctx, stored.ID)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if snap.State != services.StateImageCaptured {
		t.Errorf("state = %q, want %q", snap.State, services.StateImageCaptured)
	}
	if snap.CaptureID != stored.ID {
		t.Errorf("capture id = %d, want %d", snap.CaptureID, stored.ID)
	}
	if len(snap.Transcript) != len(stored.Transcript) {
		t.Fatalf("transcript length = %d, want %d", len(snap.Transcript), len(stored.Transcript))
	}
	for i, entry := range stored.Transcript {
		if snap.Transcript[i] != entry {
			t.Errorf("transcript[%d] = %+v, want %+v", i, snap.Transcript[i], entry)
		}
	}
	if len(snap.ImageRefs) != 1 || snap.ImageRefs[0] != ref {
		t.Errorf("image refs = %v, want [%s]", snap.ImageRefs, ref)
	}
}

func TestRestoreUnknownID(t *testing.T) {
	f := newSessionFixture("key")

	_, err := f.svc.Restore(context.Background(), 404)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Restore() error = %v, want ErrNotFound", err)
	}
}

func TestRestoreMissingImageFile(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	stored := &models.CaptureSession{
		ImageRefs:  []string{"IMG_gone.jpg"},
		Transcript: []models.ChatMessage{{Content: "Image captured.", FromUser: true}},
		Timestamp:  time.Now(),
	}
	if err := f.captures.Upsert(ctx, stored); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if _, err := f.svc.Restore(ctx, stored.ID); err == nil {
		t.Fatal("Restore() with a missing image file should fail")
	}
	if snap := f.svc.Snapshot(ctx); snap.State != services.StateInitial {
		t.Errorf("state = %q, want unchanged %q", snap.State, services.StateInitial)
	}
}

func TestExportImage(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	if _, err := f.svc.ExportImage(ctx); err == nil {
		t.Fatal("ExportImage() without a session should fail")
	}

	if _, err := f.svc.Describe(ctx, testImage(), services.SourceCamera); err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	snap := waitSnapshot(t, f.svc, settled)

	path, err := f.svc.ExportImage(ctx)
	if err != nil {
		t.Fatalf("ExportImage() error = %v", err)
	}
	if path != "/gallery/"+snap.ImageRefs[0] {
		t.Errorf("exported path = %q", path)
	}
}

func TestDismissError(t *testing.T) {
	f := newSessionFixture("")
	ctx := context.Background()

	f.svc.Describe(ctx, testImage(), services.SourceCamera)
	if snap := f.svc.Snapshot(ctx); snap.Error == "" {
		t.Fatal("expected a surfaced error")
	}

	if snap := f.svc.DismissError(ctx); snap.Error != "" {
		t.Errorf("error after dismiss = %q, want empty", snap.Error)
	}
}

func TestDescribeReplacesPreviousSession(t *testing.T) {
	f := newSessionFixture("key")
	ctx := context.Background()

	if _, err := f.svc.Describe(ctx, testImage(), services.SourceCamera); err != nil {
		t.Fatalf("first Describe() error = %v", err)
	}
	first := waitSnapshot(t, f.svc, settled)

	if _, err := f.svc.Describe(ctx, testImage(), services.SourceShare); err != nil {
		t.Fatalf("second Describe() error = %v", err)
	}
	second := waitSnapshot(t, f.svc, func(s services.SessionSnapshot) bool {
		return settled(s) && s.CaptureID != first.CaptureID
	})

	// Each describe opens a fresh session with its own row.
	if len(second.Transcript) != 2 {
		t.Errorf("transcript length = %d, want 2", len(second.Transcript))
	}
	if f.captures.rowCount() != 2 {
		t.Errorf("persisted rows = %d, want 2", f.captures.rowCount())
	}
}
