package models

import (
	"time"
)

// ChatMessage is a single entry in a capture session's transcript.
// FromUser is true for human-authored entries and false for assistant
// responses. The synthetic system instruction sent with every model call is a
// protocol detail and is never stored as a ChatMessage.
type ChatMessage struct {
	Content  string `json:"content"`
	FromUser bool   `json:"is_from_user"`
}

// CaptureSession is one logical image+conversation unit shown in history.
//
// ID is zero until the session is first persisted and immutable afterwards:
// every subsequent persist of the same logical conversation reuses it. The
// transcript is append-only while the session is live; individual messages are
// never edited or removed, only the whole session can be deleted.
type CaptureSession struct {
	ID         int64         `json:"id"`
	ImageRefs  []string      `json:"image_refs"`
	Transcript []ChatMessage `json:"transcript"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Persisted reports whether the session has been assigned a row id.
func (s *CaptureSession) Persisted() bool {
	return s.ID != 0
}

// LastAssistantMessage returns the most recent assistant entry, or "" when the
// transcript holds none. History listings use it as the session summary.
func (s *CaptureSession) LastAssistantMessage() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if !s.Transcript[i].FromUser {
			return s.Transcript[i].Content
		}
	}
	return ""
}
