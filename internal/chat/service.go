package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/red-ai/redterm/internal/authz"
	"github.com/red-ai/redterm/internal/models"
	"github.com/red-ai/redterm/internal/quota"
	log "github.com/sirupsen/logrus"
)

// Conversation failure taxonomy.
var (
	// ErrNoSession indicates no conversation exists for the identity.
	ErrNoSession = errors.New("no active session")
	// ErrSessionBusy rejects a send while a previous one is still streaming.
	ErrSessionBusy = errors.New("session busy")
	// ErrQuotaExhausted rejects a send once the message allowance is spent.
	ErrQuotaExhausted = errors.New("message quota exhausted")
)

// streamFailureNotice is appended to the transcript when the upstream call
// fails mid-conversation.
const streamFailureNotice = "Sorry, I encountered an error processing your request. Please try again."

// Streamer produces a streamed model reply for a conversation history.
type Streamer interface {
	Stream(ctx context.Context, history []models.Message, onFragment func(string)) error
}

// session is one identity's in-memory conversation.
type session struct {
	class    authz.IdentityClass
	messages []models.Message
	busy     bool
}

// Service owns the per-identity conversations: transcript state, welcome
// seeding, quota enforcement, and the upstream streaming calls.
type Service struct {
	streamer Streamer
	quota    *quota.Tracker
	nowFunc  func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewService constructs a Service over the given streamer and quota tracker.
func NewService(streamer Streamer, tracker *quota.Tracker) *Service {
	return &Service{
		streamer: streamer,
		quota:    tracker,
		nowFunc:  time.Now,
		sessions: make(map[string]*session),
	}
}

// StartSession opens a fresh conversation for the identity, replacing any
// previous one, and returns the seeded transcript.
func (s *Service) StartSession(username string, class authz.IdentityClass) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &session{
		class:    class,
		messages: []models.Message{s.welcomeMessage(username, class)},
	}
	s.sessions[username] = sess
	return copyMessages(sess.messages)
}

// EndSession drops the identity's conversation state.
func (s *Service) EndSession(username string) {
	s.mu.Lock()
	delete(s.sessions, username)
	s.mu.Unlock()
}

// Transcript returns a copy of the identity's current transcript.
func (s *Service) Transcript(username string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[username]
	if !ok {
		return nil, ErrNoSession
	}
	return copyMessages(sess.messages), nil
}

// Clear discards the conversation and starts over: the upstream history is
// gone and the transcript is re-seeded with the welcome line.
func (s *Service) Clear(username string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[username]
	if !ok {
		return nil, ErrNoSession
	}
	if sess.busy {
		return nil, ErrSessionBusy
	}
	sess.messages = []models.Message{s.welcomeMessage(username, sess.class)}
	return copyMessages(sess.messages), nil
}

// Send submits a user message and streams the model reply into the
// transcript. The quota check happens before anything else; a rejected send
// moves no counter. One send per session at a time.
func (s *Service) Send(ctx context.Context, subject quota.Subject, text string, onFragment func(string)) ([]models.Message, error) {
	reached, errCheck := s.quota.IsLimitReached(ctx, subject)
	if errCheck != nil {
		return nil, errCheck
	}
	if reached {
		return nil, ErrQuotaExhausted
	}

	now := s.nowFunc().UnixMilli()
	userMessage := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: now,
	}
	placeholderID := uuid.NewString()
	placeholder := models.Message{
		ID:          placeholderID,
		Role:        models.RoleModel,
		Timestamp:   now,
		IsStreaming: true,
	}

	s.mu.Lock()
	sess, ok := s.sessions[subject.Username]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNoSession
	}
	if sess.busy {
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	sess.busy = true
	sess.messages = append(sess.messages, userMessage, placeholder)
	history := copyMessages(sess.messages[:len(sess.messages)-1])
	s.mu.Unlock()

	if errRecord := s.quota.RecordUsage(ctx, subject); errRecord != nil {
		s.rollback(subject.Username, placeholderID)
		return nil, errRecord
	}

	errStream := s.streamer.Stream(ctx, history, func(fragment string) {
		s.appendFragment(subject.Username, placeholderID, fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	sess.busy = false

	if errStream != nil {
		log.WithError(errStream).Warn("model stream failed")
		// An empty placeholder disappears; partial output stays. Either way
		// the user sees a notice instead of a hung reply.
		sess.messages = finalize(sess.messages, placeholderID)
		sess.messages = append(sess.messages, models.Message{
			ID:        models.NoticeMessageIDPrefix + uuid.NewString(),
			Role:      models.RoleModel,
			Content:   streamFailureNotice,
			Timestamp: s.nowFunc().UnixMilli(),
		})
		return copyMessages(sess.messages), nil
	}

	sess.messages = finalize(sess.messages, placeholderID)
	return copyMessages(sess.messages), nil
}

// appendFragment adds a streamed chunk to the placeholder reply.
func (s *Service) appendFragment(username, placeholderID, fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[username]
	if !ok {
		return
	}
	for i := range sess.messages {
		if sess.messages[i].ID == placeholderID {
			sess.messages[i].Content += fragment
			return
		}
	}
}

// rollback removes the user message and placeholder appended by a send that
// failed before reaching the upstream.
func (s *Service) rollback(username, placeholderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[username]
	if !ok {
		return
	}
	sess.busy = false
	if n := len(sess.messages); n >= 2 && sess.messages[n-1].ID == placeholderID {
		sess.messages = sess.messages[:n-2]
	}
}

// finalize clears the streaming flag on the placeholder, dropping it entirely
// when no content ever arrived.
func finalize(messages []models.Message, placeholderID string) []models.Message {
	for i := range messages {
		if messages[i].ID != placeholderID {
			continue
		}
		if messages[i].Content == "" {
			return append(messages[:i], messages[i+1:]...)
		}
		messages[i].IsStreaming = false
		break
	}
	return messages
}

// welcomeMessage builds the class-specific opening line of a conversation.
func (s *Service) welcomeMessage(username string, class authz.IdentityClass) models.Message {
	var text string
	switch class {
	case authz.ClassSuperAdmin:
		text = fmt.Sprintf("Welcome, Administrator %s. Full system access granted.", username)
	case authz.ClassVIP:
		text = fmt.Sprintf("Welcome, VIP %s. Unlimited access granted.", username)
	default:
		text = fmt.Sprintf("Welcome back, %s. System online.", username)
	}
	return models.Message{
		ID:        models.WelcomeMessageID,
		Role:      models.RoleModel,
		Content:   text,
		Timestamp: s.nowFunc().UnixMilli(),
	}
}

// copyMessages snapshots a transcript so callers never alias internal state.
func copyMessages(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	copy(out, messages)
	return out
}
