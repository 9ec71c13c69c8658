// Package assistant holds the advisory conversational session. It is
// deliberately independent of the activity gate: the assistant informs, it
// never mutates grid state, so it stays available while the agent works.
// Failures surface as synthetic assistant messages so the transcript
// invariant holds: every user message is eventually followed by an
// assistant message.
package assistant

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// SystemInstruction steers the assistant session.
const SystemInstruction = "You are the Grid Assistant, a friendly but professional AI companion for the Sentient Grid platform. You help users understand the grid, their assets, and market trends. Use technical but accessible language. Keep responses concise but helpful."

// Greeting seeds the transcript.
const Greeting = "Hello Operative. I am the Grid Assistant. How can I help you manage your autonomous assets today?"

const (
	flickerReply = "I apologize, my neural link flickered. Could you repeat that?"
	lostReply    = "Error: Connection to Grid Assistant lost. Please try again."
)

// Role identifies a transcript participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role    Role
	Content string
}

// Session is a persistent multi-turn conversation with the chat uplink.
type Session interface {
	SendTurn(ctx context.Context, userText string) (string, error)
}

// Starter creates the session lazily on first use.
type Starter interface {
	StartSession(ctx context.Context) (Session, error)
}

// Assistant owns the transcript and the lazily-created session.
type Assistant struct {
	mu       sync.Mutex
	starter  Starter
	session  Session
	messages []Message
	loading  bool

	logger *zap.Logger
}

// New creates an assistant with the greeting already in the transcript.
func New(starter Starter, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		starter:  starter,
		messages: []Message{{Role: RoleAssistant, Content: Greeting}},
		logger:   logger,
	}
}

// Send appends the user message, awaits a reply, and appends it. The reply
// is always produced: uplink failures become a synthetic assistant message
// rather than an error, and an empty reply is substituted with a retry
// prompt. A turn arriving while another is in flight is refused with the
// lost-connection reply; the refused exchange is still recorded so the
// returned message always appears in the transcript. The returned message
// is the assistant's.
func (a *Assistant) Send(ctx context.Context, userText string) Message {
	userText = strings.TrimSpace(userText)

	a.mu.Lock()
	if a.loading {
		reply := Message{Role: RoleAssistant, Content: lostReply}
		a.messages = append(a.messages, Message{Role: RoleUser, Content: userText}, reply)
		a.mu.Unlock()
		return reply
	}
	a.loading = true
	a.messages = append(a.messages, Message{Role: RoleUser, Content: userText})
	a.mu.Unlock()

	reply := a.converse(ctx, userText)

	a.mu.Lock()
	a.messages = append(a.messages, reply)
	a.loading = false
	a.mu.Unlock()
	return reply
}

func (a *Assistant) converse(ctx context.Context, userText string) Message {
	session, err := a.ensureSession(ctx)
	if err != nil {
		a.logger.Warn("assistant session unavailable", zap.Error(err))
		return Message{Role: RoleAssistant, Content: lostReply}
	}

	text, err := session.SendTurn(ctx, userText)
	if err != nil {
		a.logger.Warn("assistant turn failed", zap.Error(err))
		return Message{Role: RoleAssistant, Content: lostReply}
	}
	if strings.TrimSpace(text) == "" {
		text = flickerReply
	}
	return Message{Role: RoleAssistant, Content: text}
}

func (a *Assistant) ensureSession(ctx context.Context) (Session, error) {
	a.mu.Lock()
	if a.session != nil {
		s := a.session
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	s, err := a.starter.StartSession(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.session == nil {
		a.session = s
	}
	s = a.session
	a.mu.Unlock()
	return s, nil
}

// Transcript returns a copy of the conversation so far.
func (a *Assistant) Transcript() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Loading reports whether a turn is currently awaiting a reply.
func (a *Assistant) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading
}
