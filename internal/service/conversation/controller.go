// Package conversation drives the active chat: send, retry and edit flows,
// the per-session sending guard and reconciliation of model turns into the
// persisted transcript.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/model/persona"
	"github.com/zhouzirui/gemdesk/backend/internal/model/settings"
	"github.com/zhouzirui/gemdesk/backend/internal/service/ai"
)

var (
	ErrEmptyMessage    = errors.New("message has no text and no attachments")
	ErrBusy            = errors.New("a request is already in flight for this conversation")
	ErrNoActiveSession = errors.New("no active conversation")
	ErrInvalidIndex    = errors.New("message index out of range")
	ErrRetryRefused    = errors.New("retry target has no preceding user turn")
	ErrPersonaNotFound = errors.New("persona not found")
)

// Gateway runs one model turn.
type Gateway interface {
	Converse(ctx context.Context, req ai.ConverseRequest) (*ai.ConverseResult, error)
}

// Sessions is the persisted session catalog.
type Sessions interface {
	Get(id string) (chat.Session, error)
	Create(sess chat.Session) chat.Session
	Update(id string, fn func(*chat.Session) error) (chat.Session, error)
}

// MediaSaver moves inline attachments into the media cache.
type MediaSaver interface {
	StoreInline(ref chat.MediaRef) (chat.MediaRef, error)
}

// Personas resolves persona links.
type Personas interface {
	FindByID(id string) (persona.Persona, bool)
}

// State is a snapshot of the controller's active-conversation state.
type State struct {
	ActiveSessionID string   `json:"activeSessionId,omitempty"`
	PendingGemID    string   `json:"pendingGemId,omitempty"`
	WorkingModel    string   `json:"workingModel,omitempty"`
	Draft           string   `json:"draft"`
	Sending         []string `json:"sending,omitempty"`
}

// Turn is the outcome of a send or retry.
type Turn struct {
	Session  chat.Session    `json:"session"`
	Previews []chat.MediaRef `json:"previews,omitempty"`
	Failed   bool            `json:"failed"`
}

// EditResult is the rewound transcript plus the restored input.
type EditResult struct {
	Session     chat.Session    `json:"session"`
	Draft       string          `json:"draft"`
	Attachments []chat.MediaRef `json:"attachments,omitempty"`
}

// Controller owns the active conversation.
type Controller struct {
	mu           sync.Mutex
	activeID     string
	pendingGemID string
	workingModel string
	draft        string
	sending      map[string]struct{}

	sessions     Sessions
	gateway      Gateway
	media        MediaSaver
	personas     Personas
	defaultModel string
	logger       *zap.Logger
}

// NewController wires a Controller.
func NewController(sessions Sessions, gateway Gateway, media MediaSaver, personas Personas, defaultModel string, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		sending:      make(map[string]struct{}),
		sessions:     sessions,
		gateway:      gateway,
		media:        media,
		personas:     personas,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// State returns the current active-conversation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		ActiveSessionID: c.activeID,
		PendingGemID:    c.pendingGemID,
		WorkingModel:    c.workingModel,
		Draft:           c.draft,
	}
	for id := range c.sending {
		st.Sending = append(st.Sending, id)
	}
	return st
}

// SetDraft stores the input surface text.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// Select makes an existing session the active one.
func (c *Controller) Select(id string) (chat.Session, error) {
	sess, err := c.sessions.Get(id)
	if err != nil {
		return chat.Session{}, err
	}
	c.mu.Lock()
	c.activeID = sess.ID
	c.pendingGemID = ""
	c.workingModel = sess.Model
	c.draft = ""
	c.mu.Unlock()
	return sess, nil
}

// NewConversation clears the active conversation.
func (c *Controller) NewConversation() {
	c.mu.Lock()
	c.activeID = ""
	c.pendingGemID = ""
	c.draft = ""
	c.mu.Unlock()
}

// StartPersonaConversation resets to a fresh, unsaved conversation bound to
// the persona. The session is created on the first send.
func (c *Controller) StartPersonaConversation(personaID string) (persona.Persona, error) {
	p, ok := c.personas.FindByID(personaID)
	if !ok {
		return persona.Persona{}, ErrPersonaNotFound
	}
	c.mu.Lock()
	c.activeID = ""
	c.pendingGemID = p.ID
	c.draft = ""
	c.mu.Unlock()

	c.logger.Info("persona_conversation_started", zap.String("gem", p.ID))
	return p, nil
}

// Forget drops references to a deleted session.
func (c *Controller) Forget(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID == sessionID {
		c.activeID = ""
		c.draft = ""
	}
}

// ForgetPersona drops a pending link to a deleted persona, so the next send
// starts an unlinked conversation.
func (c *Controller) ForgetPersona(personaID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingGemID == personaID {
		c.pendingGemID = ""
	}
}

// Sending reports whether a turn is in flight for the session.
func (c *Controller) Sending(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.sending[sessionID]
	return busy
}

func (c *Controller) personaExists(id string) bool {
	if c.personas == nil {
		return false
	}
	_, ok := c.personas.FindByID(id)
	return ok
}

// ChangeModel sets the working model. With an active session the choice is
// persisted as that session's override.
func (c *Controller) ChangeModel(modelID string) (*chat.Session, error) {
	modelID = strings.TrimSpace(modelID)

	c.mu.Lock()
	c.workingModel = modelID
	activeID := c.activeID
	c.mu.Unlock()

	if activeID == "" {
		return nil, nil
	}
	sess, err := c.sessions.Update(activeID, func(s *chat.Session) error {
		s.Model = modelID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Send appends a user turn to the active conversation, creating the session
// when none is active, and waits for the model's reply.
func (c *Controller) Send(ctx context.Context, cfg settings.Settings, text string, attachments []chat.MediaRef) (*Turn, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	cred, ok := cfg.ActiveCredential()
	if !ok {
		return nil, ai.ErrMissingCredential
	}

	id, err := c.acquireForSend(text)
	if err != nil {
		return nil, err
	}
	defer c.release(id)
	// An issued turn runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	saved := c.saveAttachments(ctx, attachments)

	var history []chat.Message
	sess, err := c.sessions.Update(id, func(s *chat.Session) error {
		history = append([]chat.Message(nil), s.Messages...)
		s.Messages = append(s.Messages,
			chat.Message{Role: chat.RoleUser, Content: text, Attachments: saved},
			chat.Message{Role: chat.RoleModel, Pending: true},
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.activeID == id {
		c.draft = ""
	}
	c.mu.Unlock()

	return c.complete(ctx, cfg, cred, sess, history, text, saved)
}

// Retry re-runs generation from the turn at index. A model turn is dropped
// and regenerated from its preceding user turn; a user turn is kept and
// everything after it is regenerated.
func (c *Controller) Retry(ctx context.Context, cfg settings.Settings, index int) (*Turn, error) {
	cred, ok := cfg.ActiveCredential()
	if !ok {
		return nil, ai.ErrMissingCredential
	}

	id, err := c.acquireActive()
	if err != nil {
		return nil, err
	}
	defer c.release(id)
	ctx = context.WithoutCancel(ctx)

	var (
		history []chat.Message
		user    chat.Message
	)
	sess, err := c.sessions.Update(id, func(s *chat.Session) error {
		if index < 0 || index >= len(s.Messages) {
			return ErrInvalidIndex
		}
		userIdx := index
		if s.Messages[index].Role == chat.RoleModel {
			userIdx = index - 1
			if userIdx < 0 || s.Messages[userIdx].Role != chat.RoleUser {
				return ErrRetryRefused
			}
		}
		user = s.Messages[userIdx]
		history = append([]chat.Message(nil), s.Messages[:userIdx]...)
		s.Messages = append(s.Messages[:userIdx+1], chat.Message{Role: chat.RoleModel, Pending: true})
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("turn_retried", zap.String("session", id), zap.Int("index", index))
	return c.complete(ctx, cfg, cred, sess, history, user.Content, user.Attachments)
}

// Edit rewinds the active conversation to the user turn at or just before
// index and returns its text for the input surface.
func (c *Controller) Edit(index int) (*EditResult, error) {
	id, err := c.acquireActive()
	if err != nil {
		return nil, err
	}
	defer c.release(id)

	var restored chat.Message
	sess, err := c.sessions.Update(id, func(s *chat.Session) error {
		if index < 0 || index >= len(s.Messages) {
			return ErrInvalidIndex
		}
		i := index
		if s.Messages[i].Role == chat.RoleModel {
			i--
		}
		if i < 0 || s.Messages[i].Role != chat.RoleUser {
			return ErrInvalidIndex
		}
		restored = s.Messages[i]
		s.Messages = s.Messages[:i]
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.draft = restored.Content
	c.mu.Unlock()

	return &EditResult{Session: sess, Draft: restored.Content, Attachments: restored.Attachments}, nil
}

// complete calls the gateway and reconciles the pending placeholder of
// sess. Reconciliation is keyed by session id so a reply lands in its own
// session even if the user has switched conversations.
func (c *Controller) complete(ctx context.Context, cfg settings.Settings, cred settings.Credential, sess chat.Session, history []chat.Message, text string, attachments []chat.MediaRef) (*Turn, error) {
	req := ai.ConverseRequest{
		Credential:        cred,
		ModelID:           c.modelFor(sess, cfg),
		Message:           text,
		Attachments:       attachments,
		History:           history,
		SystemInstruction: ai.JoinInstructions(cfg.GlobalInstruction, c.personaInstruction(sess.GemID)),
	}

	res, callErr := c.gateway.Converse(ctx, req)

	final := chat.Message{Role: chat.RoleModel}
	turn := &Turn{}
	if callErr != nil {
		c.logger.Warn("turn_failed", zap.String("session", sess.ID), zap.String("model", req.ModelID), zap.Error(callErr))
		final.Content = "Error: " + callErr.Error()
		final.IsError = true
		turn.Failed = true
	} else {
		final.Content = res.Text
		final.Attachments = res.Media
		turn.Previews = res.Previews
	}

	updated, err := c.sessions.Update(sess.ID, func(s *chat.Session) error {
		for i := len(s.Messages) - 1; i >= 0; i-- {
			if s.Messages[i].Pending {
				s.Messages[i] = final
				return nil
			}
		}
		s.Messages = append(s.Messages, final)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile session %s: %w", sess.ID, err)
	}
	turn.Session = updated
	return turn, nil
}

func (c *Controller) modelFor(sess chat.Session, cfg settings.Settings) string {
	switch {
	case sess.Model != "":
		return sess.Model
	case cfg.ActiveModel != "":
		return cfg.ActiveModel
	default:
		return c.defaultModel
	}
}

func (c *Controller) personaInstruction(gemID string) string {
	if gemID == "" || c.personas == nil {
		return ""
	}
	p, ok := c.personas.FindByID(gemID)
	if !ok {
		return ""
	}
	return p.Instruction
}

// saveAttachments stores inline attachments in the cache concurrently. A
// failed write keeps the original inline encoding.
func (c *Controller) saveAttachments(ctx context.Context, attachments []chat.MediaRef) []chat.MediaRef {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]chat.MediaRef, len(attachments))
	g, _ := errgroup.WithContext(ctx)
	for i, ref := range attachments {
		out[i] = ref
		if ref.Kind() != chat.MediaInline || c.media == nil {
			continue
		}
		g.Go(func() error {
			stored, err := c.media.StoreInline(ref)
			if err != nil {
				c.logger.Warn("attachment_cache_failed", zap.Int("index", i), zap.Error(err))
				return nil
			}
			out[i] = stored
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// acquireForSend returns the session to send into, creating it when no
// conversation is active, and marks it as sending.
func (c *Controller) acquireForSend(text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeID != "" {
		if _, busy := c.sending[c.activeID]; busy {
			return "", ErrBusy
		}
		c.sending[c.activeID] = struct{}{}
		return c.activeID, nil
	}

	gemID := c.pendingGemID
	if gemID != "" && !c.personaExists(gemID) {
		c.logger.Info("pending_persona_dropped", zap.String("gem", gemID))
		gemID = ""
	}
	sess := c.sessions.Create(chat.Session{
		Title: chat.TitleFrom(text),
		Model: c.workingModel,
		GemID: gemID,
	})
	c.activeID = sess.ID
	c.pendingGemID = ""
	c.sending[sess.ID] = struct{}{}
	return sess.ID, nil
}

func (c *Controller) acquireActive() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeID == "" {
		return "", ErrNoActiveSession
	}
	if _, busy := c.sending[c.activeID]; busy {
		return "", ErrBusy
	}
	c.sending[c.activeID] = struct{}{}
	return c.activeID, nil
}

func (c *Controller) release(id string) {
	c.mu.Lock()
	delete(c.sending, id)
	c.mu.Unlock()
}
