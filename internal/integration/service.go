// Package integration orchestrates one user command end to end: resolve
// the session, persist the inbound turn, classify the text, dispatch to
// the matching backend through its circuit breaker, stream fragments
// back to the caller, and persist the outcome.
package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vulcanlabs/vulcan/internal/backend"
	"github.com/vulcanlabs/vulcan/internal/backend/agent"
	"github.com/vulcanlabs/vulcan/internal/backend/chat"
	"github.com/vulcanlabs/vulcan/internal/backend/knowledge"
	"github.com/vulcanlabs/vulcan/internal/breaker"
	"github.com/vulcanlabs/vulcan/internal/log"
	"github.com/vulcanlabs/vulcan/internal/metrics"
	"github.com/vulcanlabs/vulcan/internal/route"
	"github.com/vulcanlabs/vulcan/internal/session"
)

// Status texts emitted while a command is in flight.
const (
	statusProcessing = "Processing your request..."
	statusAgent      = "Contacting Birmingham agent..."
	statusSearching  = "Searching knowledge base..."
	statusThinking   = "Thinking..."
)

// User-facing error texts. Internal detail stays in the logs.
const (
	textInternalError = "An unexpected error occurred while processing your request."
	textSessionError  = "Could not save your message. Please try again."
	textBreakerOpen   = "This service is temporarily unavailable. Please try again shortly."
	textAgentError    = "The Birmingham agent could not complete your request."
	textNoKnowledge   = "No knowledge bases are available for your account."
	textBackendError  = "The AI service could not complete your request."
)

// ErrSessionNotFound indicates the referenced session does not exist or
// is not live for this user.
var ErrSessionNotFound = errors.New("session not found")

// errEmitAborted marks a stream cut short because the caller's emit
// failed (client gone). It never reaches the caller.
var errEmitAborted = errors.New("fragment emission aborted")

// EmitFunc delivers one fragment to the caller. Returning an error
// aborts the command; nothing further is emitted.
type EmitFunc func(Fragment) error

// ChatStreamer is the general-AI backend.
type ChatStreamer interface {
	Stream(ctx context.Context, message string, history []session.Message, fn backend.StreamFunc) error
	Metadata() map[string]any
}

// KnowledgeStreamer is the retrieval-augmented backend.
type KnowledgeStreamer interface {
	Stream(ctx context.Context, kbID, query string, maxResults int, fn backend.StreamFunc) error
	Metadata(kbID, originalQuery string) map[string]any
}

// Catalog lists and resolves the user's knowledge bases.
type Catalog interface {
	ListForUser(ctx context.Context, userID string) ([]knowledge.KnowledgeBase, error)
	Get(ctx context.Context, id string) (*knowledge.KnowledgeBase, error)
}

// AgentInvoker is the one-shot tool agent.
type AgentInvoker interface {
	ID() string
	Invoke(ctx context.Context, cmd agent.Command) (*agent.Response, error)
}

// Command is one inbound user command.
type Command struct {
	SessionID       string // empty = create a new session
	UserID          string
	Text            string
	KnowledgeBaseID string // optional override persisted onto the session
	MaxResults      int    // retrieval bound, zero = adapter default
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Logger    log.Logger
	Sessions  *session.Store
	Chat      ChatStreamer
	Knowledge KnowledgeStreamer
	Catalog   Catalog
	Agent     AgentInvoker

	// Metrics registry shared across backends. nil = fresh registry.
	Metrics *metrics.Registry

	// Per-backend breaker tuning. Zero values use the defaults below.
	AgentBreaker breaker.Config
	ChatBreaker  breaker.Config
	KBBreaker    breaker.Config
}

// Breaker defaults: the in-process agent gets more slack than the two
// network-bound model backends.
var (
	defaultAgentBreaker = breaker.Config{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second}
	defaultModelBreaker = breaker.Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second}
)

func (cfg Config) validate() error {
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Chat == nil {
		return errors.New("chat backend is required")
	}
	if cfg.Knowledge == nil {
		return errors.New("knowledge backend is required")
	}
	if cfg.Catalog == nil {
		return errors.New("knowledge catalog is required")
	}
	if cfg.Agent == nil {
		return errors.New("tool agent is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Service is the command orchestrator. The breakers and the metrics
// registry are its only cross-request mutable state; both serialize
// their own access, so Service is safe for concurrent use.
type Service struct {
	logger    log.Logger
	sessions  *session.Store
	chat      ChatStreamer
	knowledge KnowledgeStreamer
	catalog   Catalog
	agent     AgentInvoker
	metrics   *metrics.Registry

	agentBr *breaker.Breaker
	chatBr  *breaker.Breaker
	kbBr    *breaker.Breaker
}

// New creates the orchestrator.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRegistry()
	}
	if cfg.AgentBreaker.FailureThreshold == 0 {
		cfg.AgentBreaker = defaultAgentBreaker
	}
	if cfg.ChatBreaker.FailureThreshold == 0 {
		cfg.ChatBreaker = defaultModelBreaker
	}
	if cfg.KBBreaker.FailureThreshold == 0 {
		cfg.KBBreaker = defaultModelBreaker
	}

	return &Service{
		logger:    cfg.Logger,
		sessions:  cfg.Sessions,
		chat:      cfg.Chat,
		knowledge: cfg.Knowledge,
		catalog:   cfg.Catalog,
		agent:     cfg.Agent,
		metrics:   cfg.Metrics,
		agentBr:   breaker.New(cfg.Agent.ID(), cfg.AgentBreaker),
		chatBr:    breaker.New(backend.ChatID, cfg.ChatBreaker),
		kbBr:      breaker.New(backend.KnowledgeID, cfg.KBBreaker),
	}, nil
}

// Metrics exposes the shared registry for the status surface.
func (s *Service) Metrics() *metrics.Registry {
	return s.metrics
}

// ProcessCommand runs one command to completion, delivering fragments
// through emit in production order. All failures surface as error
// fragments; a panic anywhere is converted into one uniform error
// fragment by the outer guard.
func (s *Service) ProcessCommand(ctx context.Context, cmd Command, emit EmitFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while processing command",
				"session_id", cmd.SessionID,
				"user_id", cmd.UserID,
				"panic", r,
			)
			s.emit(emit, errorFragment(ErrTagInternal, textInternalError))
		}
	}()

	s.process(ctx, cmd, emit)
}

func (s *Service) process(ctx context.Context, cmd Command, emit EmitFunc) {
	// 1. Resolve the session, applying a knowledge-base override first.
	sess := s.sessions.GetOrCreate(ctx, cmd.SessionID, cmd.UserID, cmd.KnowledgeBaseID)
	if sess == nil {
		s.emit(emit, errorFragment(ErrTagSessionWrite, textSessionError))
		return
	}
	if cmd.KnowledgeBaseID != "" && cmd.KnowledgeBaseID != sess.KnowledgeBaseID {
		sess.KnowledgeBaseID = cmd.KnowledgeBaseID
		if !s.sessions.Update(ctx, sess) {
			s.emit(emit, errorFragment(ErrTagSessionWrite, textSessionError))
			return
		}
	}

	// 2. Persist the inbound turn. History is captured first so the chat
	// context holds the turns before this one.
	history := sess.Recent(chat.HistoryWindow)

	userMsg, err := session.NewMessage(sess.ID, session.TypeUser, cmd.Text, nil)
	if err != nil {
		s.emit(emit, errorFragment(ErrTagInvalid, err.Error()))
		return
	}
	if !s.sessions.AppendMessage(ctx, sess.ID, cmd.UserID, userMsg) {
		s.emit(emit, errorFragment(ErrTagSessionWrite, textSessionError))
		return
	}

	// 3. Acknowledge, then classify and dispatch.
	if !s.emit(emit, statusFragment(statusProcessing)) {
		return
	}

	target := route.Classify(cmd.Text)
	s.logger.Debug("classified command",
		"session_id", sess.ID,
		"target", target.String(),
	)

	switch target {
	case route.Agent:
		s.dispatchAgent(ctx, cmd, sess, emit)
	case route.KnowledgeBase:
		s.dispatchKnowledge(ctx, cmd, sess, emit)
	default:
		s.dispatchChat(ctx, cmd, sess, history, emit)
	}
}

// dispatchAgent runs the one-shot tool agent and wraps its structured
// response into a single agent_response fragment.
func (s *Service) dispatchAgent(ctx context.Context, cmd Command, sess *session.Session, emit EmitFunc) {
	if err := s.agentBr.Allow(); err != nil {
		s.metrics.RecordFailure(s.agent.ID(), 0, err)
		s.emit(emit, errorFragment(ErrTagBreakerOpen, textBreakerOpen))
		return
	}
	if !s.emit(emit, statusFragment(statusAgent)) {
		return
	}

	start := time.Now()
	resp, err := s.agent.Invoke(ctx, agent.Normalize(cmd.Text))
	latency := time.Since(start)

	if err != nil {
		s.metrics.RecordFailure(s.agent.ID(), latency, err)
		if backend.TripsBreaker(err) {
			s.agentBr.Failure()
		}
		s.logger.Error("agent invocation failed", "session_id", sess.ID, "error", err)
		s.emit(emit, errorFragment(ErrTagAgent, textAgentError))
		return
	}

	s.agentBr.Success()
	s.metrics.RecordSuccess(s.agent.ID(), latency)

	text := resp.Format()
	if !s.emit(emit, agentFragment(text, map[string]any{
		"agent_id":      resp.AgentID,
		"response_type": string(resp.Type),
		"location":      resp.Location,
		"data":          resp.Data,
	})) {
		return
	}

	s.persistTurn(ctx, sess.ID, cmd.UserID, session.TypeAgent, text, map[string]any{
		"agent_id":      resp.AgentID,
		"response_type": string(resp.Type),
		"location":      resp.Location,
	})
}

// dispatchKnowledge resolves the effective knowledge base and streams a
// grounded answer from it.
func (s *Service) dispatchKnowledge(ctx context.Context, cmd Command, sess *session.Session, emit EmitFunc) {
	kbID := sess.KnowledgeBaseID
	if kbID == "" {
		bases, err := s.catalog.ListForUser(ctx, cmd.UserID)
		if err != nil {
			s.logger.Error("knowledge base lookup failed", "user_id", cmd.UserID, "error", err)
		}
		if len(bases) == 0 {
			s.emit(emit, errorFragment(ErrTagNoKnowledge, textNoKnowledge))
			return
		}
		kbID = bases[0].ID
		sess.KnowledgeBaseID = kbID
		if !s.sessions.Update(ctx, sess) {
			// The fallback choice is lost for the next turn but this one
			// can still proceed.
			s.logger.Warn("failed to persist knowledge base fallback",
				"session_id", sess.ID, "knowledge_base_id", kbID)
		}
	}

	if err := s.kbBr.Allow(); err != nil {
		s.metrics.RecordFailure(backend.KnowledgeID, 0, err)
		s.emit(emit, errorFragment(ErrTagBreakerOpen, textBreakerOpen))
		return
	}
	if !s.emit(emit, statusFragment(statusSearching)) {
		return
	}

	query := route.CleanQuery(cmd.Text)
	s.streamTurn(ctx, sess, cmd.UserID, s.kbBr, backend.KnowledgeID, emit,
		s.knowledge.Metadata(kbID, cmd.Text),
		func(fn backend.StreamFunc) error {
			return s.knowledge.Stream(ctx, kbID, query, cmd.MaxResults, fn)
		},
	)
}

// dispatchChat streams a general completion with the trailing history
// window as context.
func (s *Service) dispatchChat(ctx context.Context, cmd Command, sess *session.Session, history []session.Message, emit EmitFunc) {
	if err := s.chatBr.Allow(); err != nil {
		s.metrics.RecordFailure(backend.ChatID, 0, err)
		s.emit(emit, errorFragment(ErrTagBreakerOpen, textBreakerOpen))
		return
	}
	if !s.emit(emit, statusFragment(statusThinking)) {
		return
	}

	s.streamTurn(ctx, sess, cmd.UserID, s.chatBr, backend.ChatID, emit,
		s.chat.Metadata(),
		func(fn backend.StreamFunc) error {
			return s.chat.Stream(ctx, cmd.Text, history, fn)
		},
	)
}

// streamTurn is the shared streaming path for the chat and knowledge
// backends: forward each fragment as it arrives, buffer the full text,
// then persist the buffer once the stream is drained. A non-empty
// buffer is persisted even when the stream fails partway; only client
// cancellation discards it.
func (s *Service) streamTurn(
	ctx context.Context,
	sess *session.Session,
	userID string,
	br *breaker.Breaker,
	backendID string,
	emit EmitFunc,
	metadata map[string]any,
	stream func(backend.StreamFunc) error,
) {
	var buffer strings.Builder

	start := time.Now()
	err := stream(func(_ context.Context, text string) error {
		buffer.WriteString(text)
		if !s.emit(emit, responseFragment(text)) {
			return errEmitAborted
		}
		return nil
	})
	latency := time.Since(start)

	// Client gone: nothing can be delivered, partial text is discarded.
	if errors.Is(err, errEmitAborted) || ctx.Err() != nil {
		s.logger.Debug("stream cancelled by caller",
			"session_id", sess.ID, "backend", backendID, "buffered", buffer.Len())
		return
	}

	if err != nil {
		s.metrics.RecordFailure(backendID, latency, err)
		if backend.TripsBreaker(err) {
			br.Failure()
		}
		s.logger.Error("backend stream failed",
			"session_id", sess.ID, "backend", backendID, "error", err)
	} else {
		br.Success()
		s.metrics.RecordSuccess(backendID, latency)
	}

	if buffer.Len() > 0 {
		s.persistTurn(ctx, sess.ID, userID, session.TypeAssistant, buffer.String(), metadata)
	}
	if err != nil {
		s.emit(emit, errorFragment(ErrTagBackend, textBackendError))
	}
}

// persistTurn records one outbound message. The fragments are already
// delivered by the time this runs, so a persistence failure is logged
// rather than surfaced.
func (s *Service) persistTurn(ctx context.Context, sessionID, userID string, mt session.MessageType, content string, metadata map[string]any) {
	msg, err := session.NewMessage(sessionID, mt, content, metadata)
	if err != nil {
		s.logger.Error("failed to build outbound message",
			"session_id", sessionID, "type", mt, "error", err)
		return
	}
	if !s.sessions.AppendMessage(ctx, sessionID, userID, msg) {
		s.logger.Error("failed to persist outbound message",
			"session_id", sessionID, "message_id", msg.ID, "type", mt)
	}
}

// SwitchKnowledgeBase repoints a live session at another knowledge base
// and returns the confirmation fragment to deliver.
func (s *Service) SwitchKnowledgeBase(ctx context.Context, sessionID, userID, kbID string) (Fragment, error) {
	sess := s.sessions.Get(ctx, sessionID, userID)
	if sess == nil {
		return Fragment{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	kb, err := s.catalog.Get(ctx, kbID)
	if err != nil {
		return Fragment{}, fmt.Errorf("resolve knowledge base: %w", err)
	}

	sess.KnowledgeBaseID = kb.ID
	if !s.sessions.Update(ctx, sess) {
		return Fragment{}, errors.New("failed to update session")
	}

	return statusFragmentWith(fmt.Sprintf("Switched to knowledge base %s", kb.Name), map[string]any{
		"knowledge_base_id":   kb.ID,
		"knowledge_base_name": kb.Name,
	}), nil
}

// SystemStatus aggregates per-backend health for the status surface.
type SystemStatus struct {
	Healthy  bool                        `json:"healthy"`
	Backends map[string]metrics.Snapshot `json:"backends"`
	Breakers map[string]string           `json:"circuit_breakers"`
}

// Status reports breaker states and metric snapshots for all backends.
// The system is healthy while no breaker is open.
func (s *Service) Status() SystemStatus {
	breakers := map[string]string{
		s.agentBr.Name(): s.agentBr.State().String(),
		s.chatBr.Name():  s.chatBr.State().String(),
		s.kbBr.Name():    s.kbBr.State().String(),
	}

	healthy := true
	for _, br := range []*breaker.Breaker{s.agentBr, s.chatBr, s.kbBr} {
		if br.State() == breaker.Open {
			healthy = false
		}
	}

	return SystemStatus{
		Healthy:  healthy,
		Backends: s.metrics.SnapshotAll(),
		Breakers: breakers,
	}
}

// emit delivers one fragment, reporting whether the caller is still
// listening.
func (s *Service) emit(emit EmitFunc, f Fragment) bool {
	if err := emit(f); err != nil {
		s.logger.Debug("fragment emission failed", "type", f.Type, "error", err)
		return false
	}
	return true
}
