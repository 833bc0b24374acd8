package eventbus

import "sync"

// Token is the removal handle returned by Engine.Register and
// Scope.Register. Unregister is idempotent: calling it twice is a no-op
// the second time (it will return ErrNoSuchRegistration once the
// descriptor is gone).
type Token struct {
	engine    *Engine
	handlerID string
	eventType any
}

// Unregister removes the descriptor this token was issued for.
func (t *Token) Unregister() error {
	return t.engine.unregisterToken(t)
}

// TokenBag groups the tokens produced by one RegisterSource call so
// UnregisterSource/Scope can remove them together.
type TokenBag struct {
	tokens []*Token
}

// Scope is a lifetime-bound bag of registrations that can be revoked
// together (spec C8). Nested scopes chain to their parent's engine; the
// parent scope (or ultimately the Engine) is responsible for the actual
// registry mutation, the child just tracks which tokens it owns.
type Scope struct {
	mu     sync.Mutex
	parent *Scope
	engine *Engine
	tokens []*Token
	closed bool
}

// NewScope creates a root scope bound directly to engine.
func NewScope(engine *Engine) *Scope {
	return &Scope{engine: engine}
}

// NewChildScope creates a scope nested under parent. Closing the child
// only revokes the child's own registrations; closing the parent later
// has no effect on registrations already revoked by the child.
func NewChildScope(parent *Scope) *Scope {
	return &Scope{parent: parent}
}

func (s *Scope) rootEngine() *Engine {
	if s.parent != nil {
		return s.parent.rootEngine()
	}
	return s.engine
}

// Register adds d to the underlying engine and records the resulting
// token so Close can revoke it later.
func (s *Scope) Register(d *HandlerDescriptor) (*Token, error) {
	eng := s.rootEngine()
	tok, err := eng.Register(d)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = tok.Unregister()
		return nil, ErrScopeClosed
	}
	s.tokens = append(s.tokens, tok)
	s.mu.Unlock()
	return tok, nil
}

// Close transitions the scope to closed (idempotent failure on a second
// call) and unregisters every token it recorded, in insertion order.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrScopeClosed
	}
	s.closed = true
	toks := s.tokens
	s.tokens = nil
	s.mu.Unlock()

	for _, t := range toks {
		_ = t.Unregister()
	}
	return nil
}
