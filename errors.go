package eventbus

import "errors"

// Engine and scope error sentinels (spec §7).
var (
	// ErrEngineClosed is returned by any public operation performed on a
	// closed Engine, including a second call to Close.
	ErrEngineClosed = errors.New("eventbus: engine closed")

	// ErrInvalidDescriptor is returned when a HandlerDescriptor is missing
	// a required field (event type, handler id, invoke closure).
	ErrInvalidDescriptor = errors.New("eventbus: invalid handler descriptor")

	// ErrNoSuchRegistration is returned by an unregister call that can't
	// find the owner or token it was asked to remove. Callers may treat
	// this as a best-effort no-op.
	ErrNoSuchRegistration = errors.New("eventbus: no such registration")

	// ErrScopeClosed is returned by a second call to Scope.Close.
	ErrScopeClosed = errors.New("eventbus: scope already closed")

	// ErrNoResolver is returned by a ResolverArg strategy when the engine
	// was built without a Resolver collaborator.
	ErrNoResolver = errors.New("eventbus: no resolver configured")
)
