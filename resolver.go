package eventbus

import "context"

// Resolver is the external collaborator (spec C10) that produces
// user-supplied argument values by name. It is a trait the engine calls,
// not something the engine implements; parameter-injection machinery lives
// entirely in the adapter that builds HandlerDescriptor.ArgStrategies.
type Resolver interface {
	ResolveArg(ctx context.Context, event Event, isWaiting bool, config Configuration, key string) (any, error)
}

// ArgStrategy produces one resolved invocation argument from the current
// dispatch context. HandlerDescriptor.ArgStrategies is an ordered list of
// these; the engine evaluates each one, in order, to build the argument
// slice passed to Invoke/InvokeSuspend.
type ArgStrategy interface {
	Produce(ctx context.Context, event Event, isWaiting bool, config Configuration, resolver Resolver) (any, error)
}

type isWaitingArg struct{}

func (isWaitingArg) Produce(_ context.Context, _ Event, isWaiting bool, _ Configuration, _ Resolver) (any, error) {
	return isWaiting, nil
}

// IsWaitingArg is an ArgStrategy that supplies the current activation's
// is_waiting flag (false for synchronous dispatch and fire-and-forget
// suspending launches, true inside dispatch_await).
func IsWaitingArg() ArgStrategy { return isWaitingArg{} }

type configArg struct{}

func (configArg) Produce(_ context.Context, _ Event, _ bool, config Configuration, _ Resolver) (any, error) {
	return config, nil
}

// ConfigArg is an ArgStrategy that supplies the handler's own Configuration.
func ConfigArg() ArgStrategy { return configArg{} }

type staticArg struct{ value any }

func (s staticArg) Produce(context.Context, Event, bool, Configuration, Resolver) (any, error) {
	return s.value, nil
}

// StaticArg is an ArgStrategy that always supplies the same fixed value,
// useful for adapters that pre-resolve a dependency at registration time.
func StaticArg(value any) ArgStrategy { return staticArg{value: value} }

type resolverArg struct{ key string }

func (r resolverArg) Produce(ctx context.Context, event Event, isWaiting bool, config Configuration, resolver Resolver) (any, error) {
	if resolver == nil {
		return nil, ErrNoResolver
	}
	return resolver.ResolveArg(ctx, event, isWaiting, config, r.key)
}

// ResolverArg is an ArgStrategy that delegates to the engine's configured
// Resolver for a named, user-supplied argument. Missing-argument errors at
// registration time are the external adapter's responsibility (spec §7);
// at invocation time a nil Resolver surfaces as ErrNoResolver through the
// error sink.
func ResolverArg(key string) ArgStrategy { return resolverArg{key: key} }
