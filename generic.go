package eventbus

import "reflect"

// isSubtype reports whether a is exactly bound, or bound is an interface
// that a implements (a is "assignable to" bound, in spec terms).
func isSubtype(a, bound reflect.Type) bool {
	if a == bound {
		return true
	}
	return bound != nil && bound.Kind() == reflect.Interface && a.Implements(bound)
}

// matchesGeneric implements the variance acceptance rule of spec §4.5,
// applied pairwise by index after verifying equal arity.
func matchesGeneric(spec []GenericParam, args []reflect.Type) bool {
	if len(spec) != len(args) {
		return false
	}
	for i, p := range spec {
		a := args[i]
		switch p.Variance {
		case Invariant:
			if a != p.Bound {
				return false
			}
		case Covariant:
			// runtime class is the bound or a subtype of it.
			if !isSubtype(a, p.Bound) {
				return false
			}
		case Contravariant:
			// runtime class is the bound or a supertype of it: bound must
			// be assignable to a.
			if !isSubtype(p.Bound, a) {
				return false
			}
		case Unconstrained:
			// always accepts
		default:
			return false
		}
	}
	return true
}
