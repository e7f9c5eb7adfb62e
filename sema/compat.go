package sema

import "github.com/strager/impc/types"

// IsAssignmentCompatible reports whether a value of type source may be stored
// in a location of type target. The relation is not symmetric: between the
// primitives every pair converts except boolean to real. Composite types must
// be equal, except that an array of unknown length accepts any array of the
// same element type.
func IsAssignmentCompatible(target, source types.Type) bool {
	switch {
	case target == types.Void || source == types.Void:
		return false
	case types.IsPrimitive(target) && types.IsPrimitive(source):
		return !(target == types.Real && source == types.Boolean)
	}
	if ta, ok := target.(*types.Array); ok && ta.Size == nil {
		sa, ok := source.(*types.Array)
		return ok && types.Equal(ta.Elem, sa.Elem)
	}
	return types.Equal(target, source)
}

// IsLossy reports whether storing source in target drops information.
func IsLossy(target, source types.Type) bool {
	switch {
	case target == types.Integer && source == types.Real:
		return true
	case target == types.Boolean && types.IsNumeric(source):
		return true
	}
	return false
}
