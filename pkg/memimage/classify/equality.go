package classify

import "reflect"

// equalValues implements the membership test Set uses: primitives and
// big integers compare by value, everything else (records, sequences,
// dicts, nested sets, timestamps, regexps) compares by reference
// identity, matching a dynamic-language Set's SameValueZero semantics
// for objects.
func equalValues(a, b any) bool {
	switch av := a.(type) {
	case *Record:
		bv, ok := b.(*Record)
		return ok && av == bv
	case *Sequence:
		bv, ok := b.(*Sequence)
		return ok && av == bv
	case *Dict:
		bv, ok := b.(*Dict)
		return ok && av == bv
	case *Set:
		bv, ok := b.(*Set)
		return ok && av == bv
	case *Regexp:
		bv, ok := b.(*Regexp)
		return ok && av == bv
	case *Timestamp:
		bv, ok := b.(*Timestamp)
		return ok && av == bv
	default:
		return reflect.DeepEqual(a, b)
	}
}
