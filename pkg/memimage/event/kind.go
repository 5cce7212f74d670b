package event

// Kind identifies one of the eighteen mutation shapes spec.md §4.2
// recognizes: a plain property write or delete, the nine sequence
// mutators, the three keyed-map mutators, the three unique-set
// mutators, and the script escape hatch for a custom method that
// doesn't reduce to any of the other seventeen.
type Kind string

const (
	KindPropertyWrite  Kind = "property.write"
	KindPropertyDelete Kind = "property.delete"

	KindSequencePush       Kind = "sequence.push"
	KindSequencePop        Kind = "sequence.pop"
	KindSequenceShift      Kind = "sequence.shift"
	KindSequenceUnshift    Kind = "sequence.unshift"
	KindSequenceSplice     Kind = "sequence.splice"
	KindSequenceSort       Kind = "sequence.sort"
	KindSequenceReverse    Kind = "sequence.reverse"
	KindSequenceFill       Kind = "sequence.fill"
	KindSequenceCopyWithin Kind = "sequence.copyWithin"

	KindMapSet    Kind = "map.set"
	KindMapDelete Kind = "map.delete"
	KindMapClear  Kind = "map.clear"

	KindSetAdd    Kind = "set.add"
	KindSetDelete Kind = "set.delete"
	KindSetClear  Kind = "set.clear"

	KindScript Kind = "script"
)

// AllKinds returns every recognized kind, in the order spec.md §4.2
// lists them.
func AllKinds() []Kind {
	return []Kind{
		KindPropertyWrite, KindPropertyDelete,
		KindSequencePush, KindSequencePop, KindSequenceShift, KindSequenceUnshift,
		KindSequenceSplice, KindSequenceSort, KindSequenceReverse, KindSequenceFill, KindSequenceCopyWithin,
		KindMapSet, KindMapDelete, KindMapClear,
		KindSetAdd, KindSetDelete, KindSetClear,
		KindScript,
	}
}

// IsValid reports whether k is one of the eighteen recognized kinds.
func (k Kind) IsValid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}
