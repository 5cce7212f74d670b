// Package classify provides the single-pass value classifier every other
// memimage component consults instead of re-inspecting values on its own.
//
// Go has no dynamic type system, so the graph's "any value" is modeled as
// Go's any, with a small set of wrapper types (Sequence, Dict, Set,
// Timestamp, Regexp, Func, Symbol, *big.Int, Record) standing in for the
// categories a dynamic language distinguishes natively (array, map, set,
// date, regex, function, symbol, bigint, plain object).
package classify

import (
	"math/big"
	"reflect"
)

// Category is one of the value categories spec.md §4.1 names.
type Category int

const (
	// CategoryNull is Go nil.
	CategoryNull Category = iota
	// CategoryUndefined is the explicit Undefined sentinel, distinct
	// from nil the way a dynamic language distinguishes undefined from
	// null.
	CategoryUndefined
	// CategoryPrimitive is bool, string, or any Go numeric type other
	// than *big.Int.
	CategoryPrimitive
	// CategoryBigInt is *big.Int.
	CategoryBigInt
	// CategorySymbol is Symbol, an opaque atomic tag carrying only a
	// description.
	CategorySymbol
	// CategoryTimestamp is *Timestamp.
	CategoryTimestamp
	// CategoryRegexp is *Regexp.
	CategoryRegexp
	// CategoryFunction is Func.
	CategoryFunction
	// CategorySequence is *Sequence, an indexed ordered list.
	CategorySequence
	// CategoryMap is *Dict, a keyed map preserving insertion order.
	CategoryMap
	// CategorySet is *Set, a collection of unique values.
	CategorySet
	// CategoryRecord is *Record, a plain keyed object. Class instances
	// are Records whose Class field is non-empty.
	CategoryRecord
)

// String returns a lower-case name for the category.
func (c Category) String() string {
	switch c {
	case CategoryNull:
		return "null"
	case CategoryUndefined:
		return "undefined"
	case CategoryPrimitive:
		return "primitive"
	case CategoryBigInt:
		return "bigint"
	case CategorySymbol:
		return "symbol"
	case CategoryTimestamp:
		return "timestamp"
	case CategoryRegexp:
		return "regexp"
	case CategoryFunction:
		return "function"
	case CategorySequence:
		return "sequence"
	case CategoryMap:
		return "map"
	case CategorySet:
		return "set"
	case CategoryRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Info is the complete classification of a value, the four derived
// booleans spec.md §4.1 requires plus the category itself.
type Info struct {
	Category              Category
	IsPrimitive           bool
	IsObject              bool
	IsCollection          bool
	NeedsSpecialSerialize bool
	IsInstance            bool // true for a Record carrying a non-empty Class

	// Unrepresentable is true only for a function value with no
	// captured source text (a bare Go func, as opposed to a
	// classify.Func literal). The serializer emits the absence
	// sentinel for these instead of failing (spec.md §4.11 / §7).
	Unrepresentable bool
}

// undefinedType is the type of the Undefined sentinel.
type undefinedType struct{}

// Undefined is the sentinel value standing in for a dynamic language's
// "undefined", distinct from the Go nil used for "null".
var Undefined = undefinedType{}

// Of classifies v in a single pass.
func Of(v any) Info {
	switch {
	case v == nil:
		return Info{Category: CategoryNull}
	case v == Undefined:
		return Info{Category: CategoryUndefined}
	}

	switch vv := v.(type) {
	case *big.Int:
		return Info{Category: CategoryBigInt, IsPrimitive: true, NeedsSpecialSerialize: true}
	case Symbol:
		return Info{Category: CategorySymbol, IsPrimitive: true, NeedsSpecialSerialize: true}
	case *Timestamp:
		return Info{Category: CategoryTimestamp, IsObject: true, NeedsSpecialSerialize: true}
	case *Regexp:
		return Info{Category: CategoryRegexp, IsObject: true, NeedsSpecialSerialize: true}
	case Func:
		return Info{Category: CategoryFunction, IsObject: true, NeedsSpecialSerialize: true}
	case *Sequence:
		return Info{Category: CategorySequence, IsObject: true, IsCollection: true}
	case *Dict:
		return Info{Category: CategoryMap, IsObject: true, IsCollection: true, NeedsSpecialSerialize: true}
	case *Set:
		return Info{Category: CategorySet, IsObject: true, IsCollection: true, NeedsSpecialSerialize: true}
	case *Record:
		return Info{Category: CategoryRecord, IsObject: true, IsInstance: vv.Class != ""}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Info{Category: CategoryPrimitive, IsPrimitive: true}
	case reflect.Func:
		// A bare Go func, not a classify.Func literal: no source text
		// was ever captured for it.
		return Info{Category: CategoryFunction, IsObject: true, NeedsSpecialSerialize: true, Unrepresentable: true}
	case reflect.Ptr:
		if !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
			// A class instance: an object, not one of the built-in
			// tagged kinds, whose prototype is neither null nor the
			// plain-record prototype.
			return Info{Category: CategoryRecord, IsObject: true, IsInstance: true}
		}
	}

	// Anything else reaching here is a host value the graph doesn't
	// understand; treat it as an opaque primitive rather than crashing
	// a single-pass classifier that must never panic.
	return Info{Category: CategoryPrimitive, IsPrimitive: true}
}

// IsClassInstance reports whether v is an object, not one of the
// built-in tagged kinds, whose "prototype" (its Class marker) is neither
// empty nor absent — the Go realization of spec.md §4.1's instance rule.
func IsClassInstance(v any) bool {
	return Of(v).IsInstance
}
