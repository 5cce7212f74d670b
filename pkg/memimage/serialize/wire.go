// Package serialize turns the live object graph into a JSON-compatible
// tree and back, in the two modes spec.md §4.3 and §4.4 describe:
// snapshot mode, where every object receives a canonical path the first
// time it is visited, and event-value mode, where a single mutated value
// is serialized against the graph that already surrounds it.
//
// The tree produced and consumed here is deliberately plain Go any
// (map[string]any, []any, string, float64, bool, nil) rather than a
// bespoke node type: it is already the shape encoding/json and
// gopkg.in/yaml.v3 read and write, so a log entry's Payload field needs no
// translation on its way to or from disk.
package serialize

// Wire tag keys and values. A tagged value is always a
// map[string]any{TypeKey: <tag>, ...}; untagged primitives, plain
// records, and plain arrays never carry TypeKey, so its presence alone
// disambiguates a tagged wrapper from a record that happens to have a
// property named "type".
const (
	TypeKey  = "__type__"
	ClassKey = "__class__"
	KeysKey  = "__keys__" // explicit key order for a record
)

const (
	TagFunction = "function"
	TagDate     = "date"
	TagRegexp   = "regexp"
	TagBigInt   = "bigint"
	TagSymbol   = "symbol"
	TagMap      = "map"
	TagSet      = "set"
	TagRef      = "ref"
	TagAbsent   = "absent" // the serialized form of classify.Undefined
)

// FunctionSourceKey, DateValueKey name the reserved payload fields of
// the function and date tags, spelled out rather than inlined as
// string literals since both are referenced from both serialize.go and
// deserialize.go.
const (
	FunctionSourceKey = "sourceCode"
	DateValueKey      = "dateValue"
	RefPathKey        = "path"
)
