package classify

import "reflect"

// RecordLike is the generic keyed-property view every record-category
// value exposes to the serializer, the deserializer, and the
// interception layer, whether it is a plain *Record or a registered
// class instance (an arbitrary Go struct pointer).
type RecordLike interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Keys() []string
	ClassName() string
}

// ClassName implements RecordLike for *Record.
func (r *Record) ClassName() string { return r.Class }

// AsRecordLike returns a RecordLike view of v if v is record-shaped:
// either a *Record, or a pointer to a struct (a class instance). The
// second case is adapted through reflection, matching struct fields to
// property keys by their `json` tag name, falling back to the Go field
// name.
func AsRecordLike(v any) (RecordLike, bool) {
	if r, ok := v.(*Record); ok {
		return r, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, false
	}
	return &reflectRecord{v: rv.Elem(), typeName: rv.Elem().Type().Name()}, true
}

// reflectRecord adapts a struct value to RecordLike via reflection, so
// that a reconstructed class instance can be read and written through
// the same property-access contract as a plain Record.
type reflectRecord struct {
	v        reflect.Value
	typeName string
}

// ClassName returns the underlying Go struct's type name, used as the
// reserved class-name marker on serialization.
func (r *reflectRecord) ClassName() string {
	return r.typeName
}

// fieldKey returns the property key a struct field is addressed by: its
// json tag name if present and not "-", otherwise its Go field name.
func fieldKey(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	if tag == "" {
		return f.Name, true
	}
	name, _, _ := splitTag(tag)
	if name == "" {
		return f.Name, true
	}
	return name, true
}

func splitTag(tag string) (name, rest string, hasRest bool) {
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i], tag[i+1:], true
		}
	}
	return tag, "", false
}

func (r *reflectRecord) findField(key string) (reflect.Value, bool) {
	t := r.v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if name, ok := fieldKey(f); ok && name == key {
			return r.v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Get implements RecordLike.
func (r *reflectRecord) Get(key string) (any, bool) {
	fv, ok := r.findField(key)
	if !ok {
		return nil, false
	}
	return fv.Interface(), true
}

// Set implements RecordLike. Unknown keys are silently dropped: a
// struct's field set is fixed, unlike a plain Record's.
func (r *reflectRecord) Set(key string, value any) {
	fv, ok := r.findField(key)
	if !ok || !fv.CanSet() {
		return
	}
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(fv.Type()) {
		fv.Set(rv)
	} else if rv.Type().ConvertibleTo(fv.Type()) {
		fv.Set(rv.Convert(fv.Type()))
	}
}

// Delete implements RecordLike by resetting the field to its zero value;
// a struct has no notion of an absent field.
func (r *reflectRecord) Delete(key string) {
	r.Set(key, nil)
}

// Keys implements RecordLike, returning exported field keys in
// declaration order.
func (r *reflectRecord) Keys() []string {
	t := r.v.Type()
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if name, ok := fieldKey(f); ok {
			keys = append(keys, name)
		}
	}
	return keys
}
