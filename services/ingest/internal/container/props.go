package container

import (
	"reflect"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// propertySet reads named fields from a decoded property message. Item
// kinds (notes, appointments, reports) share field names but not Go types,
// so lookups go through protoreflect instead of typed getters.
type propertySet struct {
	msg protoreflect.Message
}

func newPropertySet(m proto.Message) propertySet {
	if m == nil {
		return propertySet{}
	}
	r := m.ProtoReflect()
	if r == nil || !r.IsValid() {
		return propertySet{}
	}
	return propertySet{msg: r}
}

func (p propertySet) field(name string) (protoreflect.FieldDescriptor, bool) {
	if p.msg == nil {
		return nil, false
	}
	fd := p.msg.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil || fd.IsList() || fd.IsMap() || !p.msg.Has(fd) {
		return nil, false
	}
	return fd, true
}

// String returns the first non-empty string (or text-decoded bytes) among names.
func (p propertySet) String(names ...string) (v string, ok bool) {
	defer func() {
		if recover() != nil {
			v, ok = "", false
		}
	}()
	for _, name := range names {
		fd, found := p.field(name)
		if !found {
			continue
		}
		switch fd.Kind() {
		case protoreflect.StringKind:
			if s := p.msg.Get(fd).String(); s != "" {
				return s, true
			}
		case protoreflect.BytesKind:
			if b := p.msg.Get(fd).Bytes(); len(b) > 0 {
				return string(b), true
			}
		}
	}
	return "", false
}

// Int returns the first integer-valued field among names.
func (p propertySet) Int(names ...string) (v int64, ok bool) {
	defer func() {
		if recover() != nil {
			v, ok = 0, false
		}
	}()
	for _, name := range names {
		fd, found := p.field(name)
		if !found {
			continue
		}
		switch fd.Kind() {
		case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
			protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
			return p.msg.Get(fd).Int(), true
		case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
			protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
			return int64(p.msg.Get(fd).Uint()), true
		}
	}
	return 0, false
}

// Time returns the first timestamp among names.
func (p propertySet) Time(names ...string) (time.Time, bool) {
	for _, name := range names {
		raw, ok := p.Int(name)
		if !ok || raw <= 0 {
			continue
		}
		if t, ok := timeFromInt(raw); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// filetimeEpochOffset is the number of 100ns intervals between 1601-01-01 and 1970-01-01.
const filetimeEpochOffset = 116444736000000000

// timeFromInt interprets a stored timestamp by magnitude: Windows FILETIME
// for 1918..2552, otherwise unix nanoseconds, microseconds, milliseconds or
// seconds. The ranges do not overlap for dates after 1979.
func timeFromInt(raw int64) (time.Time, bool) {
	switch {
	case raw <= 0:
		return time.Time{}, false
	case raw >= 3e17:
		return time.Unix(0, raw).UTC(), true
	case raw >= 1e17:
		return time.Unix(0, (raw-filetimeEpochOffset)*100).UTC(), true
	case raw >= 1e14:
		return time.UnixMicro(raw).UTC(), true
	case raw >= 1e11:
		return time.UnixMilli(raw).UTC(), true
	default:
		return time.Unix(raw, 0).UTC(), true
	}
}

// embeddedProperties finds the property message embedded in a backend
// struct such as an attachment.
func embeddedProperties(v any) proto.Message {
	if m, ok := v.(proto.Message); ok {
		return m
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !rv.Type().Field(i).IsExported() {
			continue
		}
		switch {
		case f.Kind() == reflect.Pointer && !f.IsNil():
			if m, ok := f.Interface().(proto.Message); ok {
				return m
			}
		case f.Kind() == reflect.Interface && !f.IsNil():
			if m, ok := f.Interface().(proto.Message); ok {
				return m
			}
		case f.Kind() == reflect.Struct && f.CanAddr():
			if m, ok := f.Addr().Interface().(proto.Message); ok {
				return m
			}
		}
	}
	return nil
}

// intField reads an exported integer field by name.
func intField(v any, name string) (int64, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return 0, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return 0, false
	}
	f := rv.FieldByName(name)
	if !f.IsValid() {
		return 0, false
	}
	switch f.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return f.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(f.Uint()), true
	}
	return 0, false
}

// boolField reads an exported bool field by name.
func boolField(v any, name string) (bool, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return false, false
	}
	f := rv.FieldByName(name)
	if !f.IsValid() || f.Kind() != reflect.Bool {
		return false, false
	}
	return f.Bool(), true
}
