package schema

import (
	"google.golang.org/protobuf/reflect/protoreflect"
)

// View is a read-only accessor over a decoded dynamic message. Every
// accessor tolerates a missing field or an invalid view and returns the
// zero value.
type View struct {
	m protoreflect.Message
}

// Valid reports whether the view wraps a message.
func (v View) Valid() bool { return v.m != nil }

// Message returns the underlying message.
func (v View) Message() protoreflect.Message { return v.m }

// Name returns the message full name.
func (v View) Name() string {
	if v.m == nil {
		return ""
	}
	return string(v.m.Descriptor().FullName())
}

func (v View) field(name string) protoreflect.FieldDescriptor {
	if v.m == nil {
		return nil
	}
	return v.m.Descriptor().Fields().ByName(protoreflect.Name(name))
}

// Has reports whether the field is present on the wire.
func (v View) Has(name string) bool {
	fd := v.field(name)
	return fd != nil && v.m.Has(fd)
}

// Int returns any numeric, enum or bool field widened to int64.
func (v View) Int(name string) int64 {
	fd := v.field(name)
	if fd == nil || fd.IsList() {
		return 0
	}
	val := v.m.Get(fd)
	switch fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return val.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return int64(val.Uint())
	case protoreflect.EnumKind:
		return int64(val.Enum())
	case protoreflect.BoolKind:
		if val.Bool() {
			return 1
		}
	}
	return 0
}

// Uint returns a numeric field reinterpreted as uint64. Entity uuids are
// carried as int64 on the wire.
func (v View) Uint(name string) uint64 {
	return uint64(v.Int(name))
}

// Bool returns a bool field.
func (v View) Bool(name string) bool {
	fd := v.field(name)
	if fd == nil || fd.Kind() != protoreflect.BoolKind || fd.IsList() {
		return false
	}
	return v.m.Get(fd).Bool()
}

// String returns a string field.
func (v View) String(name string) string {
	fd := v.field(name)
	if fd == nil || fd.Kind() != protoreflect.StringKind || fd.IsList() {
		return ""
	}
	return v.m.Get(fd).String()
}

// Bytes returns a bytes field.
func (v View) Bytes(name string) []byte {
	fd := v.field(name)
	if fd == nil || fd.Kind() != protoreflect.BytesKind || fd.IsList() {
		return nil
	}
	return v.m.Get(fd).Bytes()
}

// Msg returns a nested message field, or an invalid view when absent.
func (v View) Msg(name string) View {
	fd := v.field(name)
	if fd == nil || fd.Message() == nil || fd.IsList() || !v.m.Has(fd) {
		return View{}
	}
	return View{m: v.m.Get(fd).Message()}
}

// List returns the elements of a repeated message field.
func (v View) List(name string) []View {
	fd := v.field(name)
	if fd == nil || !fd.IsList() || fd.Message() == nil {
		return nil
	}
	l := v.m.Get(fd).List()
	out := make([]View, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		out = append(out, View{m: l.Get(i).Message()})
	}
	return out
}
