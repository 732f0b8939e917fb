package schema

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestRegistryResolvesBlueprintMessages(t *testing.T) {
	r := newRegistry(t)
	for _, m := range blueprint {
		if _, ok := r.Resolve(FullName(m.name)); !ok {
			t.Errorf("message %s not registered", m.name)
		}
	}
	if _, ok := r.Resolve("zproto.DoesNotExist"); ok {
		t.Error("unknown message resolved")
	}
}

func TestDecodeUsesFirstResolvableCandidate(t *testing.T) {
	r := newRegistry(t)

	mt, _ := r.Resolve(FullName("SyncToMeDeltaInfo"))
	msg := mt.New()
	info := msg.Mutable(msg.Descriptor().Fields().ByName("DeltaInfo")).Message()
	info.Set(info.Descriptor().Fields().ByName("Uuid"), protoreflect.ValueOfInt64(640|(7<<16)))
	payload, err := proto.Marshal(msg.Interface())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	v, ok := r.Decode(payload, "zproto.WorldNtf.SyncToMeDeltaInfo", FullName("SyncToMeDeltaInfo"))
	if !ok {
		t.Fatal("decode failed")
	}
	if v.Name() != "zproto.SyncToMeDeltaInfo" {
		t.Errorf("decoded as %s", v.Name())
	}
	if got := v.Msg("DeltaInfo").Uint("Uuid"); got != 640|(7<<16) {
		t.Errorf("Uuid = %d", got)
	}
	if r.Decoded() != 1 || r.Failures() != 0 {
		t.Errorf("Decoded = %d, Failures = %d", r.Decoded(), r.Failures())
	}
}

func TestDecodeFailuresReturnNothing(t *testing.T) {
	r := newRegistry(t)

	if _, ok := r.Decode(nil, FullName("SyncNearEntities")); ok {
		t.Error("empty payload decoded")
	}
	if _, ok := r.Decode([]byte{0x08, 0x01}, "zproto.Unknown"); ok {
		t.Error("unresolvable name decoded")
	}
	// Field 1 declared as length-delimited with a length past the end.
	if _, ok := r.Decode([]byte{0x0a, 0x10, 0x01}, FullName("SyncNearEntities")); ok {
		t.Error("truncated payload decoded")
	}
	if r.Failures() != 3 {
		t.Errorf("Failures = %d, want 3", r.Failures())
	}
	if r.Decoded() != 0 {
		t.Errorf("Decoded = %d, want 0", r.Decoded())
	}
}

func TestViewPresenceAndAccessors(t *testing.T) {
	r := newRegistry(t)

	var b []byte
	b = protowire.AppendTag(b, 6, protowire.VarintType) // Value
	b = protowire.AppendVarint(b, 0)
	b = protowire.AppendTag(b, 4, protowire.VarintType) // Type
	b = protowire.AppendVarint(b, DamageHeal)
	b = protowire.AppendTag(b, 17, protowire.VarintType) // IsDead
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, 99, protowire.BytesType) // unknown
	b = protowire.AppendBytes(b, []byte("ignored"))

	v, ok := r.Decode(b, FullName("SyncDamageInfo"))
	if !ok {
		t.Fatal("decode failed")
	}
	if !v.Has("Value") || v.Int("Value") != 0 {
		t.Error("explicit zero Value should be present")
	}
	if v.Has("LuckyValue") {
		t.Error("absent LuckyValue reported present")
	}
	if v.Int("Type") != DamageHeal {
		t.Errorf("Type = %d", v.Int("Type"))
	}
	if !v.Bool("IsDead") || v.Int("IsDead") != 1 {
		t.Error("IsDead not read")
	}
	if v.Msg("DamagePos").Valid() {
		t.Error("absent nested message should be invalid")
	}
	if v.Int("NoSuchField") != 0 || v.String("NoSuchField") != "" {
		t.Error("unknown field should read as zero")
	}

	var zero View
	if zero.Valid() || zero.Has("Value") || zero.List("Appear") != nil {
		t.Error("zero view should be inert")
	}
}

func TestViewList(t *testing.T) {
	r := newRegistry(t)

	entity := func(uuid uint64) []byte {
		var e []byte
		e = protowire.AppendTag(e, 1, protowire.VarintType)
		e = protowire.AppendVarint(e, uuid)
		return e
	}
	var b []byte
	for _, u := range []uint64{1 << 16, 2 << 16, 3 << 16} {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, entity(u))
	}

	v, ok := r.Decode(b, FullName("SyncNearEntities"))
	if !ok {
		t.Fatal("decode failed")
	}
	list := v.List("Appear")
	if len(list) != 3 {
		t.Fatalf("Appear has %d entries", len(list))
	}
	if list[2].Uint("Uuid")>>16 != 3 {
		t.Errorf("third uuid = %d", list[2].Uint("Uuid"))
	}
	if len(v.List("Disappear")) != 0 {
		t.Error("Disappear should be empty")
	}
}
