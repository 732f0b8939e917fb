package schema

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Package is the proto package of the game-world messages.
const Package = "zproto"

// Entity types carried in Entity.EntType.
const (
	EntErrType      = 0
	EntMonster      = 1
	EntNpc          = 2
	EntSceneObject  = 3
	EntZone         = 4
	EntBullet       = 5
	EntClientBullet = 6
	EntPet          = 7
	EntChar         = 10
)

// Damage types carried in SyncDamageInfo.Type.
const (
	DamageNormal   = 0
	DamageMiss     = 1
	DamageHeal     = 2
	DamageImmune   = 3
	DamageFall     = 4
	DamageAbsorbed = 5
)

type fieldSpec struct {
	name     string
	number   int32
	kind     descriptorpb.FieldDescriptorProto_Type
	typeName string
	repeated bool
}

func scalar(name string, number int32, kind descriptorpb.FieldDescriptorProto_Type) fieldSpec {
	return fieldSpec{name: name, number: number, kind: kind}
}

func message(name string, number int32, typeName string) fieldSpec {
	return fieldSpec{name: name, number: number, kind: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, typeName: typeName}
}

func enum(name string, number int32, typeName string) fieldSpec {
	return fieldSpec{name: name, number: number, kind: descriptorpb.FieldDescriptorProto_TYPE_ENUM, typeName: typeName}
}

func repeated(f fieldSpec) fieldSpec {
	f.repeated = true
	return f
}

const (
	tInt32  = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tInt64  = descriptorpb.FieldDescriptorProto_TYPE_INT64
	tUint32 = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	tBool   = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tString = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBytes  = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tFloat  = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
)

type messageSpec struct {
	name   string
	fields []fieldSpec
}

type enumSpec struct {
	name   string
	values []string
	nums   []int32
}

// blueprint lists the subset of the game-world schema this decoder reads.
// Unknown fields on the wire are discarded during decoding.
var blueprint = []messageSpec{
	{"Attr", []fieldSpec{
		scalar("Id", 1, tInt32),
		scalar("RawData", 2, tBytes),
	}},
	{"AttrCollection", []fieldSpec{
		scalar("Uuid", 1, tInt64),
		repeated(message("Attrs", 2, "Attr")),
	}},
	{"Entity", []fieldSpec{
		scalar("Uuid", 1, tInt64),
		enum("EntType", 2, "EEntityType"),
		message("Attrs", 3, "AttrCollection"),
	}},
	{"DisappearEntity", []fieldSpec{
		scalar("Uuid", 1, tInt64),
		enum("Type", 2, "EDisappearType"),
	}},
	{"SyncNearEntities", []fieldSpec{
		repeated(message("Appear", 1, "Entity")),
		repeated(message("Disappear", 2, "DisappearEntity")),
	}},
	{"Vector3", []fieldSpec{
		scalar("X", 1, tFloat),
		scalar("Y", 2, tFloat),
		scalar("Z", 3, tFloat),
	}},
	{"SyncDamageInfo", []fieldSpec{
		scalar("DamageSource", 1, tInt32),
		scalar("IsMiss", 2, tBool),
		scalar("IsCrit", 3, tBool),
		enum("Type", 4, "EDamageType"),
		scalar("TypeFlag", 5, tInt32),
		scalar("Value", 6, tInt64),
		scalar("ActualValue", 7, tInt64),
		scalar("LuckyValue", 8, tInt64),
		scalar("HpLessenValue", 9, tInt64),
		scalar("ShieldLessenValue", 10, tInt64),
		scalar("AttackerUuid", 11, tInt64),
		scalar("OwnerId", 12, tInt32),
		scalar("OwnerLevel", 13, tInt32),
		scalar("OwnerStage", 14, tInt32),
		scalar("HitEventId", 15, tInt32),
		scalar("IsNormal", 16, tBool),
		scalar("IsDead", 17, tBool),
		enum("Property", 18, "EDamageProperty"),
		message("DamagePos", 19, "Vector3"),
		scalar("TopSummonerId", 21, tInt64),
	}},
	{"SkillEffect", []fieldSpec{
		scalar("Uuid", 1, tInt64),
		repeated(message("Damages", 2, "SyncDamageInfo")),
	}},
	{"AoiSyncDelta", []fieldSpec{
		scalar("Uuid", 1, tInt64),
		message("Attrs", 2, "AttrCollection"),
		message("SkillEffects", 7, "SkillEffect"),
	}},
	{"AoiSyncToMeDelta", []fieldSpec{
		message("BaseDelta", 1, "AoiSyncDelta"),
		scalar("Uuid", 5, tInt64),
	}},
	{"SyncToMeDeltaInfo", []fieldSpec{
		message("DeltaInfo", 1, "AoiSyncToMeDelta"),
	}},
	{"SyncNearDeltaInfo", []fieldSpec{
		repeated(message("DeltaInfos", 1, "AoiSyncDelta")),
	}},
	{"CharBaseInfo", []fieldSpec{
		scalar("CharId", 1, tInt64),
		scalar("AccountId", 2, tString),
		scalar("Name", 5, tString),
		scalar("FightPoint", 35, tInt32),
	}},
	{"SceneData", []fieldSpec{
		scalar("MapId", 1, tUint32),
		scalar("LineId", 2, tUint32),
		scalar("LevelUuid", 3, tInt64),
	}},
	{"UserFightAttr", []fieldSpec{
		scalar("CurHp", 1, tInt64),
		scalar("MaxHp", 2, tInt64),
	}},
	{"RoleLevel", []fieldSpec{
		scalar("Level", 1, tInt32),
	}},
	{"ProfessionList", []fieldSpec{
		scalar("CurProfessionId", 1, tInt32),
	}},
	{"ModSlot", []fieldSpec{
		scalar("SlotId", 1, tInt32),
		scalar("ItemUuid", 2, tInt64),
		scalar("ConfigId", 3, tInt32),
		scalar("Level", 4, tInt32),
	}},
	{"ModSerialize", []fieldSpec{
		repeated(message("Slots", 1, "ModSlot")),
	}},
	{"CharSerialize", []fieldSpec{
		scalar("CharId", 1, tInt64),
		message("CharBase", 2, "CharBaseInfo"),
		message("SceneData", 3, "SceneData"),
		message("Attr", 16, "UserFightAttr"),
		message("RoleLevel", 22, "RoleLevel"),
		message("Mod", 51, "ModSerialize"),
		message("ProfessionList", 61, "ProfessionList"),
	}},
	{"SyncContainerData", []fieldSpec{
		message("VData", 1, "CharSerialize"),
	}},
	{"BufferStream", []fieldSpec{
		scalar("Buffer", 1, tBytes),
	}},
	{"SyncContainerDirtyData", []fieldSpec{
		message("VData", 1, "BufferStream"),
	}},
}

var enums = []enumSpec{
	{"EEntityType",
		[]string{"EntErrType", "EntMonster", "EntNpc", "EntSceneObject", "EntZone", "EntBullet", "EntClientBullet", "EntPet", "EntChar"},
		[]int32{EntErrType, EntMonster, EntNpc, EntSceneObject, EntZone, EntBullet, EntClientBullet, EntPet, EntChar}},
	{"EDamageType",
		[]string{"Normal", "Miss", "Heal", "Immune", "Fall", "Absorbed"},
		[]int32{DamageNormal, DamageMiss, DamageHeal, DamageImmune, DamageFall, DamageAbsorbed}},
	{"EDisappearType",
		[]string{"EDisappearNormal", "EDisappearDead", "EDisappearDestroy", "EDisappearTransferLeave", "EDisappearTransferPassLineLeave"},
		[]int32{0, 1, 2, 3, 4}},
	{"EDamageProperty",
		[]string{"General", "Fire", "Water", "Electricity", "Wood", "Wind", "Rock", "Light", "Dark", "Count"},
		[]int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
}

// fileDescriptor assembles the blueprint into a proto2 file descriptor.
// proto2 keeps explicit presence for scalars, which the combat path needs
// to tell an absent lucky value from a zero one.
func fileDescriptor() *descriptorpb.FileDescriptorProto {
	fd := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("zproto/blueprint.proto"),
		Package: proto.String(Package),
		Syntax:  proto.String("proto2"),
	}

	for _, e := range enums {
		ed := &descriptorpb.EnumDescriptorProto{Name: proto.String(e.name)}
		for i, v := range e.values {
			ed.Value = append(ed.Value, &descriptorpb.EnumValueDescriptorProto{
				Name:   proto.String(v),
				Number: proto.Int32(e.nums[i]),
			})
		}
		fd.EnumType = append(fd.EnumType, ed)
	}

	for _, m := range blueprint {
		md := &descriptorpb.DescriptorProto{Name: proto.String(m.name)}
		for _, f := range m.fields {
			label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
			if f.repeated {
				label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
			}
			field := &descriptorpb.FieldDescriptorProto{
				Name:   proto.String(f.name),
				Number: proto.Int32(f.number),
				Label:  label.Enum(),
				Type:   f.kind.Enum(),
			}
			if f.typeName != "" {
				field.TypeName = proto.String("." + Package + "." + f.typeName)
			}
			md.Field = append(md.Field, field)
		}
		fd.MessageType = append(fd.MessageType, md)
	}

	return fd
}
