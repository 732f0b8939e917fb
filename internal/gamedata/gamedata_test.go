package gamedata

import (
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

func TestHealSkillKeyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.Uint64Range(0, HealSkillOffset-1).Draw(t, "skill")
		key := HealSkillKey(s)
		if key != s+1_000_000_000 {
			t.Fatalf("HealSkillKey(%d) = %d", s, key)
		}
		if RawSkillID(key) != s {
			t.Fatalf("RawSkillID(%d) = %d, want %d", key, RawSkillID(key), s)
		}
	})
}

func TestLoadTablesWithFallbacks(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, SkillNamesFile), []byte(`{"1241":"Frost Beam","x":"bad"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, SceneNamesFile), []byte(`{"12":"Dark Shrine"}`), 0644); err != nil {
		t.Fatal(err)
	}

	tables, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := tables.SkillName(1241); got != "Frost Beam" {
		t.Errorf("SkillName = %q", got)
	}
	if got := tables.SkillName(HealSkillKey(1241)); got != "Frost Beam" {
		t.Errorf("healing key name = %q", got)
	}
	if got := tables.SkillName(77); got != "77" {
		t.Errorf("unknown skill = %q", got)
	}
	if got := tables.SceneName(12); got != "Dark Shrine" {
		t.Errorf("SceneName = %q", got)
	}
	if got := tables.SceneName(13); got != "Instance 13" {
		t.Errorf("unknown scene = %q", got)
	}
	if _, ok := tables.MonsterName(1); ok {
		t.Error("monster table should be empty")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, MonsterNamesFile), []byte(`{`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSpecializationUsesRawID(t *testing.T) {
	if tag, ok := Specialization(HealSkillKey(20301)); !ok || tag != "Lifebind" {
		t.Errorf("Specialization(heal 20301) = %q, %v", tag, ok)
	}
	if _, ok := Specialization(5); ok {
		t.Error("unmapped skill produced a specialization")
	}
}
