package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSchemasAreWritten(t *testing.T) {
	dir := t.TempDir()
	for _, a := range artifacts {
		if err := writeSchema(filepath.Join(dir, a.file), buildSchema(a)); err != nil {
			t.Fatalf("%s: %v", a.file, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "summary.schema.json"))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("summary schema is not JSON: %v", err)
	}
	if doc["title"] != "Session Summary" {
		t.Errorf("title = %v", doc["title"])
	}
	if _, err := os.Stat(filepath.Join(dir, "summary.schema.json.tmp")); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}
