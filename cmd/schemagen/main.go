// schemagen writes JSON Schemas for the files combatlens leaves behind:
// the per-session log artifacts, the user cache and stored session records.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/energizer-project/combatlens/internal/session"
	"github.com/energizer-project/combatlens/internal/state"
)

type artifact struct {
	file        string
	title       string
	description string
	value       interface{}
}

var artifacts = []artifact{
	{
		file:        "allUserData.schema.json",
		title:       "All User Data",
		description: "Per-user summaries of a session, keyed by uid.",
		value:       map[string]session.UserSummary{},
	},
	{
		file:        "user.schema.json",
		title:       "User Skill Report",
		description: "users/<uid>.json of a session log directory.",
		value:       new(state.UserReport),
	},
	{
		file:        "summary.schema.json",
		title:       "Session Summary",
		description: "summary.json of a session log directory.",
		value:       new(state.SessionSummary),
	},
	{
		file:        "users.schema.json",
		title:       "User Cache",
		description: "Cached player identity, keyed by uid.",
		value:       map[string]state.CachedUser{},
	},
	{
		file:        "session.schema.json",
		title:       "Session Record",
		description: "A finalized session as returned by GET /api/sessions/:id.",
		value:       new(session.Record),
	},
}

func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "", "directory to write the JSON schemas to")
	flag.Parse()

	if outDir == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	for _, a := range artifacts {
		if err := writeSchema(filepath.Join(outDir, a.file), buildSchema(a)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", a.file, err)
			os.Exit(1)
		}
	}
}

func buildSchema(a artifact) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(a.value)
	schema.Title = a.title
	schema.Description = a.description
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	return os.Rename(tmpPath, outPath)
}
