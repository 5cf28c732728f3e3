package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"hollowgrove/bot/internal/raid"
	"hollowgrove/bot/internal/store"
)

func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "schemas", "directory to write the JSON schemas")
	flag.Parse()

	targets := map[string]*jsonschema.Schema{
		"boss.schema.json":    bossSchema(),
		"catalog.schema.json": catalogSchema(),
	}

	for name, schema := range targets {
		if err := writeSchema(filepath.Join(outDir, name), schema); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", name, err)
			os.Exit(1)
		}
	}
}

func bossSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(store.BossDocument))
	schema.Title = "Boss Save Document"
	schema.Description = "Validates the persisted encounter state in data/boss.json"
	return schema
}

func catalogSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(raid.Catalog))
	schema.Title = "Boss Preset Catalog"
	schema.Description = "Validates the preset table in data/catalog.json"
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

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
