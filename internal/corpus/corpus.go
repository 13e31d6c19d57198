package corpus

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gowebpki/jcs"
	"github.com/kaptinlin/jsonschema"

	"github.com/codalotl/docxcompat/internal/types"
	"github.com/codalotl/docxcompat/internal/workspace"
)

//go:embed manifest.schema.json
var manifestSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// Corpus is a loaded manifest plus the digest of its canonical JSON form.
type Corpus struct {
	Manifest types.Manifest
	Digest   string
}

// Load reads, schema-validates and parses a manifest file.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("manifest not found at %s; generate the corpus first: %w", path, err)
		}
		return nil, err
	}
	return Parse(data)
}

// Parse validates raw manifest JSON and decodes it.
func Parse(data []byte) (*Corpus, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}
	result := schema.ValidateJSON(data)
	if !result.IsValid() {
		return nil, fmt.Errorf("manifest schema validation failed: %v", result.Errors)
	}
	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	digest, err := digest(data)
	if err != nil {
		return nil, err
	}
	return &Corpus{Manifest: m, Digest: digest}, nil
}

// Validate checks the invariants the schema cannot express.
func Validate(m *types.Manifest) error {
	if m.Count != len(m.Files) {
		return fmt.Errorf("manifest count %d does not match %d files", m.Count, len(m.Files))
	}
	seen := map[string]bool{}
	for i, e := range m.Files {
		clean, err := workspace.CleanEntry(e.File)
		if err != nil {
			return fmt.Errorf("files[%d]: %w", i, err)
		}
		if !e.Priority.Valid() {
			return fmt.Errorf("files[%d] %s: unknown priority %q", i, e.File, e.Priority)
		}
		if seen[clean] {
			return fmt.Errorf("files[%d]: duplicate file %s", i, e.File)
		}
		seen[clean] = true
	}
	return nil
}

// Filter keeps entries whose tier is in tiers and whose file is in files, preserving manifest
// order. An empty filter matches everything.
func Filter(entries []types.CorpusEntry, tiers []types.Priority, files []string) []types.CorpusEntry {
	tierSet := map[types.Priority]bool{}
	for _, t := range tiers {
		tierSet[t] = true
	}
	fileSet := map[string]bool{}
	for _, f := range files {
		if f = strings.TrimSpace(f); f != "" {
			fileSet[f] = true
		}
	}
	out := make([]types.CorpusEntry, 0, len(entries))
	for _, e := range entries {
		if len(tierSet) > 0 && !tierSet[e.Priority] {
			continue
		}
		if len(fileSet) > 0 && !fileSet[e.File] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ParsePriorities converts tier names, rejecting unknown ones.
func ParsePriorities(names []string) ([]types.Priority, error) {
	out := make([]types.Priority, 0, len(names))
	for _, n := range names {
		p := types.Priority(strings.ToLower(strings.TrimSpace(n)))
		if p == "" {
			continue
		}
		if !p.Valid() {
			return nil, fmt.Errorf("unknown tier %q (want critical, high or medium)", n)
		}
		out = append(out, p)
	}
	return out, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		compiledSchema, schemaErr = compiler.Compile(manifestSchema)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile manifest schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

func digest(data []byte) (string, error) {
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize manifest: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
