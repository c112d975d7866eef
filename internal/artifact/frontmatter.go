package artifact

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("artifact: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("artifact: malformed frontmatter")
)

// ParseFrontMatter extracts the metadata block and body from a document that starts
// with `---` YAML fences.
func ParseFrontMatter(content []byte) (Metadata, []byte, error) {
	if len(content) == 0 {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	normalized := normalizeNewlines(content)
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	rest := normalized[4:]
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	var envelope forgeEnvelope
	if err := yaml.Unmarshal(parts[0], &envelope); err != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	meta, err := envelope.toMetadata()
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, bytes.TrimPrefix(parts[1], []byte("\n")), nil
}

// WriteFrontMatter renders metadata + body with YAML fences.
func WriteFrontMatter(meta Metadata, body []byte) ([]byte, error) {
	if meta.ArtifactID == "" {
		return nil, fmt.Errorf("artifact: metadata missing artifact id")
	}
	envelope := forgeEnvelope{}
	envelope.fromMetadata(meta)
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// Checksum returns the hex BLAKE3 digest recorded for a body.
func Checksum(body []byte) string {
	sum := blake3.Sum256(normalizeNewlines(body))
	return hex.EncodeToString(sum[:])
}

type forgeEnvelope struct {
	Forge forgeMetadata `yaml:"forge"`
}

type forgeMetadata struct {
	Artifact  string            `yaml:"artifact"`
	Producer  string            `yaml:"producer"`
	Version   string            `yaml:"version"`
	Component string            `yaml:"component,omitempty"`
	Inputs    []string          `yaml:"inputs,omitempty"`
	Created   string            `yaml:"created"`
	Checksum  string            `yaml:"checksum,omitempty"`
	Notes     map[string]string `yaml:"notes,omitempty"`
}

func (e forgeEnvelope) toMetadata() (Metadata, error) {
	if e.Forge.Artifact == "" || e.Forge.Producer == "" || e.Forge.Version == "" {
		return Metadata{}, ErrMalformedFrontMatter
	}
	created, err := parseTime(e.Forge.Created)
	if err != nil {
		return Metadata{}, fmt.Errorf("artifact: parse created timestamp: %w", err)
	}
	return Metadata{
		ArtifactID: e.Forge.Artifact,
		Producer:   e.Forge.Producer,
		Version:    e.Forge.Version,
		Component:  e.Forge.Component,
		Inputs:     append([]string{}, e.Forge.Inputs...),
		CreatedAt:  created,
		Checksum:   e.Forge.Checksum,
		Notes:      cloneNotes(e.Forge.Notes),
	}, nil
}

func (e *forgeEnvelope) fromMetadata(meta Metadata) {
	e.Forge.Artifact = meta.ArtifactID
	e.Forge.Producer = meta.Producer
	e.Forge.Version = meta.Version
	e.Forge.Component = meta.Component
	e.Forge.Inputs = append([]string{}, meta.Inputs...)
	e.Forge.Created = meta.CreatedAt.UTC().Format(timeLayout)
	e.Forge.Checksum = meta.Checksum
	e.Forge.Notes = cloneNotes(meta.Notes)
}

func cloneNotes(notes map[string]string) map[string]string {
	if len(notes) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(notes))
	for k, v := range notes {
		cloned[k] = v
	}
	return cloned
}

const timeLayout = time.RFC3339

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("artifact: empty created timestamp")
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func normalizeNewlines(content []byte) []byte {
	return bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
}
