package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Store manages artifact IO rooted at a workspace layout.
type Store struct {
	layout Layout
	now    func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = clock
	}
}

// NewStore builds a store for a workspace layout.
func NewStore(layout Layout, opts ...StoreOption) *Store {
	store := &Store{
		layout: layout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Layout returns the layout paths resolve against.
func (s *Store) Layout() Layout {
	return s.layout
}

// Path resolves ref against the store layout.
func (s *Store) Path(ref ArtifactRef) string {
	return ref.Path(s.layout)
}

// Check inspects the artifact on disk and returns its status and metadata.
func (s *Store) Check(ref ArtifactRef) (CheckResult, error) {
	path := ref.Path(s.layout)
	if path == "" {
		err := fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	if info.IsDir() {
		return invalidResult(ref, path, fmt.Errorf("artifact: expected file got directory"))
	}
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: readErr}, readErr
	}
	switch ref.Kind {
	case KindJSON:
		meta, _, metaErr := parseJSONDocument(data)
		if metaErr != nil {
			return invalidResult(ref, path, metaErr)
		}
		if meta.ArtifactID != ref.ID {
			return invalidResult(ref, path, fmt.Errorf("artifact: metadata id %s does not match %s", meta.ArtifactID, ref.ID))
		}
		return CheckResult{Ref: ref, Path: path, State: StateReady, Metadata: &meta}, nil
	default:
		meta, body, metaErr := ParseFrontMatter(data)
		if metaErr != nil {
			return invalidResult(ref, path, metaErr)
		}
		if meta.ArtifactID != ref.ID {
			return invalidResult(ref, path, fmt.Errorf("artifact: metadata id %s does not match %s", meta.ArtifactID, ref.ID))
		}
		edited := meta.Checksum != "" && meta.Checksum != Checksum(body)
		return CheckResult{Ref: ref, Path: path, State: StateReady, Metadata: &meta, Edited: edited}, nil
	}
}

// ReadDocument returns the metadata and body of a document artifact. Files
// written by hand without frontmatter come back with zero metadata and the
// whole content as body.
func (s *Store) ReadDocument(ref ArtifactRef) (Metadata, []byte, error) {
	path := ref.Path(s.layout)
	if path == "" {
		return Metadata{}, nil, fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, nil, err
	}
	meta, body, err := ParseFrontMatter(data)
	if errors.Is(err, ErrMissingFrontMatter) {
		return Metadata{}, normalizeNewlines(data), nil
	}
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, body, nil
}

// ReadJSON decodes a JSON artifact into out and returns its metadata.
func (s *Store) ReadJSON(ref ArtifactRef, out any) (Metadata, error) {
	path := ref.Path(s.layout)
	if path == "" {
		return Metadata{}, fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	meta, payload, err := parseJSONDocument(data)
	if err != nil {
		return Metadata{}, err
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Metadata{}, fmt.Errorf("artifact: re-encode %s: %w", ref.ID, err)
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		return Metadata{}, fmt.Errorf("artifact: decode %s: %w", ref.ID, err)
	}
	return meta, nil
}

// Write persists the artifact contents and metadata based on its kind. The
// file is replaced atomically so readers never observe a partial write.
func (s *Store) Write(ref ArtifactRef, body []byte, meta Metadata) error {
	path := ref.Path(s.layout)
	if path == "" {
		return fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
	}
	prepared := meta.WithDefaults(ref, s.now())
	if err := prepared.ValidateFor(ref); err != nil {
		return err
	}
	var content []byte
	switch ref.Kind {
	case KindJSON:
		encoded, err := encodeJSONDocument(ref, body, prepared)
		if err != nil {
			return err
		}
		content = encoded
	default:
		prepared.Checksum = Checksum(body)
		rendered, err := WriteFrontMatter(prepared, body)
		if err != nil {
			return err
		}
		content = rendered
	}
	return writeAtomic(path, content)
}

// Remove deletes the artifact. A missing file is not an error.
func (s *Store) Remove(ref ArtifactRef) error {
	path := ref.Path(s.layout)
	if path == "" {
		return fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func encodeJSONDocument(ref ArtifactRef, body []byte, meta Metadata) ([]byte, error) {
	if body == nil {
		body = []byte("{}")
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("artifact: invalid json body for %s: %w", ref.ID, err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload[jsonMetadataKey] = metadataToJSON(meta)
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("artifact: encode json for %s: %w", ref.ID, err)
	}
	return append(encoded, '\n'), nil
}

const jsonMetadataKey = "_forge"

func invalidResult(ref ArtifactRef, path string, err error) (CheckResult, error) {
	return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, err
}

func parseJSONDocument(data []byte) (Metadata, map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return Metadata{}, nil, fmt.Errorf("artifact: parse json metadata: %w", err)
	}
	raw, ok := payload[jsonMetadataKey]
	if !ok {
		return Metadata{}, nil, fmt.Errorf("artifact: missing %s metadata", jsonMetadataKey)
	}
	metaMap, ok := raw.(map[string]any)
	if !ok {
		return Metadata{}, nil, fmt.Errorf("artifact: invalid %s metadata structure", jsonMetadataKey)
	}
	meta, err := metadataFromMap(metaMap)
	if err != nil {
		return Metadata{}, nil, err
	}
	delete(payload, jsonMetadataKey)
	return meta, payload, nil
}

func metadataToJSON(meta Metadata) map[string]any {
	result := map[string]any{
		"artifact": meta.ArtifactID,
		"producer": meta.Producer,
		"version":  meta.Version,
		"inputs":   append([]string{}, meta.Inputs...),
		"created":  meta.CreatedAt.UTC().Format(timeLayout),
	}
	if meta.Component != "" {
		result["component"] = meta.Component
	}
	if meta.Checksum != "" {
		result["checksum"] = meta.Checksum
	}
	if len(meta.Notes) > 0 {
		result["notes"] = cloneNotes(meta.Notes)
	}
	return result
}

func metadataFromMap(values map[string]any) (Metadata, error) {
	artifactID := stringValue(values["artifact"])
	producer := stringValue(values["producer"])
	version := stringValue(values["version"])
	if artifactID == "" || producer == "" || version == "" {
		return Metadata{}, fmt.Errorf("artifact: incomplete metadata")
	}
	created := stringValue(values["created"])
	if created == "" {
		return Metadata{}, fmt.Errorf("artifact: metadata missing created timestamp")
	}
	timeValue, err := parseTime(created)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		ArtifactID: artifactID,
		Producer:   producer,
		Version:    version,
		Component:  stringValue(values["component"]),
		Inputs:     sliceStringValue(values["inputs"]),
		CreatedAt:  timeValue,
		Checksum:   stringValue(values["checksum"]),
		Notes:      mapStringValue(values["notes"]),
	}, nil
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func sliceStringValue(value any) []string {
	arr, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s := stringValue(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func mapStringValue(value any) map[string]string {
	raw, ok := value.(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s := stringValue(v); s != "" {
			out[k] = s
		}
	}
	return out
}
