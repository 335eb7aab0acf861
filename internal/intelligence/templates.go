package intelligence

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// templateFile is the on-disk YAML layout
type templateFile struct {
	Templates []DocumentTemplate `yaml:"templates"`
}

// TemplateStore holds one DocumentTemplate per document type. Lookups take
// a read lock; only Update and Load replace templates.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[DocumentType]DocumentTemplate
}

// NewTemplateStore creates a store seeded with the built-in templates
func NewTemplateStore() *TemplateStore {
	s := &TemplateStore{templates: make(map[DocumentType]DocumentTemplate)}
	for _, t := range getDefaultTemplates() {
		s.templates[t.DocumentType] = t
	}
	return s
}

// LoadTemplateStore reads templates from a YAML file over the built-in
// defaults. A missing file yields the defaults.
func LoadTemplateStore(path string) (*TemplateStore, error) {
	s := NewTemplateStore()
	if path == "" {
		return s, nil
	}
	if err := s.Load(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// Load merges templates from a YAML file into the store
func (s *TemplateStore) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse templates %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range file.Templates {
		if t.DocumentType == "" {
			return fmt.Errorf("template in %s has no document_type", path)
		}
		s.templates[t.DocumentType] = t
	}
	return nil
}

// Save writes every template to path as YAML, ordered by document type
func (s *TemplateStore) Save(path string) error {
	file := templateFile{Templates: s.All()}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to encode templates: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create template directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Get returns a copy of the template for a document type
func (s *TemplateStore) Get(dt DocumentType) (DocumentTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[dt]
	if !ok {
		return DocumentTemplate{}, false
	}
	return cloneTemplate(t), true
}

// All returns copies of every template sorted by document type
func (s *TemplateStore) All() []DocumentTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DocumentTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentType < out[j].DocumentType })
	return out
}

// Update replaces the template for its document type
func (s *TemplateStore) Update(t DocumentTemplate) error {
	if t.DocumentType == "" {
		return fmt.Errorf("template has no document_type")
	}
	if t.ConfidenceThreshold < 0 || t.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0,1], got %v", t.ConfidenceThreshold)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.DocumentType] = cloneTemplate(t)
	return nil
}

// MatchLabel looks up a normalized label in the template's field patterns.
// Field types are visited in sorted order so the result is stable.
func (s *TemplateStore) MatchLabel(dt DocumentType, label string) (form.FieldType, bool) {
	normalized := NormalizeLabel(label)
	if normalized == "" {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[dt]
	if !ok {
		return "", false
	}
	types := make([]form.FieldType, 0, len(t.FieldPatterns))
	for ft := range t.FieldPatterns {
		types = append(types, ft)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, ft := range types {
		for _, p := range t.FieldPatterns[ft] {
			if containsPhrase(normalized, NormalizeLabel(p)) {
				return ft, true
			}
		}
	}
	return "", false
}

// ValidationRules returns the rule names a template attaches to a field type
func (s *TemplateStore) ValidationRules(dt DocumentType, ft form.FieldType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[dt]
	if !ok {
		return nil
	}
	return append([]string(nil), t.ValidationRules[ft]...)
}

func cloneTemplate(t DocumentTemplate) DocumentTemplate {
	out := t
	out.FieldPatterns = make(map[form.FieldType][]string, len(t.FieldPatterns))
	for k, v := range t.FieldPatterns {
		out.FieldPatterns[k] = append([]string(nil), v...)
	}
	out.ValidationRules = make(map[form.FieldType][]string, len(t.ValidationRules))
	for k, v := range t.ValidationRules {
		out.ValidationRules[k] = append([]string(nil), v...)
	}
	return out
}

// containsPhrase reports whether phrase occurs in label as whole words,
// so "inc" matches "Acme Inc." but not "income".
func containsPhrase(label, phrase string) bool {
	words := labelWords(label)
	want := labelWords(phrase)
	if len(want) == 0 {
		return false
	}
	for i := 0; i+len(want) <= len(words); i++ {
		if slices.Equal(words[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

func labelWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
