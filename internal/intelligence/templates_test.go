package intelligence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

func TestTemplateStore_Defaults(t *testing.T) {
	store := NewTemplateStore()

	for _, dt := range []DocumentType{DocumentTypeApplication, DocumentTypeContract, DocumentTypeMedical,
		DocumentTypeFinancial, DocumentTypeLegal, DocumentTypeEducational} {
		_, ok := store.Get(dt)
		assert.True(t, ok, dt)
	}
	_, ok := store.Get(DocumentTypeUnknown)
	assert.False(t, ok)
}

func TestTemplateStore_GetReturnsCopy(t *testing.T) {
	store := NewTemplateStore()
	tmpl, ok := store.Get(DocumentTypeContract)
	require.True(t, ok)

	tmpl.FieldPatterns[form.FieldTypeName][0] = "mutated"

	again, _ := store.Get(DocumentTypeContract)
	assert.Equal(t, "party", again.FieldPatterns[form.FieldTypeName][0])
}

func TestTemplateStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	store := NewTemplateStore()
	require.NoError(t, store.Update(DocumentTemplate{
		DocumentType:        DocumentTypeInvoice,
		Description:         "Vendor invoices",
		FieldPatterns:       map[form.FieldType][]string{form.FieldTypeAmount: {"balance forward"}},
		ConfidenceThreshold: 0.75,
	}))
	require.NoError(t, store.Save(path))

	loaded, err := LoadTemplateStore(path)
	require.NoError(t, err)

	tmpl, ok := loaded.Get(DocumentTypeInvoice)
	require.True(t, ok)
	assert.Equal(t, "Vendor invoices", tmpl.Description)
	assert.Equal(t, 0.75, tmpl.ConfidenceThreshold)

	ft, ok := loaded.MatchLabel(DocumentTypeInvoice, "Balance Forward:")
	assert.True(t, ok)
	assert.Equal(t, form.FieldTypeAmount, ft)
}

func TestLoadTemplateStore_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	yamlDoc := `templates:
  - document_type: contract
    description: Lease agreements
    field_patterns:
      name: [lessor, lessee]
    validation_rules:
      signature: [required]
    confidence_threshold: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	store, err := LoadTemplateStore(path)
	require.NoError(t, err)

	ft, ok := store.MatchLabel(DocumentTypeContract, "Lessee")
	assert.True(t, ok)
	assert.Equal(t, form.FieldTypeName, ft)

	_, ok = store.MatchLabel(DocumentTypeContract, "Disclosing Party")
	assert.False(t, ok, "file template replaces the built-in one")

	_, ok = store.Get(DocumentTypeMedical)
	assert.True(t, ok, "other defaults survive")
}

func TestLoadTemplateStore_Errors(t *testing.T) {
	dir := t.TempDir()

	store, err := LoadTemplateStore(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Len(t, store.All(), len(getDefaultTemplates()))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("templates: [ {"), 0o644))
	_, err = LoadTemplateStore(bad)
	assert.Error(t, err)

	untyped := filepath.Join(dir, "untyped.yaml")
	require.NoError(t, os.WriteFile(untyped, []byte("templates:\n  - description: nothing\n"), 0o644))
	_, err = LoadTemplateStore(untyped)
	assert.ErrorContains(t, err, "no document_type")
}

func TestTemplateStore_UpdateValidation(t *testing.T) {
	store := NewTemplateStore()
	assert.Error(t, store.Update(DocumentTemplate{}))
	assert.Error(t, store.Update(DocumentTemplate{DocumentType: DocumentTypeInvoice, ConfidenceThreshold: 1.5}))
}

func TestMatchLabel_WholeWords(t *testing.T) {
	store := NewTemplateStore()

	ft, ok := store.MatchLabel(DocumentTypeContract, "Acme Inc.")
	assert.True(t, ok)
	assert.Equal(t, form.FieldTypeCompany, ft)

	for _, label := range []string{"Income", "Employed since", "Counterparty"} {
		_, ok := store.MatchLabel(DocumentTypeContract, label)
		assert.False(t, ok, label)
	}
}
