package descriptions

import "sort"

// Tool names served over MCP
const (
	ToolDetectFormFields = "detect_form_fields"
	ToolClassifyDocument = "classify_document"
	ToolFillFormFields   = "fill_form_fields"
	ToolSetFieldValue    = "set_field_value"
	ToolTrainClassifier  = "train_classifier"
	ToolGetDocument      = "get_document"
	ToolListDocuments    = "list_documents"
)

const (
	DetectFormFieldsDescription = `Find every fillable field in a PDF or scanned form image and store the result as a document.

**When to use:** First step for any form. Works on PDFs with interactive widgets, flat PDFs with printed blanks, and scans (PNG, JPEG, TIFF).

**What you get:** a document_id, the detected document type, and one entry per field with its id, page, rectangle in page units, field type, label context, confidence and detection method. Non-fatal problems (a detector that failed on one page, the keyword fallback answering for the classifier) are listed under errors and notices.

**Examples:**
• "Detect the fields in intake/patient_form.pdf"
• "Find the blanks on scans/application.png"

**Common workflows:**
1. detect_form_fields → set_field_value for each answer → fill_form_fields
2. detect_form_fields → fill_form_fields with a values object in one call

**Best practices:** Paths are resolved inside the configured document directory. Keep the returned document_id; every other tool takes it.`

	ClassifyDocumentDescription = `Classify a document as application_form, contract, medical_form, financial_form, legal_document, educational_form or unknown.

**When to use:** Route a document before processing, or check what type the field detector will assume.

**Input:** either a path to a document or raw text. The statistical model answers when trained and confident; otherwise keyword rules do and fallback_reason says why.

**Examples:**
• "What kind of form is contracts/lease.pdf?"
• "Classify this text: Patient name, date of birth, insurance provider"`

	FillFormFieldsDescription = `Write values into the fields of a detected document and save a filled copy.

**When to use:** After detect_form_fields, once you know what goes where.

**Input:** document_id, an optional values object mapping field ids to values, and an optional output_path. Fields not named in values use the value stored with set_field_value (the user's value wins over an AI suggestion). Checkbox fields accept yes/no, true/false, on/off, 1/0 and x.

**Output:** the output path plus the filled field ids and, for each field that could not be written, the reason. One bad value never stops the others.

**Best practices:** The output keeps the source format and may not overwrite the source. Without output_path the copy is written next to the source as <name>_filled.<ext>.`

	SetFieldValueDescription = `Record a value for one field of a stored document.

**When to use:** Collect answers field by field before filling, or store an AI suggestion alongside what the user typed.

**Input:** document_id, field_id, value and source ("user" or "ai", default "user"). An AI value never replaces a value the user entered.

**Output:** the field's value slots: user_value, ai_value, enhanced and the effective value.`

	TrainClassifierDescription = `Improve document and field classification with labeled examples.

**When to use:** After correcting a few classifications, or to teach the server a new kind of form.

**Input:** samples, a list of objects with text, field_type, document_type and optional context. Samples are kept, so each call trains on everything seen so far.

**Output:** whether training ran, holdout accuracy for document and field types, sample counts and where the model was saved. Too few samples skip training and keep the current model.`

	GetDocumentDescription = `Return a stored document with its fields and their current values.

**When to use:** Resume work on a form detected earlier, or review values before filling.`

	ListDocumentsDescription = `List stored documents, most recently updated first, with their type and field count.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	ToolDetectFormFields: DetectFormFieldsDescription,
	ToolClassifyDocument: ClassifyDocumentDescription,
	ToolFillFormFields:   FillFormFieldsDescription,
	ToolSetFieldValue:    SetFieldValueDescription,
	ToolTrainClassifier:  TrainClassifierDescription,
	ToolGetDocument:      GetDocumentDescription,
	ToolListDocuments:    ListDocumentsDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the sorted tool names
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
