// Package form defines the records shared by every stage of the form
// pipeline: fields, candidate regions, rectangles in their coordinate
// spaces and the per-document layout.
package form

import "strings"

// FieldType is a tag from the closed field taxonomy
type FieldType string

const (
	FieldTypeText          FieldType = "text"
	FieldTypeName          FieldType = "name"
	FieldTypeFirstName     FieldType = "first_name"
	FieldTypeLastName      FieldType = "last_name"
	FieldTypeEmail         FieldType = "email"
	FieldTypePhone         FieldType = "phone"
	FieldTypeAddress       FieldType = "address"
	FieldTypeCity          FieldType = "city"
	FieldTypeState         FieldType = "state"
	FieldTypeZipCode       FieldType = "zip_code"
	FieldTypeCountry       FieldType = "country"
	FieldTypeDate          FieldType = "date"
	FieldTypeDateOfBirth   FieldType = "date_of_birth"
	FieldTypeDay           FieldType = "day"
	FieldTypeMonth         FieldType = "month"
	FieldTypeYear          FieldType = "year"
	FieldTypeAge           FieldType = "age"
	FieldTypeSignature     FieldType = "signature"
	FieldTypeCheckbox      FieldType = "checkbox"
	FieldTypeRadio         FieldType = "radio"
	FieldTypeDropdown      FieldType = "dropdown"
	FieldTypeStudentID     FieldType = "student_id"
	FieldTypeInstitution   FieldType = "institution"
	FieldTypeCourse        FieldType = "course"
	FieldTypeGPA           FieldType = "gpa"
	FieldTypeSSN           FieldType = "ssn"
	FieldTypeCompany       FieldType = "company"
	FieldTypeJobTitle      FieldType = "job_title"
	FieldTypeAmount        FieldType = "amount"
	FieldTypeAccountNumber FieldType = "account_number"
	FieldTypePolicyNumber  FieldType = "policy_number"
	FieldTypePatientID     FieldType = "patient_id"
)

// IsBoolean reports whether values of this type are on/off states
func (t FieldType) IsBoolean() bool {
	return t == FieldTypeCheckbox || t == FieldTypeRadio
}

// DetectionMethod identifies which strategy produced a field
type DetectionMethod string

const (
	MethodNativeWidget DetectionMethod = "native_widget"
	MethodTextPattern  DetectionMethod = "text_pattern"
	MethodUnderline    DetectionMethod = "underline"
	MethodDottedLeader DetectionMethod = "dotted_leader"
	MethodRectangular  DetectionMethod = "rectangular"
	MethodWhitespace   DetectionMethod = "whitespace"
)

// AllMethods lists every detection method in default priority order
var AllMethods = []DetectionMethod{
	MethodNativeWidget,
	MethodTextPattern,
	MethodUnderline,
	MethodDottedLeader,
	MethodRectangular,
	MethodWhitespace,
}

// IsGeometric reports whether the method relies on shape alone, without
// any label evidence.
func (m DetectionMethod) IsGeometric() bool {
	return m == MethodRectangular || m == MethodWhitespace
}

// Valid reports whether m is a known method
func (m DetectionMethod) Valid() bool {
	for _, known := range AllMethods {
		if m == known {
			return true
		}
	}
	return false
}

// WidgetKind is the native type of an interactive form widget
type WidgetKind string

const (
	WidgetNone      WidgetKind = ""
	WidgetText      WidgetKind = "text"
	WidgetCheckbox  WidgetKind = "checkbox"
	WidgetRadio     WidgetKind = "radio"
	WidgetChoice    WidgetKind = "choice"
	WidgetSignature WidgetKind = "signature"
	WidgetButton    WidgetKind = "button"
)

// ValueSlots keeps user input and AI suggestions apart so a later
// suggestion never replaces what the user typed.
type ValueSlots struct {
	UserValue string `json:"user_value"`
	AIValue   string `json:"ai_value"`
	Enhanced  bool   `json:"enhanced"`
}

// SetUser records a user-entered value
func (v *ValueSlots) SetUser(value string) {
	v.UserValue = value
}

// SetAI records an AI suggestion. The user slot is left untouched.
func (v *ValueSlots) SetAI(value string) {
	v.AIValue = value
	v.Enhanced = true
}

// Effective returns the value to write: the user's if present, else the
// AI suggestion.
func (v ValueSlots) Effective() string {
	if strings.TrimSpace(v.UserValue) != "" {
		return v.UserValue
	}
	return v.AIValue
}

// Field is a resolved fillable region. Its rectangle is always in page
// units with a top-left origin.
type Field struct {
	ID              string          `json:"id"`
	PageIndex       int             `json:"page_index"`
	Rect            PageRect        `json:"rect"`
	FieldType       FieldType       `json:"field_type"`
	Context         string          `json:"context"`
	Confidence      float64         `json:"confidence"`
	Method          DetectionMethod `json:"detection_method"`
	Values          ValueSlots      `json:"values"`
	Required        bool            `json:"required"`
	NativeName      string          `json:"native_name,omitempty"`
	NativeKind      WidgetKind      `json:"native_kind,omitempty"`
	Options         []string        `json:"options,omitempty"`
	ValidationRules []string        `json:"validation_rules,omitempty"`
}

// IsNative reports whether the field is backed by a widget in the document
func (f Field) IsNative() bool {
	return f.Method == MethodNativeWidget
}

// IsBoolean reports whether the field takes an on/off value
func (f Field) IsBoolean() bool {
	if f.NativeKind == WidgetCheckbox || f.NativeKind == WidgetRadio {
		return true
	}
	return f.FieldType.IsBoolean()
}

// Candidate is a detector output that has not been reconciled yet. Its
// rectangle is still in the detector's own coordinate space and it cannot
// be merged until it becomes a Field.
type Candidate struct {
	ID         string
	PageIndex  int
	Box        RawRect
	FieldType  FieldType
	Context    string
	Confidence float64
	Method     DetectionMethod
	Required   bool
	NativeName string
	NativeKind WidgetKind
	Options    []string
}
