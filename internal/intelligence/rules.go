package intelligence

import "github.com/a3tai/mcp-form-autofill/internal/form"

// KeywordRule lists the phrases that vote for one document type in the
// keyword fallback.
type KeywordRule struct {
	DocumentType DocumentType
	Keywords     []string
}

// FallbackConfidenceCap bounds keyword-fallback confidence
const FallbackConfidenceCap = 0.9

// getDefaultKeywordRules returns the fallback rules in tie-break order
func getDefaultKeywordRules() []KeywordRule {
	return []KeywordRule{
		{
			DocumentType: DocumentTypeApplication,
			Keywords: []string{
				"application", "apply", "applicant", "submission", "enrollment",
				"registration", "admission", "membership",
			},
		},
		{
			DocumentType: DocumentTypeContract,
			Keywords: []string{
				"contract", "agreement", "terms", "conditions", "clause",
				"signature", "party", "obligation",
			},
		},
		{
			DocumentType: DocumentTypeInvoice,
			Keywords: []string{
				"invoice", "bill", "payment", "amount due", "total",
				"subtotal", "tax", "invoice number",
			},
		},
		{
			DocumentType: DocumentTypeMedical,
			Keywords: []string{
				"medical", "health", "patient", "doctor", "physician",
				"diagnosis", "treatment", "symptoms",
			},
		},
		{
			DocumentType: DocumentTypeLegal,
			Keywords: []string{
				"legal", "court", "law", "attorney", "plaintiff",
				"defendant", "judgment", "settlement",
			},
		},
		{
			DocumentType: DocumentTypeFinancial,
			Keywords: []string{
				"financial", "income", "expenses", "assets", "liabilities",
				"credit", "loan", "mortgage",
			},
		},
		{
			DocumentType: DocumentTypeEducational,
			Keywords: []string{
				"student", "school", "university", "college", "course",
				"transcript", "semester", "gpa",
			},
		},
	}
}

// getDefaultTemplates returns the built-in document templates. Patterns
// are word phrases matched against normalized labels after the base
// taxonomy has declined to classify them.
func getDefaultTemplates() []DocumentTemplate {
	return []DocumentTemplate{
		{
			DocumentType: DocumentTypeApplication,
			Description:  "Applications, registrations and enrollment forms",
			FieldPatterns: map[form.FieldType][]string{
				form.FieldTypeName:    {"given names", "applicant's name", "name of applicant"},
				form.FieldTypeAddress: {"permanent residence", "mailing"},
				form.FieldTypeDate:    {"date of application", "start date"},
			},
			ValidationRules: map[form.FieldType][]string{
				form.FieldTypeEmail:       {"required", "email_format"},
				form.FieldTypeName:        {"required"},
				form.FieldTypeDateOfBirth: {"date_format", "past_date"},
			},
			ConfidenceThreshold: 0.7,
		},
		{
			DocumentType: DocumentTypeContract,
			Description:  "Agreements, NDAs and service contracts",
			FieldPatterns: map[form.FieldType][]string{
				form.FieldTypeName:      {"party", "by and between", "disclosing", "receiving", "witness"},
				form.FieldTypeCompany:   {"corporation", "llc", "inc", "ltd"},
				form.FieldTypeSignature: {"authorized representative", "in witness whereof"},
				form.FieldTypeDate:      {"effective", "commencement", "executed on"},
			},
			ValidationRules: map[form.FieldType][]string{
				form.FieldTypeSignature: {"required"},
				form.FieldTypeDate:      {"date_format"},
				form.FieldTypeYear:      {"four_digits"},
			},
			ConfidenceThreshold: 0.7,
		},
		{
			DocumentType: DocumentTypeMedical,
			Description:  "Patient intake and medical history forms",
			FieldPatterns: map[form.FieldType][]string{
				form.FieldTypeText:         {"allergies", "medications", "symptoms"},
				form.FieldTypePolicyNumber: {"insurance", "insurer", "carrier"},
				form.FieldTypeName:         {"physician", "doctor", "emergency contact"},
			},
			ValidationRules: map[form.FieldType][]string{
				form.FieldTypePatientID:    {"required"},
				form.FieldTypeDateOfBirth:  {"required", "date_format", "past_date"},
				form.FieldTypePolicyNumber: {"alphanumeric"},
			},
			ConfidenceThreshold: 0.7,
		},
		{
			DocumentType: DocumentTypeFinancial,
			Description:  "Loan, credit and income declarations",
			FieldPatterns: map[form.FieldType][]string{
				form.FieldTypeAmount:        {"assets", "liabilities", "expenses", "net worth", "balance"},
				form.FieldTypeAccountNumber: {"checking", "savings"},
			},
			ValidationRules: map[form.FieldType][]string{
				form.FieldTypeAmount:        {"currency"},
				form.FieldTypeAccountNumber: {"digits"},
				form.FieldTypeSSN:           {"ssn_format"},
			},
			ConfidenceThreshold: 0.7,
		},
		{
			DocumentType: DocumentTypeLegal,
			Description:  "Court filings and legal declarations",
			FieldPatterns: map[form.FieldType][]string{
				form.FieldTypeName:      {"plaintiff", "defendant", "attorney", "counsel", "petitioner"},
				form.FieldTypeText:      {"case number", "docket"},
				form.FieldTypeDate:      {"hearing"},
				form.FieldTypeSignature: {"declarant"},
			},
			ValidationRules: map[form.FieldType][]string{
				form.FieldTypeSignature: {"required"},
			},
			ConfidenceThreshold: 0.7,
		},
		{
			DocumentType: DocumentTypeEducational,
			Description:  "Transcripts, enrollment and scholarship forms",
			FieldPatterns: map[form.FieldType][]string{
				form.FieldTypeCourse:      {"program", "concentration", "academic"},
				form.FieldTypeInstitution: {"faculty", "department", "campus"},
			},
			ValidationRules: map[form.FieldType][]string{
				form.FieldTypeStudentID: {"required", "alphanumeric"},
				form.FieldTypeGPA:       {"decimal"},
			},
			ConfidenceThreshold: 0.7,
		},
	}
}
