package intelligence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

func TestClassifyFieldType(t *testing.T) {
	tests := []struct {
		label string
		want  form.FieldType
	}{
		{"Date of Birth:", form.FieldTypeDateOfBirth},
		{"DOB", form.FieldTypeDateOfBirth},
		{"", form.FieldTypeText},
		{"   ", form.FieldTypeText},
		{"Email Address", form.FieldTypeEmail},
		{"Home Address", form.FieldTypeAddress},
		{"First Name", form.FieldTypeFirstName},
		{"Surname", form.FieldTypeLastName},
		{"full_name", form.FieldTypeName},
		{"Name:", form.FieldTypeName},
		{"Applicant Signature", form.FieldTypeSignature},
		{"Phone Number", form.FieldTypePhone},
		{"Student ID", form.FieldTypeStudentID},
		{"Zip Code", form.FieldTypeZipCode},
		{"Course Title", form.FieldTypeCourse},
		{"Age", form.FieldTypeAge},
		{"Year", form.FieldTypeYear},
		{"Date", form.FieldTypeDate},
		{"Social Security Number", form.FieldTypeSSN},
		{"Favourite colour", form.FieldTypeText},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFieldType(tt.label))
		})
	}
}

func TestClassifyFieldType_Deterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		require.Equal(t, form.FieldTypeDateOfBirth, ClassifyFieldType("Date of Birth:"))
	}
}

func TestTaxonomy_SpecificBeforeGeneric(t *testing.T) {
	types := DefaultTaxonomy().Types()
	index := func(ft form.FieldType) int {
		for i, t := range types {
			if t == ft {
				return i
			}
		}
		return -1
	}

	assert.Less(t, index(form.FieldTypeDateOfBirth), index(form.FieldTypeDate))
	assert.Less(t, index(form.FieldTypeFirstName), index(form.FieldTypeName))
	assert.Less(t, index(form.FieldTypeSignature), index(form.FieldTypeName))
	assert.Less(t, index(form.FieldTypeEmail), index(form.FieldTypeAddress))
}

func TestTaxonomy_Category(t *testing.T) {
	tax := DefaultTaxonomy()
	assert.Equal(t, "personal_info", tax.Category(form.FieldTypeEmail))
	assert.Equal(t, "education", tax.Category(form.FieldTypeGPA))
	assert.Equal(t, "general", tax.Category(form.FieldType("nonexistent")))
}

func TestMatchLine(t *testing.T) {
	matches := DefaultTaxonomy().MatchLine("Name: ______  Date: ______")

	require.Len(t, matches, 2)
	assert.Equal(t, LabelMatch{Type: form.FieldTypeName, Label: "Name", Start: 0, End: 4}, matches[0])
	assert.Equal(t, LabelMatch{Type: form.FieldTypeDate, Label: "Date", Start: 14, End: 18}, matches[1])
}

func TestMatchLine_SkipsPlainText(t *testing.T) {
	assert.Empty(t, DefaultTaxonomy().MatchLine("Please read the instructions carefully."))
	assert.Empty(t, DefaultTaxonomy().MatchLine(""))
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Full   Name:  ", "full name"},
		{"E-MAIL ....", "e-mail"},
		{"ＮＡＭＥ", "name"},
		{"first_name", "first name"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLabel(tt.in), tt.in)
	}
}

func TestHumanizeName(t *testing.T) {
	assert.Equal(t, "applicant first name", HumanizeName("applicant.FirstName_1"))
	assert.Equal(t, "date of birth", HumanizeName("date_of_birth"))
	assert.Equal(t, form.FieldTypeEmail, ClassifyFieldType(HumanizeName("txtEmail")))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"patient", "name", "date", "birth"}, Tokenize("The Patient's Name and Date of Birth"))
}

func TestMatchLineWith_Fallback(t *testing.T) {
	fallback := func(label string) form.FieldType {
		if label == "Disclosing Party" {
			return form.FieldTypeName
		}
		return form.FieldTypeText
	}

	matches := DefaultTaxonomy().MatchLineWith("Disclosing Party: ________  Email: ______", fallback)
	require.Len(t, matches, 2)
	assert.Equal(t, LabelMatch{Type: form.FieldTypeName, Label: "Disclosing Party", Start: 0, End: 16}, matches[0])
	assert.Equal(t, form.FieldTypeEmail, matches[1].Type)

	// a trailing phrase with no colon or leader is body text
	assert.Empty(t, DefaultTaxonomy().MatchLineWith("Disclosing Party", fallback))
	assert.Empty(t, DefaultTaxonomy().MatchLine("Disclosing Party: ______"))
}
