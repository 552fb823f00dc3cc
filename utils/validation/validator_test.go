package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type generateInput struct {
	DocumentID    uint   `json:"document_id" validate:"required"`
	QuestionCount int    `json:"question_count" validate:"gte=3,lte=30"`
	Difficulty    string `json:"difficulty" validate:"omitempty,oneof=easy medium hard mixed"`
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	v := NewValidator()

	errs := v.Validate(generateInput{QuestionCount: 50, Difficulty: "insane"})

	assert.Contains(t, errs, "document_id")
	assert.Equal(t, "question_count must be less than or equal to 30", errs["question_count"])
	assert.Equal(t, "difficulty must be one of: easy, medium, hard, mixed", errs["difficulty"])
}

func TestValidateReturnsNilWhenValid(t *testing.T) {
	v := NewValidator()

	assert.Nil(t, v.Validate(generateInput{DocumentID: 1, QuestionCount: 10, Difficulty: "easy"}))
}

func TestValidatePassword(t *testing.T) {
	ok, errs := ValidatePassword("12345678")
	assert.False(t, ok)
	assert.Contains(t, errs, "Password must contain at least one letter")

	ok, _ = ValidatePassword("correct horse")
	assert.True(t, ok)
}

func TestValidateEmailAndSanitize(t *testing.T) {
	assert.True(t, ValidateEmail("student@example.com"))
	assert.False(t, ValidateEmail("not-an-email"))
	assert.Equal(t, "abc", SanitizeString("  a\x00bc  "))
}
