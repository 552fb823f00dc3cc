package pdfvalidation

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePDFBytes_RejectsOversizedFile(t *testing.T) {
	limits := PDFLimits{MaxFileSizeMB: 1, MaxPages: 10, DocumentTypeName: "test"}
	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), 2*1024*1024)...)

	result, err := ValidatePDFBytes(content, limits)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Error, "1MB")
}

func TestValidatePDFBytes_RejectsMissingHeader(t *testing.T) {
	result, err := ValidatePDFBytes([]byte("hello world"), StudyDocumentLimits)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Invalid PDF file: missing PDF header", result.Error)
}

func TestValidatePDFBytes_ReportsUnparseablePDF(t *testing.T) {
	result, err := ValidatePDFBytes([]byte("%PDF-1.7\nnot really a pdf"), StudyDocumentLimits)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Error, "Failed to read PDF")
}

func TestSanitize(t *testing.T) {
	t.Run("trims garbage after last EOF", func(t *testing.T) {
		in := []byte("%PDF-1.4\nbody\n%%EOF\r\ngarbage bytes")
		assert.Equal(t, []byte("%PDF-1.4\nbody\n%%EOF\r\n"), Sanitize(in))
	})

	t.Run("leaves clean file untouched", func(t *testing.T) {
		in := []byte("%PDF-1.4\nbody\n%%EOF\n")
		assert.Equal(t, in, Sanitize(in))
	})

	t.Run("ignores non pdf content", func(t *testing.T) {
		in := []byte("plain text %%EOF junk")
		assert.Equal(t, in, Sanitize(in))
	})
}
