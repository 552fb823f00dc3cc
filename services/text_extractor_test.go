package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) ProcessFile(_ context.Context, _ []byte, _ string) (*OCRResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &OCRResponse{Text: f.text, PageCount: 2}, nil
}

const longParagraph = "Photosynthesis converts light energy into chemical energy stored in glucose molecules."

func TestDetectFileKind(t *testing.T) {
	kinds := map[string]FileKind{
		"notes.PDF":  FileKindPDF,
		"a.md":       FileKindText,
		"page.htm":   FileKindHTML,
		"scan.JPEG":  FileKindImage,
		"lesson.txt": FileKindText,
	}
	for name, want := range kinds {
		got, err := DetectFileKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := DetectFileKind("slides.pptx")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestTextExtractor_PlainText(t *testing.T) {
	extractor := NewTextExtractor(nil, nil)

	content := []byte("\xef\xbb\xbf" + longParagraph + "\xff\xfe\n\n\n\nSecond paragraph here.")
	result, err := extractor.Extract(context.Background(), content, "bio.txt")
	require.NoError(t, err)

	assert.Equal(t, model.ExtractionMethodPlainText, result.Method)
	assert.True(t, strings.HasPrefix(result.Text, "Photosynthesis"))
	assert.NotContains(t, result.Text, "\xff")
	assert.Contains(t, result.Text, "glucose molecules.\n\nSecond paragraph")
	assert.Equal(t, 14, result.WordCount)
}

func TestTextExtractor_HTMLDropsScriptsAndStyles(t *testing.T) {
	page := `<html><head><title>Ignored</title><style>p{color:red}</style></head>
<body><h1>Cells</h1><script>var secret = "do not index";</script>
<p>` + longParagraph + `</p><p>Mitochondria &amp; chloroplasts.</p></body></html>`

	result, err := NewTextExtractor(nil, nil).Extract(context.Background(), []byte(page), "cells.html")
	require.NoError(t, err)

	assert.Equal(t, model.ExtractionMethodHTML, result.Method)
	assert.Contains(t, result.Text, "Cells")
	assert.Contains(t, result.Text, "Mitochondria & chloroplasts.")
	assert.NotContains(t, result.Text, "secret")
	assert.NotContains(t, result.Text, "color:red")
	assert.NotContains(t, result.Text, "Ignored")
}

func TestTextExtractor_PDFFallsBackToOCR(t *testing.T) {
	ocr := &fakeOCR{text: longParagraph + " " + longParagraph}
	extractor := NewTextExtractor(nil, ocr)

	result, err := extractor.Extract(context.Background(), []byte("%PDF-1.4\nbroken body"), "scan.pdf")
	require.NoError(t, err)

	assert.Equal(t, model.ExtractionMethodOCR, result.Method)
	assert.Equal(t, 1, ocr.calls)
	assert.Equal(t, 2, result.PageCount)
	assert.Len(t, result.Attempts, 2)
}

func TestTextExtractor_AllStrategiesFail(t *testing.T) {
	ocr := &fakeOCR{text: "too short"}
	_, err := NewTextExtractor(nil, ocr).Extract(context.Background(), []byte("%PDF-1.4\nbroken"), "scan.pdf")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.Contains(t, err.Error(), "ocr: only 8 characters")
}

func TestTextExtractor_ImageWithoutOCR(t *testing.T) {
	_, err := NewTextExtractor(nil, nil).Extract(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "board.png")
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestTextExtractor_OCRErrorIsReported(t *testing.T) {
	ocr := &fakeOCR{err: errors.New("service down")}
	_, err := NewTextExtractor(nil, ocr).Extract(context.Background(), []byte{1, 2, 3}, "photo.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service down")
}

func TestOCRClient_ProcessFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr/file", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "scan.pdf", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"recognised text","page_count":3}`))
	}))
	defer server.Close()

	client := NewOCRClient(server.URL + "/")
	resp, err := client.ProcessFile(context.Background(), []byte("%PDF-1.4"), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "recognised text", resp.Text)
	assert.Equal(t, 3, resp.PageCount)
}

func TestOCRClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tesseract crashed", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewOCRClient(server.URL).ProcessURL(context.Background(), "https://cdn.example.com/a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "tesseract crashed")
}

func TestNormalizeTextAndCount(t *testing.T) {
	assert.Equal(t, "a b\n\nc", NormalizeText("  a   b  \r\n\r\n\r\n\n c "))
	assert.Equal(t, 3, CountNonSpace(" a\tb\nc "))
}
