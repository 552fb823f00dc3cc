package services

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sahilchouksey/studyquiz-api/utils/pdfvalidation"
)

// ErrEmptyPDF is returned for zero-length input or a PDF without pages
var ErrEmptyPDF = errors.New("PDF has no content")

// PDFExtractor handles PDF text extraction using ledongthuc/pdf
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDF extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// open parses the PDF after trimming trailing garbage
func (p *PDFExtractor) open(content []byte) (*pdf.Reader, error) {
	if len(content) == 0 {
		return nil, ErrEmptyPDF
	}

	content = pdfvalidation.Sanitize(content)
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}
	if reader.NumPage() == 0 {
		return nil, ErrEmptyPDF
	}
	return reader, nil
}

// ExtractRows extracts text row by row, which keeps headings and list items
// on their own lines. Pages whose rows cannot be read are skipped.
func (p *PDFExtractor) ExtractRows(content []byte) (text string, pages int, err error) {
	defer recoverPDFPanic(&err)

	reader, err := p.open(content)
	if err != nil {
		return "", 0, err
	}

	log := utils.WithComponent("PDF Extractor")
	numPages := reader.NumPage()
	var textBuilder strings.Builder

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, rowErr := page.GetTextByRow()
		if rowErr != nil {
			log.WithError(rowErr).Debugf("Row extraction failed for page %d", i)
			continue
		}

		for _, row := range rows {
			var rowText strings.Builder
			for _, word := range row.Content {
				rowText.WriteString(word.S)
			}
			if line := strings.TrimSpace(rowText.String()); line != "" {
				textBuilder.WriteString(line)
				textBuilder.WriteString("\n")
			}
		}
		textBuilder.WriteString("\n")
	}

	extracted := strings.TrimSpace(textBuilder.String())
	log.Debugf("Row extraction produced %d characters from %d pages", len(extracted), numPages)
	return extracted, numPages, nil
}

// ExtractPlain extracts the plain text stream of every page. It copes with
// PDFs whose content streams do not position glyphs in rows.
func (p *PDFExtractor) ExtractPlain(content []byte) (text string, pages int, err error) {
	defer recoverPDFPanic(&err)

	reader, err := p.open(content)
	if err != nil {
		return "", 0, err
	}

	numPages := reader.NumPage()
	var textBuilder strings.Builder

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, plainErr := page.GetPlainText(nil)
		if plainErr != nil {
			continue
		}
		textBuilder.WriteString(pageText)
		textBuilder.WriteString("\n\n")
	}

	return strings.TrimSpace(textBuilder.String()), numPages, nil
}

// GetPageCount returns the total number of pages in the PDF
func (p *PDFExtractor) GetPageCount(content []byte) (pages int, err error) {
	defer recoverPDFPanic(&err)

	reader, err := p.open(content)
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}

// recoverPDFPanic converts a parser panic on malformed input into an error
func recoverPDFPanic(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("PDF parser panic: %v", r)
	}
}
