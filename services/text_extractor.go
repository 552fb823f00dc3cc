package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sahilchouksey/studyquiz-api/model"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"golang.org/x/net/html"
)

// MinUsableChars is the number of non-space characters a strategy must
// produce for its text to be accepted
const MinUsableChars = 50

var (
	ErrExtractionFailed    = errors.New("text extraction failed")
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// FileKind groups upload extensions by how their text is obtained
type FileKind string

const (
	FileKindPDF   FileKind = "pdf"
	FileKindImage FileKind = "image"
	FileKindText  FileKind = "text"
	FileKindHTML  FileKind = "html"
)

var extensionKinds = map[string]FileKind{
	".pdf":  FileKindPDF,
	".txt":  FileKindText,
	".md":   FileKindText,
	".html": FileKindHTML,
	".htm":  FileKindHTML,
	".png":  FileKindImage,
	".jpg":  FileKindImage,
	".jpeg": FileKindImage,
}

// DetectFileKind maps a filename to its kind
func DetectFileKind(filename string) (FileKind, error) {
	kind, ok := extensionKinds[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Ext(filename))
	}
	return kind, nil
}

// ExtractionResult is the text produced by the winning strategy
type ExtractionResult struct {
	Text      string
	Method    model.ExtractionMethod
	PageCount int
	WordCount int
	Attempts  []string // one line per strategy that was tried and rejected
}

// extractionStrategy is one link of the fallback chain
type extractionStrategy struct {
	method model.ExtractionMethod
	run    func(ctx context.Context, content []byte, filename string) (string, int, error)
}

// TextExtractor runs the ordered fallback chain for a file
type TextExtractor struct {
	pdf *PDFExtractor
	ocr OCRProcessor
}

// NewTextExtractor creates an extractor. A nil OCR processor removes the
// OCR fallback.
func NewTextExtractor(pdfExtractor *PDFExtractor, ocr OCRProcessor) *TextExtractor {
	if pdfExtractor == nil {
		pdfExtractor = NewPDFExtractor()
	}
	return &TextExtractor{pdf: pdfExtractor, ocr: ocr}
}

// chain returns the strategies for a kind in the order they are tried
func (e *TextExtractor) chain(kind FileKind) []extractionStrategy {
	ocrStep := extractionStrategy{method: model.ExtractionMethodOCR, run: e.runOCR}

	switch kind {
	case FileKindPDF:
		steps := []extractionStrategy{
			{method: model.ExtractionMethodPDFRows, run: func(_ context.Context, content []byte, _ string) (string, int, error) {
				return e.pdf.ExtractRows(content)
			}},
			{method: model.ExtractionMethodPDFPlain, run: func(_ context.Context, content []byte, _ string) (string, int, error) {
				return e.pdf.ExtractPlain(content)
			}},
		}
		if e.ocr != nil {
			steps = append(steps, ocrStep)
		}
		return steps
	case FileKindImage:
		if e.ocr == nil {
			return nil
		}
		return []extractionStrategy{ocrStep}
	case FileKindText:
		return []extractionStrategy{{method: model.ExtractionMethodPlainText, run: extractPlainText}}
	case FileKindHTML:
		return []extractionStrategy{{method: model.ExtractionMethodHTML, run: extractHTMLText}}
	}
	return nil
}

// Extract runs the chain for filename and returns the first usable text
func (e *TextExtractor) Extract(ctx context.Context, content []byte, filename string) (*ExtractionResult, error) {
	kind, err := DetectFileKind(filename)
	if err != nil {
		return nil, err
	}

	log := utils.WithComponent("Text Extractor").WithField("file", filename)
	steps := e.chain(kind)
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no extraction strategy available for %s files", ErrExtractionFailed, kind)
	}

	result := &ExtractionResult{}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, pages, runErr := step.run(ctx, content, filename)
		if pages > result.PageCount {
			result.PageCount = pages
		}
		if runErr != nil {
			log.WithError(runErr).Infof("Strategy %s failed, falling back", step.method)
			result.Attempts = append(result.Attempts, fmt.Sprintf("%s: %v", step.method, runErr))
			continue
		}

		text = NormalizeText(text)
		if chars := CountNonSpace(text); chars < MinUsableChars {
			log.Infof("Strategy %s produced only %d characters, falling back", step.method, chars)
			result.Attempts = append(result.Attempts, fmt.Sprintf("%s: only %d characters", step.method, chars))
			continue
		}

		result.Text = text
		result.Method = step.method
		result.WordCount = len(strings.Fields(text))
		log.WithField("method", step.method).Infof("Extracted %d words", result.WordCount)
		return result, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrExtractionFailed, strings.Join(result.Attempts, "; "))
}

func (e *TextExtractor) runOCR(ctx context.Context, content []byte, filename string) (string, int, error) {
	resp, err := e.ocr.ProcessFile(ctx, content, filename)
	if err != nil {
		return "", 0, err
	}
	return resp.Text, resp.PageCount, nil
}

// extractPlainText decodes UTF-8, dropping invalid byte sequences
func extractPlainText(_ context.Context, content []byte, _ string) (string, int, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if utf8.Valid(content) {
		return string(content), 0, nil
	}
	return strings.ToValidUTF8(string(content), ""), 0, nil
}

// skippedHTMLElements never contribute visible text
var skippedHTMLElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"svg":      true,
}

// blockHTMLElements end a line of text
var blockHTMLElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true, "table": true,
}

// extractHTMLText tokenizes the page and keeps visible text only
func extractHTMLText(_ context.Context, content []byte, _ string) (string, int, error) {
	tokenizer := html.NewTokenizer(bytes.NewReader(content))
	var b strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			// io.EOF ends the document; anything else is malformed but we keep what we have
			return b.String(), 0, nil
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedHTMLElements[tag] {
				skipDepth++
			} else if blockHTMLElements[tag] {
				b.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedHTMLElements[tag] && skipDepth > 0 {
				skipDepth--
			} else if blockHTMLElements[tag] {
				b.WriteString("\n")
			}
		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if blockHTMLElements[string(name)] {
				b.WriteString("\n")
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(html.UnescapeString(string(tokenizer.Text())))
			if text != "" {
				b.WriteString(text)
				b.WriteString(" ")
			}
		}
	}
}

// NormalizeText collapses runs of blank lines and trailing spaces
func NormalizeText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// CountNonSpace returns the number of non-whitespace runes in s
func CountNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
