package document

import (
	"archive/zip"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/xuri/excelize/v2"

	"rag-service/internal/apperr"
)

// Page is one page of extracted text. Formats without a page concept
// produce a single page numbered 1.
type Page struct {
	Number int
	Text   string
}

// Extractor converts stored files into page-annotated text by content type.
type Extractor struct{}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract dispatches on content type, falling back to the file extension.
func (e *Extractor) Extract(path, contentType string) ([]Page, error) {
	switch normalizeType(path, contentType) {
	case "pdf":
		return e.extractPDF(path)
	case "text":
		return e.extractText(path)
	case "csv":
		return e.extractCSV(path)
	case "docx":
		return e.extractDOCX(path)
	case "xlsx":
		return e.extractXLSX(path)
	default:
		return nil, apperr.BadRequest(fmt.Sprintf("unsupported content type: %s", contentType))
	}
}

// Render concatenates pages as "[Page {n}]\n{text}" blocks separated by
// blank lines.
func Render(pages []Page) string {
	blocks := make([]string, 0, len(pages))
	for _, p := range pages {
		blocks = append(blocks, fmt.Sprintf("[Page %d]\n%s", p.Number, p.Text))
	}
	return strings.Join(blocks, "\n\n")
}

func normalizeType(path, contentType string) string {
	switch contentType {
	case "application/pdf":
		return "pdf"
	case "text/plain", "text/markdown":
		return "text"
	case "text/csv", "application/csv":
		return "csv"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "xlsx"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "pdf"
	case ".txt", ".md":
		return "text"
	case ".csv":
		return "csv"
	case ".docx":
		return "docx"
	case ".xlsx":
		return "xlsx"
	}
	return ""
}

func (e *Extractor) extractPDF(path string) ([]Page, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}

	pages := make([]Page, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

func (e *Extractor) extractText(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	// Lossy decode: invalid UTF-8 bytes are replaced rather than rejected.
	text := strings.ToValidUTF8(string(data), "�")
	return []Page{{Number: 1, Text: text}}, nil
}

func (e *Extractor) extractCSV(path string) ([]Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var lines []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		lines = append(lines, strings.Join(record, ","))
	}
	return []Page{{Number: 1, Text: strings.Join(lines, "\n")}}, nil
}

// docx body elements, reduced to what text extraction needs.
type docxBody struct {
	Paragraphs []docxParagraph `xml:"p"`
	Tables     []docxTable     `xml:"tbl"`
}

type docxParagraph struct {
	Runs []string `xml:"r>t"`
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paragraphs []docxParagraph `xml:"p"`
}

func (p docxParagraph) text() string {
	return strings.Join(p.Runs, "")
}

func (e *Extractor) extractDOCX(path string) ([]Page, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("docx is missing word/document.xml")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read docx body: %w", err)
	}
	defer rc.Close()

	var doc struct {
		Body docxBody `xml:"body"`
	}
	if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse docx body: %w", err)
	}

	var lines []string
	for _, p := range doc.Body.Paragraphs {
		if t := p.text(); t != "" {
			lines = append(lines, t)
		}
	}
	// Table rows follow the paragraphs, cells joined with " | ".
	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				var parts []string
				for _, p := range cell.Paragraphs {
					if t := p.text(); t != "" {
						parts = append(parts, t)
					}
				}
				cells = append(cells, strings.Join(parts, " "))
			}
			lines = append(lines, strings.Join(cells, " | "))
		}
	}
	return []Page{{Number: 1, Text: strings.Join(lines, "\n")}}, nil
}

func (e *Extractor) extractXLSX(path string) ([]Page, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	var sections []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		lines := []string{fmt.Sprintf("[Sheet: %s]", sheet)}
		for _, row := range rows {
			lines = append(lines, strings.Join(row, "\t"))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	return []Page{{Number: 1, Text: strings.Join(sections, "\n\n")}}, nil
}
