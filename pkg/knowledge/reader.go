// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// maxSheetCells limits the cells extracted per spreadsheet sheet.
const maxSheetCells = 1000

// Reader converts a document to plain text.
type Reader interface {
	Name() string
	Extensions() []string
	Read(ctx context.Context, name string, data []byte) (string, error)
}

// Readers selects a reader by file extension. Files with an unknown
// extension are read as text when they are valid UTF-8.
type Readers struct {
	byExt map[string]Reader
	text  Reader
}

// NewReaders creates a registry with the given readers.
func NewReaders(readers ...Reader) *Readers {
	r := &Readers{byExt: make(map[string]Reader), text: TextReader{}}
	for _, reader := range readers {
		r.Register(reader)
	}
	return r
}

// DefaultReaders returns text, HTML, PDF, DOCX and XLSX readers.
func DefaultReaders() *Readers {
	return NewReaders(TextReader{}, HTMLReader{}, PDFReader{}, DocxReader{}, XlsxReader{})
}

// Register adds a reader for each of its extensions, replacing any
// reader registered before for the same extension.
func (r *Readers) Register(reader Reader) {
	for _, ext := range reader.Extensions() {
		r.byExt[strings.ToLower(ext)] = reader
	}
}

// Extensions returns the registered extensions in sorted order.
func (r *Readers) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Read converts data to text using the reader registered for the
// extension of name.
func (r *Readers) Read(ctx context.Context, name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	reader, ok := r.byExt[ext]
	if !ok {
		if !utf8.Valid(data) {
			return "", &ReaderError{Reader: "text", Name: name, Err: fmt.Errorf("unsupported file type %q", ext)}
		}
		reader = r.text
	}

	text, err := reader.Read(ctx, name, data)
	if err != nil {
		return "", &ReaderError{Reader: reader.Name(), Name: name, Err: err}
	}
	return text, nil
}

// TextReader passes UTF-8 text through unchanged.
type TextReader struct{}

func (TextReader) Name() string { return "text" }

func (TextReader) Extensions() []string {
	return []string{".txt", ".md", ".markdown", ".csv", ".json", ".yaml", ".yml", ".xml", ".rst", ".log"}
}

func (TextReader) Read(_ context.Context, _ string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

// PDFReader extracts the plain text of every page.
type PDFReader struct{}

func (PDFReader) Name() string         { return "pdf" }
func (PDFReader) Extensions() []string { return []string{".pdf"} }

func (PDFReader) Read(ctx context.Context, _ string, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			parts = append(parts, fmt.Sprintf("--- Page %d (extraction failed: %v) ---", pageNum, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>|<w:br/>|<w:tab/>`)
	docxTag          = regexp.MustCompile(`<[^>]+>`)
)

// DocxReader extracts paragraph text from Word documents.
type DocxReader struct{}

func (DocxReader) Name() string         { return "docx" }
func (DocxReader) Extensions() []string { return []string{".docx"} }

func (DocxReader) Read(_ context.Context, _ string, data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse Word document: %w", err)
	}
	defer doc.Close()

	return docxText(doc.Editable().GetContent()), nil
}

// docxText turns document.xml into text with one line per paragraph.
func docxText(xml string) string {
	xml = docxParagraphEnd.ReplaceAllStringFunc(xml, func(tag string) string {
		if tag == "<w:tab/>" {
			return "\t"
		}
		return "\n"
	})
	text := html.UnescapeString(docxTag.ReplaceAllString(xml, ""))

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, strings.TrimRight(line, " \t"))
		}
	}
	return strings.Join(kept, "\n")
}

// XlsxReader extracts non-empty cells of every sheet as "A1: value" lines.
type XlsxReader struct{}

func (XlsxReader) Name() string         { return "xlsx" }
func (XlsxReader) Extensions() []string { return []string{".xlsx"} }

func (XlsxReader) Read(ctx context.Context, _ string, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse Excel document: %w", err)
	}
	defer f.Close()

	var parts []string
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "--- Sheet: %s ---\n", sheet)
		cells := 0
	rowLoop:
		for rowIndex, row := range rows {
			for colIndex, cell := range row {
				if cells >= maxSheetCells {
					b.WriteString("... (truncated)\n")
					break rowLoop
				}
				if text := strings.TrimSpace(cell); text != "" {
					fmt.Fprintf(&b, "%s%d: %s\n", columnLetter(colIndex), rowIndex+1, text)
					cells++
				}
			}
		}
		if cells > 0 {
			parts = append(parts, strings.TrimSpace(b.String()))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// columnLetter converts a 0-based column index to a spreadsheet column
// name (A, B, ..., Z, AA, AB, ...).
func columnLetter(index int) string {
	result := ""
	for {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return result
}

var (
	_ Reader = TextReader{}
	_ Reader = PDFReader{}
	_ Reader = DocxReader{}
	_ Reader = XlsxReader{}
)
