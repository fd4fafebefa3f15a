package parser

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"health-rag/internal/models"
)

var (
	paragraphRe = regexp.MustCompile(models.ParagraphRegex)
	docxTextRe  = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
)

// extractor turns a file into plain text whose paragraphs are separated by blank lines.
type extractor func(filePath string) (string, error)

var extractors = map[string]extractor{
	".txt":  readText,
	".md":   readMarkdown,
	".pdf":  readPDF,
	".docx": readDOCX,
	".xlsx": readXLSX,
}

// Supported reports whether ext (with leading dot) can be loaded.
func Supported(ext string) bool {
	_, ok := extractors[strings.ToLower(ext)]
	return ok
}

// LoadDocuments reads every file in dir whose extension is listed in exts.
// Subdirectories are not traversed. A missing dir is an error.
func LoadDocuments(dir string, exts []string) ([]models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data folder %s: %w", dir, err)
	}

	log.Info().Str("folder", dir).Msg("Loading documents")
	var docs []models.Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !slices.Contains(exts, ext) {
			continue
		}
		extract, ok := extractors[strings.ToLower(ext)]
		if !ok {
			return nil, fmt.Errorf("unsupported file format: %s", ext)
		}
		content, err := extract(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", entry.Name(), err)
		}
		docs = append(docs, models.Document{
			Content:  content,
			Metadata: models.Metadata{Source: entry.Name()},
		})
	}
	log.Info().Int("documents", len(docs)).Msg("Found and loaded documents")
	return docs, nil
}

// ChunkDocument splits content on blank lines. Chunks are trimmed and empty
// ones dropped; there is no size bound and no overlap.
func ChunkDocument(doc models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, part := range paragraphRe.Split(doc.Content, -1) {
		part = strings.TrimFunc(part, isSpace)
		if part == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Content:  part,
			Metadata: doc.Metadata,
		})
	}
	return chunks
}

// ChunkDocuments chunks every document, preserving order.
func ChunkDocuments(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		chunks = append(chunks, ChunkDocument(doc)...)
	}
	return chunks
}

// isSpace also treats the ASCII separators U+001C..U+001F as whitespace.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

func readText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readMarkdown(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return markdownToText(data), nil
}

// markdownToText keeps the raw lines of every leaf block and puts a blank
// line between blocks, so headings and list items become their own paragraphs.
func markdownToText(src []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	var buf strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := n.Lines()
		if lines == nil || lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		var block bytes.Buffer
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			line := seg.Value(src)
			block.Write(line)
			if !bytes.HasSuffix(line, []byte("\n")) {
				block.WriteByte('\n')
			}
		}
		buf.WriteString(strings.TrimSpace(block.String()))
		buf.WriteString("\n\n")
		return ast.WalkSkipChildren, nil
	})
	return strings.TrimSpace(buf.String())
}

func readPDF(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, pageText)
	}
	return strings.Join(pages, "\n\n"), nil
}

func readDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	return docxXMLToText(r.Editable().GetContent()), nil
}

// docxXMLToText pulls the <w:t> runs out of document.xml, one paragraph per <w:p>.
func docxXMLToText(xmlContent string) string {
	var paragraphs []string
	for _, p := range strings.Split(xmlContent, "</w:p>") {
		var para strings.Builder
		for _, m := range docxTextRe.FindAllStringSubmatch(p, -1) {
			para.WriteString(html.UnescapeString(m[1]))
		}
		if s := strings.TrimSpace(para.String()); s != "" {
			paragraphs = append(paragraphs, s)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func readXLSX(filePath string) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sheets []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			log.Warn().Err(err).Str("sheet", sheetName).Msg("Skipping unreadable sheet")
			continue
		}
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			if len(row) == 0 {
				continue
			}
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
		sheets = append(sheets, strings.TrimSpace(sb.String()))
	}
	return strings.Join(sheets, "\n\n"), nil
}
