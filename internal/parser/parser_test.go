package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"health-rag/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestChunkDocument(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "paragraphs",
			content: "Malaria is spread by mosquitoes.\n\nSymptoms include fever.\n\nSeek care early.",
			want:    []string{"Malaria is spread by mosquitoes.", "Symptoms include fever.", "Seek care early."},
		},
		{
			name:    "whitespace only separator lines",
			content: "First line\ncontinues here.\n   \t\n\n\nSecond paragraph.  ",
			want:    []string{"First line\ncontinues here.", "Second paragraph."},
		},
		{
			name:    "windows line endings",
			content: "One.\r\n\r\nTwo.\r\n",
			want:    []string{"One.", "Two."},
		},
		{
			name:    "non-breaking space line",
			content: "first\n\u00a0\nsecond",
			want:    []string{"first", "second"},
		},
		{
			name:    "vertical tab line",
			content: "first\n\v\nsecond",
			want:    []string{"first", "second"},
		},
		{
			name:    "em space line",
			content: "first\n\u2003 \u3000\nsecond\u2003",
			want:    []string{"first", "second"},
		},
		{
			name:    "single oversized paragraph",
			content: "no blank lines at all, however long this gets",
			want:    []string{"no blank lines at all, however long this gets"},
		},
		{
			name:    "empty content",
			content: "\n\n   \n\n",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := models.Document{Content: tt.content, Metadata: models.Metadata{Source: "doc.txt"}}
			chunks := ChunkDocument(doc)

			var got []string
			for _, c := range chunks {
				got = append(got, c.Content)
				assert.Equal(t, "doc.txt", c.Metadata.Source)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "malaria.txt", "Para one.\n\nPara two.")
	writeFile(t, dir, "dengue.txt", "Dengue.\n\n\n\nFever.\n\nRash.")
	writeFile(t, dir, "notes.csv", "ignored,file")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.txt"), 0o755))

	docs, err := LoadDocuments(dir, []string{".txt"})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	sources := []string{docs[0].Metadata.Source, docs[1].Metadata.Source}
	assert.ElementsMatch(t, []string{"malaria.txt", "dengue.txt"}, sources)

	// chunk count is the sum of non-empty paragraph splits over all files
	assert.Len(t, ChunkDocuments(docs), 5)
}

func TestLoadDocuments_MissingFolder(t *testing.T) {
	_, err := LoadDocuments(filepath.Join(t.TempDir(), "does-not-exist"), []string{".txt"})
	assert.Error(t, err)
}

func TestLoadDocuments_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.csv", "a,b")

	_, err := LoadDocuments(dir, []string{".csv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file format")
}

func TestLoadDocuments_Markdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.md", "# Hydration\nDrink clean water\nevery day.\n\n- boil water\n- store it covered\n")

	docs, err := LoadDocuments(dir, []string{".md"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	chunks := ChunkDocument(docs[0])
	var got []string
	for _, c := range chunks {
		got = append(got, c.Content)
	}
	assert.Equal(t, []string{"Hydration", "Drink clean water\nevery day.", "boil water", "store it covered"}, got)
}

func TestLoadDocuments_XLSX(t *testing.T) {
	dir := t.TempDir()
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Vaccine"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Age"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "BCG"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "Birth"))
	require.NoError(t, f.SaveAs(filepath.Join(dir, "schedule.xlsx")))
	require.NoError(t, f.Close())

	docs, err := LoadDocuments(dir, []string{".xlsx"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "## Sheet: Sheet1\nVaccine\tAge\nBCG\tBirth", docs[0].Content)
}

func TestDocxXMLToText(t *testing.T) {
	xml := `<w:body><w:p><w:r><w:t>Wash hands </w:t></w:r><w:r><w:t xml:space="preserve">with soap &amp; water.</w:t></w:r></w:p>` +
		`<w:p></w:p><w:p><w:r><w:t>Twenty seconds.</w:t></w:r></w:p></w:body>`

	assert.Equal(t, "Wash hands with soap & water.\n\nTwenty seconds.", docxXMLToText(xml))
}

func TestLoadDocuments_ExtensionIsCaseSensitive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "Boil water.")
	writeFile(t, dir, "LABS.TXT", "Lab results.")

	docs, err := LoadDocuments(dir, []string{".txt"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.txt", docs[0].Metadata.Source)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(".TXT"))
	assert.True(t, Supported(".pdf"))
	assert.False(t, Supported(".csv"))
}
