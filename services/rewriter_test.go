package services_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscript-converter/models"
	"manuscript-converter/services"
)

func depositJob(id string) *models.ConversionJob {
	return &models.ConversionJob{ResourceID: id, Kind: models.KindDeposit}
}

func TestHTMLRewriter_RewriteString(t *testing.T) {
	r := services.NewHTMLRewriter("https://cdn.example.org/media/", "img-fluid")
	ws := "/tmp/ws/conversions"

	tests := []struct {
		name     string
		input    string
		job      *models.ConversionJob
		contains []string
		absent   []string
	}{
		{
			name:     "local media becomes public url",
			input:    `<p><img src="/tmp/ws/conversions/media/image1.png" alt=""/></p>`,
			job:      depositJob("X"),
			contains: []string{`src="https://cdn.example.org/media/deposits/X/media/image1.png"`, `class="img-fluid"`},
			absent:   []string{"/tmp/ws"},
		},
		{
			name:     "review resources use the reviews segment",
			input:    `<img src="/tmp/ws/conversions/media/image1.png"/>`,
			job:      &models.ConversionJob{ResourceID: "R", Kind: models.KindReview},
			contains: []string{`src="https://cdn.example.org/media/reviews/R/media/image1.png"`},
		},
		{
			name:     "legacy extensions follow the transcoder",
			input:    `<img src="/tmp/ws/conversions/media/image1.emf"/><img src="/tmp/ws/conversions/media/image2.TIFF"/>`,
			job:      depositJob("X"),
			contains: []string{"deposits/X/media/image1.svg", "deposits/X/media/image2.webp"},
			absent:   []string{".emf", ".TIFF"},
		},
		{
			name:     "blank paragraphs are removed",
			input:    "<p>&nbsp;</p><p>Kept</p><p>&nbsp;</p>",
			job:      depositJob("X"),
			contains: []string{"<p>Kept</p>"},
			absent:   []string{"\u00a0"},
		},
		{
			name:     "paragraphs with more than a space are kept",
			input:    "<p>&nbsp;text</p>",
			job:      depositJob("X"),
			contains: []string{"text</p>"},
		},
		{
			name:     "existing classes are preserved",
			input:    `<img class="figure" src="https://elsewhere.org/a.png"/>`,
			job:      depositJob("X"),
			contains: []string{`class="figure img-fluid"`, `src="https://elsewhere.org/a.png"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.RewriteString(tt.input, ws, tt.job)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestHTMLRewriter_FragmentStaysFragment(t *testing.T) {
	r := services.NewHTMLRewriter("https://cdn.example.org/media", "")
	out, err := r.RewriteString("<h1>Title</h1>\n<p>Body</p>\n", "/ws", depositJob("X"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>Title</h1>\n<p>Body</p>\n", out)
	assert.NotContains(t, out, "<img")
}

func TestHTMLRewriter_FullDocument(t *testing.T) {
	r := services.NewHTMLRewriter("https://cdn.example.org/media", "img-fluid")
	in := `<!DOCTYPE html><html><head><title>t</title></head><body><img src="/ws/media/image1.png"></body></html>`

	out, err := r.RewriteString(in, "/ws", depositJob("X"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, `src="https://cdn.example.org/media/deposits/X/media/image1.png"`)
}

func TestHTMLRewriter_RewriteFile(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "paper.html")
	require.NoError(t, os.WriteFile(htmlPath, []byte(`<p>&nbsp;</p><img src="`+dir+`/media/image1.png"/>`), 0o644))

	r := services.NewHTMLRewriter("https://cdn.example.org/media", "img-fluid")
	out, err := r.Rewrite(htmlPath, dir, depositJob("X"))
	require.NoError(t, err)

	data, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
	assert.Contains(t, out, "https://cdn.example.org/media/deposits/X/media/image1.png")
	assert.NotContains(t, out, "<p>")
}
