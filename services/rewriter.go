package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"manuscript-converter/models"
)

const nbsp = "\u00a0"

// HTMLRewriter post-processes pandoc output for publication.
type HTMLRewriter struct {
	PublicURL  string
	ImageClass string
}

func NewHTMLRewriter(publicURL, imageClass string) *HTMLRewriter {
	return &HTMLRewriter{PublicURL: strings.TrimSuffix(publicURL, "/"), ImageClass: imageClass}
}

// Rewrite reads htmlPath, rewrites it and writes the result back.
// workspaceDir is the directory pandoc extracted media under; src attributes
// starting with it are moved to the public media URL of the job's resource.
func (r *HTMLRewriter) Rewrite(htmlPath, workspaceDir string, job *models.ConversionJob) (string, error) {
	data, err := os.ReadFile(htmlPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", htmlPath, err)
	}

	out, err := r.RewriteString(string(data), workspaceDir, job)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(htmlPath, []byte(out), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", htmlPath, err)
	}
	return out, nil
}

func (r *HTMLRewriter) RewriteString(content, workspaceDir string, job *models.ConversionJob) (string, error) {
	root, isFragment, err := parseHTML(content)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if isBlankParagraph(p.Get(0)) {
			p.Remove()
		}
	})

	localPrefix := filepath.ToSlash(filepath.Clean(workspaceDir))
	publicPrefix := r.PublicURL + "/" + job.Kind.PathSegment() + "/" + job.ResourceID
	doc.Find("[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if strings.HasPrefix(src, localPrefix) {
			src = publicPrefix + strings.TrimPrefix(src, localPrefix)
		}
		s.SetAttr("src", models.WebImagePath(src))
	})

	if r.ImageClass != "" {
		doc.Find("img").AddClass(r.ImageClass)
	}

	return renderHTML(root, isFragment)
}

// isBlankParagraph matches <p>&nbsp;</p>, which pandoc emits for empty
// Word paragraphs.
func isBlankParagraph(n *html.Node) bool {
	c := n.FirstChild
	return c != nil && c.NextSibling == nil && c.Type == html.TextNode && c.Data == nbsp
}

// parseHTML parses a full document or a body fragment. pandoc without
// --standalone produces fragments.
func parseHTML(content string) (*html.Node, bool, error) {
	trimmed := strings.ToLower(strings.TrimSpace(content))
	if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
		doc, err := html.Parse(strings.NewReader(content))
		return doc, false, err
	}

	body := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Body,
		Data:     "body",
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, true, err
	}

	container := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	return container, true, nil
}

func renderHTML(doc *html.Node, isFragment bool) (string, error) {
	var buf strings.Builder
	if !isFragment {
		if err := html.Render(&buf, doc); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
