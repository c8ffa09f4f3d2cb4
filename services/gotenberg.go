package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// GotenbergService is the premium conversion API. It renders office
// documents through Gotenberg's LibreOffice route.
type GotenbergService struct {
	baseURL string
	pdfa    string
	client  *http.Client
}

func NewGotenbergService(baseURL, pdfa string) *GotenbergService {
	return &GotenbergService{
		baseURL: baseURL,
		pdfa:    pdfa,
		client: &http.Client{
			Timeout: 0, // Use context timeout instead
		},
	}
}

// ConvertToPDF uploads inputPath and stores the returned PDF at outputPath.
func (g *GotenbergService) ConvertToPDF(ctx context.Context, inputPath, outputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("files", filepath.Base(inputPath))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	if g.pdfa != "" {
		if err := writer.WriteField("pdfa", g.pdfa); err != nil {
			return fmt.Errorf("failed to write pdfa field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}

	url := fmt.Sprintf("%s/forms/libreoffice/convert", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gotenberg request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gotenberg returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := io.Copy(outFile, resp.Body); err != nil {
		outFile.Close()
		return fmt.Errorf("failed to save converted file: %w", err)
	}
	return outFile.Close()
}
