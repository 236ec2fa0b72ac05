package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// PDFToText shells out to the poppler pdftotext binary. The binary writes
// extracted text to stdout when the output argument is "-".
type PDFToText struct {
	Bin string
}

func (p *PDFToText) Extract(ctx context.Context, path string) (string, error) {
	bin := p.Bin
	if bin == "" {
		bin = "pdftotext"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return "", fmt.Errorf("pdftotext binary not found: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stat document: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin, "-layout", "-enc", "UTF-8", path, "-")
	var stdout strings.Builder
	var stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running pdftotext: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text in %s", path)
	}
	return text, nil
}
