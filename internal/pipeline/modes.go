package pipeline

import (
	"context"
	"fmt"

	"github.com/toricodesthings/pdfocr/internal/batch"
	"github.com/toricodesthings/pdfocr/internal/extract"
)

// Metadata opens the document, reads its metadata and closes it. No page is
// rendered.
func (p *Processor) Metadata(ctx context.Context, path, password string) (extract.Metadata, error) {
	doc, err := p.open(ctx, path, password)
	if err != nil {
		return extract.Metadata{}, err
	}
	defer doc.Close()
	return doc.Metadata(), nil
}

type imageExtractor interface {
	ExtractImages(ctx context.Context, outDir string, r batch.Range) ([]string, error)
}

// Images writes the embedded images of the requested pages to outDir.
func (p *Processor) Images(ctx context.Context, req Request, outDir string) ([]string, error) {
	doc, err := p.open(ctx, req.Path, req.Password)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	ex, ok := doc.(imageExtractor)
	if !ok {
		return nil, fmt.Errorf("document does not support image extraction")
	}
	rng := batch.Full(doc.PageCount())
	if req.Pages != nil {
		rng = *req.Pages
	}
	if err := rng.Check(doc.PageCount()); err != nil {
		return nil, err
	}
	return ex.ExtractImages(ctx, outDir, rng)
}
