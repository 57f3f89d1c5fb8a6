// Package pipeline drives one extraction: open the document, walk the
// requested pages in batches, render, normalize, recognize and assemble each
// page, and close the document on every path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/toricodesthings/pdfocr/internal/assemble"
	"github.com/toricodesthings/pdfocr/internal/batch"
	"github.com/toricodesthings/pdfocr/internal/config"
	"github.com/toricodesthings/pdfocr/internal/extract"
	"github.com/toricodesthings/pdfocr/internal/logging"
	"github.com/toricodesthings/pdfocr/internal/normalize"
	"github.com/toricodesthings/pdfocr/internal/ocr"
	"github.com/toricodesthings/pdfocr/internal/pdfdoc"
	"github.com/toricodesthings/pdfocr/internal/raster"
)

// Document is what a run needs from an opened PDF.
type Document interface {
	raster.Source
	Metadata() extract.Metadata
	TextLayer(page int) (string, error)
	Close() error
}

// Opener opens the document for a run.
type Opener func(ctx context.Context, path, password string) (Document, error)

// PDFOpener opens documents with pdfdoc.
func PDFOpener(opts pdfdoc.Options) Opener {
	return func(ctx context.Context, path, password string) (Document, error) {
		d, err := pdfdoc.Open(ctx, path, password, opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

type Options struct {
	DPI               float64
	BatchSize         int
	MaxImageDimension int
	Normalize         normalize.Options
	Language          string
	// PageWorkers > 1 processes pages of a batch concurrently.
	PageWorkers int
	TextMode    string
	MinWords    int
	KeepRawText bool
	Assemble    assemble.Options
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		DPI:               cfg.DPI,
		BatchSize:         cfg.BatchSize,
		MaxImageDimension: cfg.MaxImageDimension,
		Normalize:         normalize.Options{Kernel: cfg.Resample, Grayscale: cfg.Grayscale},
		Language:          cfg.OCRLanguage,
		PageWorkers:       cfg.PageWorkers,
		TextMode:          cfg.TextMode,
		MinWords:          cfg.MinWordsThreshold,
		KeepRawText:       cfg.KeepRawText,
		Assemble: assemble.Options{
			MinParagraphLength: cfg.MinParagraphLength,
			MergeBelow:         cfg.MergeBelow,
			FilterBoilerplate:  cfg.FilterBoilerplate,
		},
	}
}

type Processor struct {
	opts    Options
	engine  ocr.Engine
	open    Opener
	raster  *raster.Rasterizer
	log     logrus.FieldLogger
	onState StateHook
}

type Option func(*Processor)

func WithOpener(o Opener) Option { return func(p *Processor) { p.open = o } }

func WithStateHook(h StateHook) Option { return func(p *Processor) { p.onState = h } }

func WithLogger(l logrus.FieldLogger) Option { return func(p *Processor) { p.log = l } }

func New(opts Options, engine ocr.Engine, options ...Option) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.PageWorkers < 1 {
		opts.PageWorkers = 1
	}
	p := &Processor{
		opts:   opts,
		engine: engine,
		log:    logging.Discard(),
	}
	for _, o := range options {
		o(p)
	}
	if p.open == nil {
		p.open = PDFOpener(pdfdoc.Options{Log: p.log})
	}
	p.raster = raster.New(p.log)
	return p
}

// Rasterizer exposes the live-image counters.
func (p *Processor) Rasterizer() *raster.Rasterizer { return p.raster }

type Request struct {
	Path     string
	Password string
	// Pages restricts the run; nil means every page.
	Pages *batch.Range
}

// Run extracts the requested pages. Page-scoped failures are recorded in the
// result; any other error aborts the run and is returned with a nil result.
func (p *Processor) Run(ctx context.Context, req Request) (result *extract.Document, err error) {
	st := &tracker{hook: p.onState, log: p.log}
	st.to(Opening)

	doc, err := p.open(ctx, req.Path, req.Password)
	if err != nil {
		st.to(Failed)
		return nil, err
	}
	st.to(Ready)

	defer func() {
		st.to(Closing)
		if cerr := doc.Close(); cerr != nil {
			p.log.WithError(cerr).Warn("close document")
		}
		if err != nil {
			result = nil
			st.to(Failed)
			return
		}
		st.to(Done)
	}()

	total := doc.PageCount()
	rng := batch.Full(total)
	if req.Pages != nil {
		rng = *req.Pages
		if err := rng.Check(total); err != nil {
			return nil, err
		}
	}

	result = extract.NewDocument(doc.Metadata())
	if total == 0 {
		p.log.WithField("path", req.Path).Warn("document has no pages")
		return result, nil
	}

	started := time.Now()
	nb := batch.Count(rng.First, rng.Last, p.opts.BatchSize)
	n := 0
	for b := range batch.Split(rng.First, rng.Last, p.opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st.to(Processing)
		pages, err := p.processBatch(ctx, doc, b)
		if err != nil {
			return nil, err
		}
		for _, pt := range pages {
			if err := result.Append(pt); err != nil {
				return nil, err
			}
		}
		st.to(Ready)
		n++
		p.log.WithFields(logrus.Fields{
			"batch":   fmt.Sprintf("%d/%d", n, nb),
			"pages":   b.String(),
			"elapsed": time.Since(started).Round(time.Millisecond),
		}).Info("batch complete")
	}

	if failed := result.FailedPages(); len(failed) > 0 {
		p.log.WithFields(logrus.Fields{
			"failed": joinInts(failed),
			"count":  len(failed),
		}).Warn("some pages could not be extracted")
	}
	return result, nil
}

func (p *Processor) processBatch(ctx context.Context, doc Document, b batch.Batch) ([]extract.PageText, error) {
	out := make([]extract.PageText, b.Len())

	if p.opts.PageWorkers <= 1 {
		for page := range b.Pages() {
			pt, err := p.processPage(ctx, doc, page)
			if err != nil {
				return nil, err
			}
			out[page-b.Start] = pt
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.PageWorkers)
	for page := range b.Pages() {
		g.Go(func() error {
			pt, err := p.processPage(gctx, doc, page)
			if err != nil {
				return err
			}
			out[page-b.Start] = pt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Processor) processPage(ctx context.Context, doc Document, page int) (extract.PageText, error) {
	if err := ctx.Err(); err != nil {
		return extract.PageText{}, err
	}
	log := p.log.WithField("page", page)

	if p.opts.TextMode == "auto" {
		text, err := doc.TextLayer(page)
		switch {
		case errors.Is(err, pdfdoc.ErrClosed):
			return extract.PageText{}, err
		case err != nil:
			log.WithError(err).Debug("text layer unreadable, using OCR")
		default:
			if words, _ := extract.BuildCounts(text); words >= p.opts.MinWords {
				return p.buildPage(page, text, extract.MethodTextLayer), nil
			}
		}
	}

	img, err := p.raster.Render(ctx, doc, page, p.opts.DPI)
	if err != nil {
		return p.pageFailure(ctx, log, page, err)
	}
	norm, err := normalize.Normalize(img, p.opts.MaxImageDimension, p.opts.Normalize)
	if err != nil {
		return extract.PageText{}, fmt.Errorf("normalize page %d: %w", page, err)
	}

	raw, err := p.engine.Recognize(ctx, norm, p.opts.Language)
	if err != nil {
		return p.pageFailure(ctx, log, page, err)
	}
	return p.buildPage(page, raw, extract.MethodOCR), nil
}

func (p *Processor) pageFailure(ctx context.Context, log logrus.FieldLogger, page int, err error) (extract.PageText, error) {
	if cerr := ctx.Err(); cerr != nil {
		return extract.PageText{}, cerr
	}
	var re *raster.RenderError
	var oe *ocr.Error
	if errors.As(err, &re) || errors.As(err, &oe) {
		log.WithError(err).Warn("page failed, continuing")
		return extract.FailedPage(page, extract.MethodOCR, err), nil
	}
	return extract.PageText{}, err
}

func (p *Processor) buildPage(page int, raw, method string) extract.PageText {
	text := assemble.Assemble(raw, p.opts.Assemble)
	words, _ := extract.BuildCounts(text)
	pt := extract.PageText{
		PageNumber: page,
		Text:       text,
		Method:     method,
		WordCount:  words,
	}
	if p.opts.KeepRawText {
		pt.RawText = raw
	}
	return pt
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ",")
}
