// Command pdfocr extracts text, images or metadata from a PDF. Text is
// produced by rasterizing each page and running OCR, a batch at a time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/toricodesthings/pdfocr/internal/batch"
	"github.com/toricodesthings/pdfocr/internal/config"
	"github.com/toricodesthings/pdfocr/internal/extract"
	"github.com/toricodesthings/pdfocr/internal/logging"
	"github.com/toricodesthings/pdfocr/internal/ocr"
	"github.com/toricodesthings/pdfocr/internal/output"
	"github.com/toricodesthings/pdfocr/internal/pdfdoc"
	"github.com/toricodesthings/pdfocr/internal/pipeline"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

type mode int

const (
	modeText mode = iota
	modeImages
	modeMetadata
)

func (m mode) String() string {
	switch m {
	case modeImages:
		return "images"
	case modeMetadata:
		return "metadata"
	default:
		return "text"
	}
}

type options struct {
	mode       mode
	path       string
	password   string
	pages      string
	configPath string
	format     string
	out        string
	outDir     string

	dpi       float64
	batchSize int
	maxDim    int
	lang      string
	engine    string
	workers   int
	textMode  string
	raw       bool
	logLevel  string

	// set holds the names of flags given on the command line.
	set map[string]bool
}

// usageError marks failures that exit with code 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

type app struct {
	stdout    io.Writer
	stderr    io.Writer
	newEngine func(config.Config, logrus.FieldLogger) (ocr.Engine, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{stdout: os.Stdout, stderr: os.Stderr, newEngine: ocr.New}
	code := a.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("pdfocr", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfocr [--text|--images|--metadata] [flags] <pdf>\n")
		fs.PrintDefaults()
	}

	text := fs.Bool("text", false, "Extract page text with OCR (default)")
	images := fs.Bool("images", false, "Write embedded images to --out-dir")
	metadata := fs.Bool("metadata", false, "Print document metadata")
	fs.StringVar(&o.pages, "pages", "", "Page range N or N-M (1-based, inclusive)")
	fs.StringVar(&o.password, "password", "", "Password for encrypted PDFs")
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.format, "format", "", "Output format: json, text or xlsx")
	fs.StringVar(&o.out, "out", "", "Output file (default stdout)")
	fs.StringVar(&o.outDir, "out-dir", "", "Directory for --images (default <name>_images next to the PDF)")
	fs.Float64Var(&o.dpi, "dpi", 0, "Render resolution")
	fs.IntVar(&o.batchSize, "batch-size", 0, "Pages per batch")
	fs.IntVar(&o.maxDim, "max-dim", 0, "Longest image side before OCR")
	fs.StringVar(&o.lang, "lang", "", "OCR language, e.g. eng or eng+deu")
	fs.StringVar(&o.engine, "engine", "", "OCR engine: tesseract or mistral")
	fs.IntVar(&o.workers, "workers", 0, "Pages processed concurrently within a batch")
	fs.StringVar(&o.textMode, "text-mode", "", "ocr, or auto to prefer an existing text layer")
	fs.BoolVar(&o.raw, "raw", false, "Include raw OCR text in JSON output")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level")

	// Flags may follow the path, so parse again after each positional.
	var positional []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return o, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}

	o.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	n := 0
	for _, on := range []bool{*text, *images, *metadata} {
		if on {
			n++
		}
	}
	if n > 1 {
		return o, usagef("--text, --images and --metadata are mutually exclusive")
	}
	switch {
	case *images:
		o.mode = modeImages
	case *metadata:
		o.mode = modeMetadata
	default:
		o.mode = modeText
	}

	switch len(positional) {
	case 0:
		fs.Usage()
		return o, usagef("missing pdf path")
	case 1:
		o.path = positional[0]
	default:
		return o, usagef("expected one pdf path, got %d", len(positional))
	}
	if o.pages != "" && o.mode == modeMetadata {
		return o, usagef("--pages does not apply to --metadata")
	}
	return o, nil
}

// apply overlays the flags that were given on top of cfg.
func (o options) apply(cfg *config.Config) {
	if o.set["dpi"] {
		cfg.DPI = o.dpi
	}
	if o.set["batch-size"] {
		cfg.BatchSize = o.batchSize
	}
	if o.set["max-dim"] {
		cfg.MaxImageDimension = o.maxDim
	}
	if o.set["lang"] {
		cfg.OCRLanguage = o.lang
	}
	if o.set["engine"] {
		cfg.OCREngine = o.engine
	}
	if o.set["workers"] {
		cfg.PageWorkers = o.workers
	}
	if o.set["text-mode"] {
		cfg.TextMode = o.textMode
	}
	if o.set["raw"] {
		cfg.KeepRawText = o.raw
	}
	if o.set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if o.set["format"] {
		cfg.OutputFormat = strings.ToLower(o.format)
	}
}

// config resolves defaults < YAML file < environment < flags.
func (o options) config() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (a *app) run(ctx context.Context, args []string) int {
	o, err := parseArgs(args, a.stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "pdfocr: %v\n", err)
		return exitUsage
	}

	cfg, err := o.config()
	if err != nil {
		fmt.Fprintf(a.stderr, "pdfocr: %v\n", err)
		return exitUsage
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, a.stderr)
	log.WithFields(logrus.Fields{"path": o.path, "mode": o.mode.String()}).Debug("start")

	err = a.dispatch(ctx, o, cfg, log)
	code := exitCode(err)
	if err != nil {
		fmt.Fprintf(a.stderr, "pdfocr: %s\n", describe(err))
	}
	return code
}

func (a *app) dispatch(ctx context.Context, o options, cfg config.Config, log *logrus.Logger) error {
	var pages *batch.Range
	if o.pages != "" {
		r, err := batch.ParseRange(o.pages)
		if err != nil {
			return err
		}
		pages = &r
	}

	opener := pipeline.PDFOpener(pdfdoc.Options{MaxBytes: cfg.MaxPDFBytes, Log: log})
	req := pipeline.Request{Path: o.path, Password: o.password, Pages: pages}

	switch o.mode {
	case modeMetadata:
		p := pipeline.New(pipeline.OptionsFromConfig(cfg), nil, pipeline.WithOpener(opener), pipeline.WithLogger(log))
		meta, err := p.Metadata(ctx, o.path, o.password)
		if err != nil {
			return err
		}
		return a.emit(o.out, func(w io.Writer) error { return output.WriteJSON(w, meta) })

	case modeImages:
		dir := o.outDir
		if dir == "" {
			dir = strings.TrimSuffix(o.path, filepath.Ext(o.path)) + "_images"
		}
		p := pipeline.New(pipeline.OptionsFromConfig(cfg), nil, pipeline.WithOpener(opener), pipeline.WithLogger(log))
		files, err := p.Images(ctx, req, dir)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"dir": dir, "count": len(files)}).Info("images written")
		return a.emit(o.out, func(w io.Writer) error {
			return output.WriteJSON(w, map[string]any{"dir": dir, "files": files})
		})

	default:
		return a.extractText(ctx, o, cfg, log, opener, req)
	}
}

func (a *app) extractText(ctx context.Context, o options, cfg config.Config, log *logrus.Logger, opener pipeline.Opener, req pipeline.Request) error {
	format, err := output.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return usageError{err}
	}
	if format.NeedsFile() && o.out == "" {
		return usagef("--format %s requires --out", format)
	}

	engine, err := a.newEngine(cfg, log)
	if err != nil {
		return err
	}
	p := pipeline.New(pipeline.OptionsFromConfig(cfg), engine, pipeline.WithOpener(opener), pipeline.WithLogger(log))
	doc, err := p.Run(ctx, req)
	if err != nil {
		return err
	}

	words, chars := doc.Counts()
	log.WithFields(logrus.Fields{
		"pages":  len(doc.Pages),
		"failed": len(doc.FailedPages()),
		"words":  words,
		"chars":  chars,
	}).Info("extraction finished")

	if format == output.XLSX {
		return output.WriteXLSX(o.out, doc)
	}
	dest := o.out
	if dest == "" && format == output.JSON && cfg.WriteBeside {
		dest = output.BesidePath(o.path)
		log.WithField("path", dest).Info("writing result beside input")
	}
	return a.emit(dest, func(w io.Writer) error { return output.Write(w, doc, format, cfg.PageSeparator) })
}

// emit writes to path, or to stdout when path is empty.
func (a *app) emit(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(a.stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var re *batch.RangeError
	var ue usageError
	if errors.As(err, &re) || errors.As(err, &ue) {
		return exitUsage
	}
	return exitFatal
}

func describe(err error) string {
	var ee *pdfdoc.EncryptedError
	if errors.As(err, &ee) {
		if ee.PasswordSupplied {
			return "the password is incorrect for this encrypted PDF"
		}
		return "this PDF is encrypted; a password is required (use --password)"
	}
	if errors.Is(err, extract.ErrOutOfOrder) {
		return "internal error: " + err.Error()
	}
	return err.Error()
}
