// Package pdfdoc opens PDF files and hands out page renders, the embedded
// text layer and document metadata.
//
// pdfcpu validates the file, reports encryption and metadata and decrypts
// password protected input in memory. MuPDF (go-fitz) renders pages from the
// decrypted bytes and ledongthuc/pdf reads the text layer.
package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/toricodesthings/pdfocr/internal/extract"
	"github.com/toricodesthings/pdfocr/internal/logging"
)

type Options struct {
	// MaxBytes caps the file size; 0 means no cap.
	MaxBytes int64
	Log      logrus.FieldLogger
}

// Document is an opened PDF. It is safe for concurrent use; page renders are
// serialized on the underlying MuPDF handle.
type Document struct {
	path     string
	password string
	log      logrus.FieldLogger

	mu     sync.Mutex
	closed bool
	data   []byte
	fz     *fitz.Document
	text   *pdf.Reader
	textOK bool

	pageCount int
	encrypted bool
	meta      extract.Metadata
}

// Open reads, validates and prepares the PDF at path for rendering. All
// failures are *OpenError.
func Open(ctx context.Context, path, password string, opts Options) (*Document, error) {
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	if err := ctx.Err(); err != nil {
		return nil, openErr(path, ReasonCanceled, err)
	}

	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, openErr(path, ReasonNotFound, err)
		}
		return nil, openErr(path, ReasonIO, err)
	}
	if st.IsDir() {
		return nil, openErr(path, ReasonIO, errors.New("is a directory"))
	}
	if opts.MaxBytes > 0 && st.Size() > opts.MaxBytes {
		return nil, openErr(path, ReasonTooLarge, eris.Errorf("%d bytes exceeds limit of %d", st.Size(), opts.MaxBytes))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, openErr(path, ReasonIO, err)
	}
	if mt := extract.SniffBytes(data); mt != extract.MIMEPDF {
		return nil, openErr(path, ReasonNotPDF, eris.Errorf("detected %s", mt))
	}

	d := &Document{path: path, password: password, log: log}

	conf := pdfcpuConf(password)
	pctx, verr := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	switch {
	case verr == nil:
		d.pageCount = pctx.PageCount
		d.encrypted = pctx.Encrypt != nil
		d.meta = extract.Metadata{
			Title:    strings.TrimSpace(pctx.Title),
			Author:   strings.TrimSpace(pctx.Author),
			Subject:  strings.TrimSpace(pctx.Subject),
			Creator:  strings.TrimSpace(pctx.Creator),
			Producer: strings.TrimSpace(pctx.Producer),
		}
	case isPasswordErr(verr):
		return nil, encryptedErr(path, password)
	default:
		// MuPDF repairs more than pdfcpu accepts; let it have a go.
		log.WithError(verr).WithField("path", path).Warn("pdfcpu validation failed, falling back to MuPDF")
	}

	renderBytes := data
	if d.encrypted {
		var buf bytes.Buffer
		if err := api.Decrypt(bytes.NewReader(data), &buf, pdfcpuConf(password)); err != nil {
			if isPasswordErr(err) {
				return nil, encryptedErr(path, password)
			}
			log.WithError(err).Warn("in-memory decrypt failed, handing encrypted bytes to MuPDF")
		} else {
			renderBytes = buf.Bytes()
		}
	}

	fz, err := fitz.NewFromMemory(renderBytes)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, encryptedErr(path, password)
		}
		cause := err
		if verr != nil {
			cause = errors.Join(eris.Wrap(verr, "pdfcpu"), eris.Wrap(err, "mupdf"))
		}
		return nil, openErr(path, ReasonDamaged, cause)
	}
	if verr != nil && fz.NumPage() <= 0 {
		_ = fz.Close()
		return nil, openErr(path, ReasonDamaged, eris.Wrap(verr, "pdfcpu"))
	}
	d.fz = fz
	d.data = renderBytes

	if verr != nil || d.pageCount <= 0 {
		d.pageCount = fz.NumPage()
		d.fillMetaFromFitz()
	}
	d.meta.PageCount = d.pageCount
	d.meta.Encrypted = d.encrypted

	log.WithFields(logrus.Fields{
		"path":      path,
		"pages":     d.pageCount,
		"encrypted": d.encrypted,
	}).Debug("document opened")
	return d, nil
}

func pdfcpuConf(password string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.UserPW = password
	conf.OwnerPW = password
	return conf
}

func (d *Document) fillMetaFromFitz() {
	m := d.fz.Metadata()
	if m == nil {
		return
	}
	if d.meta.Title == "" {
		d.meta.Title = strings.TrimSpace(m["title"])
	}
	if d.meta.Author == "" {
		d.meta.Author = strings.TrimSpace(m["author"])
	}
	if d.meta.Subject == "" {
		d.meta.Subject = strings.TrimSpace(m["subject"])
	}
	if d.meta.Creator == "" {
		d.meta.Creator = strings.TrimSpace(m["creator"])
	}
	if d.meta.Producer == "" {
		d.meta.Producer = strings.TrimSpace(m["producer"])
	}
	if strings.TrimSpace(m["encryption"]) != "" && !strings.EqualFold(m["encryption"], "none") {
		d.encrypted = true
	}
}

func (d *Document) PageCount() int { return d.pageCount }

func (d *Document) Encrypted() bool { return d.encrypted }

func (d *Document) Metadata() extract.Metadata { return d.meta }

// RenderPage rasterizes the page at 0-based index.
func (d *Document) RenderPage(index int, dpi float64) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	img, err := d.fz.ImageDPI(index, dpi)
	if err != nil {
		return nil, eris.Wrapf(err, "mupdf render page %d", index+1)
	}
	return img, nil
}

// Close releases the render handle and the document bytes. It is safe to
// call more than once.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	var err error
	if d.fz != nil {
		err = d.fz.Close()
		d.fz = nil
	}
	d.text = nil
	d.data = nil
	return err
}
