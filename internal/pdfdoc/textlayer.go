package pdfdoc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// TextLayer returns the embedded text of the 1-based page, or "" when the
// page has none.
func (d *Document) TextLayer(page int) (text string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrClosed
	}
	if page < 1 || page > d.pageCount {
		return "", fmt.Errorf("page %d out of range 1-%d", page, d.pageCount)
	}

	r, err := d.textReader()
	if err != nil {
		return "", err
	}

	// ledongthuc/pdf panics on some malformed content streams.
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = eris.Errorf("text layer page %d: %v", page, rec)
		}
	}()

	p := r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	raw, err := p.GetPlainText(nil)
	if err != nil {
		return "", eris.Wrapf(err, "text layer page %d", page)
	}
	return strings.TrimSpace(raw), nil
}

func (d *Document) textReader() (r *pdf.Reader, err error) {
	if d.textOK {
		return d.text, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			r = nil
			err = eris.Errorf("text layer reader: %v", rec)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(d.data), int64(len(d.data)))
	if err != nil {
		return nil, eris.Wrap(err, "text layer reader")
	}
	d.text = r
	d.textOK = true
	return r, nil
}
