package pdfdoc

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rotisserie/eris"

	"github.com/toricodesthings/pdfocr/internal/batch"
)

// ExtractImages writes the embedded image XObjects of the pages in r to
// outDir and returns the written file paths, sorted.
func (d *Document) ExtractImages(ctx context.Context, outDir string, r batch.Range) ([]string, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.Check(d.pageCount); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "create image dir")
	}

	before, err := listFiles(outDir)
	if err != nil {
		return nil, err
	}
	if err := api.ExtractImagesFile(d.path, outDir, []string{r.String()}, pdfcpuConf(d.password)); err != nil {
		return nil, eris.Wrap(err, "pdfcpu extract images")
	}
	after, err := listFiles(outDir)
	if err != nil {
		return nil, err
	}

	var written []string
	for p := range after {
		if _, ok := before[p]; !ok {
			written = append(written, p)
		}
	}
	sort.Strings(written)
	d.log.WithField("images", len(written)).WithField("pages", r.String()).Debug("images extracted")
	return written, nil
}

func listFiles(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrap(err, "list image dir")
	}
	out := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			out[filepath.Join(dir, e.Name())] = struct{}{}
		}
	}
	return out, nil
}
