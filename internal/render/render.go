// Package render rasterizes PDF pages via pdftoppm. The orchestration core
// treats rendering as a pure function: document in, ordered page images out.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Guillaume-Lombardo/extractforms/constants"
	"github.com/Guillaume-Lombardo/extractforms/internal/pages"
)

// Options selects the page range and raster settings for one render.
type Options struct {
	DPI         int
	ImageFormat string // png, jpeg, jpg
	PageStart   int    // 1-based inclusive, 0 = first
	PageEnd     int    // 1-based inclusive, 0 = last
	MaxPages    int    // 0 = unlimited
}

// Renderer produces one raster image per physical page, in document order.
type Renderer interface {
	Render(ctx context.Context, path string, opts Options) ([]pages.RawPage, error)
}

// Pdftoppm renders through the poppler pdftoppm binary, with pdfcpu used for
// up-front validation and page counting.
type Pdftoppm struct {
	binary string
	runner Runner
}

// NewPdftoppm builds a renderer around the given binary path.
func NewPdftoppm(binary string) *Pdftoppm {
	if binary == "" {
		binary = "pdftoppm"
	}
	return &Pdftoppm{binary: binary, runner: execRunner{}}
}

// NewPdftoppmWithRunner lets tests stub the external command.
func NewPdftoppmWithRunner(binary string, runner Runner) *Pdftoppm {
	r := NewPdftoppm(binary)
	r.runner = runner
	return r
}

// Render rasterizes the selected page range of a PDF.
func (r *Pdftoppm) Render(ctx context.Context, path string, opts Options) ([]pages.RawPage, error) {
	format := constants.NormalizeFormat(opts.ImageFormat)
	if format == "" {
		format = "png"
	}
	mimeType, ok := constants.MIMEForFormat(format)
	if !ok {
		return nil, fmt.Errorf("unsupported image format: %s", opts.ImageFormat)
	}

	total, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("pdf page count %s: %w", path, err)
	}
	if total == 0 {
		return nil, pages.ErrEmptyDocument
	}

	first, last := selectRange(total, opts)
	if first > last {
		return nil, pages.ErrEmptyDocument
	}

	tmpDir, err := os.MkdirTemp("", "extractforms-render-*")
	if err != nil {
		return nil, fmt.Errorf("render temp dir: %w", err)
	}
	defer func(dir string) {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove temp dir %q: %v\n", dir, rmErr)
		}
	}(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	args := []string{
		"-r", strconv.Itoa(opts.DPI),
		formatFlag(format),
		"-f", strconv.Itoa(first),
		"-l", strconv.Itoa(last),
		path, prefix,
	}
	if _, errb, runErr := r.runner.Run(ctx, r.binary, args...); runErr != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", runErr, truncate(string(errb), 2<<10))
	}

	matches, _ := filepath.Glob(prefix + "-*")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, pages.ErrEmptyDocument
	}

	rendered := make([]pages.RawPage, 0, len(matches))
	for i, img := range matches {
		if opts.MaxPages > 0 && len(rendered) >= opts.MaxPages {
			break
		}
		data, readErr := os.ReadFile(img)
		if readErr != nil {
			return nil, fmt.Errorf("read rendered page %s: %w", img, readErr)
		}
		physical := parsePhysicalPage(img)
		if physical == 0 {
			physical = first + i
		}
		rendered = append(rendered, pages.RawPage{
			Physical: physical,
			MIME:     mimeType,
			Data:     data,
		})
	}
	return rendered, nil
}

func selectRange(total int, opts Options) (int, int) {
	first := 1
	if opts.PageStart > 1 {
		first = opts.PageStart
	}
	last := total
	if opts.PageEnd > 0 && opts.PageEnd < total {
		last = opts.PageEnd
	}
	if opts.MaxPages > 0 && first+opts.MaxPages-1 < last {
		last = first + opts.MaxPages - 1
	}
	return first, last
}

func formatFlag(format string) string {
	if format == "jpeg" || format == "jpg" {
		return "-jpeg"
	}
	return "-png"
}

// parsePhysicalPage extracts the page number pdftoppm encodes in the output
// filename (page-03.png -> 3).
func parsePhysicalPage(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimLeft(base[idx+1:], "0"))
	if err != nil {
		return 0
	}
	return n
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
