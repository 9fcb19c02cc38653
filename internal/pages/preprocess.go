package pages

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
)

// Config controls blank-page detection.
type Config struct {
	// InkRatioThreshold is the minimum fraction of non-near-white pixels a
	// page needs to count as non-blank.
	InkRatioThreshold float64
	// NearWhiteLevel is the per-channel level (0..255) below which a pixel
	// counts as ink.
	NearWhiteLevel uint8
	// DropBlank enables blank-page filtering.
	DropBlank bool
	// SampleWidth bounds the width pages are downsampled to before the ink
	// ratio is computed. Zero means no downsampling.
	SampleWidth int

	Logger *slog.Logger
}

// DefaultSampleWidth keeps ink analysis cheap on high-DPI renders.
const DefaultSampleWidth = 600

// Preprocess classifies near-blank pages, drops them when enabled, and
// renumbers the survivors 1..N. The returned PageMap records the original
// physical index of every logical page.
func Preprocess(raw []RawPage, cfg Config) ([]Page, PageMap, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(raw) == 0 {
		return nil, nil, ErrEmptyDocument
	}

	start := time.Now()
	kept := make([]Page, 0, len(raw))
	pageMap := make(PageMap, 0, len(raw))

	for _, page := range raw {
		if cfg.DropBlank {
			ratio, err := inkRatio(page.Data, cfg)
			if err != nil {
				// Undecodable pages are kept: better to show the backend a
				// noisy page than to silently drop content.
				logger.Warn("pages.ink_analysis_failed",
					"physical_page", page.Physical, "error", err)
			} else if ratio < cfg.InkRatioThreshold {
				logger.Debug("pages.blank_dropped",
					"physical_page", page.Physical, "ink_ratio", ratio)
				continue
			}
		}
		kept = append(kept, Page{
			Number:   len(kept) + 1,
			Physical: page.Physical,
			MIME:     page.MIME,
			Data:     page.Data,
		})
		pageMap = append(pageMap, page.Physical)
	}

	if len(kept) == 0 {
		return nil, nil, ErrAllPagesBlank
	}

	logger.Info("pages.preprocess.ok",
		"physical_pages", len(raw),
		"logical_pages", len(kept),
		"dropped", len(raw)-len(kept),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return kept, pageMap, nil
}

// inkRatio decodes the page image and returns the fraction of pixels darker
// than the near-white level on any channel.
func inkRatio(data []byte, cfg Config) (float64, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode page image: %w", err)
	}
	if cfg.SampleWidth > 0 && img.Bounds().Dx() > cfg.SampleWidth {
		img = imaging.Resize(img, cfg.SampleWidth, 0, imaging.Box)
	}
	return InkRatio(img, cfg.NearWhiteLevel), nil
}

// InkRatio counts non-near-white pixels over the total pixel count.
func InkRatio(img image.Image, nearWhiteLevel uint8) float64 {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}
	level := uint32(nearWhiteLevel) << 8 // 8-bit level on the 16-bit scale
	ink := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r < level || g < level || b < level {
				ink++
			}
		}
	}
	return float64(ink) / float64(total)
}
