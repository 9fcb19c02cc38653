// Package pages turns rendered page images into the logical page sequence
// shown to the inference backend: blank pages dropped, survivors renumbered,
// and a logical-to-physical map kept for reporting.
package pages

import "errors"

var (
	// ErrEmptyDocument is returned when rendering yields zero pages.
	ErrEmptyDocument = errors.New("document has no pages")
	// ErrAllPagesBlank is returned when every rendered page is classified
	// blank. Recoverable by disabling blank-page filtering.
	ErrAllPagesBlank = errors.New("all pages classified blank")
)

// RawPage is one rendered page as produced by the render collaborator.
// Physical is the 1-based page index in the source document.
type RawPage struct {
	Physical int
	MIME     string
	Data     []byte
}

// Page is one logical page. Number is the 1-based index after blank-page
// filtering; Physical is the original page index before filtering.
type Page struct {
	Number   int
	Physical int
	MIME     string
	Data     []byte
}

// PageMap maps logical page numbers to physical page numbers. Entry i holds
// the physical number of logical page i+1. Physical numbers are strictly
// increasing.
type PageMap []int

// Physical translates a logical page number to its physical page number.
func (m PageMap) Physical(logical int) (int, bool) {
	if logical < 1 || logical > len(m) {
		return 0, false
	}
	return m[logical-1], true
}

// Logical translates a physical page number back to its logical number
// (0 if the page was filtered out).
func (m PageMap) Logical(physical int) int {
	for i, p := range m {
		if p == physical {
			return i + 1
		}
	}
	return 0
}

// Len returns the number of logical pages.
func (m PageMap) Len() int { return len(m) }

// Validate checks that physical numbers are strictly increasing and >= 1.
func (m PageMap) Validate() error {
	prev := 0
	for i, p := range m {
		if p <= prev {
			return errors.New("page map not strictly increasing")
		}
		if p < i+1 {
			return errors.New("physical page behind logical index")
		}
		prev = p
	}
	return nil
}
