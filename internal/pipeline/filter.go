// internal/pipeline/filter.go
package pipeline

import (
	"strings"

	"github.com/fetchlab/cataloger/internal/monitoring"
	"github.com/fetchlab/cataloger/internal/utils"
	"github.com/fetchlab/cataloger/pkg/types"
)

// AcceptStatus is the outcome of offering an identity key to the run
// ledger.
type AcceptStatus int

const (
	// AcceptOK means the key was unseen and a save slot was reserved.
	AcceptOK AcceptStatus = iota
	// AcceptDuplicate means the key was already accepted this run.
	AcceptDuplicate
	// AcceptFull means the item ceiling is reached.
	AcceptFull
)

// Ledger is the synchronized increment-and-check interface to the run
// state. AcceptSave must atomically test the seen set and the item ceiling
// and, on success, mark the key and consume a slot.
type Ledger interface {
	AcceptSave(key string) AcceptStatus
}

// Filters are the user predicates applied before persistence. Substring
// matches are case-insensitive. Price bounds are inclusive and only tested
// against a known price. An empty extracted color/size set passes its
// filter: emptiness is evidence of non-extraction, not absence.
type Filters struct {
	Brands   []string
	Colors   []string
	Sizes    []string
	MinPrice float64
	MaxPrice float64
}

// FilterEngine enforces uniqueness, the filter predicates, and the item
// ceiling. It returns the accepted sub-batch; the caller persists exactly
// that.
type FilterEngine struct {
	filters Filters
	ledger  Ledger
	log     utils.Logger
	metrics *monitoring.Metrics
}

// NewFilterEngine builds the dedup and filter stage. metrics may be nil.
func NewFilterEngine(filters Filters, ledger Ledger, log utils.Logger, metrics *monitoring.Metrics) *FilterEngine {
	return &FilterEngine{
		filters: filters,
		ledger:  ledger,
		log:     log,
		metrics: metrics,
	}
}

// Apply gates a batch of records. The batch is truncated exactly at the
// item ceiling: once the ledger reports full, no further record from this
// or any later batch is accepted.
func (e *FilterEngine) Apply(records []*types.ProductRecord) []*types.ProductRecord {
	accepted := make([]*types.ProductRecord, 0, len(records))

	for _, rec := range records {
		if !rec.Acceptable() {
			e.metrics.RecordRejected("incomplete")
			continue
		}
		if reason, ok := e.passes(rec); !ok {
			e.metrics.RecordRejected(reason)
			continue
		}

		switch e.ledger.AcceptSave(rec.IdentityKey()) {
		case AcceptDuplicate:
			e.metrics.RecordRejected("duplicate")
		case AcceptFull:
			e.metrics.RecordRejected("ceiling")
			return accepted
		default:
			e.metrics.RecordAccepted()
			accepted = append(accepted, rec)
		}
	}

	return accepted
}

// passes evaluates the filter predicates, returning the rejection reason
// when one fails.
func (e *FilterEngine) passes(rec *types.ProductRecord) (string, bool) {
	// Brand: reject only a known brand with no match; a record whose brand
	// was not extracted is not evidence of a mismatch.
	if len(e.filters.Brands) > 0 && rec.Brand != "" && !anySubstring(e.filters.Brands, []string{rec.Brand}) {
		return "brand", false
	}

	// Price bounds only apply to a known price.
	if rec.Price != nil {
		if e.filters.MinPrice > 0 && *rec.Price < e.filters.MinPrice {
			return "price", false
		}
		if e.filters.MaxPrice > 0 && *rec.Price > e.filters.MaxPrice {
			return "price", false
		}
	}

	if len(e.filters.Colors) > 0 && len(rec.Colors) > 0 && !anySubstring(e.filters.Colors, rec.Colors) {
		return "color", false
	}
	if len(e.filters.Sizes) > 0 && len(rec.Sizes) > 0 && !anySubstring(e.filters.Sizes, rec.Sizes) {
		return "size", false
	}

	return "", true
}

// anySubstring reports whether any wanted term is a case-insensitive
// substring of any extracted value.
func anySubstring(wanted, values []string) bool {
	for _, w := range wanted {
		lw := strings.ToLower(w)
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), lw) {
				return true
			}
		}
	}
	return false
}
