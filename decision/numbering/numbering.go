// Package numbering derives deterministic invoice identifiers. Given the
// full set of invoices for a work relationship it computes a canonical
// rank, a stable sort by (date, source key), and assigns sequence-based
// identifiers from that rank, honoring explicit historical overrides.
// Re-running over an unchanged invoice set yields identical identifiers
// regardless of the order the inputs arrived in.
package numbering

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	billerrors "github.com/the-solipsist/invoice-system/pkg/errors"
)

// Ref is the numbering-relevant slice of one invoice.
type Ref struct {
	// SourceKey identifies the invoice's source document (its filename,
	// in the original data layout). Secondary sort key and map key.
	SourceKey string

	Date time.Time

	// ClientPrefix and WorkSequence together name the work relationship
	// the invoice belongs to; sequence counters never cross it.
	ClientPrefix string
	WorkSequence string

	// ContractSeries is false for standalone engagements, which take
	// invoice sequence "00" and consume no counter slot.
	ContractSeries bool

	// ManualSequence carries an explicit historical invoice-sequence
	// digit pair. It replaces the rank-derived counter for this invoice
	// only and consumes no counter slot, so siblings keep the sequences
	// they would have had.
	ManualSequence string

	// FaceOverride preserves a historical document number verbatim.
	FaceOverride string
}

// WorkKey names the invoice's work relationship.
func (r Ref) WorkKey() string {
	return r.ClientPrefix + "-" + r.WorkSequence
}

// Identity is the assigned pair of identifiers for one invoice.
type Identity struct {
	// FaceNumber is what the document presents; a preserved historical
	// value when an override exists, otherwise the canonical id.
	FaceNumber string `json:"face_number"`

	// CanonicalID is PREFIX-WORKSEQ-INVSEQ-YYMMDD.
	CanonicalID string `json:"canonical_id"`

	// Sequence is the zero-padded invoice counter within the work
	// relationship; "00" for standalone engagements.
	Sequence string `json:"sequence"`
}

// Service assigns identities. It carries only a logger; all ordering
// state is recomputed per call.
type Service struct {
	logger *slog.Logger
}

// NewService creates a numbering service. A nil logger uses the default.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// AssignIdentities computes identifiers for a batch of invoices, keyed by
// source key. The batch may span multiple work relationships; counters
// are computed per relationship. Two invoices claiming the same
// historical override is fatal for their work relationship: every invoice
// in that relationship is reported in the failure map instead of the
// identity map, and other relationships still number normally.
func (s *Service) AssignIdentities(refs []Ref) (map[string]Identity, map[string]error) {
	byWork := make(map[string][]Ref)
	var workOrder []string
	for _, ref := range refs {
		key := ref.WorkKey()
		if _, seen := byWork[key]; !seen {
			workOrder = append(workOrder, key)
		}
		byWork[key] = append(byWork[key], ref)
	}

	identities := make(map[string]Identity, len(refs))
	failures := make(map[string]error)
	for _, key := range workOrder {
		group := byWork[key]
		if err := s.checkOverrides(group); err != nil {
			s.logger.Error("numbering conflict", "work", key, "error", err)
			for _, ref := range group {
				failures[ref.SourceKey] = err
			}
			continue
		}
		s.rankGroup(group)

		counter := 0
		for _, ref := range group {
			seq := "00"
			switch {
			case ref.ManualSequence != "":
				seq = ref.ManualSequence
			case ref.ContractSeries:
				counter++
				seq = fmt.Sprintf("%02d", counter)
			}
			canonical := fmt.Sprintf("%s-%s-%s-%s",
				ref.ClientPrefix, ref.WorkSequence, seq, ref.Date.Format("060102"))

			face := canonical
			if ref.FaceOverride != "" {
				face = ref.FaceOverride
			}
			identities[ref.SourceKey] = Identity{
				FaceNumber:  face,
				CanonicalID: canonical,
				Sequence:    seq,
			}
		}
	}
	return identities, failures
}

// rankGroup sorts a work relationship's invoices into canonical rank:
// (date, source key) ascending. For refs sharing both keys the stable
// sort preserves encounter order. That resolution is deterministic but
// arbitrary, so it is logged rather than failed.
func (s *Service) rankGroup(group []Ref) {
	sort.SliceStable(group, func(i, j int) bool {
		if !group[i].Date.Equal(group[j].Date) {
			return group[i].Date.Before(group[j].Date)
		}
		return group[i].SourceKey < group[j].SourceKey
	})
	for i := 1; i < len(group); i++ {
		if group[i].Date.Equal(group[i-1].Date) && group[i].SourceKey == group[i-1].SourceKey {
			s.logger.Warn("ambiguous invoice rank resolved by encounter order",
				"work", group[i].WorkKey(),
				"source_key", group[i].SourceKey,
				"date", group[i].Date.Format("2006-01-02"))
		}
	}
}

// checkOverrides rejects a group in which two invoices claim the same
// historical number.
func (s *Service) checkOverrides(group []Ref) error {
	claimed := make(map[string]string)
	for _, ref := range group {
		if ref.FaceOverride == "" {
			continue
		}
		if first, dup := claimed[ref.FaceOverride]; dup {
			return billerrors.NewDuplicateOverrideError(ref.FaceOverride, first, ref.SourceKey)
		}
		claimed[ref.FaceOverride] = ref.SourceKey
	}
	return nil
}

// WorkSequenceFor computes the work-sequence rank of one engagement among
// all refs sharing a client prefix: chronological rank by
// (date, source key), 1-based, zero-padded. Used when an engagement does
// not declare its work sequence explicitly.
func WorkSequenceFor(refs []Ref, sourceKey string) (string, error) {
	sorted := make([]Ref, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].SourceKey < sorted[j].SourceKey
	})
	for i, ref := range sorted {
		if ref.SourceKey == sourceKey {
			return fmt.Sprintf("%02d", i+1), nil
		}
	}
	return "", fmt.Errorf("source key %s not present in the ref set", sourceKey)
}
