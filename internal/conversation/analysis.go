package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/extraction"
)

// AnalysisStore receives defect analyses
type AnalysisStore interface {
	UpdateDefectAnalysis(ctx context.Context, caseID string, number int, brist, atgard, motivering *string) error
	ClearDefectAnalysis(ctx context.Context, caseID string, number int) error
}

// StoreDefectAnalyses writes analyses for a case and returns how many defects changed.
// Defects with boilerplate are updated, defects the model put outside the catalog are
// cleared, and defects the model did not mention keep what they had. A failing defect
// does not stop the others; the failures are joined into the returned error.
func StoreDefectAnalyses(ctx context.Context, store AnalysisStore, caseID string, analyses []extraction.DefectAnalysis) (int, error) {
	var errs []error
	changed := 0
	for _, a := range analyses {
		var err error
		switch {
		case a.HasText():
			err = store.UpdateDefectAnalysis(ctx, caseID, a.DefectNumber, a.Brist, a.Atgard, a.Motivering)
		case a.Unmatched():
			err = store.ClearDefectAnalysis(ctx, caseID, a.DefectNumber)
		default:
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("defect %d: %w", a.DefectNumber, err))
			continue
		}
		changed++
	}
	return changed, errors.Join(errs...)
}
