package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/templating"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// Defect is an existing case defect sent for analysis
type Defect struct {
	Number      int    `json:"defect_number"`
	Description string `json:"description"`
}

// DefectInput is one analysis request
type DefectInput struct {
	Transcript string   `json:"transcript"`
	CaseID     string   `json:"case_id"`
	Defects    []Defect `json:"defects"`
}

// DefectAnalysis is the boilerplate chosen for one defect.
// Nil text fields mean the model had nothing to contribute.
type DefectAnalysis struct {
	CaseID       string  `json:"case_id"`
	DefectNumber int     `json:"defect_number"`
	Category     string  `json:"category,omitempty"`
	Brist        *string `json:"brist"`
	Atgard       *string `json:"atgard"`
	Motivering   *string `json:"motivering"`
}

// HasText reports whether any boilerplate field was produced
func (a DefectAnalysis) HasText() bool {
	return a.Brist != nil || a.Atgard != nil || a.Motivering != nil
}

// Unmatched reports whether the model placed the defect in a category outside the catalog.
// Such a defect gets no boilerplate at all.
func (a DefectAnalysis) Unmatched() bool {
	return a.Category != "" && !a.HasText()
}

type defectResponse struct {
	Defects *[]struct {
		DefectNumber json.Number `json:"defect_number"`
		Category     *string     `json:"category"`
		Brist        *string     `json:"brist"`
		Atgard       *string     `json:"atgard"`
		Motivering   *string     `json:"motivering"`
	} `json:"defects"`
}

// DefectAnalyzer elaborates defects into standard brist, åtgärd and motivering texts
type DefectAnalyzer struct {
	completer Completer
	renderer  *templating.Renderer
	model     string
	maxTokens int
	logger    *logger.Logger
}

// NewDefectAnalyzer creates an analyzer
func NewDefectAnalyzer(completer Completer, renderer *templating.Renderer, model string, maxTokens int, log *logger.Logger) *DefectAnalyzer {
	return &DefectAnalyzer{
		completer: completer,
		renderer:  renderer,
		model:     model,
		maxTokens: maxTokens,
		logger:    log.Named("defect-analyzer"),
	}
}

// Analyze returns exactly one analysis per input defect, in input order.
// Defects the model skipped or placed in an unknown category get empty fields.
func (a *DefectAnalyzer) Analyze(ctx context.Context, in DefectInput) ([]DefectAnalysis, error) {
	if in.CaseID == "" {
		return nil, fmt.Errorf("case id is required")
	}
	if len(in.Defects) == 0 {
		return []DefectAnalysis{}, nil
	}

	log := a.logger.WithCase(in.CaseID)
	log.Info("Analyzing defects", logger.Int("defects", len(in.Defects)))

	lines := make([]templating.DefectLine, 0, len(in.Defects))
	for _, d := range in.Defects {
		lines = append(lines, templating.DefectLine{Number: d.Number, Description: d.Description})
	}
	prompt := templating.DefectPrompt{
		Templates:  DefectCatalog,
		Transcript: in.Transcript,
		CaseID:     in.CaseID,
		Defects:    lines,
	}

	system, err := a.renderer.DefectSystemPrompt(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to build defect prompt: %w", err)
	}
	user, err := a.renderer.DefectUserPrompt(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to build defect prompt: %w", err)
	}

	content, err := a.completer.Complete(ctx, CompletionRequest{
		Model:     a.model,
		System:    system,
		User:      user,
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	var resp defectResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, &ParseError{Content: content, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if resp.Defects == nil {
		return nil, &ParseError{Content: content, Err: fmt.Errorf("response has no defects array")}
	}

	byNumber := make(map[int]DefectAnalysis, len(*resp.Defects))
	for _, item := range *resp.Defects {
		number, err := strconv.Atoi(strings.TrimSpace(item.DefectNumber.String()))
		if err != nil {
			log.Warn("Skipping analysis with invalid defect number",
				logger.String("defect_number", item.DefectNumber.String()))
			continue
		}

		category := ""
		if item.Category != nil {
			category = strings.TrimSpace(*item.Category)
		}
		result := DefectAnalysis{CaseID: in.CaseID, DefectNumber: number, Category: category}
		if knownCategory(category) {
			result.Brist = StringPtr(Value(item.Brist))
			result.Atgard = StringPtr(Value(item.Atgard))
			result.Motivering = StringPtr(Value(item.Motivering))
		}
		if _, dup := byNumber[number]; !dup {
			byNumber[number] = result
		}
	}

	results := make([]DefectAnalysis, 0, len(in.Defects))
	for _, d := range in.Defects {
		result, ok := byNumber[d.Number]
		if !ok {
			result = DefectAnalysis{CaseID: in.CaseID, DefectNumber: d.Number}
		}
		results = append(results, result)
	}

	log.Info("Defect analysis completed", logger.Int("results", len(results)))
	return results, nil
}
