package templating

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

//go:embed prompts/*.tmpl
var promptFiles embed.FS

const (
	transcriptSystemTemplate = "transcript_system.tmpl"
	defectsSystemTemplate    = "defects_system.tmpl"
	defectsUserTemplate      = "defects_user.tmpl"
)

// ProjectOption is one known project code offered to the model
type ProjectOption struct {
	Number   string
	Customer string
}

// TranscriptPrompt is the data for the transcript extraction system prompt
type TranscriptPrompt struct {
	Fields             []string
	SalesOpportunities bool
	ProjectOptions     []ProjectOption
}

// TemplateVariant is one labelled boilerplate text, e.g. "Brist A"
type TemplateVariant struct {
	Label string
	Text  string
}

// DefectTemplate is one boilerplate category rendered into the defect prompt
type DefectTemplate struct {
	Key        string
	Title      string
	Brist      []TemplateVariant
	Atgard     []TemplateVariant
	Motivering []TemplateVariant
}

// DefectLine is one existing defect listed in the user prompt
type DefectLine struct {
	Number      int
	Description string
}

// DefectPrompt is the data for the defect boilerplate prompts
type DefectPrompt struct {
	Templates  []DefectTemplate
	Transcript string
	CaseID     string
	Defects    []DefectLine
}

// Renderer renders LLM prompts from the embedded templates
type Renderer struct {
	templates *template.Template
	logger    *logger.Logger
}

// NewRenderer parses the embedded prompt templates
func NewRenderer(logger *logger.Logger) (*Renderer, error) {
	tmpl, err := template.New("prompts").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(promptFiles, "prompts/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt templates: %w", err)
	}

	return &Renderer{
		templates: tmpl,
		logger:    logger.Named("prompt-renderer"),
	}, nil
}

// TranscriptSystemPrompt renders the system instruction for transcript extraction
func (r *Renderer) TranscriptSystemPrompt(data TranscriptPrompt) (string, error) {
	return r.render(transcriptSystemTemplate, data)
}

// DefectSystemPrompt renders the boilerplate catalog instruction
func (r *Renderer) DefectSystemPrompt(data DefectPrompt) (string, error) {
	return r.render(defectsSystemTemplate, data)
}

// DefectUserPrompt renders the transcript and defect list
func (r *Renderer) DefectUserPrompt(data DefectPrompt) (string, error) {
	return r.render(defectsUserTemplate, data)
}

func (r *Renderer) render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}

	r.logger.Debug("Rendered prompt",
		logger.String("template", name),
		logger.Int("length", buf.Len()))

	return buf.String(), nil
}
