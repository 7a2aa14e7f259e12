// Package document projects a case's checklist answers and defects into the
// inspection notice (meddelande om tillsyn) and renders it as HTML or text.
package document

import (
	"sort"
	"time"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/cases"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/checklist"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
)

// Unanswered is shown for checklist items without an answer
const Unanswered = "___"

// DateLayout matches the Swedish short date format
const DateLayout = "2006-01-02"

// Agency holds the fixed letterhead and footer texts
type Agency struct {
	Name      string
	Inspector string
	Place     string
	Signature string
	Contact   []string
}

// DefaultAgency is Räddningstjänsten Storgöteborg
var DefaultAgency = Agency{
	Name:      "Räddningstjänsten Storgöteborg",
	Inspector: "RSG",
	Place:     "Göteborg",
	Signature: "Brandingenjör",
	Contact: []string{
		"Olof Asklunds gata 13",
		"421 30 Västra Frölunda",
		"Telefon: 031-61 61 61",
		"E-post: info@rsg.se",
	},
}

const introduction = "Räddningstjänsten Storgöteborg har genomfört tillsyn enligt lagen om skydd mot olyckor (LSO) " +
	"vid ovan angiven verksamhet. Nedan redovisas resultatet av kontrollen."

// Document is the render-ready notice
type Document struct {
	Agency       Agency
	Title        string
	Subtitle     string
	Case         cases.Case
	Date         string
	Introduction string

	// Defects lists every defect; Actions and Motivations only those with text
	Defects     []Line
	Actions     []Line
	Motivations []Line

	Sections []Section
}

// Line is one numbered defect text
type Line struct {
	Number int
	Text   string
}

// Section is a checklist heading with its items
type Section struct {
	Name  string
	Items []Item
}

// Item is one answered (or unanswered) checklist question
type Item struct {
	ID       string
	Question string
	Answer   string
	Comment  string
}

// HasDefects reports whether the defect blocks should be shown
func (d Document) HasDefects() bool {
	return len(d.Defects) > 0
}

// Build projects persisted state into a Document. It does not modify its inputs.
func Build(c cases.Case, responses []sqlite.ChecklistResponse, defects []sqlite.Defect, date time.Time) Document {
	doc := Document{
		Agency:       DefaultAgency,
		Title:        "MEDDELANDE OM TILLSYN ENLIGT LSO",
		Subtitle:     "Brandskyddskontroll",
		Case:         c,
		Date:         date.Format(DateLayout),
		Introduction: introduction,
	}

	byItem := make(map[string]sqlite.ChecklistResponse, len(responses))
	for _, r := range responses {
		byItem[r.ChecklistID] = r
	}

	for _, section := range checklist.Sections() {
		out := Section{Name: section.Name}
		for _, item := range section.Items {
			line := Item{ID: item.ID, Question: item.Question, Answer: Unanswered}
			if r, ok := byItem[item.ID]; ok {
				if r.Answer != nil && *r.Answer != "" {
					line.Answer = *r.Answer
				}
				line.Comment = r.Comment
			}
			out.Items = append(out.Items, line)
		}
		doc.Sections = append(doc.Sections, out)
	}

	sorted := make([]sqlite.Defect, len(defects))
	copy(sorted, defects)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DefectNumber < sorted[j].DefectNumber
	})

	for _, d := range sorted {
		text := d.Description
		if d.Brist != nil && *d.Brist != "" {
			text = *d.Brist
		}
		doc.Defects = append(doc.Defects, Line{Number: d.DefectNumber, Text: text})

		if d.Atgard != nil && *d.Atgard != "" {
			doc.Actions = append(doc.Actions, Line{Number: d.DefectNumber, Text: *d.Atgard})
		}
		if d.Motivering != nil && *d.Motivering != "" {
			doc.Motivations = append(doc.Motivations, Line{Number: d.DefectNumber, Text: *d.Motivering})
		}
	}

	return doc
}
