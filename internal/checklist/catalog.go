// Package checklist holds the static brandskyddskontroll question catalog.
package checklist

// Item is one fixed inspection question
type Item struct {
	ID       string   `json:"id"`
	Section  string   `json:"section"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Section groups catalog items under one heading
type Section struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

var byID = func() map[string]Item {
	m := make(map[string]Item, len(items))
	for _, item := range items {
		m[item.ID] = item
	}
	return m
}()

// Items returns the catalog in protocol order
func Items() []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Lookup returns the catalog item with the given id
func Lookup(id string) (Item, bool) {
	item, ok := byID[id]
	return item, ok
}

// Sections returns the catalog grouped by section, preserving first-appearance order
func Sections() []Section {
	var sections []Section
	index := make(map[string]int)

	for _, item := range items {
		i, ok := index[item.Section]
		if !ok {
			i = len(sections)
			index[item.Section] = i
			sections = append(sections, Section{Name: item.Section})
		}
		sections[i].Items = append(sections[i].Items, item)
	}

	return sections
}

// ValidAnswer reports whether answer is one of the item's options.
// Free-text items (no options) accept any answer.
func (i Item) ValidAnswer(answer string) bool {
	if len(i.Options) == 0 {
		return true
	}
	for _, option := range i.Options {
		if option == answer {
			return true
		}
	}
	return false
}
