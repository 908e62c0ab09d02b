package domain

import "strings"

// Kind identifies one category of generated text for an image.
type Kind string

const (
	KindAlt         Kind = "alt"
	KindDescription Kind = "description"
	KindCaption     Kind = "caption"
	KindTitle       Kind = "title"
)

// Kinds lists every annotation kind in the order they are generated and stored.
var Kinds = []Kind{KindAlt, KindDescription, KindCaption, KindTitle}

// ParseKind converts a string into a Kind.
// Parameters:
//   - s: kind name, case-insensitive.
//
// Returns:
//   - Kind: matching kind.
//   - bool: false when s names no known kind.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Prompt is either disabled or carries a template sent to the model.
// The zero value is disabled.
type Prompt struct {
	text    string
	enabled bool
}

// DisabledPrompt returns a prompt that never triggers a model call.
func DisabledPrompt() Prompt {
	return Prompt{}
}

// TemplatePrompt returns an enabled prompt. Blank text yields a disabled prompt.
func TemplatePrompt(text string) Prompt {
	text = strings.TrimSpace(text)
	if text == "" {
		return Prompt{}
	}
	return Prompt{text: text, enabled: true}
}

// disabledSentinels are configuration values that switch a kind off. "1" and
// "0" cover YAML booleans after viper's weak decoding.
var disabledSentinels = map[string]struct{}{
	"":         {},
	"0":        {},
	"1":        {},
	"true":     {},
	"false":    {},
	"off":      {},
	"none":     {},
	"disabled": {},
}

// ParsePrompt interprets a configured prompt value.
// Parameters:
//   - s: raw value from a config file, environment variable or flag.
//
// Returns:
//   - Prompt: disabled for the sentinel values, otherwise a template.
func ParsePrompt(s string) Prompt {
	if _, ok := disabledSentinels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return DisabledPrompt()
	}
	return TemplatePrompt(s)
}

// Enabled reports whether the prompt should be sent to the model.
func (p Prompt) Enabled() bool {
	return p.enabled
}

// Text returns the template text, empty when disabled.
func (p Prompt) Text() string {
	return p.text
}

// PromptSet maps each kind to its prompt. It is built once and never mutated.
type PromptSet struct {
	prompts map[Kind]Prompt
}

// NewPromptSet copies prompts into an immutable set. Missing kinds are disabled.
func NewPromptSet(prompts map[Kind]Prompt) PromptSet {
	copied := make(map[Kind]Prompt, len(Kinds))
	for _, k := range Kinds {
		copied[k] = prompts[k]
	}
	return PromptSet{prompts: copied}
}

// For returns the prompt configured for kind.
func (s PromptSet) For(kind Kind) Prompt {
	return s.prompts[kind]
}

// Enabled returns the enabled kinds in declared order.
func (s PromptSet) Enabled() []Kind {
	var kinds []Kind
	for _, k := range Kinds {
		if s.prompts[k].Enabled() {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// ResultRow is the generated annotation set for one image.
type ResultRow struct {
	ItemID    int64
	Fields    map[Kind]string
	SourceURL string
}

// NewResultRow creates an empty row for an item.
func NewResultRow(itemID int64, sourceURL string) ResultRow {
	return ResultRow{
		ItemID:    itemID,
		Fields:    make(map[Kind]string, len(Kinds)),
		SourceURL: sourceURL,
	}
}

// Field returns the text stored for kind, empty when absent.
func (r ResultRow) Field(kind Kind) string {
	return r.Fields[kind]
}

// HasContent reports whether at least one annotation field is non-empty.
func (r ResultRow) HasContent() bool {
	for _, k := range Kinds {
		if r.Fields[k] != "" {
			return true
		}
	}
	return false
}

// CatalogItem is an image offered by the asset catalog for annotation.
type CatalogItem struct {
	ID        int64
	SourceURL string
}
