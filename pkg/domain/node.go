package domain

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// NodeType constants define the conversational behavior of a node.
const (
	// NodeTypeStart is the single entry point; it is traversed without consuming input.
	NodeTypeStart = "start"
	// NodeTypeMessage sends a text and continues immediately (fire and advance).
	NodeTypeMessage = "message"
	// NodeTypeKeywordMatch routes the inbound text by keyword (suspend point).
	NodeTypeKeywordMatch = "keywordMatch"
	// NodeTypeButtons sends an interactive prompt and waits for a selection (suspend point).
	NodeTypeButtons = "buttons"
	// NodeTypeAPICall performs an external call and merges its result into the variables.
	NodeTypeAPICall = "apiCall"
	// NodeTypeAskQuestion asks a question and captures the free-text answer (suspend point).
	NodeTypeAskQuestion = "askaQuestion"
	// NodeTypeEnd completes the session.
	NodeTypeEnd = "end"
)

// NodeTypes lists every supported node type in canonical order.
var NodeTypes = []string{
	NodeTypeStart,
	NodeTypeMessage,
	NodeTypeKeywordMatch,
	NodeTypeButtons,
	NodeTypeAPICall,
	NodeTypeAskQuestion,
	NodeTypeEnd,
}

// IsKnownNodeType reports whether t is one of NodeTypes.
func IsKnownNodeType(t string) bool {
	for _, known := range NodeTypes {
		if known == t {
			return true
		}
	}
	return false
}

// Node represents one conversational step in the graph.
type Node struct {
	ID    string `json:"id" yaml:"id"`
	Type  string `json:"type" yaml:"type"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Properties is the open authoring bag. Required keys depend on Type.
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// DisplayName returns the label used in diagnostics.
func (n Node) DisplayName() string {
	if strings.TrimSpace(n.Label) != "" {
		return n.Label
	}
	return n.ID
}

// MessageProps is the typed view of a message node.
type MessageProps struct {
	Message string `mapstructure:"message"`
}

// ButtonsProps is the typed view of a buttons node.
type ButtonsProps struct {
	Message string   `mapstructure:"message"`
	Buttons []string `mapstructure:"buttons"`
}

// KeywordMatchProps is the typed view of a keywordMatch node.
type KeywordMatchProps struct {
	Keywords []string `mapstructure:"keywords"`
}

// APICallProps is the typed view of an apiCall node.
type APICallProps struct {
	RequestName     string            `mapstructure:"requestName"`
	URL             string            `mapstructure:"url"`
	Method          string            `mapstructure:"method"`
	Headers         map[string]string `mapstructure:"headers"`
	Body            string            `mapstructure:"body"`
	ResponseMapping map[string]string `mapstructure:"responseMapping"`
	PropertyName    string            `mapstructure:"propertyName"`
	ErrorMessage    string            `mapstructure:"errorMessage"`
}

// AskQuestionProps is the typed view of an askaQuestion node.
type AskQuestionProps struct {
	Question     string `mapstructure:"question"`
	PropertyName string `mapstructure:"propertyName"`
}

// DecodeProperties casts the node property bag into its typed view.
// Lists may be authored as a comma separated string, and list entries may be
// objects carrying a "title", "label" or "text" (the channel's button format).
func DecodeProperties[T any](n Node) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
			entryTitleHook,
		),
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(n.Properties); err != nil {
		return out, fmt.Errorf("node %s: invalid %s properties: %w", n.ID, n.Type, err)
	}
	trimAll(reflect.ValueOf(&out).Elem())
	return out, nil
}

// EntryText extracts the display text of a list entry authored as a plain string,
// a scalar such as a number, or an object.
func EntryText(v any) string {
	switch e := v.(type) {
	case string:
		return strings.TrimSpace(e)
	case map[string]any:
		for _, key := range []string{"title", "label", "text"} {
			if s, ok := e[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		if reply, ok := e["reply"].(map[string]any); ok {
			return EntryText(reply)
		}
	case fmt.Stringer:
		return strings.TrimSpace(e.String())
	case int, int64, uint64, float64, bool:
		// Same text the weakly typed decode produces, so "reply 1 or 2" menus validate.
		return fmt.Sprint(e)
	}
	return ""
}

func entryTitleHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String || from.Kind() != reflect.Map {
		return data, nil
	}
	if m, ok := data.(map[string]any); ok {
		return EntryText(m), nil
	}
	return data, nil
}

// trimAll trims string fields and drops blank slice entries in place.
func trimAll(v reflect.Value) {
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.String:
			f.SetString(strings.TrimSpace(f.String()))
		case reflect.Slice:
			if f.Type().Elem().Kind() != reflect.String {
				continue
			}
			kept := reflect.MakeSlice(f.Type(), 0, f.Len())
			for j := 0; j < f.Len(); j++ {
				s := strings.TrimSpace(f.Index(j).String())
				if s != "" {
					kept = reflect.Append(kept, reflect.ValueOf(s))
				}
			}
			f.Set(kept)
		}
	}
}

// MaxButtons is the number of reply buttons the channel renders for one prompt.
const MaxButtons = 3

// ButtonID derives the reply id of the i-th (zero based) button, e.g. "btn_1_talk_to_sales".
func ButtonID(i int, label string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(label)), "_")
	return fmt.Sprintf("btn_%d_%s", i+1, slug)
}

// VisibleButtons returns the buttons the channel will actually render.
func (p ButtonsProps) VisibleButtons() []string {
	if len(p.Buttons) > MaxButtons {
		return p.Buttons[:MaxButtons]
	}
	return p.Buttons
}
