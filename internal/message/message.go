package message

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownKind is returned when a stored kind tag matches none of the message kinds
var ErrUnknownKind = errors.New("unknown message kind")

// Fallback literals substituted on decode when the optional field was stored as NULL
const (
	FallbackFunctionName = "function_1"
	FallbackToolCallID   = "tool_1"
)

// Kind identifies which variant of the message union a Message is
type Kind int

const (
	KindSystem Kind = iota + 1
	KindHuman
	KindAssistant
	KindTool
	KindFunction
)

// Stored kind tags
const (
	TagSystem    = "system"
	TagHuman     = "human"
	TagAssistant = "ai"
	TagTool      = "tool"
	TagFunction  = "function"
)

// Tag returns the kind's persisted tag
func (k Kind) Tag() string {
	switch k {
	case KindSystem:
		return TagSystem
	case KindHuman:
		return TagHuman
	case KindAssistant:
		return TagAssistant
	case KindTool:
		return TagTool
	case KindFunction:
		return TagFunction
	default:
		return ""
	}
}

// Valid reports whether k is one of the five kinds
func (k Kind) Valid() bool {
	return k.Tag() != ""
}

func (k Kind) String() string {
	switch k {
	case KindAssistant:
		return "assistant"
	case KindSystem, KindHuman, KindTool, KindFunction:
		return k.Tag()
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText encodes k by name; assistant is spelled out
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText accepts a stored tag or "assistant"
func (k *Kind) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "assistant" {
		s = TagAssistant
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind maps a persisted tag back to its Kind
func ParseKind(tag string) (Kind, error) {
	switch tag {
	case TagSystem:
		return KindSystem, nil
	case TagHuman:
		return KindHuman, nil
	case TagAssistant:
		return KindAssistant, nil
	case TagTool:
		return KindTool, nil
	case TagFunction:
		return KindFunction, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, tag)
	}
}

// Message is one entry of a conversation.
// Name is only meaningful for KindFunction and ToolCallID only for KindTool;
// the constructors never set them on any other kind.
type Message struct {
	Kind       Kind   `json:"kind"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// New builds a message of the given kind, dropping fields the kind does not carry
func New(kind Kind, content, name, toolCallID string) Message {
	m := Message{Kind: kind, Content: content}
	switch kind {
	case KindFunction:
		m.Name = name
	case KindTool:
		m.ToolCallID = toolCallID
	}
	return m
}

// System returns a system prompt message
func System(content string) Message { return New(KindSystem, content, "", "") }

// Human returns a user message
func Human(content string) Message { return New(KindHuman, content, "", "") }

// Assistant returns a model reply
func Assistant(content string) Message { return New(KindAssistant, content, "", "") }

// Tool returns a tool result answering toolCallID
func Tool(content, toolCallID string) Message {
	return New(KindTool, content, "", toolCallID)
}

// Function returns the result of the named function
func Function(content, name string) Message {
	return New(KindFunction, content, name, "")
}

// Role maps the kind onto the chat-completion role names used by model APIs
func (m Message) Role() string {
	switch m.Kind {
	case KindSystem:
		return "system"
	case KindHuman:
		return "user"
	case KindAssistant:
		return "assistant"
	case KindTool:
		return "tool"
	case KindFunction:
		return "function"
	default:
		return ""
	}
}

// Record is the flat row form of a Message
type Record struct {
	ID         int64
	SessionID  string
	Type       string
	Content    string
	Name       *string
	ToolCallID *string
	Timestamp  time.Time
}

// Encode projects m onto its row form for sessionID
func Encode(sessionID string, m Message) (Record, error) {
	if !m.Kind.Valid() {
		return Record{}, fmt.Errorf("%w: %v", ErrUnknownKind, m.Kind)
	}
	r := Record{
		SessionID: sessionID,
		Type:      m.Kind.Tag(),
		Content:   m.Content,
	}
	switch m.Kind {
	case KindFunction:
		r.Name = nullable(m.Name)
	case KindTool:
		r.ToolCallID = nullable(m.ToolCallID)
	}
	return r, nil
}

// Decode rebuilds a Message from its row form
func Decode(r Record) (Message, error) {
	kind, err := ParseKind(r.Type)
	if err != nil {
		return Message{}, err
	}
	switch kind {
	case KindFunction:
		return Function(r.Content, orDefault(r.Name, FallbackFunctionName)), nil
	case KindTool:
		return Tool(r.Content, orDefault(r.ToolCallID, FallbackToolCallID)), nil
	default:
		return New(kind, r.Content, "", ""), nil
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orDefault(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
