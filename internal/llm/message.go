package llm

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Normalize converts loosely typed chat input into messages. Typed
// messages pass through. Maps with a known "role" become that role; maps
// with an unknown role and any other value become a user message holding
// the value's string form.
func Normalize(items []any) []Message {
	out := make([]Message, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case Message:
			out = append(out, v)
		case *Message:
			if v != nil {
				out = append(out, *v)
			}
		case map[string]any:
			out = append(out, fromMap(v, func(key string) string { return stringField(v[key]) }))
		case map[string]string:
			out = append(out, fromMap(v, func(key string) string { return v[key] }))
		case string:
			out = append(out, User(v))
		default:
			out = append(out, User(fmt.Sprint(v)))
		}
	}
	return out
}

func fromMap[M any](raw M, field func(string) string) Message {
	role, ok := parseRole(field("role"))
	if !ok {
		return User(fmt.Sprint(raw))
	}
	return Message{Role: role, Content: field("content")}
}

func parseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "human":
		return RoleUser, true
	case "assistant", "ai", "model":
		return RoleAssistant, true
	case "system":
		return RoleSystem, true
	default:
		return "", false
	}
}

func stringField(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// splitSystem separates system messages (joined by blank lines) from the
// rest of the conversation.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if strings.TrimSpace(msg.Content) != "" {
				system = append(system, msg.Content)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}
