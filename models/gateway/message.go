// Package gateway holds the wire-agnostic domain model shared by every
// protocol surface: messages, tasks, sessions, flows and payments.
package gateway

import "time"

// Role identifies who authored a Message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PartKind tags the variant carried by a Part.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindData PartKind = "data"
)

// Part is one tagged element of a Message. Exactly one of Text/Data is
// populated, matching Kind.
type Part struct {
	Kind     PartKind       `json:"kind"`
	Text     string         `json:"text,omitempty"`
	MimeType string         `json:"mimeType,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// TextPart builds a text Part.
func TextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// DataPart builds a data Part with the default JSON mime type.
func DataPart(data map[string]any) Part {
	return Part{Kind: PartKindData, MimeType: "application/json", Data: data}
}

// Message is an ordered sequence of parts threaded into an optional
// multi-turn session via ContextID.
type Message struct {
	Role      Role       `json:"role"`
	Parts     []Part     `json:"parts"`
	ContextID string     `json:"contextId,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Text concatenates every text part in emission order, space-joined.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind != PartKindText || p.Text == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += p.Text
	}
	return out
}

// FirstSkillData scans parts for the first data part carrying a string
// "skill" field and returns it along with the rest of the payload.
func (m Message) FirstSkillData() (skill string, rest map[string]any, ok bool) {
	for _, p := range m.Parts {
		if p.Kind != PartKindData || p.Data == nil {
			continue
		}
		name, isStr := p.Data["skill"].(string)
		if !isStr || name == "" {
			continue
		}
		rest = make(map[string]any, len(p.Data))
		for k, v := range p.Data {
			if k == "skill" {
				continue
			}
			rest[k] = v
		}
		return name, rest, true
	}
	return "", nil, false
}
