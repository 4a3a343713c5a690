package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Attachment is a provider agnostic file descriptor. Content carries the raw
// file body; transports encode it as their API requires.
type Attachment struct {
	Filename    string `json:"filename" yaml:"filename"`
	Content     string `json:"content" yaml:"content"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Disposition string `json:"disposition,omitempty" yaml:"disposition,omitempty"`
}

// MediaType returns Type, defaulting to application/octet-stream.
func (a Attachment) MediaType() string {
	if strings.TrimSpace(a.Type) == "" {
		return "application/octet-stream"
	}
	return a.Type
}

// Base64 returns the standard base64 encoding of Content.
func (a Attachment) Base64() string {
	return base64.StdEncoding.EncodeToString([]byte(a.Content))
}

// Recipients holds one or more destination addresses. It decodes from either a
// single string or a list of strings.
type Recipients []string

// UnmarshalJSON implements json.Unmarshaler.
func (r *Recipients) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = splitRecipients(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("recipients: expected string or list of strings: %w", err)
	}
	*r = Recipients(list)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Recipients) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*r = splitRecipients(node.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*r = Recipients(list)
		return nil
	default:
		return fmt.Errorf("recipients: expected string or list, got yaml kind %d", node.Kind)
	}
}

// First returns the first recipient or an empty string.
func (r Recipients) First() string {
	if len(r) == 0 {
		return ""
	}
	return r[0]
}

// String joins the recipients with a comma.
func (r Recipients) String() string {
	return strings.Join(r, ", ")
}

func splitRecipients(value string) Recipients {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return Recipients{value}
}

// Envelope is the provider agnostic message handed to transports. Extra carries
// transport specific passthrough fields that are not part of the common shape.
type Envelope struct {
	From        string         `json:"from,omitempty" yaml:"from,omitempty"`
	To          Recipients     `json:"to,omitempty" yaml:"to,omitempty"`
	Subject     string         `json:"subject,omitempty" yaml:"subject,omitempty"`
	HTML        string         `json:"html,omitempty" yaml:"html,omitempty"`
	Text        string         `json:"text,omitempty" yaml:"text,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	Voice       string         `json:"voice,omitempty" yaml:"voice,omitempty"`
	Extra       map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Clone returns a copy that shares no slices or maps with e.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	out := *e
	if e.To != nil {
		out.To = append(Recipients(nil), e.To...)
	}
	if e.Attachments != nil {
		out.Attachments = append([]Attachment(nil), e.Attachments...)
	}
	if e.Extra != nil {
		out.Extra = make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// ExtraString returns the passthrough value stored under key when it is a string.
func (e *Envelope) ExtraString(key string) string {
	if e == nil || e.Extra == nil {
		return ""
	}
	if v, ok := e.Extra[key].(string); ok {
		return v
	}
	return ""
}

// Merge overlays env on top of defaults and returns a fresh envelope. Only top
// level fields are considered: a field set on env always wins, otherwise the
// default is used. Slices such as Attachments are replaced wholesale, never
// concatenated. Extra keys are merged key by key with the same precedence.
func Merge(defaults *Envelope, env Envelope) *Envelope {
	out := env.Clone()
	if defaults == nil {
		return out
	}
	d := defaults.Clone()

	if out.From == "" {
		out.From = d.From
	}
	if out.To == nil {
		out.To = d.To
	}
	if out.Subject == "" {
		out.Subject = d.Subject
	}
	if out.HTML == "" {
		out.HTML = d.HTML
	}
	if out.Text == "" {
		out.Text = d.Text
	}
	if out.Attachments == nil {
		out.Attachments = d.Attachments
	}
	if out.Voice == "" {
		out.Voice = d.Voice
	}
	if len(d.Extra) > 0 {
		merged := make(map[string]any, len(d.Extra)+len(out.Extra))
		for k, v := range d.Extra {
			merged[k] = v
		}
		for k, v := range out.Extra {
			merged[k] = v
		}
		out.Extra = merged
	}
	return out
}
