package agentbridge

import (
	"encoding/json"
	"fmt"
)

// ContentBlockType discriminates the ContentBlock tagged union (spec §3).
// The wire representation of each variant follows the shape shared by
// Claude's SDK content blocks and ACP's content block schema — the two
// wire dialects that actually carry structured content — so adapters can
// decode/encode without a second translation layer.
type ContentBlockType string

const (
	ContentText         ContentBlockType = "text"
	ContentImage        ContentBlockType = "image"
	ContentAudio        ContentBlockType = "audio"
	ContentResourceLink ContentBlockType = "resource_link"
	ContentResource     ContentBlockType = "resource"
	ContentThinking     ContentBlockType = "thinking"
	ContentToolUse      ContentBlockType = "tool_use"
	ContentToolResult   ContentBlockType = "tool_result"
)

// ImageSourceKind discriminates how Image.Source carries its bytes.
type ImageSourceKind string

const (
	ImageSourceBase64 ImageSourceKind = "base64"
	ImageSourceURL    ImageSourceKind = "url"
)

// ImageSource is the nested tagged union inside a ContentBlock of type
// Image: Base64{data, media_type} | Url{url}.
type ImageSource struct {
	Kind      ImageSourceKind `json:"kind"`
	Data      string          `json:"data,omitempty"`
	MediaType string          `json:"media_type,omitempty"`
	URL       string          `json:"url,omitempty"`
}

// ContentBlock is a typed payload unit inside a user or assistant
// message. ContentBlock round-trips through JSON: for every variant,
// UnmarshalJSON(MarshalJSON(b)) reproduces b exactly (spec §8, property 2).
// Only the fields relevant to Type are meaningful; MarshalJSON emits only
// those fields, and UnmarshalJSON zeroes every other field before
// populating Type's fields, so stray input in unrelated fields can never
// survive a round trip.
type ContentBlock struct {
	Type ContentBlockType

	// Text: Text
	Text string

	// Image
	Source ImageSource

	// Audio
	AudioData      string
	AudioMediaType string

	// ResourceLink
	URI       string
	MediaType string

	// Resource
	ResourceName  string
	ResourceSize  int64
	ResourceTitle string
	Contents      string

	// Thinking
	Signature string

	// ToolUse
	ToolUseID   string
	ToolName    string
	ToolInput   json.RawMessage

	// ToolResult
	ToolResultForID string
	ToolResultBody  json.RawMessage
	IsError         bool
}

// wireContentBlock is the on-the-wire JSON shape, with every variant's
// fields marked omitempty so MarshalJSON never emits fields outside the
// active variant.
type wireContentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Source *wireImageSource `json:"source,omitempty"`

	Data      string `json:"data,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	URI   string `json:"uri,omitempty"`
	Name  string `json:"name,omitempty"`
	Size  *int64 `json:"size,omitempty"`
	Title string `json:"title,omitempty"`

	Contents string `json:"contents,omitempty"`

	Signature string `json:"signature,omitempty"`

	ID    string          `json:"id,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type wireImageSource struct {
	Type      string `json:"type"`
	Data      string `json:"data,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	URL       string `json:"url,omitempty"`
}

// MarshalJSON implements the round-trip law by emitting exactly the
// fields the active Type uses and nothing else.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	w := wireContentBlock{Type: string(b.Type)}

	switch b.Type {
	case ContentText:
		w.Text = b.Text
	case ContentImage:
		src := &wireImageSource{Type: string(b.Source.Kind)}
		switch b.Source.Kind {
		case ImageSourceBase64:
			src.Data = b.Source.Data
			src.MediaType = b.Source.MediaType
		case ImageSourceURL:
			src.URL = b.Source.URL
		default:
			return nil, fmt.Errorf("agentbridge: content block image: unknown source kind %q", b.Source.Kind)
		}
		w.Source = src
	case ContentAudio:
		w.Data = b.AudioData
		w.MediaType = b.AudioMediaType
	case ContentResourceLink:
		w.URI = b.URI
		w.MediaType = b.MediaType
	case ContentResource:
		w.URI = b.URI
		w.Name = b.ResourceName
		if b.ResourceSize != 0 {
			w.Size = &b.ResourceSize
		}
		w.Title = b.ResourceTitle
		w.Contents = b.Contents
	case ContentThinking:
		w.Text = b.Text
		w.Signature = b.Signature
	case ContentToolUse:
		w.ID = b.ToolUseID
		w.Name = b.ToolName
		w.Input = b.ToolInput
	case ContentToolResult:
		w.ToolUseID = b.ToolResultForID
		w.Content = b.ToolResultBody
		w.IsError = b.IsError
	default:
		return nil, fmt.Errorf("agentbridge: content block: unknown type %q", b.Type)
	}

	return json.Marshal(w)
}

// UnmarshalJSON implements the round-trip law's reverse direction: it
// zeroes b before populating only the active variant's fields.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var w wireContentBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("agentbridge: content block: %w", err)
	}

	*b = ContentBlock{Type: ContentBlockType(w.Type)}

	switch b.Type {
	case ContentText:
		b.Text = w.Text
	case ContentImage:
		if w.Source == nil {
			return fmt.Errorf("agentbridge: content block image: missing source")
		}
		switch ImageSourceKind(w.Source.Type) {
		case ImageSourceBase64:
			b.Source = ImageSource{Kind: ImageSourceBase64, Data: w.Source.Data, MediaType: w.Source.MediaType}
		case ImageSourceURL:
			b.Source = ImageSource{Kind: ImageSourceURL, URL: w.Source.URL}
		default:
			return fmt.Errorf("agentbridge: content block image: unknown source kind %q", w.Source.Type)
		}
	case ContentAudio:
		b.AudioData = w.Data
		b.AudioMediaType = w.MediaType
	case ContentResourceLink:
		b.URI = w.URI
		b.MediaType = w.MediaType
	case ContentResource:
		b.URI = w.URI
		b.ResourceName = w.Name
		if w.Size != nil {
			b.ResourceSize = *w.Size
		}
		b.ResourceTitle = w.Title
		b.Contents = w.Contents
	case ContentThinking:
		b.Text = w.Text
		b.Signature = w.Signature
	case ContentToolUse:
		b.ToolUseID = w.ID
		b.ToolName = w.Name
		b.ToolInput = w.Input
	case ContentToolResult:
		b.ToolResultForID = w.ToolUseID
		b.ToolResultBody = w.Content
		b.IsError = w.IsError
	default:
		return fmt.Errorf("agentbridge: content block: unknown type %q", w.Type)
	}

	return nil
}
