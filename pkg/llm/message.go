package llm

import "encoding/base64"

// Message represents a single message in a conversation.
// Content is stored as an array of ContentBlocks so text and images can be
// mixed in a provider-agnostic way.
type Message struct {
	Role    string         `json:"role"`    // "system", "user", "assistant"
	Content []ContentBlock `json:"content"` // Array of content blocks
}

// ContentBlock represents a single piece of content within a message.
// The Type field determines which other fields are populated.
type ContentBlock struct {
	Type string `json:"type"` // "text", "image"

	// Text content (type="text")
	Text string `json:"text,omitempty"`

	// Image content (type="image")
	ImageBase64 string `json:"image_base64,omitempty"` // Base64-encoded image data
	MediaType   string `json:"media_type,omitempty"`   // MIME type (e.g., "image/png")
}

// NewTextMessage creates a simple text message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{Type: "text", Text: text},
		},
	}
}

// NewImageMessage creates a message carrying one image followed by a text
// instruction.
func NewImageMessage(role, text, mediaType string, image []byte) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{Type: "image", ImageBase64: base64.StdEncoding.EncodeToString(image), MediaType: mediaType},
			{Type: "text", Text: text},
		},
	}
}

// GetText returns the concatenated text content from all text blocks in the message.
func (m *Message) GetText() string {
	var result string
	for _, block := range m.Content {
		if block.Type == "text" {
			result += block.Text
		}
	}
	return result
}

// Images returns the image blocks of the message.
func (m *Message) Images() []ContentBlock {
	var images []ContentBlock
	for _, block := range m.Content {
		if block.Type == "image" {
			images = append(images, block)
		}
	}
	return images
}
