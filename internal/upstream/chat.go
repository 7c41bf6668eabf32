package upstream

import (
	"encoding/json"
	"fmt"

	"github.com/ghosttext/ghosttext/internal/prompt"
)

// ChatPayload builds an OpenAI-dialect chat-completions request body. Both
// supported providers speak this dialect. Multimodal messages carry their
// images as image_url parts ahead of the text part.
func ChatPayload(model prompt.ModelConfig, msgs []prompt.Message) map[string]any {
	messages := make([]map[string]any, len(msgs))
	for i, m := range msgs {
		if len(m.Images) == 0 {
			messages[i] = map[string]any{"role": m.Role, "content": m.Text}
			continue
		}
		parts := make([]map[string]any, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": img},
			})
		}
		parts = append(parts, map[string]any{"type": "text", "text": m.Text})
		messages[i] = map[string]any{"role": m.Role, "content": parts}
	}

	payload := map[string]any{
		"model":       model.ID,
		"messages":    messages,
		"temperature": model.Temperature,
	}
	if model.MaxOutputTokens > 0 {
		payload["max_tokens"] = model.MaxOutputTokens
	}
	return payload
}

// chatResponse is the subset of the chat-completions response we read.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ParseChatText extracts the first choice's message content. A body that does
// not decode or has no choices is an invalid-response error.
func ParseChatText(body []byte) (string, error) {
	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(cr.Choices) == 0 {
		return "", &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("response has no choices")}
	}
	return cr.Choices[0].Message.Content, nil
}
