// Package prompt builds the chat messages sent to the upstream completion
// provider from a completion request: model templates, placeholder filling,
// and screenshot attachment for multimodal models.
package prompt

import "strings"

// Message is a provider-agnostic chat message. Images holds data-URL encoded
// screenshots attached before the text for multimodal models.
type Message struct {
	Role   string
	Text   string
	Images []string
}

// Params carries the request fields that influence the prompt. Fields here
// must also feed the gateway's cache key: two requests producing the same
// prompt must map to the same key.
type Params struct {
	Model              ModelConfig
	ExistingText       string
	URL                string
	Screenshot         string
	PreviousScreenshot string
	PreviousTabURL     string
	UserCountry        string
	UserCity           string
}

// UserLocation joins city and country into the location string used in
// templates; "Not specified" when both are empty.
func (p Params) UserLocation() string {
	parts := make([]string, 0, 2)
	if p.UserCity != "" {
		parts = append(parts, p.UserCity)
	}
	if p.UserCountry != "" {
		parts = append(parts, p.UserCountry)
	}
	if len(parts) == 0 {
		return "Not specified"
	}
	return strings.Join(parts, ", ")
}

// isDataImage reports whether s is an inline data-URL image a multimodal
// model can consume.
func isDataImage(s string) bool {
	return strings.HasPrefix(s, "data:image")
}

// AttachedScreenshots returns the screenshots Build will actually attach for
// the model: nothing for non-multimodal models or non data-URL payloads, and
// a previous screenshot only alongside a current one. Cache keys must use
// this rather than the raw request fields, so inputs that build the same
// prompt share a slot.
func AttachedScreenshots(m ModelConfig, current, previous string) (string, string) {
	if !m.Multimodal || !isDataImage(current) {
		return "", ""
	}
	if !isDataImage(previous) {
		return current, ""
	}
	return current, previous
}

// Build assembles the system and user messages for a request. Screenshots are
// attached only when the model is multimodal and the payload is a valid
// data-URL; otherwise the text-only template is used.
func Build(p Params) []Message {
	system := Message{Role: "system", Text: Fill(p.Model.SystemTemplate, p)}

	current, previous := AttachedScreenshots(p.Model, p.Screenshot, p.PreviousScreenshot)

	var user Message
	switch {
	case previous != "":
		user = Message{
			Role:   "user",
			Text:   Fill(p.Model.UserWithBothScreenshots, p),
			Images: []string{current, previous},
		}
	case current != "":
		user = Message{
			Role:   "user",
			Text:   Fill(p.Model.UserWithScreenshot, p),
			Images: []string{current},
		}
	default:
		user = Message{Role: "user", Text: Fill(p.Model.UserTextOnly, p)}
	}

	return []Message{system, user}
}

// Fill replaces the template placeholders with request values. The previous
// tab placeholders expand to a full sentence when a previous tab URL is known
// and to nothing otherwise.
func Fill(template string, p Params) string {
	filled := strings.NewReplacer(
		"{{USER_LOCATION}}", p.UserLocation(),
		"{{EXISTING_TEXT}}", p.ExistingText,
		"{{URL}}", p.URL,
	).Replace(template)

	if p.PreviousTabURL != "" {
		filled = strings.ReplaceAll(filled, "{{PREVIOUS_TAB_CONTEXT}}",
			"Also consider the previous tab the user was on: `"+p.PreviousTabURL+"`. If there appears to be a logical connection between the current task and previous activity, use this as additional context.")
		filled = strings.ReplaceAll(filled, "{{PREVIOUS_TAB_REFERENCE}}",
			"the previous tab the user was on ("+p.PreviousTabURL+"),")
	} else {
		filled = strings.ReplaceAll(filled, "{{PREVIOUS_TAB_CONTEXT}}", "")
		filled = strings.ReplaceAll(filled, "{{PREVIOUS_TAB_REFERENCE}}", "")
	}

	return filled
}
