package prompt

// systemTemplate instructs the model to behave as a pure text continuator.
// Placeholders are filled by Fill.
const systemTemplate = `
You are an AI assistant highly focused on providing direct and relevant text continuations.
Your primary goal is to predict the most likely word(s) that would *logically* and *directly* follow the user's ` + "`Existing Text`" + `, considering the ` + "`URL`" + `, the screenshot for *local context* around the input field, and potentially a previous tab's context.
Use the user's provided location (` + "`User Location: {{USER_LOCATION}}`" + `) to make suggestions more relevant. For example, prioritize services, places, or context specific to this location if the user's input is ambiguous or relates to geography.

Analyze the ` + "`Existing Text`" + `: "{{EXISTING_TEXT}}". Consider its content, style, and language register (e.g., formal/informal, technical/casual).

Analyze the primary context: URL ` + "`{{URL}}`" + ` and the provided screenshot (if any).
{{PREVIOUS_TAB_CONTEXT}}

Respond ONLY with the suggested continuation text. Your continuation should seamlessly match the language style and vocabulary of the existing text.
- Your response MUST logically follow the ` + "`Existing Text`" + `. Do NOT suggest unrelated topics or new search queries.
- Keep the continuation concise, generally 1-5 words.
- Strongly prefer multi-word continuations (2-5 words) if a plausible and logical one exists.
- Check if the existing text already ends with a space. If it does, do NOT add another space before your continuation.
- Only add a leading space when continuing after a non-space character AND starting a new word.
- Do NOT repeat the ` + "`Existing Text`" + ` in your response.
- Do NOT use quotes.
- If no highly logical, direct continuation is found, respond with [No plausible continuation].`

const (
	userTextOnlyTemplate = `Based on the webpage URL context ({{URL}}), {{PREVIOUS_TAB_REFERENCE}} and the user's location ({{USER_LOCATION}}), predict the text that should directly follow this existing input:

Existing Text: "{{EXISTING_TEXT}}"`

	userWithScreenshotTemplate = `Based on the immediate visual context near the input field in the screenshot, the webpage URL ({{URL}}), {{PREVIOUS_TAB_REFERENCE}} and the user's location ({{USER_LOCATION}}), predict the text that should directly follow this existing input:

Existing Text: "{{EXISTING_TEXT}}"`

	userWithBothScreenshotsTemplate = `Based on the immediate visual context near the input field in the screenshots (current and previous), the webpage URL ({{URL}}), {{PREVIOUS_TAB_REFERENCE}} and the user's location ({{USER_LOCATION}}), predict the text that should directly follow this existing input:

Existing Text: "{{EXISTING_TEXT}}"`
)

// ModelConfig describes one completion model and the prompt templates it uses.
type ModelConfig struct {
	ID              string
	Name            string
	Provider        string
	Temperature     float64
	MaxOutputTokens int
	Multimodal      bool

	SystemTemplate          string
	UserTextOnly            string
	UserWithScreenshot      string
	UserWithBothScreenshots string
}

// DefaultModelID is used when a request does not name a model or names an
// unknown one.
const DefaultModelID = "google/gemini-2.0-flash-exp:free"

var availableModels = map[string]ModelConfig{
	"google/gemini-2.0-flash-exp:free": {
		ID:                      "google/gemini-2.0-flash-exp:free",
		Name:                    "Google Gemini Flash",
		Provider:                "Google",
		Temperature:             0.2,
		MaxOutputTokens:         200,
		Multimodal:              true,
		SystemTemplate:          systemTemplate,
		UserTextOnly:            userTextOnlyTemplate,
		UserWithScreenshot:      userWithScreenshotTemplate,
		UserWithBothScreenshots: userWithBothScreenshotsTemplate,
	},
	"google/gemini-2.5-pro-exp-03-25:free": {
		ID:                      "google/gemini-2.5-pro-exp-03-25:free",
		Name:                    "Google Gemini Pro",
		Provider:                "Google",
		Temperature:             0.2,
		MaxOutputTokens:         50,
		Multimodal:              true,
		SystemTemplate:          systemTemplate,
		UserTextOnly:            userTextOnlyTemplate,
		UserWithScreenshot:      userWithScreenshotTemplate,
		UserWithBothScreenshots: userWithBothScreenshotsTemplate,
	},
	"openai/gpt-4o-mini": {
		ID:                      "openai/gpt-4o-mini",
		Name:                    "GPT-4o mini",
		Provider:                "OpenAI",
		Temperature:             0.2,
		MaxOutputTokens:         50,
		Multimodal:              false,
		SystemTemplate:          systemTemplate,
		UserTextOnly:            userTextOnlyTemplate,
		UserWithScreenshot:      userTextOnlyTemplate,
		UserWithBothScreenshots: userTextOnlyTemplate,
	},
}

// ModelByID returns the configuration for a model id, falling back to the
// default model when the id is unknown or empty.
func ModelByID(id string) ModelConfig {
	if m, ok := availableModels[id]; ok {
		return m
	}
	return availableModels[DefaultModelID]
}

// AvailableModels returns the id → display-name listing served by GET /models.
func AvailableModels() map[string]string {
	models := make(map[string]string, len(availableModels))
	for id, m := range availableModels {
		models[id] = m.Name
	}
	return models
}
