package prompt

import (
	"strings"
	"testing"
)

func TestModelByIDFallsBackToDefault(t *testing.T) {
	m := ModelByID("does/not-exist")
	if m.ID != DefaultModelID {
		t.Fatalf("expected default model, got %s", m.ID)
	}
	if m := ModelByID(""); m.ID != DefaultModelID {
		t.Fatalf("expected default model for empty id, got %s", m.ID)
	}
}

func TestAvailableModels(t *testing.T) {
	models := AvailableModels()
	if len(models) == 0 {
		t.Fatal("expected at least one model")
	}
	if models[DefaultModelID] == "" {
		t.Fatalf("default model %s missing a display name", DefaultModelID)
	}
}

func TestBuildTextOnly(t *testing.T) {
	msgs := Build(Params{
		Model:        ModelByID(DefaultModelID),
		ExistingText: "The quick brown",
		URL:          "https://example.com/search",
	})

	if len(msgs) != 2 {
		t.Fatalf("expected system + user message, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Fatalf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if !strings.Contains(msgs[0].Text, `"The quick brown"`) {
		t.Error("system message should embed the existing text")
	}
	if !strings.Contains(msgs[1].Text, "https://example.com/search") {
		t.Error("user message should embed the URL")
	}
	if !strings.Contains(msgs[1].Text, "Not specified") {
		t.Error("missing location should render as Not specified")
	}
	if len(msgs[1].Images) != 0 {
		t.Error("no screenshot was provided, user message should be text-only")
	}
	// Unfilled placeholders must never leak into the prompt.
	for _, m := range msgs {
		if strings.Contains(m.Text, "{{") {
			t.Errorf("unfilled placeholder in %s message: %s", m.Role, m.Text)
		}
	}
}

func TestBuildWithScreenshot(t *testing.T) {
	msgs := Build(Params{
		Model:        ModelByID(DefaultModelID),
		ExistingText: "hello",
		URL:          "https://example.com",
		Screenshot:   "data:image/png;base64,AAAA",
	})

	if len(msgs[1].Images) != 1 {
		t.Fatalf("expected one attached screenshot, got %d", len(msgs[1].Images))
	}
	if !strings.Contains(msgs[1].Text, "screenshot") {
		t.Error("user message should reference the screenshot")
	}
}

func TestBuildWithBothScreenshots(t *testing.T) {
	msgs := Build(Params{
		Model:              ModelByID(DefaultModelID),
		ExistingText:       "hello",
		URL:                "https://example.com",
		Screenshot:         "data:image/png;base64,AAAA",
		PreviousScreenshot: "data:image/png;base64,BBBB",
	})

	if len(msgs[1].Images) != 2 {
		t.Fatalf("expected two attached screenshots, got %d", len(msgs[1].Images))
	}
}

func TestBuildRejectsNonDataURLScreenshot(t *testing.T) {
	msgs := Build(Params{
		Model:        ModelByID(DefaultModelID),
		ExistingText: "hello",
		URL:          "https://example.com",
		Screenshot:   "https://example.com/shot.png",
	})

	if len(msgs[1].Images) != 0 {
		t.Fatal("non data-URL screenshot must not be attached")
	}
}

func TestBuildNonMultimodalModelIgnoresScreenshot(t *testing.T) {
	msgs := Build(Params{
		Model:        ModelByID("openai/gpt-4o-mini"),
		ExistingText: "hello",
		URL:          "https://example.com",
		Screenshot:   "data:image/png;base64,AAAA",
	})

	if len(msgs[1].Images) != 0 {
		t.Fatal("text-only model must not receive screenshots")
	}
}

func TestAttachedScreenshots(t *testing.T) {
	multimodal := ModelByID(DefaultModelID)
	textOnly := ModelByID("openai/gpt-4o-mini")
	const cur = "data:image/png;base64,AAAA"
	const prev = "data:image/png;base64,BBBB"

	cases := []struct {
		name              string
		model             ModelConfig
		current, previous string
		wantCur, wantPrev string
	}{
		{"both attached", multimodal, cur, prev, cur, prev},
		{"current only", multimodal, cur, "", cur, ""},
		{"previous needs current", multimodal, "", prev, "", ""},
		{"text-only model drops both", textOnly, cur, prev, "", ""},
		{"non data-URL dropped", multimodal, "https://x/shot.png", prev, "", ""},
		{"non data-URL previous dropped", multimodal, cur, "https://x/p.png", cur, ""},
	}
	for _, tc := range cases {
		gotCur, gotPrev := AttachedScreenshots(tc.model, tc.current, tc.previous)
		if gotCur != tc.wantCur || gotPrev != tc.wantPrev {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", tc.name, gotCur, gotPrev, tc.wantCur, tc.wantPrev)
		}
	}
}

func TestFillPreviousTabContext(t *testing.T) {
	p := Params{
		Model:          ModelByID(DefaultModelID),
		ExistingText:   "book a flight to",
		URL:            "https://travel.example.com",
		PreviousTabURL: "https://maps.example.com/vilnius",
	}

	filled := Fill(p.Model.SystemTemplate, p)
	if !strings.Contains(filled, "https://maps.example.com/vilnius") {
		t.Error("previous tab URL should appear in the filled template")
	}

	p.PreviousTabURL = ""
	filled = Fill(p.Model.SystemTemplate, p)
	if strings.Contains(filled, "PREVIOUS_TAB") {
		t.Error("previous tab placeholders should be removed when no URL is set")
	}
}

func TestUserLocation(t *testing.T) {
	p := Params{UserCity: "Vilnius", UserCountry: "Lithuania"}
	if got := p.UserLocation(); got != "Vilnius, Lithuania" {
		t.Fatalf("unexpected location: %q", got)
	}
	if got := (Params{UserCountry: "Lithuania"}).UserLocation(); got != "Lithuania" {
		t.Fatalf("unexpected location: %q", got)
	}
	if got := (Params{}).UserLocation(); got != "Not specified" {
		t.Fatalf("unexpected location: %q", got)
	}
}
