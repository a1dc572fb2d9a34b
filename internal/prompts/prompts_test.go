package prompts_test

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimitra/advisor/internal/conversation"
	"github.com/agrimitra/advisor/internal/prompts"
)

func TestParseConfidence(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{"87.50%", 87.5},
		{" 59.99 % ", 59.99},
		{"60", 60},
		{72.0, 72},
		{45, 45},
		{json.Number("61.2"), 61.2},
		{"high", 0},
		{"Unknown %", 0},
		{nil, 0},
		{true, 0},
		{"NaN", 0},
		{"nan%", 0},
		{"Inf", 0},
		{"-infinity %", 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, prompts.ParseConfidence(tc.in), 1e-9, "%v", tc.in)
	}
}

func TestCropTemplate_LowConfidenceDirective(t *testing.T) {
	tmpl := prompts.CropTemplate{}
	cases := []struct {
		confidence any
		warn       bool
	}{
		{"59.99%", true},
		{"60%", false},
		{"60.00%", false},
		{"95.2%", false},
		{12.0, true},
		{"not a number", true},
		{"NaN", true},
		{"nan%", true},
		{nil, true},
	}
	for _, tc := range cases {
		ctx := prompts.DomainContext{"recommended_crop": "rice"}
		if tc.confidence != nil {
			ctx["confidence"] = tc.confidence
		}
		got := strings.Contains(tmpl.BuildInstruction(ctx), "consult a local agricultural officer")
		assert.Equal(t, tc.warn, got, "confidence=%v", tc.confidence)
	}
}

func TestCropTemplate_DefaultsAndContext(t *testing.T) {
	out := prompts.CropTemplate{}.BuildInstruction(prompts.DomainContext{})
	assert.Contains(t, out, "- Crop: Unknown Crop")
	assert.Contains(t, out, "- Confidence: Unknown %")
	assert.Contains(t, out, "- N: N/A, P: N/A, K: N/A")
	assert.Contains(t, out, "- Rainfall: N/A mm")
	assert.NotContains(t, out, "%!", "no unresolved format verbs")
	assert.NotContains(t, out, "<nil>")

	out = prompts.CropTemplate{}.BuildInstruction(prompts.DomainContext{
		"recommended_crop": "maize",
		"confidence":       "88.10%",
		"N":                90.0,
		"P":                42.0,
		"K":                43.0,
		"ph":               6.5,
		"rainfall":         202.9,
		"temperature":      20.87,
	})
	assert.Contains(t, out, "- Crop: maize")
	assert.Contains(t, out, "- N: 90, P: 42, K: 43")
	assert.Contains(t, out, "- pH: 6.5")
	assert.Contains(t, out, "- Rainfall: 202.9 mm")
	assert.Contains(t, out, "Respond ONLY in clear, simple ENGLISH")
	assert.Contains(t, out, "politely refuse")
}

func TestDiseaseTemplate(t *testing.T) {
	out := prompts.DiseaseTemplate{}.BuildInstruction(prompts.DomainContext{"prediction": "Tomato - Early Blight"})
	assert.Contains(t, out, "- Predicted Disease: Tomato - Early Blight")
	assert.Contains(t, out, "Do NOT recommend banned or unsafe chemicals.")
	assert.Contains(t, out, "Prefer organic / IPM methods.")

	out = prompts.DiseaseTemplate{}.BuildInstruction(nil)
	assert.Contains(t, out, "- Predicted Disease: Unknown Plant Condition")
}

func TestSoilTemplate(t *testing.T) {
	out := prompts.SoilTemplate{}.BuildInstruction(prompts.DomainContext{
		"soil_type": "Black",
		"fertility": "Low",
		"input_params": map[string]any{
			"pH": 7.2,
			"N":  120.0,
			"OC": 0.5,
		},
	})
	assert.Contains(t, out, "- Soil Type: Black")
	assert.Contains(t, out, "- Fertility Level: Low")
	assert.Contains(t, out, "- Measured Parameters: N: 120, OC: 0.5, pH: 7.2")
	assert.Contains(t, out, "Prefer organic / IPM methods.")

	out = prompts.SoilTemplate{}.BuildInstruction(prompts.DomainContext{})
	assert.Contains(t, out, "- Soil Type: Unknown")
	assert.Contains(t, out, "- Fertility Level: Unknown")
}

func TestCalendarTemplate_DefaultDate(t *testing.T) {
	fixed := func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	out := prompts.CalendarTemplate{Now: fixed}.BuildInstruction(prompts.DomainContext{})
	assert.Contains(t, out, "- Crop: general farming")
	assert.Contains(t, out, "- Location: India")
	assert.Contains(t, out, "- Current Date: 2025-06-01")

	out = prompts.CalendarTemplate{Now: fixed}.BuildInstruction(prompts.DomainContext{
		"crop": "wheat", "location": "Punjab", "current_date": "2025-11-10",
	})
	assert.Contains(t, out, "- Crop: wheat")
	assert.Contains(t, out, "- Current Date: 2025-11-10")
}

func TestTemplatesAreDeterministic(t *testing.T) {
	ctx := prompts.DomainContext{
		"soil_type":    "Red",
		"input_params": map[string]any{"b": 1.0, "a": 2.0, "c": 3.0, "d": 4.0},
	}
	first := prompts.SoilTemplate{}.BuildInstruction(ctx)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, prompts.SoilTemplate{}.BuildInstruction(ctx))
	}
}

func TestLookup(t *testing.T) {
	for _, d := range []string{"crop", "disease", "soil", "calendar"} {
		tmpl, err := prompts.Lookup(d)
		require.NoError(t, err)
		assert.Equal(t, d, tmpl.Domain())
	}
	_, err := prompts.Lookup("weather")
	assert.ErrorIs(t, err, prompts.ErrUnknownDomain)
}

func TestAssemble(t *testing.T) {
	history := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "What crop?"},
		{Role: conversation.RoleAssistant, Content: "Rice."},
	}
	got := prompts.Assemble("INSTRUCTIONS", history, "Why?")
	assert.Equal(t, "INSTRUCTIONS\n\nUser: What crop?\nAssistant: Rice.\nUser: Why?\nAssistant:", got)

	got = prompts.Assemble("I", nil, "hi")
	assert.Equal(t, "I\n\nUser: hi\nAssistant:", got)
}
