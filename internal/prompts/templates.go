// Package prompts builds the domain-grounded instruction blocks sent to the
// generation backend and assembles them with the conversation transcript.
//
// Each advisory domain is a Template. Templates are pure: the same
// DomainContext always yields the same instruction text.
package prompts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agrimitra/advisor/internal/conversation"
)

// Domain names.
const (
	DomainCrop     = "crop"
	DomainDisease  = "disease"
	DomainSoil     = "soil"
	DomainCalendar = "calendar"
)

// LowConfidenceThreshold is the crop confidence (percent) below which the
// model must send the user to a local agricultural officer.
const LowConfidenceThreshold = 60.0

// LowConfidenceWarning is appended to the crop instruction below the threshold.
const LowConfidenceWarning = "WARNING: The model confidence is LOW (< 60%). You MUST advise the user to consult a local agricultural officer before taking final decisions."

// ErrUnknownDomain is returned by Lookup.
var ErrUnknownDomain = errors.New("prompts: unknown domain")

// Template turns a DomainContext into an instruction block.
type Template interface {
	Domain() string
	BuildInstruction(ctx DomainContext) string
}

const languageAndStyle = `LANGUAGE RULE:
- Respond ONLY in clear, simple ENGLISH.

RESPONSE STYLE:
- Be concise
- Use bullet points
- Avoid over-explaining
`

const responseFormat = `RESPONSE FORMAT:
- Give a direct answer first.
- Use bullet points if helpful.
- Ask ONE short follow-up question only if relevant.
`

// CropTemplate advises on a recommended crop.
type CropTemplate struct{}

func (CropTemplate) Domain() string { return DomainCrop }

func (CropTemplate) BuildInstruction(c DomainContext) string {
	confidence := c.String("confidence", "Unknown %")

	var sb strings.Builder
	sb.WriteString("You are an Agricultural Expert AI for Indian farming advisory.\n\n")
	sb.WriteString(languageAndStyle)
	fmt.Fprintf(&sb, `
PREDICTION CONTEXT:
- Crop: %s
- Confidence: %s
- N: %s, P: %s, K: %s
- pH: %s
- Rainfall: %s mm
- Temperature: %s °C

YOUR TASK:
- Answer the user's question using the above context.
- If the question is about cultivation, pests, fertilizer, irrigation, yield, or risks → answer it.
- If the question is unrelated to agriculture → politely refuse.
- Do NOT repeat full explanations unless the user asks for them.

`,
		c.String("recommended_crop", "Unknown Crop"),
		confidence,
		c.String("N", "N/A"), c.String("P", "N/A"), c.String("K", "N/A"),
		c.String("ph", "N/A"),
		c.String("rainfall", "N/A"),
		c.String("temperature", "N/A"),
	)
	sb.WriteString(responseFormat)
	sb.WriteString(`
RULES:
- No hallucinated data.
- Stay within the crop context.
`)
	if ParseConfidence(c["confidence"]) < LowConfidenceThreshold {
		sb.WriteString("\n" + LowConfidenceWarning + "\n")
	}
	return sb.String()
}

// DiseaseTemplate advises on a plant disease prediction.
type DiseaseTemplate struct{}

func (DiseaseTemplate) Domain() string { return DomainDisease }

func (DiseaseTemplate) BuildInstruction(c DomainContext) string {
	var sb strings.Builder
	sb.WriteString("You are a Plant Disease Advisory AI for Indian farming.\n\n")
	sb.WriteString(languageAndStyle)
	fmt.Fprintf(&sb, `
PREDICTION CONTEXT:
- Predicted Disease: %s

YOUR TASK:
- Answer the user's question using the above disease context.
- If the question is about symptoms, treatment, control, prevention, severity, or spread → answer it.
- If the disease is "Healthy" → explain the plant is healthy and give general care tips only.
- If the question is unrelated to plant disease or agriculture → politely refuse.
- Do NOT repeat full disease explanations unless the user asks.

`, c.String("prediction", "Unknown Plant Condition"))
	sb.WriteString(responseFormat)
	sb.WriteString(`
RULES:
- No hallucinated cures or guarantees.
- Do NOT recommend banned or unsafe chemicals.
- Prefer organic / IPM methods.
- Stay strictly within the disease context.
`)
	return sb.String()
}

// SoilTemplate advises on a soil test result.
type SoilTemplate struct{}

func (SoilTemplate) Domain() string { return DomainSoil }

func (SoilTemplate) BuildInstruction(c DomainContext) string {
	var sb strings.Builder
	sb.WriteString("You are a Soil Testing Advisory AI for Indian farming.\n\n")
	sb.WriteString(languageAndStyle)
	fmt.Fprintf(&sb, `
SOIL TEST CONTEXT:
- Soil Type: %s
- Fertility Level: %s
- Measured Parameters: %s

YOUR TASK:
- Answer the user's question using the above soil test context.
- Provide advice on crops suitable for this soil type and fertility.
- Suggest fertilizers or soil amendments if asked or if fertility is low.
- If the question is about soil health, nutrients, or farming practices → answer it.
- If the question is unrelated to soil testing or agriculture → politely refuse.
- Do NOT repeat full soil explanations unless the user asks.

`,
		c.String("soil_type", "Unknown"),
		c.String("fertility", "Unknown"),
		c.Params("input_params"),
	)
	sb.WriteString(responseFormat)
	sb.WriteString(`
RULES:
- No hallucinated cures or guarantees.
- Do NOT recommend banned or unsafe chemicals.
- Prefer organic / IPM methods.
- Stay strictly within the soil testing context.
`)
	return sb.String()
}

// CalendarTemplate answers farming-calendar questions. Now supplies the
// default current date; nil means time.Now.
type CalendarTemplate struct {
	Now func() time.Time
}

func (CalendarTemplate) Domain() string { return DomainCalendar }

func (t CalendarTemplate) BuildInstruction(c DomainContext) string {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}

	var sb strings.Builder
	sb.WriteString("You are an Agricultural Calendar Expert AI for Indian farming.\n\n")
	fmt.Fprintf(&sb, `LANGUAGE RULE:
- Respond ONLY in clear, simple ENGLISH.

RESPONSE STYLE:
- Be concise and practical
- Use bullet points for clarity
- Focus on actionable advice

CONTEXT:
- Crop: %s
- Location: %s
- Current Date: %s

YOUR TASK:
- Answer questions about farming schedules, timing, and calendar planning
- Provide advice on when to perform specific farming activities
- Suggest optimal timing for planting, fertilization, irrigation, and harvesting
- Consider seasonal factors and local climate
- If the question is unrelated to farming calendars → politely refuse

RESPONSE FORMAT:
- Give direct, actionable answers
- Use bullet points when listing steps or schedules
- Include specific timeframes when relevant
- Keep responses focused and practical

RULES:
- No hallucinated data.
- Stay within agricultural calendar context.
- Provide region-specific advice when possible.
`,
		c.String("crop", "general farming"),
		c.String("location", "India"),
		c.String("current_date", now().Format(DateLayout)),
	)
	return sb.String()
}

// DateLayout is the ISO calendar date format used throughout.
const DateLayout = "2006-01-02"

// Templates returns one template per domain. now feeds the calendar
// template's default date; nil means time.Now.
func Templates(now func() time.Time) map[string]Template {
	return map[string]Template{
		DomainCrop:     CropTemplate{},
		DomainDisease:  DiseaseTemplate{},
		DomainSoil:     SoilTemplate{},
		DomainCalendar: CalendarTemplate{Now: now},
	}
}

// Lookup returns the template for domain.
func Lookup(domain string) (Template, error) {
	t, ok := Templates(nil)[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	return t, nil
}

// Assemble joins the instruction block, the transcript of prior turns, the
// new user line and an open "Assistant:" cue.
func Assemble(instruction string, history []conversation.Turn, message string) string {
	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString("\n\n")
	sb.WriteString(conversation.Transcript(history))
	sb.WriteString("User: ")
	sb.WriteString(message)
	sb.WriteString("\nAssistant:")
	return sb.String()
}
