package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agrimitra/advisor/internal/gateway"
	"github.com/agrimitra/advisor/internal/prompts"
)

// ErrInvalidPlantingDate is returned for a planting date not in YYYY-MM-DD.
var ErrInvalidPlantingDate = errors.New("invalid planting date, use YYYY-MM-DD")

// Planner generates farming schedules through a gateway.
type Planner struct {
	gw  *gateway.Gateway
	now func() time.Time
}

// NewPlanner creates a planner. now defaults to time.Now.
func NewPlanner(gw *gateway.Gateway, now func() time.Time) *Planner {
	if now == nil {
		now = time.Now
	}
	return &Planner{gw: gw, now: now}
}

// Gateway returns the underlying gateway.
func (p *Planner) Gateway() *gateway.Gateway { return p.gw }

// Active reports whether the planner's gateway can generate.
func (p *Planner) Active() bool { return p.gw.Active() }

// GenerateSchedule asks the backend for a task list covering the crop cycle
// from today onwards. Output that fails extraction is retried on the next
// credential, like any backend failure.
func (p *Planner) GenerateSchedule(ctx context.Context, crop, location, plantingDate string) ([]Task, error) {
	planting, err := time.Parse(prompts.DateLayout, strings.TrimSpace(plantingDate))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlantingDate, plantingDate)
	}
	today := Day(p.now())
	prompt := BuildPrompt(crop, location, planting, today)

	log.Info().
		Str("crop", crop).
		Str("location", location).
		Str("planting_date", planting.Format(prompts.DateLayout)).
		Msg("Generating farming schedule")

	var (
		tasks  []Task
		parsed int
	)
	_, err = p.gw.GenerateFunc(ctx, prompt, func(text string) error {
		all, err := Parse(StripFences(text))
		if err != nil {
			return err
		}
		parsed = len(all)
		tasks = FilterFrom(all, today)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("tasks", len(tasks)).
		Int("filtered_past", parsed-len(tasks)).
		Msg("Generated farming schedule")
	return tasks, nil
}

// BuildPrompt renders the schedule request. The earliest task date is the
// later of today and the planting date.
func BuildPrompt(crop, location string, planting, today time.Time) string {
	earliest := today
	if planting.After(today) {
		earliest = planting
	}
	todayStr := today.Format(prompts.DateLayout)
	earliestStr := earliest.Format(prompts.DateLayout)
	plantingStr := planting.Format(prompts.DateLayout)

	return fmt.Sprintf(`You are an expert agricultural advisor for Indian farming.

IMPORTANT: Today's date is %[1]s. ALL tasks must be scheduled from TODAY onwards or later. Do NOT generate any tasks with dates in the past.

TASK: Generate a detailed farming schedule for the following:
- Crop: %[2]s
- Location: %[3]s
- Planting Date: %[4]s
- Earliest Task Date: %[5]s (today or planting date, whichever is later)

REQUIREMENTS:
1. If the planting date is in the future, include land preparation tasks BEFORE planting
2. If the planting date is today or in the past, start with tasks that should happen NOW (e.g., irrigation, fertilization, pest control)
3. Include specific tasks for each relevant phase:
   - Land Preparation (only if planting date is in the future)
   - Sowing/Planting (if not already done)
   - Irrigation schedule
   - Fertilizer application (with NPK details)
   - Pest and disease management
   - Weeding
   - Harvesting
4. ALL task dates must be >= %[5]s
5. Include brief descriptions for each task

OUTPUT FORMAT (JSON):
Return ONLY a valid JSON array with this exact structure:
[
  {
    "title": "Task name",
    "date": "YYYY-MM-DD",
    "category": "preparation|planting|irrigation|fertilization|pest_control|weeding|harvesting",
    "description": "Brief description of the task",
    "priority": "high|medium|low"
  }
]

CRITICAL RULES:
- Return ONLY the JSON array, no additional text
- Dates must be in YYYY-MM-DD format
- ALL dates must be >= %[5]s (NO PAST DATES!)
- Include 15-25 tasks covering the crop cycle from now onwards
- Tasks should be chronologically ordered
- Be specific to %[2]s cultivation in %[3]s
- Adjust the schedule based on whether planting has already occurred or not
`, todayStr, crop, location, plantingStr, earliestStr)
}
