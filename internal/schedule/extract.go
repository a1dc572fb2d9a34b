// Package schedule turns free-form model output into a validated list of
// farming tasks and drives calendar schedule generation.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agrimitra/advisor/internal/metrics"
	"github.com/agrimitra/advisor/internal/prompts"
)

const fence = "```"

// Category groups tasks by crop-cycle phase. Unknown values decode as
// CategoryGeneral.
type Category string

const (
	CategoryPreparation   Category = "preparation"
	CategoryPlanting      Category = "planting"
	CategoryIrrigation    Category = "irrigation"
	CategoryFertilization Category = "fertilization"
	CategoryPestControl   Category = "pest_control"
	CategoryWeeding       Category = "weeding"
	CategoryHarvesting    Category = "harvesting"
	CategoryGeneral       Category = "general"
)

var categories = map[Category]bool{
	CategoryPreparation: true, CategoryPlanting: true, CategoryIrrigation: true,
	CategoryFertilization: true, CategoryPestControl: true, CategoryWeeding: true,
	CategoryHarvesting: true, CategoryGeneral: true,
}

// Priority ranks a task's urgency. Unknown values decode as PriorityMedium.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorities = map[Priority]bool{PriorityHigh: true, PriorityMedium: true, PriorityLow: true}

// Task is one scheduled farming activity.
type Task struct {
	Title       string   `json:"title"`
	Date        string   `json:"date"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	Completed   bool     `json:"completed"`
}

// ErrMalformedSchedule marks model output that is not a valid task array.
var ErrMalformedSchedule = errors.New("malformed schedule")

// StripFences returns the content between the first and second ``` markers,
// dropping a one-word language label after the opening marker, whether it
// sits on its own line or directly before the payload. Text with no marker
// is returned trimmed.
func StripFences(raw string) string {
	start := strings.Index(raw, fence)
	if start < 0 {
		return strings.TrimSpace(raw)
	}
	body := raw[start+len(fence):]
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}

	body = strings.TrimLeft(body, " \t")
	if n := labelLen(body); n > 0 {
		if n == len(body) {
			return ""
		}
		switch body[n] {
		case ' ', '\t', '\r', '\n', '[', '{':
			body = body[n:]
		}
	}
	return strings.TrimSpace(body)
}

// labelLen is the length of the leading run of language-label characters.
func labelLen(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '+':
		default:
			return i
		}
	}
	return len(s)
}

type rawTask struct {
	Title       *string `json:"title"`
	Date        *string `json:"date"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	Completed   bool    `json:"completed"`
}

// Parse decodes a JSON array of tasks. Every entry must carry a title and
// a YYYY-MM-DD date; optional fields take their defaults and unknown
// category or priority values fall back to general / medium.
func Parse(text string) ([]Task, error) {
	var raw []rawTask
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSchedule, err)
	}

	tasks := make([]Task, 0, len(raw))
	for i, r := range raw {
		if r.Title == nil || strings.TrimSpace(*r.Title) == "" {
			return nil, fmt.Errorf("%w: task %d has no title", ErrMalformedSchedule, i)
		}
		if r.Date == nil {
			return nil, fmt.Errorf("%w: task %d (%s) has no date", ErrMalformedSchedule, i, *r.Title)
		}
		date := strings.TrimSpace(*r.Date)
		if _, err := time.Parse(prompts.DateLayout, date); err != nil {
			return nil, fmt.Errorf("%w: task %d (%s) has invalid date %q", ErrMalformedSchedule, i, *r.Title, date)
		}

		t := Task{
			Title:       strings.TrimSpace(*r.Title),
			Date:        date,
			Category:    Category(strings.ToLower(strings.TrimSpace(r.Category))),
			Description: r.Description,
			Priority:    Priority(strings.ToLower(strings.TrimSpace(r.Priority))),
			Completed:   r.Completed,
		}
		if !categories[t.Category] {
			t.Category = CategoryGeneral
		}
		if !priorities[t.Priority] {
			t.Priority = PriorityMedium
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// FilterFrom drops tasks dated strictly before today, keeping order.
// Tasks must already have passed Parse.
func FilterFrom(tasks []Task, today time.Time) []Task {
	cutoff := Day(today)
	kept := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		d, err := time.Parse(prompts.DateLayout, t.Date)
		if err != nil || d.Before(cutoff) {
			log.Warn().Str("title", t.Title).Str("date", t.Date).Msg("Filtered out past task")
			metrics.ScheduleTasks.WithLabelValues("past").Inc()
			continue
		}
		kept = append(kept, t)
	}
	metrics.ScheduleTasks.WithLabelValues("kept").Add(float64(len(kept)))
	return kept
}

// Extract strips fences, parses and filters raw model output.
func Extract(raw string, today time.Time) ([]Task, error) {
	tasks, err := Parse(StripFences(raw))
	if err != nil {
		return nil, err
	}
	return FilterFrom(tasks, today), nil
}

// Day truncates t to its calendar date in UTC, keeping t's own Y-M-D.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
