package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intellisync/go-mcp/pkg/tool"
)

const defaultEventDuration = 60 * time.Minute

// BusinessHours define the bookable window for one weekday. A nil entry in
// the schedule means the day is closed.
type BusinessHours struct {
	Start string // "09:00"
	End   string // "17:00"
}

// CalendarOptions configure a Calendar tool.
type CalendarOptions struct {
	DefaultDuration time.Duration
	BusinessHours   map[time.Weekday]*BusinessHours
}

// Calendar manages events, availability search and conflict checks. Events
// live in an in-memory map; the tool can be executed from parallel
// fan-outs, so access is guarded.
type Calendar struct {
	defaultDuration time.Duration
	businessHours   map[time.Weekday]*BusinessHours

	mu     sync.Mutex
	events map[string]*CalendarEvent
}

// CalendarEvent is a stored event.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Duration    int       `json:"duration"` // minutes
	Attendees   []string  `json:"attendees"`
	Location    string    `json:"location"`
	Reminder    int       `json:"reminder"` // minutes before
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// NewCalendar creates a calendar operations tool.
func NewCalendar(opts CalendarOptions) *Calendar {
	duration := opts.DefaultDuration
	if duration <= 0 {
		duration = defaultEventDuration
	}
	hours := opts.BusinessHours
	if hours == nil {
		hours = map[time.Weekday]*BusinessHours{
			time.Monday:    {Start: "09:00", End: "17:00"},
			time.Tuesday:   {Start: "09:00", End: "17:00"},
			time.Wednesday: {Start: "09:00", End: "17:00"},
			time.Thursday:  {Start: "09:00", End: "17:00"},
			time.Friday:    {Start: "09:00", End: "17:00"},
		}
	}
	return &Calendar{
		defaultDuration: duration,
		businessHours:   hours,
		events:          make(map[string]*CalendarEvent),
	}
}

type calendarInput struct {
	Operation  string         `mapstructure:"operation"`
	Parameters map[string]any `mapstructure:"parameters"`
}

type calendarParams struct {
	EventID           string   `mapstructure:"event_id"`
	Title             string   `mapstructure:"title"`
	Description       string   `mapstructure:"description"`
	StartTime         string   `mapstructure:"start_time"`
	EndTime           string   `mapstructure:"end_time"`
	StartDate         string   `mapstructure:"start_date"`
	EndDate           string   `mapstructure:"end_date"`
	Duration          int      `mapstructure:"duration"`
	Attendees         []string `mapstructure:"attendees"`
	Participants      []string `mapstructure:"participants"`
	Location          string   `mapstructure:"location"`
	Reminder          *int     `mapstructure:"reminder"`
	Status            string   `mapstructure:"status"`
	BusinessHoursOnly *bool    `mapstructure:"business_hours_only"`
}

// Execute implements tool.Tool.
func (c *Calendar) Execute(_ context.Context, input map[string]any) (*tool.Result, error) {
	start := time.Now()

	var in calendarInput
	if err := decodeInput(input, &in); err != nil {
		return nil, tool.NewError(fmt.Sprintf("failed to perform calendar operation: %v", err), "CALENDAR_OPERATION_ERROR").
			WithDetails(map[string]any{"error_type": fmt.Sprintf("%T", err)})
	}
	if in.Operation == "" {
		return nil, tool.NewError("no calendar operation specified", "MISSING_OPERATION")
	}

	var params calendarParams
	if err := decodeInput(in.Parameters, &params); err != nil {
		return nil, tool.NewError(fmt.Sprintf("invalid calendar parameters: %v", err), "CALENDAR_OPERATION_ERROR").
			WithDetails(map[string]any{"error_type": fmt.Sprintf("%T", err)})
	}

	var (
		data map[string]any
		terr *tool.Error
	)
	switch in.Operation {
	case "create_event":
		data, terr = c.createEvent(params)
	case "find_availability":
		data, terr = c.findAvailability(params)
	case "check_conflicts":
		data, terr = c.checkConflicts(params)
	case "get_event":
		data, terr = c.getEvent(params)
	case "update_event":
		data, terr = c.updateEvent(params, in.Parameters)
	case "delete_event":
		data, terr = c.deleteEvent(params)
	default:
		terr = tool.NewError(fmt.Sprintf("unknown calendar operation: %s", in.Operation), "UNKNOWN_OPERATION").
			WithDetails(map[string]any{"supported_operations": []string{
				"create_event", "find_availability", "check_conflicts",
				"get_event", "update_event", "delete_event",
			}})
	}
	if terr != nil {
		return nil, terr
	}

	result := tool.NewResult(tool.StatusSuccess, data, map[string]any{
		"operation": in.Operation,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	return result.WithExecutionTime(time.Since(start)), nil
}

// ValidateInput implements tool.Tool.
func (c *Calendar) ValidateInput(input map[string]any) bool {
	raw, ok := input["operation"]
	if !ok {
		return false
	}
	op, isString := raw.(string)
	if !isString || op == "" {
		return false
	}

	params, _ := input["parameters"].(map[string]any)
	switch op {
	case "create_event":
		return params != nil && params["title"] != nil && params["start_time"] != nil
	case "find_availability":
		return params != nil && params["start_date"] != nil && params["end_date"] != nil
	case "check_conflicts":
		return params != nil && params["start_time"] != nil && params["end_time"] != nil
	case "get_event", "delete_event", "update_event":
		return params != nil && params["event_id"] != nil
	default:
		// Unknown operations surface the richer UNKNOWN_OPERATION error
		// from Execute instead of a generic validation failure.
		return true
	}
}

// Capabilities implements tool.Tool.
func (c *Calendar) Capabilities() map[string]any {
	return map[string]any{
		"description": "Manages calendar events and scheduling operations",
		"operations": map[string]any{
			"create_event":      "Create a new calendar event",
			"find_availability": "Find open time slots within a date range",
			"check_conflicts":   "Check a time range for conflicts",
			"get_event":         "Retrieve an event by id",
			"update_event":      "Update fields of an existing event",
			"delete_event":      "Delete an event by id",
		},
		"input_schema": map[string]any{
			"operation":  "Operation to perform",
			"parameters": "Operation-specific parameters",
		},
	}
}

func (c *Calendar) createEvent(params calendarParams) (map[string]any, *tool.Error) {
	if params.Title == "" {
		return nil, tool.NewError("event title is required", "MISSING_TITLE")
	}
	if params.StartTime == "" {
		return nil, tool.NewError("event start time is required", "MISSING_START_TIME")
	}
	startTime, err := parseEventTime(params.StartTime)
	if err != nil {
		return nil, tool.NewError("invalid start time format, expected ISO format", "INVALID_TIME_FORMAT")
	}

	duration := time.Duration(params.Duration) * time.Minute
	if duration <= 0 {
		duration = c.defaultDuration
	}
	var endTime time.Time
	if params.EndTime != "" {
		endTime, err = parseEventTime(params.EndTime)
		if err != nil {
			return nil, tool.NewError("invalid end time format, expected ISO format", "INVALID_TIME_FORMAT")
		}
	} else {
		endTime = startTime.Add(duration)
	}

	reminder := 15
	if params.Reminder != nil {
		reminder = *params.Reminder
	}

	event := &CalendarEvent{
		ID:          uuid.NewString(),
		Title:       params.Title,
		Description: params.Description,
		StartTime:   startTime,
		EndTime:     endTime,
		Duration:    int(endTime.Sub(startTime).Minutes()),
		Attendees:   params.Attendees,
		Location:    params.Location,
		Reminder:    reminder,
		Status:      "confirmed",
		CreatedAt:   time.Now().UTC(),
	}

	c.mu.Lock()
	conflicts := c.findConflictsLocked(startTime, endTime, params.Attendees)
	c.events[event.ID] = event
	c.mu.Unlock()

	data := eventToMap(event)
	data["conflicts"] = conflicts
	return data, nil
}

func (c *Calendar) getEvent(params calendarParams) (map[string]any, *tool.Error) {
	if params.EventID == "" {
		return nil, tool.NewError("event ID is required", "MISSING_EVENT_ID")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	event, ok := c.events[params.EventID]
	if !ok {
		return nil, tool.NewError(fmt.Sprintf("event with ID %s not found", params.EventID), "EVENT_NOT_FOUND")
	}
	return eventToMap(event), nil
}

func (c *Calendar) updateEvent(params calendarParams, raw map[string]any) (map[string]any, *tool.Error) {
	if params.EventID == "" {
		return nil, tool.NewError("event ID is required", "MISSING_EVENT_ID")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	event, ok := c.events[params.EventID]
	if !ok {
		return nil, tool.NewError(fmt.Sprintf("event with ID %s not found", params.EventID), "EVENT_NOT_FOUND")
	}

	if _, present := raw["title"]; present {
		event.Title = params.Title
	}
	if _, present := raw["description"]; present {
		event.Description = params.Description
	}
	if _, present := raw["location"]; present {
		event.Location = params.Location
	}
	if _, present := raw["attendees"]; present {
		event.Attendees = params.Attendees
	}
	if params.Reminder != nil {
		event.Reminder = *params.Reminder
	}
	if params.Status != "" {
		event.Status = params.Status
	}
	if params.StartTime != "" {
		t, err := parseEventTime(params.StartTime)
		if err != nil {
			return nil, tool.NewError("invalid time format in update, expected ISO format", "INVALID_TIME_FORMAT")
		}
		event.StartTime = t
	}
	if params.EndTime != "" {
		t, err := parseEventTime(params.EndTime)
		if err != nil {
			return nil, tool.NewError("invalid time format in update, expected ISO format", "INVALID_TIME_FORMAT")
		}
		event.EndTime = t
	}
	event.Duration = int(event.EndTime.Sub(event.StartTime).Minutes())
	event.UpdatedAt = time.Now().UTC()

	return eventToMap(event), nil
}

func (c *Calendar) deleteEvent(params calendarParams) (map[string]any, *tool.Error) {
	if params.EventID == "" {
		return nil, tool.NewError("event ID is required", "MISSING_EVENT_ID")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	event, ok := c.events[params.EventID]
	if !ok {
		return nil, tool.NewError(fmt.Sprintf("event with ID %s not found", params.EventID), "EVENT_NOT_FOUND")
	}
	delete(c.events, params.EventID)
	return map[string]any{
		"deleted":    true,
		"event_id":   params.EventID,
		"event":      eventToMap(event),
		"deleted_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (c *Calendar) checkConflicts(params calendarParams) (map[string]any, *tool.Error) {
	if params.StartTime == "" || params.EndTime == "" {
		return nil, tool.NewError("start time and end time are required", "MISSING_TIME_RANGE")
	}
	startTime, err := parseEventTime(params.StartTime)
	if err != nil {
		return nil, tool.NewError("invalid time format, expected ISO format", "INVALID_TIME_FORMAT")
	}
	endTime, err := parseEventTime(params.EndTime)
	if err != nil {
		return nil, tool.NewError("invalid time format, expected ISO format", "INVALID_TIME_FORMAT")
	}

	c.mu.Lock()
	conflicts := c.findConflictsLocked(startTime, endTime, params.Attendees)
	c.mu.Unlock()

	return map[string]any{
		"has_conflicts": len(conflicts) > 0,
		"conflicts":     conflicts,
	}, nil
}

func (c *Calendar) findAvailability(params calendarParams) (map[string]any, *tool.Error) {
	if params.StartDate == "" || params.EndDate == "" {
		return nil, tool.NewError("start date and end date are required", "MISSING_DATE_RANGE")
	}
	startDate, err := parseEventTime(params.StartDate)
	if err != nil {
		return nil, tool.NewError("invalid date format, expected ISO format", "INVALID_DATE_FORMAT")
	}
	endDate, err := parseEventTime(params.EndDate)
	if err != nil {
		return nil, tool.NewError("invalid date format, expected ISO format", "INVALID_DATE_FORMAT")
	}
	if !startDate.Before(endDate) {
		return nil, tool.NewError("start date must be before end date", "INVALID_DATE_RANGE")
	}

	duration := time.Duration(params.Duration) * time.Minute
	if duration <= 0 {
		duration = c.defaultDuration
	}
	businessOnly := true
	if params.BusinessHoursOnly != nil {
		businessOnly = *params.BusinessHoursOnly
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var slots []map[string]any
	for day := startDate; day.Before(endDate); day = day.AddDate(0, 0, 1) {
		hours := c.businessHours[day.Weekday()]
		if hours == nil {
			if businessOnly {
				continue
			}
			hours = &BusinessHours{Start: "00:00", End: "23:59"}
		}

		dayStart, ok1 := atClock(day, hours.Start)
		dayEnd, ok2 := atClock(day, hours.End)
		if !ok1 || !ok2 {
			continue
		}

		for slot := dayStart; !slot.Add(duration).After(dayEnd); slot = slot.Add(30 * time.Minute) {
			slotEnd := slot.Add(duration)
			if len(c.findConflictsLocked(slot, slotEnd, params.Participants)) == 0 {
				slots = append(slots, map[string]any{
					"start":    slot.Format(time.RFC3339),
					"end":      slotEnd.Format(time.RFC3339),
					"duration": int(duration.Minutes()),
				})
			}
		}
	}

	return map[string]any{
		"available_slots": slots,
	}, nil
}

// findConflictsLocked returns events overlapping the time range that share
// at least one attendee. Callers must hold c.mu.
func (c *Calendar) findConflictsLocked(startTime, endTime time.Time, attendees []string) []map[string]any {
	conflicts := []map[string]any{}
	for id, event := range c.events {
		timeOverlap := startTime.Before(event.EndTime) && event.StartTime.Before(endTime)
		attendeeOverlap := false
		for _, a := range attendees {
			for _, b := range event.Attendees {
				if a == b {
					attendeeOverlap = true
					break
				}
			}
			if attendeeOverlap {
				break
			}
		}
		if timeOverlap && attendeeOverlap {
			conflicts = append(conflicts, map[string]any{
				"event_id":   id,
				"title":      event.Title,
				"start_time": event.StartTime.Format(time.RFC3339),
				"end_time":   event.EndTime.Format(time.RFC3339),
				"attendees":  event.Attendees,
			})
		}
	}
	return conflicts
}

func eventToMap(event *CalendarEvent) map[string]any {
	out := map[string]any{
		"id":          event.ID,
		"title":       event.Title,
		"description": event.Description,
		"start_time":  event.StartTime.Format(time.RFC3339),
		"end_time":    event.EndTime.Format(time.RFC3339),
		"duration":    event.Duration,
		"attendees":   event.Attendees,
		"location":    event.Location,
		"reminder":    event.Reminder,
		"status":      event.Status,
		"created_at":  event.CreatedAt.Format(time.RFC3339),
	}
	if !event.UpdatedAt.IsZero() {
		out["updated_at"] = event.UpdatedAt.Format(time.RFC3339)
	}
	return out
}

func parseEventTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func atClock(day time.Time, clock string) (time.Time, bool) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, false
	}
	var hour, minute int
	if _, err := fmt.Sscanf(clock, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location()), true
}
