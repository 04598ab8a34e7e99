package tools

import (
	"context"
	"testing"

	"github.com/intellisync/go-mcp/pkg/tool"
)

func calendarExec(t *testing.T, c *Calendar, operation string, params map[string]any) map[string]any {
	t.Helper()
	res, err := c.Execute(context.Background(), map[string]any{
		"operation":  operation,
		"parameters": params,
	})
	if err != nil {
		t.Fatalf("%s returned error: %v", operation, err)
	}
	if res.Status != tool.StatusSuccess {
		t.Fatalf("%s status = %v", operation, res.Status)
	}
	return res.Data
}

func calendarExecErr(t *testing.T, c *Calendar, operation string, params map[string]any) *tool.Error {
	t.Helper()
	_, err := c.Execute(context.Background(), map[string]any{
		"operation":  operation,
		"parameters": params,
	})
	terr, ok := err.(*tool.Error)
	if !ok {
		t.Fatalf("%s: expected *tool.Error, got %v", operation, err)
	}
	return terr
}

func TestCalendarCreateAndGetEvent(t *testing.T) {
	c := NewCalendar(CalendarOptions{})
	created := calendarExec(t, c, "create_event", map[string]any{
		"title":      "Kickoff",
		"start_time": "2026-09-07T10:00:00Z",
		"attendees":  []any{"ada@example.com"},
		"location":   "Room A",
	})

	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("created event has no id: %v", created)
	}
	if created["duration"] != 60 {
		t.Errorf("default duration = %v, want 60", created["duration"])
	}
	if created["status"] != "confirmed" {
		t.Errorf("status = %v", created["status"])
	}

	got := calendarExec(t, c, "get_event", map[string]any{"event_id": id})
	if got["title"] != "Kickoff" {
		t.Errorf("title = %v", got["title"])
	}
}

func TestCalendarCreateEventValidation(t *testing.T) {
	c := NewCalendar(CalendarOptions{})
	if terr := calendarExecErr(t, c, "create_event", map[string]any{"start_time": "2026-09-07T10:00:00Z"}); terr.Code != "MISSING_TITLE" {
		t.Errorf("code = %v, want MISSING_TITLE", terr.Code)
	}
	if terr := calendarExecErr(t, c, "create_event", map[string]any{"title": "x"}); terr.Code != "MISSING_START_TIME" {
		t.Errorf("code = %v, want MISSING_START_TIME", terr.Code)
	}
	if terr := calendarExecErr(t, c, "create_event", map[string]any{"title": "x", "start_time": "whenever"}); terr.Code != "INVALID_TIME_FORMAT" {
		t.Errorf("code = %v, want INVALID_TIME_FORMAT", terr.Code)
	}
}

func TestCalendarConflictDetection(t *testing.T) {
	c := NewCalendar(CalendarOptions{})
	calendarExec(t, c, "create_event", map[string]any{
		"title":      "Standup",
		"start_time": "2026-09-07T10:00:00Z",
		"end_time":   "2026-09-07T11:00:00Z",
		"attendees":  []any{"ada@example.com", "sam@example.com"},
	})

	// Overlapping time and shared attendee: conflict.
	check := calendarExec(t, c, "check_conflicts", map[string]any{
		"start_time": "2026-09-07T10:30:00Z",
		"end_time":   "2026-09-07T11:30:00Z",
		"attendees":  []any{"ada@example.com"},
	})
	if check["has_conflicts"] != true {
		t.Errorf("overlap with shared attendee not flagged: %v", check)
	}

	// Overlapping time but disjoint attendees: no conflict.
	check = calendarExec(t, c, "check_conflicts", map[string]any{
		"start_time": "2026-09-07T10:30:00Z",
		"end_time":   "2026-09-07T11:30:00Z",
		"attendees":  []any{"zoe@example.com"},
	})
	if check["has_conflicts"] != false {
		t.Errorf("disjoint attendees flagged as conflict: %v", check)
	}

	// Shared attendee but disjoint time: no conflict.
	check = calendarExec(t, c, "check_conflicts", map[string]any{
		"start_time": "2026-09-07T12:00:00Z",
		"end_time":   "2026-09-07T13:00:00Z",
		"attendees":  []any{"ada@example.com"},
	})
	if check["has_conflicts"] != false {
		t.Errorf("disjoint times flagged as conflict: %v", check)
	}
}

func TestCalendarUpdateEvent(t *testing.T) {
	c := NewCalendar(CalendarOptions{})
	created := calendarExec(t, c, "create_event", map[string]any{
		"title":      "Review",
		"start_time": "2026-09-07T10:00:00Z",
	})
	id := created["id"].(string)

	updated := calendarExec(t, c, "update_event", map[string]any{
		"event_id": id,
		"title":    "Design Review",
		"end_time": "2026-09-07T12:00:00Z",
	})
	if updated["title"] != "Design Review" {
		t.Errorf("title = %v", updated["title"])
	}
	if updated["duration"] != 120 {
		t.Errorf("duration not recomputed: %v", updated["duration"])
	}
	if _, ok := updated["updated_at"]; !ok {
		t.Errorf("updated_at missing")
	}
}

func TestCalendarDeleteEvent(t *testing.T) {
	c := NewCalendar(CalendarOptions{})
	created := calendarExec(t, c, "create_event", map[string]any{
		"title":      "Temp",
		"start_time": "2026-09-07T10:00:00Z",
	})
	id := created["id"].(string)

	deleted := calendarExec(t, c, "delete_event", map[string]any{"event_id": id})
	if deleted["deleted"] != true {
		t.Errorf("deleted flag not set: %v", deleted)
	}
	if terr := calendarExecErr(t, c, "get_event", map[string]any{"event_id": id}); terr.Code != "EVENT_NOT_FOUND" {
		t.Errorf("code = %v, want EVENT_NOT_FOUND", terr.Code)
	}
}

func TestCalendarFindAvailability(t *testing.T) {
	c := NewCalendar(CalendarOptions{})
	// 2026-09-07 is a Monday.
	data := calendarExec(t, c, "find_availability", map[string]any{
		"start_date": "2026-09-07T00:00:00Z",
		"end_date":   "2026-09-08T00:00:00Z",
		"duration":   60,
	})
	slots, ok := data["available_slots"].([]map[string]any)
	if !ok {
		t.Fatalf("available_slots missing: %v", data)
	}
	// 09:00-17:00 with 60-minute slots every 30 minutes: 15 openings.
	if len(slots) != 15 {
		t.Fatalf("got %d slots, want 15", len(slots))
	}
}

func TestCalendarAvailabilitySkipsWeekends(t *testing.T) {
	c := NewCalendar(CalendarOptions{})
	// 2026-09-05 is a Saturday, 2026-09-06 a Sunday.
	data := calendarExec(t, c, "find_availability", map[string]any{
		"start_date": "2026-09-05T00:00:00Z",
		"end_date":   "2026-09-07T00:00:00Z",
	})
	slots := data["available_slots"].([]map[string]any)
	if len(slots) != 0 {
		t.Fatalf("weekend produced %d slots", len(slots))
	}
}

func TestCalendarUnknownOperation(t *testing.T) {
	c := NewCalendar(CalendarOptions{})
	terr := calendarExecErr(t, c, "reschedule_all", nil)
	if terr.Code != "UNKNOWN_OPERATION" {
		t.Fatalf("code = %v, want UNKNOWN_OPERATION", terr.Code)
	}
}

func TestCalendarInvalidDateRange(t *testing.T) {
	c := NewCalendar(CalendarOptions{})
	terr := calendarExecErr(t, c, "find_availability", map[string]any{
		"start_date": "2026-09-08T00:00:00Z",
		"end_date":   "2026-09-07T00:00:00Z",
	})
	if terr.Code != "INVALID_DATE_RANGE" {
		t.Fatalf("code = %v, want INVALID_DATE_RANGE", terr.Code)
	}
}

func TestCalendarValidateInput(t *testing.T) {
	c := NewCalendar(CalendarOptions{})
	if c.ValidateInput(map[string]any{}) {
		t.Error("accepted input without operation")
	}
	if c.ValidateInput(map[string]any{"operation": "create_event", "parameters": map[string]any{"title": "x"}}) {
		t.Error("accepted create_event without start_time")
	}
	if !c.ValidateInput(map[string]any{"operation": "get_event", "parameters": map[string]any{"event_id": "abc"}}) {
		t.Error("rejected valid get_event")
	}
}
