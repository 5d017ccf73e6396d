// Package calendar implements the stateless calendar widget (C11): a month
// grid with inline-keyboard callbacks of the form
// `cal:<bot>:<user>:<action>:<payload>`. The widget holds no state of its
// own; a terminal pick is reported back to the caller, which is responsible
// for binding the resolved value into the owning wizard's variable and
// advancing it.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tgdsl/runtime/pkg/models"
)

type Mode string

const (
	ModeDate     Mode = "date"
	ModeDateTime Mode = "datetime"
)

type Action string

const (
	ActionPrevMonth Action = "prev"
	ActionNextMonth Action = "next"
	ActionPickDate  Action = "pick"
	ActionPickTime  Action = "time"
	ActionBack      Action = "back"
)

const dateLayout = "2006-01-02"

// Callback is a decoded `cal:<bot>:<user>:<action>:<payload>` string.
type Callback struct {
	BotID   string
	UserID  string
	Action  Action
	Payload string
}

// DecodeCallback parses the fixed five-field callback format. The payload
// itself may contain further delimiters (e.g. "2025-01-15|14:00") and is
// returned unsplit.
func DecodeCallback(data string) (*Callback, error) {
	parts := strings.SplitN(data, ":", 5)
	if len(parts) != 5 || parts[0] != "cal" {
		return nil, fmt.Errorf("calendar: malformed callback %q", data)
	}
	return &Callback{BotID: parts[1], UserID: parts[2], Action: Action(parts[3]), Payload: parts[4]}, nil
}

func encodeCallback(botID, userID string, action Action, payload string) string {
	return fmt.Sprintf("cal:%s:%s:%s:%s", botID, userID, action, payload)
}

// Request describes one render of the widget.
type Request struct {
	Mode   Mode
	Min    string // inclusive "YYYY-MM-DD", empty = unbounded
	Max    string // inclusive "YYYY-MM-DD", empty = unbounded
	TZ     string
	Title  string
	Year   int
	Month  time.Month
	BotID  string
	UserID string
}

// RenderMonth builds the inline keyboard for a month grid: a nav row, one
// row per week, each day cell either a live "pick" callback or, for dates
// outside [Min, Max], a disabled cell carrying no callback data.
func RenderMonth(req Request) models.Keyboard {
	loc := time.UTC
	first := time.Date(req.Year, req.Month, 1, 0, 0, 0, 0, loc)
	anchor := first.Format("2006-01")

	nav := []models.Button{
		{Text: "«", CallbackData: encodeCallback(req.BotID, req.UserID, ActionPrevMonth, anchor)},
		{Text: first.Format("January 2006"), CallbackData: ""},
		{Text: "»", CallbackData: encodeCallback(req.BotID, req.UserID, ActionNextMonth, anchor)},
	}
	rows := [][]models.Button{nav}

	daysInMonth := first.AddDate(0, 1, -1).Day()
	leadBlank := int(first.Weekday())
	if leadBlank == 0 {
		leadBlank = 7 // Monday-first grid
	}
	leadBlank--

	var week []models.Button
	for i := 0; i < leadBlank; i++ {
		week = append(week, models.Button{Text: " ", CallbackData: ""})
	}
	for day := 1; day <= daysInMonth; day++ {
		date := time.Date(req.Year, req.Month, day, 0, 0, 0, 0, loc)
		ds := date.Format(dateLayout)
		btn := models.Button{Text: strconv.Itoa(day)}
		if inRange(ds, req.Min, req.Max) {
			btn.CallbackData = encodeCallback(req.BotID, req.UserID, ActionPickDate, ds)
		}
		week = append(week, btn)
		if len(week) == 7 {
			rows = append(rows, week)
			week = nil
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, models.Button{Text: " ", CallbackData: ""})
		}
		rows = append(rows, week)
	}
	return models.Keyboard{Rows: rows}
}

// RenderTimeGrid builds the hour/half-hour picker shown after a date pick in
// datetime mode, plus a back-to-date-grid row.
func RenderTimeGrid(req Request, date string) models.Keyboard {
	var rows [][]models.Button
	for h := 0; h < 24; h += 2 {
		var row []models.Button
		for _, m := range []int{0, 30} {
			for _, hh := range []int{h, h + 1} {
				if hh > 23 {
					continue
				}
				hm := fmt.Sprintf("%02d:%02d", hh, m)
				row = append(row, models.Button{
					Text:         hm,
					CallbackData: encodeCallback(req.BotID, req.UserID, ActionPickTime, date+"|"+hm),
				})
			}
		}
		rows = append(rows, row)
	}
	rows = append(rows, []models.Button{
		{Text: "‹ back", CallbackData: encodeCallback(req.BotID, req.UserID, ActionBack, date)},
	})
	return models.Keyboard{Rows: rows}
}

func inRange(date, min, max string) bool {
	if min != "" && date < min {
		return false
	}
	if max != "" && date > max {
		return false
	}
	return true
}

// Result is what a callback resolves to: either a new keyboard to show
// (navigation, or datetime's date->time transition) or a terminal value
// ready to bind into the owning wizard variable.
type Result struct {
	Terminal bool
	Value    string // "YYYY-MM-DD" or "YYYY-MM-DD HH:MM"
	Keyboard *models.Keyboard
}

// Handle resolves one decoded callback against the widget's configured
// mode and bounds. Disabled-cell picks (CallbackData == "") never reach
// here since the interpreter only dispatches non-empty callback data.
func Handle(widget models.WidgetSpec, cb *Callback) (Result, error) {
	mode := Mode(widget.Mode)

	switch cb.Action {
	case ActionPrevMonth, ActionNextMonth:
		anchor, err := time.Parse("2006-01", cb.Payload)
		if err != nil {
			return Result{}, fmt.Errorf("calendar: bad month anchor %q: %w", cb.Payload, err)
		}
		delta := 1
		if cb.Action == ActionPrevMonth {
			delta = -1
		}
		next := anchor.AddDate(0, delta, 0)
		kb := RenderMonth(Request{
			Mode: mode, Min: widget.Min, Max: widget.Max,
			Year: next.Year(), Month: next.Month(), BotID: cb.BotID, UserID: cb.UserID,
		})
		return Result{Keyboard: &kb}, nil

	case ActionPickDate:
		if !inRange(cb.Payload, widget.Min, widget.Max) {
			return Result{}, fmt.Errorf("calendar: date %q outside allowed range", cb.Payload)
		}
		if mode == ModeDateTime {
			kb := RenderTimeGrid(Request{BotID: cb.BotID, UserID: cb.UserID}, cb.Payload)
			return Result{Keyboard: &kb}, nil
		}
		return Result{Terminal: true, Value: cb.Payload}, nil

	case ActionPickTime:
		date, hm, ok := strings.Cut(cb.Payload, "|")
		if !ok {
			return Result{}, fmt.Errorf("calendar: malformed time payload %q", cb.Payload)
		}
		return Result{Terminal: true, Value: date + " " + hm}, nil

	case ActionBack:
		t, err := time.Parse(dateLayout, cb.Payload)
		if err != nil {
			return Result{}, fmt.Errorf("calendar: bad back-target date %q: %w", cb.Payload, err)
		}
		kb := RenderMonth(Request{
			Mode: mode, Min: widget.Min, Max: widget.Max,
			Year: t.Year(), Month: t.Month(), BotID: cb.BotID, UserID: cb.UserID,
		})
		return Result{Keyboard: &kb}, nil

	default:
		return Result{}, fmt.Errorf("calendar: unknown action %q", cb.Action)
	}
}
