package calendar

import (
	"testing"
	"time"

	"github.com/tgdsl/runtime/pkg/models"
)

func TestDecodeCallback(t *testing.T) {
	cb, err := DecodeCallback("cal:bot1:u1:pick:2025-01-15")
	if err != nil {
		t.Fatalf("DecodeCallback() error = %v", err)
	}
	if cb.BotID != "bot1" || cb.UserID != "u1" || cb.Action != ActionPickDate || cb.Payload != "2025-01-15" {
		t.Errorf("got %+v", cb)
	}
}

func TestDecodeCallback_PayloadWithDelimiter(t *testing.T) {
	cb, err := DecodeCallback("cal:bot1:u1:time:2025-01-15|14:00")
	if err != nil {
		t.Fatalf("DecodeCallback() error = %v", err)
	}
	if cb.Payload != "2025-01-15|14:00" {
		t.Errorf("payload = %q", cb.Payload)
	}
}

func TestDecodeCallback_Malformed(t *testing.T) {
	if _, err := DecodeCallback("not-a-calendar-callback"); err == nil {
		t.Error("expected error for malformed callback")
	}
}

func TestRenderMonth_DisablesCellsOutsideRange(t *testing.T) {
	kb := RenderMonth(Request{
		Mode: ModeDate, Min: "2025-01-10", Max: "2025-01-20",
		Year: 2025, Month: time.January, BotID: "bot1", UserID: "u1",
	})
	found := map[string]bool{}
	for _, row := range kb.Rows {
		for _, btn := range row {
			if btn.CallbackData != "" {
				found[btn.Text] = true
			}
		}
	}
	if found["5"] {
		t.Error("day 5 is before Min, should be disabled")
	}
	if !found["15"] {
		t.Error("day 15 is within range, should have a live callback")
	}
	if found["25"] {
		t.Error("day 25 is after Max, should be disabled")
	}
}

func TestHandle_DateModePickIsTerminal(t *testing.T) {
	widget := models.WidgetSpec{Kind: "calendar", Mode: "date", Min: "2025-01-01", Max: "2025-12-31"}
	cb := &Callback{BotID: "bot1", UserID: "u1", Action: ActionPickDate, Payload: "2025-06-15"}
	res, err := Handle(widget, cb)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !res.Terminal || res.Value != "2025-06-15" {
		t.Errorf("got %+v", res)
	}
}

func TestHandle_DateTimeModePickRevealsTimeGrid(t *testing.T) {
	widget := models.WidgetSpec{Kind: "calendar", Mode: "datetime"}
	cb := &Callback{BotID: "bot1", UserID: "u1", Action: ActionPickDate, Payload: "2025-06-15"}
	res, err := Handle(widget, cb)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Terminal {
		t.Error("date pick in datetime mode should not be terminal")
	}
	if res.Keyboard == nil || len(res.Keyboard.Rows) == 0 {
		t.Error("expected a time grid keyboard")
	}
}

func TestHandle_TimePickIsTerminal(t *testing.T) {
	widget := models.WidgetSpec{Kind: "calendar", Mode: "datetime"}
	cb := &Callback{BotID: "bot1", UserID: "u1", Action: ActionPickTime, Payload: "2025-06-15|14:00"}
	res, err := Handle(widget, cb)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !res.Terminal || res.Value != "2025-06-15 14:00" {
		t.Errorf("got %+v", res)
	}
}

func TestHandle_PickOutsideRangeRejected(t *testing.T) {
	widget := models.WidgetSpec{Kind: "calendar", Mode: "date", Min: "2025-01-01", Max: "2025-01-31"}
	cb := &Callback{BotID: "bot1", UserID: "u1", Action: ActionPickDate, Payload: "2025-02-01"}
	if _, err := Handle(widget, cb); err == nil {
		t.Error("expected error for out-of-range pick")
	}
}

func TestHandle_MonthNavigation(t *testing.T) {
	widget := models.WidgetSpec{Kind: "calendar", Mode: "date"}
	cb := &Callback{BotID: "bot1", UserID: "u1", Action: ActionNextMonth, Payload: "2025-01"}
	res, err := Handle(widget, cb)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Keyboard == nil {
		t.Fatal("expected a re-rendered keyboard")
	}
}
