package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractJSON_LastLine(t *testing.T) {
	raw := "Loading EasyOCR...\nMatched 12 courses\n{\"success\": true, \"message\": \"ok\"}\n\n"
	got, err := ExtractJSON(raw, LastLine)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if string(got) != `{"success": true, "message": "ok"}` {
		t.Errorf("got %s", got)
	}
}

func TestExtractJSON_LastLineRejectsTrailingText(t *testing.T) {
	raw := "{\"success\": true}\nDone.\n"
	_, err := ExtractJSON(raw, LastLine)
	var mErr *MalformedOutputError
	if !errors.As(err, &mErr) {
		t.Fatalf("err = %v, want *MalformedOutputError", err)
	}
	if mErr.Raw != raw {
		t.Errorf("Raw = %q, want original output", mErr.Raw)
	}
}

func TestExtractJSON_StripsNoise(t *testing.T) {
	raw := "\ufeffwarming up\r\n\a{\"auth_url\":\"https://x\u200b.example\"}\x00\r\n"
	got, err := ExtractJSON(raw, LastLine)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if string(got) != `{"auth_url":"https://x.example"}` {
		t.Errorf("got %q, want noise stripped", got)
	}
}

func TestExtractJSON_FirstObject(t *testing.T) {
	raw := `Token loaded from disk {not json} then {"success": true, "email": "a{b}@example.com", "nested": {"k": 1}} trailing {"x": 2}`
	got, err := ExtractJSON(raw, FirstObject)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	want := `{"success": true, "email": "a{b}@example.com", "nested": {"k": 1}}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	for _, s := range []Strategy{LastLine, FirstObject} {
		for _, raw := range []string{"", "\n\n", "plain text only", "{unterminated"} {
			got, err := ExtractJSON(raw, s)
			if err == nil {
				t.Errorf("%s %q: got %s, want error", s, raw, got)
			}
			if got != nil {
				t.Errorf("%s %q: got non-nil payload on failure", s, raw)
			}
		}
	}
}

func TestDecode_MissingRequiredField(t *testing.T) {
	var out AuthCompletion
	err := decode(`{"email":"a@example.com"}`, LastLine, &out)
	var mErr *MalformedOutputError
	if !errors.As(err, &mErr) {
		t.Fatalf("err = %v, want *MalformedOutputError", err)
	}
	if !strings.Contains(mErr.Reason, `"success"`) {
		t.Errorf("Reason = %q, want mention of success", mErr.Reason)
	}
}

func TestDecode_WrongFieldType(t *testing.T) {
	var out SyncResult
	err := decode(`{"success":"yes"}`, LastLine, &out)
	var mErr *MalformedOutputError
	if !errors.As(err, &mErr) {
		t.Fatalf("err = %v, want *MalformedOutputError", err)
	}
}

func TestDecode_SemanticCheck(t *testing.T) {
	var out AuthStart
	err := decode(`{"auth_url":""}`, LastLine, &out)
	var mErr *MalformedOutputError
	if !errors.As(err, &mErr) {
		t.Fatalf("err = %v, want *MalformedOutputError", err)
	}

	var sched scheduleResult
	if err := decode(`{"schedule":null}`, LastLine, &sched); err == nil {
		t.Fatal("expected error for null schedule")
	}
	if err := decode(`{"schedule":{"MON":"not a list"}}`, LastLine, &sched); err == nil {
		t.Fatal("expected error for non-list periods")
	}
}
