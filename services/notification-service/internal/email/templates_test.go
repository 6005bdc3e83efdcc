package email

import (
	"strings"
	"testing"
	"time"
)

func TestConfirmationMessageUsesUnitZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	startAt := time.Date(2026, 9, 7, 6, 0, 0, 0, time.UTC) // 09:00 in Kyiv

	subject, body := ConfirmationMessage("Main Street Salon", "Olena", startAt, loc)
	if !strings.Contains(subject, "Main Street Salon") {
		t.Fatalf("subject missing unit name: %q", subject)
	}
	if !strings.Contains(body, "Olena") {
		t.Fatalf("body missing client name: %q", body)
	}
	if !strings.Contains(body, "09:00") {
		t.Fatalf("body should show local time 09:00: %q", body)
	}
}

func TestCancellationMessageIncludesReason(t *testing.T) {
	startAt := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)

	_, body := CancellationMessage("Main Street Salon", startAt, nil, "staff illness")
	if !strings.Contains(body, "staff illness") {
		t.Fatalf("body missing reason: %q", body)
	}

	_, body = CancellationMessage("Main Street Salon", startAt, nil, "")
	if strings.Contains(body, "Reason:") {
		t.Fatalf("body should omit empty reason: %q", body)
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := buildMessage("a@x", "b@y", "Hello", "Body")
	for _, want := range []string{"From: a@x", "To: b@y", "Subject: Hello", "\r\n\r\nBody"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q: %q", want, msg)
		}
	}
}
