package email

import (
	"fmt"
	"time"
)

// ConfirmationMessage renders the subject and body of a booking
// confirmation. Times are shown in the unit's local zone when loc is known.
func ConfirmationMessage(unitName, clientName string, startAt time.Time, loc *time.Location) (string, string) {
	if loc != nil {
		startAt = startAt.In(loc)
	}
	subject := fmt.Sprintf("Your appointment at %s is confirmed", unitName)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour appointment at %s on %s is confirmed.\n\nSee you there!",
		clientName,
		unitName,
		startAt.Format("Monday, 2 January 2006 at 15:04"),
	)
	return subject, body
}

// CancellationMessage renders the subject and body of a cancellation notice.
func CancellationMessage(unitName string, startAt time.Time, loc *time.Location, reason string) (string, string) {
	if loc != nil {
		startAt = startAt.In(loc)
	}
	subject := fmt.Sprintf("Your appointment at %s was cancelled", unitName)
	body := fmt.Sprintf(
		"Your appointment at %s on %s has been cancelled.",
		unitName,
		startAt.Format("Monday, 2 January 2006 at 15:04"),
	)
	if reason != "" {
		body += "\nReason: " + reason
	}
	body += "\n\nYou can book a new time at any moment."
	return subject, body
}
