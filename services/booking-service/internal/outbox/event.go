package outbox

// Event is the envelope written to the outbox table inside the booking
// transaction. The Kafka topic equals EventType. Downstream consumers
// (coupons, loyalty points, audit, notifications) are best effort: they see
// the event only after the booking committed and can never roll it back.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)
