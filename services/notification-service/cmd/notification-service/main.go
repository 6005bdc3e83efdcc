package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/m-oliynyk/salonhub/libs/config"
	"github.com/m-oliynyk/salonhub/libs/db"
	"github.com/m-oliynyk/salonhub/libs/httpx"
	"github.com/m-oliynyk/salonhub/libs/kafkax"
	otelx "github.com/m-oliynyk/salonhub/libs/otel"
	"github.com/m-oliynyk/salonhub/libs/runtime"
	"github.com/m-oliynyk/salonhub/services/notification-service/internal/consumer"
	"github.com/m-oliynyk/salonhub/services/notification-service/internal/email"
	"github.com/m-oliynyk/salonhub/services/notification-service/internal/inbox"
	"github.com/m-oliynyk/salonhub/services/notification-service/internal/sms"
	"github.com/m-oliynyk/salonhub/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type appointmentPayload struct {
	AppointmentID string `json:"appointment_id"`
	UnitID        string `json:"unit_id"`
	UnitName      string `json:"unit_name"`
	UnitTimezone  string `json:"unit_timezone"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email"`
	ClientPhone   string `json:"client_phone"`
	StartAt       string `json:"start_at"`
	Reason        string `json:"reason"`
}

func (p appointmentPayload) valid() bool {
	return p.AppointmentID != "" && p.UnitID != "" && p.ClientEmail != "" && p.StartAt != ""
}

func (p appointmentPayload) location() *time.Location {
	if p.UnitTimezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(p.UnitTimezone)
	if err != nil {
		return nil
	}
	return loc
}

type notifier struct {
	logger        *slog.Logger
	notifications *storage.Repository
	email         email.Sender
	sms           sms.Sender
}

func (n *notifier) record(ctx context.Context, p appointmentPayload, kind, channel, recipient, subject, body string, sendErr error) {
	status := storage.StatusSent
	reason := ""
	if sendErr != nil {
		status = storage.StatusFailed
		reason = sendErr.Error()
	}
	if err := n.notifications.Insert(ctx, storage.Notification{
		AppointmentID: p.AppointmentID,
		UnitID:        p.UnitID,
		Kind:          kind,
		Channel:       channel,
		Recipient:     recipient,
		Subject:       subject,
		Body:          body,
		Status:        status,
		FailureReason: reason,
	}); err != nil {
		n.logger.Error("failed to persist notification", "err", err, "appointment_id", p.AppointmentID)
	}
}

func (n *notifier) handle(kind string) consumer.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var p appointmentPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			n.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if !p.valid() {
			n.logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}
		startAt, err := time.Parse(time.RFC3339, p.StartAt)
		if err != nil {
			n.logger.Error("invalid start_at", "err", err, "appointment_id", p.AppointmentID)
			return nil
		}
		loc := p.location()

		var subject, body string
		switch kind {
		case storage.KindBookingConfirmation:
			subject, body = email.ConfirmationMessage(p.UnitName, p.ClientName, startAt, loc)
		case storage.KindCancellationNotice:
			subject, body = email.CancellationMessage(p.UnitName, startAt, loc, p.Reason)
		default:
			return nil
		}

		sendErr := n.email.Send(p.ClientEmail, subject, body)
		if sendErr != nil {
			n.logger.Error("email send failed", "err", sendErr, "recipient", p.ClientEmail)
		}
		n.record(ctx, p, kind, "email", p.ClientEmail, subject, body, sendErr)

		if p.ClientPhone != "" {
			smsErr := n.sms.Send(ctx, p.ClientPhone, subject)
			if smsErr != nil {
				n.logger.Error("sms send failed", "err", smsErr, "recipient", p.ClientPhone)
			}
			n.record(ctx, p, kind, "sms", p.ClientPhone, subject, "", smsErr)
		}

		n.logger.Info("notification processed", "appointment_id", p.AppointmentID, "kind", kind)
		return nil
	}
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		logger.Error("db migration failed", "err", err)
		panic(err)
	}

	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	default:
		smsSender = sms.NewNoopSender()
	}

	n := &notifier{
		logger:        logger,
		notifications: storage.NewRepository(pool),
		email: email.NewSMTPSender(
			config.String("SMTP_HOST", "mailpit"),
			config.String("SMTP_PORT", "1025"),
			config.String("SMTP_FROM", "no-reply@salonhub.local"),
		),
		sms: smsSender,
	}

	inboxRepo := inbox.NewRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")

	bookedConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   config.String("KAFKA_BOOKED_TOPIC", "booking.appointment.booked.v1"),
	}, n.handle(storage.KindBookingConfirmation))
	go bookedConsumer.Run(ctx)

	cancelledConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   config.String("KAFKA_CANCELLED_TOPIC", "booking.appointment.cancelled.v1"),
	}, n.handle(storage.KindCancellationNotice))
	go cancelledConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
