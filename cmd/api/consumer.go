package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/SUF145/call-geo/common/logger"
	"github.com/SUF145/call-geo/common/rabbitmq"
	"github.com/SUF145/call-geo/common/request"
	"github.com/SUF145/call-geo/common/telemetry"
	"github.com/SUF145/call-geo/internal/notify"
	"github.com/SUF145/call-geo/internal/tracker"
)

// ConsumeGeofenceAlerts drains remote push alerts until ctx is cancelled.
func (app *Config) ConsumeGeofenceAlerts(ctx context.Context, conn *amqp.Conn) error {
	address := rabbitmq.Address(rabbitmq.GeofenceAlertsQueue)
	logger.Info("Setting up geofence alert consumer", "address", address)

	session, err := conn.NewSession(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to open RabbitMQ session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		session.Close(closeCtx)
	}()

	receiver, err := session.NewReceiver(ctx, address, &amqp.ReceiverOptions{
		Credit: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to create receiver for %s: %w", address, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		receiver.Close(closeCtx)
	}()

	logger.Info("Geofence alert consumer ready", "address", address)

	for {
		msg, err := receiver.Receive(ctx, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var connErr *amqp.ConnError
			if errors.As(err, &connErr) {
				return fmt.Errorf("connection lost: %w", err)
			}
			logger.Error("Failed to receive message", "error", err)
			continue
		}

		if err := app.handleRemoteMessage(ctx, msg.GetData()); err != nil {
			logger.Error("Failed to process remote alert", "error", err)
			if err := receiver.RejectMessage(ctx, msg, nil); err != nil {
				logger.Error("Failed to reject message", "error", err)
			}
			continue
		}
		if err := receiver.AcceptMessage(ctx, msg); err != nil {
			logger.Error("Failed to accept message", "error", err)
		}
	}
}

// handleRemoteMessage posts the alerts carried by one push message. A
// running reporting process shows them so they are counted and published;
// otherwise they go straight to the notifier.
func (app *Config) handleRemoteMessage(ctx context.Context, data []byte) error {
	ctx, span := telemetry.StartSpan(ctx, "geofence_alerts.consume")
	defer span.End()

	var msg notify.RemoteMessage
	if err := request.DecodeAndValidate(data, &msg); err != nil {
		return fmt.Errorf("failed to decode remote message: %w", err)
	}

	alerts := notify.FromRemoteMessage(msg)
	if len(alerts) == 0 {
		logger.WarnCtx(ctx, "Remote message carried no alert", "from", msg.From)
		return nil
	}

	var errs []error
	for _, req := range alerts {
		err := tracker.ErrStopped
		if svc := app.Supervisor.Current(); svc != nil {
			err = svc.Handle(ctx, tracker.AlertRequested{Request: req})
		}
		if errors.Is(err, tracker.ErrStopped) {
			_, err = notify.ShowAlert(ctx, app.Notifier, req)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		logger.InfoCtx(ctx, "Remote alert posted", "from", msg.From, "title", req.Title)
	}
	return errors.Join(errs...)
}
