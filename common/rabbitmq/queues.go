package rabbitmq

// Queue names shared by the tracking service and its consumers.
const (
	// LogsQueue receives lifecycle events; the logger service drains it.
	LogsQueue = "logs"
	// GeofenceAlertsQueue carries remote push alerts addressed to this device.
	GeofenceAlertsQueue = "geofence_alerts"
)

// Address returns the AMQP 1.0 address RabbitMQ expects for a queue.
func Address(queue string) string {
	return "/queues/" + queue
}

// DefaultQueues returns the list of queues that should be created on startup
func DefaultQueues() []QueueConfig {
	return []QueueConfig{
		{Name: LogsQueue, Durable: true},
		{Name: GeofenceAlertsQueue, Durable: true},
	}
}
