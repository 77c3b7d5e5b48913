package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// MachineLookup resolves the machine an alert belongs to.
type MachineLookup interface {
	MachineByID(id backend.ID) (backend.Machine, bool)
}

// Payload is the JSON body pushed to browsers.
type Payload struct {
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	AlertID   backend.ID `json:"alertId"`
	MachineID backend.ID `json:"machineId"`
	URL       string     `json:"url"`
}

// WorkerPool manages a pool of workers pushing alert notifications.
type WorkerPool struct {
	size     int
	jobs     chan backend.Alert
	db       *gorm.DB
	webpush  *webpush.Options
	sender   NotificationSender
	machines MachineLookup
}

// NewWorkerPool creates a new worker pool. machines may be nil.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, machines MachineLookup) *WorkerPool {
	return &WorkerPool{
		size:     size,
		jobs:     make(chan backend.Alert, size), // Buffered channel
		db:       db,
		webpush:  webpushOptions,
		sender:   &WebPushSender{}, // Use the real sender by default
		machines: machines,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case alert := <-wp.jobs:
			log.Printf("Worker %d processing alert %d", id, alert.ID)
			wp.sendNotificationsForAlert(ctx, alert)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a job for the worker pool. It never blocks: when every
// worker is busy and the queue is full, the alert is dropped.
func (wp *WorkerPool) Dispatch(alert backend.Alert) {
	select {
	case wp.jobs <- alert:
	default:
		log.Printf("Notification queue full, dropping alert %d", alert.ID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan backend.Alert {
	return wp.jobs
}

// sendNotificationsForAlert pushes the alert to every subscription of its
// facility and to the subscriptions that watch all facilities.
func (wp *WorkerPool) sendNotificationsForAlert(ctx context.Context, alert backend.Alert) {
	machineLabel := fmt.Sprintf("%d", alert.MachineID)
	facilityID := alert.MachineFacilityID
	if wp.machines != nil {
		if m, ok := wp.machines.MachineByID(alert.MachineID); ok {
			if m.Name != "" {
				machineLabel = m.Name
			}
			if facilityID == 0 {
				facilityID = m.FacilityID
			}
		}
	}

	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Where("facility_id = 0 OR facility_id = ?", int64(facilityID)).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for alert %d: %v", alert.ID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for alert %d", len(subscriptions), alert.ID)

	payload, err := json.Marshal(Payload{
		Title:     fmt.Sprintf("%s on machine %s", alert.AlertType, machineLabel),
		Body:      alert.Message,
		AlertID:   alert.ID,
		MachineID: alert.MachineID,
		URL:       "/alerts",
	})
	if err != nil {
		log.Printf("Error encoding notification for alert %d: %v", alert.ID, err)
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
