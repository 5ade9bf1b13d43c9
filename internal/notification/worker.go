package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"slotswap-backend/internal/model"
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

// SubscriptionStore is the part of the store the worker pool needs.
type SubscriptionStore interface {
	ListPushSubscriptions(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	DeleteExpiredPushSubscription(ctx context.Context, endpoint string) error
}

type pushJob struct {
	userID  int64
	event   string
	payload []byte
}

// WorkerPool delivers personal notifications as web push messages to every
// subscription of the target user.
type WorkerPool struct {
	size    int
	jobs    chan pushJob
	store   SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool with a queue of queueSize jobs.
func NewWorkerPool(size, queueSize int, store SubscriptionStore, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan pushJob, queueSize),
		store:   store,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Push worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.sendToUser(ctx, job)
		case <-ctx.Done():
			log.Printf("Push worker %d shutting down", id)
			return
		}
	}
}

// BroadcastAll is not pushed; broadcasts only reach live connections.
func (wp *WorkerPool) BroadcastAll(string, any) {}

// NotifyUser queues a push for every subscription of userID.
func (wp *WorkerPool) NotifyUser(userID int64, event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		log.Printf("push: %v", err)
		return
	}
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("push: encode %s: %v", event, err)
		return
	}
	wp.dispatch(pushJob{userID: userID, event: event, payload: body})
}

// dispatch queues a job without blocking; the job is dropped when the queue is full.
func (wp *WorkerPool) dispatch(job pushJob) {
	select {
	case wp.jobs <- job:
	default:
		log.Printf("push: queue full, dropping %s for user %d", job.event, job.userID)
	}
}

func (wp *WorkerPool) sendToUser(ctx context.Context, job pushJob) {
	subscriptions, err := wp.store.ListPushSubscriptions(ctx, job.userID)
	if err != nil {
		log.Printf("Error fetching subscriptions for user %d: %v", job.userID, err)
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, job.payload)
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

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.store.DeleteExpiredPushSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
