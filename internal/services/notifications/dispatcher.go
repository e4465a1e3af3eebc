package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/atriumhq/atrium/internal/domain/notification"
	"github.com/atriumhq/atrium/internal/metrics"
	"github.com/atriumhq/atrium/internal/storage"
	"github.com/atriumhq/atrium/internal/system"
	"github.com/atriumhq/atrium/pkg/logger"
)

// DispatcherConfig controls the webhook sweep.
type DispatcherConfig struct {
	Schedule       string
	Batch          int
	WebhookTimeout time.Duration
}

// Dispatcher periodically forwards undispatched notifications to their
// tenant's webhook. Rows are marked dispatched whether or not the tenant has
// a webhook configured; a failed POST leaves the row for the next sweep.
type Dispatcher struct {
	notifications storage.NotificationStore
	tenants       storage.TenantStore
	client        *http.Client
	cfg           DispatcherConfig
	log           *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. client may be nil.
func NewDispatcher(notifications storage.NotificationStore, tenants storage.TenantStore, client *http.Client, cfg DispatcherConfig, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("dispatcher")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 30s"
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.WebhookTimeout}
	}
	return &Dispatcher{
		notifications: notifications,
		tenants:       tenants,
		client:        client,
		cfg:           cfg,
		log:           log,
	}
}

// Name implements system.Service.
func (d *Dispatcher) Name() string { return "notification-dispatcher" }

// Start schedules the sweep.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("dispatcher already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(d.cfg.Schedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), d.cfg.WebhookTimeout*time.Duration(d.cfg.Batch))
		defer cancel()
		d.Sweep(sweepCtx)
	}); err != nil {
		return fmt.Errorf("schedule dispatcher: %w", err)
	}
	c.Start()

	d.cron = c
	d.running = true
	d.log.WithField("schedule", d.cfg.Schedule).Info("Notification dispatcher started")
	return nil
}

// Stop halts the sweep and waits for an in-flight run to finish.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}

	stopCtx := d.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	d.running = false
	d.log.Info("Notification dispatcher stopped")
	return nil
}

// webhookPayload is the body POSTed to a tenant webhook.
type webhookPayload struct {
	TenantID      string                      `json:"tenant_id"`
	Notifications []notification.Notification `json:"notifications"`
}

// Sweep forwards one batch of undispatched notifications. Exported for tests
// and manual runs.
func (d *Dispatcher) Sweep(ctx context.Context) {
	pending, err := d.notifications.ListUndispatched(ctx, d.cfg.Batch)
	if err != nil {
		d.log.WithError(err).Error("Failed to list undispatched notifications")
		return
	}
	if len(pending) == 0 {
		return
	}

	byTenant := make(map[string][]notification.Notification)
	for _, n := range pending {
		byTenant[n.TenantID] = append(byTenant[n.TenantID], n)
	}

	for tenantID, batch := range byTenant {
		d.dispatchTenant(ctx, tenantID, batch)
	}
}

func (d *Dispatcher) dispatchTenant(ctx context.Context, tenantID string, batch []notification.Notification) {
	t, err := d.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		d.log.WithError(err).WithField("tenant_id", tenantID).Warn("Tenant lookup failed during dispatch")
		return
	}

	if t.WebhookURL == "" {
		// Nothing to deliver to; mark the rows so they are not rescanned.
		d.markBatch(ctx, batch)
		return
	}

	if err := d.post(ctx, t.WebhookURL, webhookPayload{TenantID: tenantID, Notifications: batch}); err != nil {
		metrics.RecordNotificationDispatch(false)
		d.log.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"count":     len(batch),
		}).Warn("Webhook dispatch failed")
		return
	}

	metrics.RecordNotificationDispatch(true)
	d.markBatch(ctx, batch)
	d.log.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"count":     len(batch),
	}).Debug("Webhook dispatch succeeded")
}

func (d *Dispatcher) post(ctx context.Context, url string, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) markBatch(ctx context.Context, batch []notification.Notification) {
	now := time.Now().UTC()
	for _, n := range batch {
		if err := d.notifications.MarkDispatched(ctx, n.ID, now); err != nil {
			d.log.WithError(err).WithField("notification_id", n.ID).Warn("Failed to mark notification dispatched")
		}
	}
}
