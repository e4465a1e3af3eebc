// Package app wires stores, services, and background runners into a single
// application with a managed lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"

	"github.com/atriumhq/atrium/internal/objstore"
	"github.com/atriumhq/atrium/internal/services/attachments"
	"github.com/atriumhq/atrium/internal/services/dashboards"
	"github.com/atriumhq/atrium/internal/services/messaging"
	"github.com/atriumhq/atrium/internal/services/notifications"
	"github.com/atriumhq/atrium/internal/services/tenants"
	"github.com/atriumhq/atrium/internal/storage"
	"github.com/atriumhq/atrium/internal/storage/memory"
	"github.com/atriumhq/atrium/internal/system"
	"github.com/atriumhq/atrium/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Tenants       storage.TenantStore
	Conversations storage.ConversationStore
	Messages      storage.MessageStore
	Attachments   storage.AttachmentStore
	Notifications storage.NotificationStore
	Dashboards    storage.DashboardStore
}

// Options carries the optional external dependencies. A nil Objects disables
// the attachment surface; a nil Redis falls back to database unread counts.
type Options struct {
	Redis            *redis.Client
	Objects          objstore.Store
	WebhookClient    *http.Client
	Attachments      attachments.Config
	Dispatcher       notifications.DispatcherConfig
	EnableDispatcher bool
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Tenants       *tenants.Service
	Messaging     *messaging.Service
	Notifications *notifications.Service
	Attachments   *attachments.Service
	Dashboards    *dashboards.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Tenants == nil {
		stores.Tenants = mem
	}
	if stores.Conversations == nil {
		stores.Conversations = mem
	}
	if stores.Messages == nil {
		stores.Messages = mem
	}
	if stores.Attachments == nil {
		stores.Attachments = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if stores.Dashboards == nil {
		stores.Dashboards = mem
	}

	manager := system.NewManager()

	tenantService := tenants.New(stores.Tenants, log)
	notificationService := notifications.New(stores.Notifications, opts.Redis, log)
	messagingService := messaging.New(stores.Conversations, stores.Messages, stores.Attachments, notificationService, log)
	dashboardService := dashboards.New(stores.Dashboards, log)

	var attachmentService *attachments.Service
	if opts.Objects != nil {
		attachmentService = attachments.New(stores.Attachments, opts.Objects, opts.Attachments, log)
	} else {
		log.Warn("Object store not configured; attachment uploads disabled")
	}

	if opts.EnableDispatcher {
		dispatcher := notifications.NewDispatcher(stores.Notifications, stores.Tenants, opts.WebhookClient, opts.Dispatcher, log)
		if err := manager.Register(dispatcher); err != nil {
			return nil, fmt.Errorf("register %s: %w", dispatcher.Name(), err)
		}
	}

	return &Application{
		manager:       manager,
		log:           log,
		Tenants:       tenantService,
		Messaging:     messagingService,
		Notifications: notificationService,
		Attachments:   attachmentService,
		Dashboards:    dashboardService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
