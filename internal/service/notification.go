package service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/govbot/internal/engine"
	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/store"
)

// Status is the 4-byte acknowledgement of the notification service.
type Status uint32

// Acknowledgement codes.
const (
	StatusOK      Status = 0
	StatusIgnored Status = 1 // decoded, but not a kind this service accepts
	StatusError   Status = 2 // accepted, but storing or dispatching failed
)

// statusSize is the wire size of a Status.
const statusSize = 4

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusIgnored:
		return "ignored"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Bytes returns the big-endian wire form.
func (s Status) Bytes() []byte {
	return binary.BigEndian.AppendUint32(make([]byte, 0, statusSize), uint32(s))
}

// ParseStatus decodes a wire acknowledgement.
func ParseStatus(b []byte) (Status, error) {
	if len(b) != statusSize {
		return 0, fmt.Errorf("status: want %d bytes, got %d", statusSize, len(b))
	}
	return Status(binary.BigEndian.Uint32(b)), nil
}

// Dispatcher renders and persists Notify records for a Notification.
// dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *ir.Notification) ([]*ir.Notify, error)
}

// Enqueuer accepts refresh triggers. engine.Engine implements it.
type Enqueuer interface {
	Enqueue(ev engine.Event) bool
}

// NotificationService accepts tagged binary ir values.
//
// A Notification is dispatched. Entry, Registration and UserMetaData are
// upserted (the producer API); a stored Entry also triggers a subscription
// refresh. Any other kind is acknowledged with StatusIgnored.
type NotificationService struct {
	store      *store.Store
	dispatcher Dispatcher
	refresh    Enqueuer
	observer   Observer
	logger     *slog.Logger
}

// NotificationOption configures a NotificationService.
type NotificationOption func(*NotificationService)

// WithRefresh sets where stored entries are announced.
func WithRefresh(q Enqueuer) NotificationOption {
	return func(ns *NotificationService) { ns.refresh = q }
}

// WithNotifyObserver sets the observer told how many Notify records
// each dispatch wrote.
func WithNotifyObserver(o Observer) NotificationOption {
	return func(ns *NotificationService) { ns.observer = o }
}

// WithNotificationLogger sets the service logger.
func WithNotificationLogger(l *slog.Logger) NotificationOption {
	return func(ns *NotificationService) { ns.logger = l }
}

// NewNotificationService creates the notification handler.
func NewNotificationService(s *store.Store, d Dispatcher, opts ...NotificationOption) *NotificationService {
	ns := &NotificationService{
		store:      s,
		dispatcher: d,
		observer:   nopObserver{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(ns)
	}
	return ns
}

// ServeRequest implements Handler. Only an undecodable request aborts the
// connection; every decoded value is acknowledged.
func (ns *NotificationService) ServeRequest(ctx context.Context, req []byte) ([]byte, error) {
	v, err := ir.Decode(req)
	if errors.Is(err, ir.ErrUnknownKind) {
		ns.logger.Warn("unknown record kind", "error", err)
		return StatusIgnored.Bytes(), nil
	}
	if err != nil {
		return nil, err
	}
	return ns.Accept(ctx, v).Bytes(), nil
}

// Accept processes one decoded value and returns its acknowledgement.
func (ns *NotificationService) Accept(ctx context.Context, v ir.Value) Status {
	var err error
	switch val := v.(type) {
	case *ir.Notification:
		err = ns.dispatch(ctx, val)
	case *ir.Entry:
		err = ns.putEntry(ctx, val)
	case *ir.Registration:
		_, err = ns.store.PutRegistration(ctx, val)
	case *ir.UserMetaData:
		_, err = ns.store.PutUserMetaData(ctx, val)
	default:
		ns.logger.Debug("ignoring record", "kind", v.Kind())
		return StatusIgnored
	}
	if err != nil {
		ns.logger.Error("notification service", "kind", v.Kind(), "error", err)
		return StatusError
	}
	return StatusOK
}

func (ns *NotificationService) dispatch(ctx context.Context, n *ir.Notification) error {
	notifies, err := ns.dispatcher.Dispatch(ctx, n)
	ns.observer.ObserveNotifies(len(notifies))
	return err
}

func (ns *NotificationService) putEntry(ctx context.Context, e *ir.Entry) error {
	key, err := ns.store.PutEntry(ctx, e)
	if err != nil {
		return err
	}
	ns.logger.Debug("entry stored", "key", key, "origin", e.Origin)
	if ns.refresh != nil {
		ns.refresh.Enqueue(engine.Event{Type: engine.EventEntriesChanged, Keys: []ir.Key{key}})
	}
	return nil
}

// NotifyClient talks to the notification service on a socket path.
type NotifyClient struct {
	path string
}

// NewNotifyClient creates a client for the service on path.
func NewNotifyClient(path string) *NotifyClient {
	return &NotifyClient{path: path}
}

// Send encodes v, sends it and returns the acknowledgement.
func (c *NotifyClient) Send(ctx context.Context, v ir.Value) (Status, error) {
	req, err := ir.Encode(v)
	if err != nil {
		return 0, err
	}
	resp, err := Call(ctx, c.path, req)
	if err != nil {
		return 0, err
	}
	return ParseStatus(resp)
}

// Forward sends n for dispatch. Any status but StatusOK is an error.
func (c *NotifyClient) Forward(ctx context.Context, n *ir.Notification) error {
	st, err := c.Send(ctx, n)
	if err != nil {
		return fmt.Errorf("forward notification: %w", err)
	}
	if st != StatusOK {
		return fmt.Errorf("forward notification: service answered %s", st)
	}
	return nil
}
