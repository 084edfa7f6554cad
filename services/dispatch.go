package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DeviceChange is one observed write to a device document. Before is nil
// for creations, After is nil for deletions.
type DeviceChange struct {
	DeviceID string
	Before   map[string]interface{}
	After    map[string]interface{}
}

// ChangeHandler reacts to a single device document change.
type ChangeHandler func(ctx context.Context, change DeviceChange) error

// TickHandler reacts to the periodic timer.
type TickHandler func(ctx context.Context, now time.Time) error

type namedChangeHandler struct {
	name    string
	handler ChangeHandler
}

type namedTickHandler struct {
	name    string
	handler TickHandler
}

// Dispatcher fans document-change and timer events out to registered
// handlers. Handlers are independent: a failing handler is logged and the
// remaining ones still run.
type Dispatcher struct {
	logger         *zap.Logger
	changeHandlers []namedChangeHandler
	tickHandlers   []namedTickHandler
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

func (d *Dispatcher) OnDeviceChange(name string, handler ChangeHandler) {
	d.changeHandlers = append(d.changeHandlers, namedChangeHandler{name: name, handler: handler})
}

func (d *Dispatcher) OnTick(name string, handler TickHandler) {
	d.tickHandlers = append(d.tickHandlers, namedTickHandler{name: name, handler: handler})
}

// DispatchChange delivers one device change to every change handler.
func (d *Dispatcher) DispatchChange(ctx context.Context, change DeviceChange) {
	for _, h := range d.changeHandlers {
		if err := h.handler(ctx, change); err != nil {
			d.logger.Error("Device change handler failed",
				zap.String("handler", h.name),
				zap.String("device_id", change.DeviceID),
				zap.Error(err))
		}
	}
}

// DispatchTick delivers one timer event to every tick handler.
func (d *Dispatcher) DispatchTick(ctx context.Context, now time.Time) {
	for _, h := range d.tickHandlers {
		if err := h.handler(ctx, now); err != nil {
			d.logger.Error("Tick handler failed",
				zap.String("handler", h.name),
				zap.Error(err))
		}
	}
}

// RunTicker dispatches tick events at the given interval until the context
// is cancelled.
func (d *Dispatcher) RunTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("Sweep ticker started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Sweep ticker stopped")
			return
		case now := <-ticker.C:
			d.DispatchTick(ctx, now)
		}
	}
}
