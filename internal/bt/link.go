// Package bt drives a cable trainer over Bluetooth LE.
package bt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/events"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

// ErrDeviceFault is reported on the connection error stream when the machine
// raises its fault flag.
var ErrDeviceFault = errors.New("trainer reported a fault")

// Peripheral is a connected GATT peripheral.
type Peripheral interface {
	EnableNotifications(serviceUUID, charUUID string, fn func(buf []byte)) error
	WriteWithoutResponse(serviceUUID, charUUID string, data []byte) error
	// OnDisconnect registers fn for loss of the link.
	OnDisconnect(fn func(error)) func()
	Disconnect() error
}

// Link implements the session's Device on top of a Peripheral.
type Link struct {
	logger *log.Logger
	p      Peripheral
	now    func() time.Time

	// writeMu keeps command frames from interleaving.
	writeMu sync.Mutex

	faultMu sync.Mutex
	faulted bool

	telemetryEvent *events.CallbackEvent[telemetry.Sample]
	repEvent       *events.CallbackEvent[telemetry.RepEvent]
	connErrEvent   *events.CallbackEvent[error]
	stopDisconnect func()
}

func NewLink(logger *log.Logger, p Peripheral) *Link {
	if logger == nil {
		panic("Link: logger cannot be nil")
	}
	if p == nil {
		panic("Link: peripheral cannot be nil")
	}
	return &Link{
		logger:         logger,
		p:              p,
		now:            time.Now,
		telemetryEvent: events.NewCallbackEvent[telemetry.Sample](false),
		repEvent:       events.NewCallbackEvent[telemetry.RepEvent](false),
		connErrEvent:   events.NewCallbackEvent[error](false),
	}
}

// Open enables the monitor and rep notifications.
func (l *Link) Open() error {
	l.stopDisconnect = l.p.OnDisconnect(func(err error) {
		l.logger.Printf("Link: Disconnected: %v", err)
		l.connErrEvent.Notify(fmt.Errorf("link lost: %w", err))
	})
	if err := l.p.EnableNotifications(ServiceUUIDTrainer, CharUUIDMonitor, l.onMonitor); err != nil {
		return fmt.Errorf("enabling monitor notifications: %w", err)
	}
	if err := l.p.EnableNotifications(ServiceUUIDTrainer, CharUUIDRepNotifier, l.onRep); err != nil {
		return fmt.Errorf("enabling rep notifications: %w", err)
	}
	l.logger.Println("Link: Notifications enabled")
	return nil
}

// Close drops the link.
func (l *Link) Close() error {
	if l.stopDisconnect != nil {
		l.stopDisconnect()
	}
	return l.p.Disconnect()
}

func (l *Link) onMonitor(buf []byte) {
	sample, status, err := DecodeMonitor(buf, l.now())
	if err != nil {
		l.logger.Printf("Link: Monitor parse error: %v (raw: %v)", err, buf)
		return
	}
	fault := status&StatusFault != 0
	l.faultMu.Lock()
	raised := fault && !l.faulted
	l.faulted = fault
	l.faultMu.Unlock()
	if raised {
		l.logger.Println("Link: Trainer raised its fault flag")
		l.connErrEvent.Notify(ErrDeviceFault)
	}
	l.telemetryEvent.Notify(sample)
}

func (l *Link) onRep(buf []byte) {
	rep, err := DecodeRep(buf, l.now())
	if err != nil {
		l.logger.Printf("Link: Rep parse error: %v (raw: %v)", err, buf)
		return
	}
	l.repEvent.Notify(rep)
}

func (l *Link) write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.logger.Printf("Link: Sending %s", describeCommand(frame))
	if err := l.p.WriteWithoutResponse(ServiceUUIDTrainer, CharUUIDControl, frame); err != nil {
		return fmt.Errorf("sending %s: %w", describeCommand(frame), err)
	}
	return nil
}

func (l *Link) SendStart(ctx context.Context) error      { return l.write(ctx, EncodeStart()) }
func (l *Link) SendStop(ctx context.Context) error       { return l.write(ctx, EncodeStop()) }
func (l *Link) SendReset(ctx context.Context) error      { return l.write(ctx, EncodeReset()) }
func (l *Link) SendClearFault(ctx context.Context) error { return l.write(ctx, EncodeClearFault()) }

func (l *Link) SendWeight(ctx context.Context, kgPerCable float64) error {
	frame, err := EncodeWeight(kgPerCable)
	if err != nil {
		return err
	}
	return l.write(ctx, frame)
}

func (l *Link) SendProgramMode(ctx context.Context, mode routine.ProgramMode) error {
	frame, err := EncodeProgramMode(mode)
	if err != nil {
		return err
	}
	return l.write(ctx, frame)
}

func (l *Link) SubscribeTelemetry(fn func(telemetry.Sample)) func() {
	return l.telemetryEvent.Listen(fn)
}

func (l *Link) SubscribeReps(fn func(telemetry.RepEvent)) func() {
	return l.repEvent.Listen(fn)
}

func (l *Link) SubscribeConnectionErrors(fn func(error)) func() {
	return l.connErrEvent.Listen(fn)
}
