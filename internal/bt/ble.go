package bt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/events"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/go_func_utils"
)

var ErrNotConnected = errors.New("no connected device")

// BLEPeripheral is a Peripheral backed by a tinygo bluetooth adapter.
type BLEPeripheral struct {
	adapter *bluetooth.Adapter
	logger  *log.Logger
	address bluetooth.Address
	name    string

	mu         sync.Mutex
	connected  bool
	disconnect func() error

	// bleMu serialises characteristic operations (notifications, writes).
	bleMu           sync.Mutex
	characteristics map[string]*bluetooth.DeviceCharacteristic

	disconnectEvent *events.CallbackEvent[error]
}

func charKey(serviceUUID, charUUID string) string {
	return strings.ToLower(serviceUUID) + "_" + strings.ToLower(charUUID)
}

// Connect scans for a trainer whose address or local name matches target,
// connects to it and discovers its characteristics. An empty target takes the
// first device advertising the trainer service.
func Connect(ctx context.Context, adapter *bluetooth.Adapter, logger *log.Logger, target string) (*BLEPeripheral, error) {
	if logger == nil {
		panic("BLEPeripheral: logger cannot be nil")
	}
	p := &BLEPeripheral{
		adapter:         adapter,
		logger:          logger,
		characteristics: make(map[string]*bluetooth.DeviceCharacteristic),
		disconnectEvent: events.NewCallbackEvent[error](false),
	}

	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		p.mu.Lock()
		if device.Address.String() != p.address.String() {
			p.mu.Unlock()
			return
		}
		was := p.connected
		p.connected = connected
		p.mu.Unlock()
		if was && !connected {
			p.disconnectEvent.Notify(fmt.Errorf("%s disconnected", device.Address.String()))
		}
	})
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enabling adapter: %w", err)
	}

	result, err := p.scan(ctx, target)
	if err != nil {
		return nil, err
	}
	address := result.Address
	p.mu.Lock()
	p.address = address
	p.name = result.LocalName()
	p.mu.Unlock()

	logger.Printf("BLEPeripheral: Connecting to %s", address.String())
	device, err := adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address.String(), err)
	}
	p.mu.Lock()
	p.connected = true
	p.disconnect = device.Disconnect
	p.mu.Unlock()

	// Discover everything at once; discovering single services later
	// interrupts services already in use.
	services, err := device.DiscoverServices(nil)
	if err != nil {
		device.Disconnect()
		return nil, fmt.Errorf("discovering services: %w", err)
	}
	for i := range services {
		svc := &services[i]
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			device.Disconnect()
			return nil, fmt.Errorf("discovering characteristics of %s: %w", svc.UUID().String(), err)
		}
		for j := range chars {
			c := &chars[j]
			p.characteristics[charKey(svc.UUID().String(), c.UUID().String())] = c
		}
	}
	logger.Printf("BLEPeripheral: Connected to %s, %d characteristics", address.String(), len(p.characteristics))
	return p, nil
}

func (p *BLEPeripheral) scan(ctx context.Context, target string) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	var wg sync.WaitGroup

	p.logger.Printf("BLEPeripheral: Scanning for %q", target)
	go_func_utils.SafeGoWG(p.logger, &wg, func() {
		err := p.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !matches(result, target) {
				return
			}
			select {
			case found <- result:
				p.logger.Printf("BLEPeripheral: Found %s (%s) [RSSI: %d]", result.LocalName(), result.Address.String(), result.RSSI)
				adapter.StopScan()
			default:
			}
		})
		if err != nil {
			p.logger.Printf("BLEPeripheral: Scan error: %v", err)
		}
	})

	select {
	case result := <-found:
		wg.Wait()
		return result, nil
	case <-ctx.Done():
		if err := p.adapter.StopScan(); err != nil {
			p.logger.Printf("BLEPeripheral: Error stopping scan: %v", err)
		}
		wg.Wait()
		return bluetooth.ScanResult{}, fmt.Errorf("scanning for %q: %w", target, ctx.Err())
	}
}

func matches(result bluetooth.ScanResult, target string) bool {
	if target == "" {
		for _, uuid := range result.ServiceUUIDs() {
			if strings.EqualFold(uuid.String(), ServiceUUIDTrainer) {
				return true
			}
		}
		return false
	}
	return strings.EqualFold(result.Address.String(), target) || result.LocalName() == target
}

func (p *BLEPeripheral) characteristic(serviceUUID, charUUID string) (*bluetooth.DeviceCharacteristic, error) {
	p.mu.Lock()
	connected := p.connected
	p.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}
	c, ok := p.characteristics[charKey(serviceUUID, charUUID)]
	if !ok {
		return nil, fmt.Errorf("characteristic %s not found in service %s", charUUID, serviceUUID)
	}
	return c, nil
}

func (p *BLEPeripheral) EnableNotifications(serviceUUID, charUUID string, fn func(buf []byte)) error {
	p.bleMu.Lock()
	defer p.bleMu.Unlock()
	c, err := p.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if err := c.EnableNotifications(fn); err != nil {
		return fmt.Errorf("failed to enable notifications: %w", err)
	}
	return nil
}

func (p *BLEPeripheral) WriteWithoutResponse(serviceUUID, charUUID string, data []byte) error {
	p.bleMu.Lock()
	defer p.bleMu.Unlock()
	c, err := p.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if _, err := c.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("failed to write characteristic: %w", err)
	}
	return nil
}

// Address is the connected trainer's address.
func (p *BLEPeripheral) Address() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.address.String()
}

// Name is the trainer's advertised local name.
func (p *BLEPeripheral) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *BLEPeripheral) OnDisconnect(fn func(error)) func() {
	return p.disconnectEvent.Listen(fn)
}

// Disconnect drops the connection.
func (p *BLEPeripheral) Disconnect() error {
	p.mu.Lock()
	disconnect := p.disconnect
	connected := p.connected
	p.connected = false
	p.mu.Unlock()
	if !connected || disconnect == nil {
		return nil
	}
	p.logger.Printf("BLEPeripheral: Disconnecting from %s", p.address.String())
	if err := disconnect(); err != nil {
		return fmt.Errorf("disconnecting: %w", err)
	}
	return nil
}
