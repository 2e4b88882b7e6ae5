package rangefinder

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// A02YYUW frame layout: header, distance high byte, low byte, checksum.
const (
	frameHeader = 0xFF
	frameLen    = 4

	// maxScan bounds how many bytes are skipped looking for a header.
	maxScan = 32

	DefaultBaudRate    = 9600
	DefaultReadTimeout = 200 * time.Millisecond
)

// SerialConfig describes a UART range sensor.
type SerialConfig struct {
	Name        string
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	Bounds      Bounds
}

// Mode returns the serial.Mode for the sensor: 8N1 at the configured rate.
func (c SerialConfig) Mode() *serial.Mode {
	baud := c.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Serial reads distance frames from a UART sensor.
type Serial struct {
	name   string
	port   io.ReadCloser
	bounds Bounds
	now    func() time.Time

	mu     sync.Mutex
	closed bool
	buf    [1]byte
}

// OpenSerial opens the port and wraps it in a Serial sensor.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	port, err := serial.Open(cfg.Port, cfg.Mode())
	if err != nil {
		return nil, fmt.Errorf("sensor %s: opening %s: %w", cfg.Name, cfg.Port, err)
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("sensor %s: setting read timeout: %w", cfg.Name, err)
	}
	return NewSerial(cfg, port), nil
}

// NewSerial wraps an already open port. Reads returning (0, nil) are
// treated as a timeout, matching go.bug.st/serial's read timeout behaviour.
func NewSerial(cfg SerialConfig, port io.ReadCloser) *Serial {
	return &Serial{
		name:   cfg.Name,
		port:   port,
		bounds: cfg.Bounds,
		now:    time.Now,
	}
}

// Name returns the configured sensor name.
func (s *Serial) Name() string {
	return s.name
}

// Sample reads the next complete frame from the port.
func (s *Serial) Sample(ctx context.Context) Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Invalid(s.name, ErrSensorClosed, s.now())
	}

	// The sensor streams continuously; drop stale frames when the port allows it.
	if r, ok := s.port.(interface{ ResetInputBuffer() error }); ok {
		_ = r.ResetInputBuffer() //nolint:errcheck // stale data is tolerated
	}

	var frame [frameLen]byte
	for scanned := 0; scanned < maxScan; scanned++ {
		if err := ctx.Err(); err != nil {
			return Invalid(s.name, err, s.now())
		}
		b, err := s.readByte()
		if err != nil {
			return Invalid(s.name, err, s.now())
		}
		if b != frameHeader {
			continue
		}
		frame[0] = b
		for i := 1; i < frameLen; i++ {
			if frame[i], err = s.readByte(); err != nil {
				return Invalid(s.name, err, s.now())
			}
		}
		mm, err := DecodeFrame(frame)
		if err != nil {
			return Invalid(s.name, err, s.now())
		}
		sample := Validate(float64(mm)/10, s.bounds)
		sample.Timestamp = s.now()
		sample.Sensor = s.name
		return sample
	}
	return Invalid(s.name, fmt.Errorf("%w: no header in %d bytes", ErrBadFrame, maxScan), s.now())
}

func (s *Serial) readByte() (byte, error) {
	n, err := s.port.Read(s.buf[:])
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", s.name, err)
	}
	if n == 0 {
		return 0, ErrEchoTimeout
	}
	return s.buf[0], nil
}

// DecodeFrame returns the distance in millimetres carried by frame.
func DecodeFrame(frame [frameLen]byte) (int, error) {
	if frame[0] != frameHeader {
		return 0, fmt.Errorf("%w: header 0x%02X", ErrBadFrame, frame[0])
	}
	sum := byte(int(frame[0]) + int(frame[1]) + int(frame[2]))
	if sum != frame[3] {
		return 0, fmt.Errorf("%w: checksum 0x%02X, want 0x%02X", ErrBadFrame, frame[3], sum)
	}
	return int(frame[1])<<8 | int(frame[2]), nil
}

// Close closes the underlying port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}
