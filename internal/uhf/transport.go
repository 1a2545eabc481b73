// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package uhf

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// Port is the serial connection the transport runs over. go.bug.st/serial
// ports satisfy it; tests substitute a scripted implementation.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialConfig holds serial link parameters for the reader.
type SerialConfig struct {
	// Address is the serial port address (e.g. "/dev/ttyUSB0"). Empty means
	// auto-detect across Candidates.
	Address string
	// BaudRate is the serial port speed. The U107 talks at 115200.
	BaudRate int
	// Region selects the regulatory frequency band, default EU.
	Region Region
	// PowerCentiDB is the transmit power in centi-dB (2600 = 26 dBm).
	PowerCentiDB int
	// Candidates are the ports probed during auto-detection. Empty means
	// every enumerated port that looks like a USB serial adapter.
	Candidates []string
}

// Valid applies defaults and checks configuration validity.
func (sf *SerialConfig) Valid() error {
	if sf.BaudRate == 0 {
		sf.BaudRate = 115200
	}
	if sf.BaudRate < 0 {
		return fmt.Errorf("serial baud rate must be positive, got %d", sf.BaudRate)
	}
	if sf.Region == 0 {
		sf.Region = RegionEU
	}
	if sf.PowerCentiDB == 0 {
		sf.PowerCentiDB = 2600
	}
	if sf.PowerCentiDB < 0 {
		return fmt.Errorf("transmit power must be positive, got %d", sf.PowerCentiDB)
	}
	return nil
}

// readSlice is how long a single blocking byte read may take. AwaitFrame
// loops over reads of this granularity until its own deadline.
const readSlice = 5 * time.Millisecond

// Transport is the single owner of one serial connection. All I/O is
// sequential and blocking; every receive is bounded by the caller's
// timeout, so a silent device costs a timeout, never a hang.
type Transport struct {
	port Port
	log  zerolog.Logger
}

// NewTransport wraps an open port.
func NewTransport(port Port, log zerolog.Logger) *Transport {
	return &Transport{port: port, log: log}
}

// OpenPort opens a serial port with the configured parameters.
func OpenPort(address string, cfg SerialConfig) (Port, error) {
	mode := &serial.Mode{BaudRate: cfg.BaudRate}
	port, err := serial.Open(address, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", address, err)
	}
	return port, nil
}

// Send writes a command frame. No response is implied; callers that expect
// one follow up with AwaitFrame.
func (sf *Transport) Send(frame []byte) error {
	if sf.port == nil {
		return ErrPortClosed
	}
	sf.log.Trace().Hex("frame", frame).Msg("tx")
	if _, err := sf.port.Write(frame); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// AwaitFrame reads byte-by-byte until a delimited frame is seen (first byte
// 0xBB, current byte 0x7E) or the timeout elapses. Bytes before the first
// 0xBB are discarded as line noise. A timeout returns (nil, nil): no data
// is an ordinary outcome on this link, not an error.
func (sf *Transport) AwaitFrame(timeout time.Duration) ([]byte, error) {
	if sf.port == nil {
		return nil, ErrPortClosed
	}
	if err := sf.port.SetReadTimeout(readSlice); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for time.Now().Before(deadline) {
		n, err := sf.port.Read(one)
		if err != nil {
			return nil, fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			continue
		}
		b := one[0]
		if len(buf) == 0 && b != FrameStart {
			continue
		}
		buf = append(buf, b)
		if b == FrameEnd {
			sf.log.Trace().Hex("frame", buf).Msg("rx")
			return buf, nil
		}
	}
	return nil, nil
}

// Close releases the serial port.
func (sf *Transport) Close() error {
	if sf.port == nil {
		return nil
	}
	err := sf.port.Close()
	sf.port = nil
	return err
}
