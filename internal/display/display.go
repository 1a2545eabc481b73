// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package display drives the installation's LED panel, an ESP32 speaking
// a newline-terminated ASCII command protocol over serial. The panel is an
// optional collaborator: when detection fails the service runs without it.
package display

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

const (
	baudRate = 115200
	// bootDelay waits out the ESP32 reset triggered by opening the port.
	bootDelay = 2 * time.Second
	// replyTimeout bounds the wait for a command acknowledgement.
	replyTimeout = time.Second
	// probeReply is the STATUS answer that identifies the panel.
	probeReply = "OK PATTERN="
)

// knownPatterns are the animations the firmware implements. Unknown names
// are still sent, the firmware ignores them, but they are worth a warning.
var knownPatterns = map[string]bool{
	"BORED":         true,
	"THINKING":      true,
	"PRINTING":      true,
	"FINISH":        true,
	"ERROR":         true,
	"REMOVE_FIGURE": true,
}

// port is the minimal serial surface the controller needs; tests
// substitute a scripted implementation.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Controller talks to one LED panel. Implements session.Indicator.
type Controller struct {
	port port
	rd   *bufio.Reader
	log  zerolog.Logger
}

// Open connects to a panel on a known port address.
func Open(address string, log zerolog.Logger) (*Controller, error) {
	p, err := serial.Open(address, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open display port %s: %w", address, err)
	}
	time.Sleep(bootDelay)
	return newController(p, log.With().Str("display", address).Logger()), nil
}

func newController(p port, log zerolog.Logger) *Controller {
	return &Controller{port: p, rd: bufio.NewReader(p), log: log}
}

// Detect probes candidate ports with a STATUS command and returns a
// controller for the first one that answers like a panel, or nil when
// none does. A nil return is not an error; the caller degrades to a
// no-op indicator. An empty candidate list probes every USB serial port.
func Detect(candidates []string, log zerolog.Logger) *Controller {
	if len(candidates) == 0 {
		ports, err := serial.GetPortsList()
		if err != nil {
			log.Debug().Err(err).Msg("port enumeration failed")
			return nil
		}
		for _, p := range ports {
			if strings.Contains(p, "ttyUSB") || strings.Contains(p, "ttyACM") {
				candidates = append(candidates, p)
			}
		}
	}
	for _, address := range candidates {
		log.Debug().Str("port", address).Msg("probing for display")
		c, err := Open(address, log)
		if err != nil {
			continue
		}
		if reply, err := c.roundTrip("STATUS"); err == nil && strings.Contains(reply, probeReply) {
			log.Info().Str("port", address).Msg("display detected")
			return c
		}
		_ = c.Close()
	}
	return nil
}

// send writes one newline-terminated command.
func (sf *Controller) send(cmd string) error {
	if sf.port == nil {
		return fmt.Errorf("display port closed")
	}
	if _, err := sf.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("display write: %w", err)
	}
	return nil
}

// readLine waits up to replyTimeout for one response line.
func (sf *Controller) readLine() (string, error) {
	if err := sf.port.SetReadTimeout(replyTimeout); err != nil {
		return "", err
	}
	line, err := sf.rd.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// roundTrip sends a command and returns the panel's reply line.
func (sf *Controller) roundTrip(cmd string) (string, error) {
	if err := sf.send(cmd); err != nil {
		return "", err
	}
	return sf.readLine()
}

// SetPattern switches the panel animation.
func (sf *Controller) SetPattern(pattern string) error {
	if !knownPatterns[pattern] {
		sf.log.Warn().Str("pattern", pattern).Msg("unknown pattern requested")
	}
	reply, err := sf.roundTrip("PATTERN " + pattern)
	if err != nil {
		return err
	}
	if reply != "OK" {
		sf.log.Debug().Str("reply", reply).Str("pattern", pattern).Msg("pattern not acknowledged")
	}
	return nil
}

// SetBrightness sets panel brightness, 0-8.
func (sf *Controller) SetBrightness(level int) error {
	return sf.send(fmt.Sprintf("BRIGHTNESS %d", level))
}

// SetSpeed sets animation speed, 0-8.
func (sf *Controller) SetSpeed(level int) error {
	return sf.send(fmt.Sprintf("SPEED %d", level))
}

// SetProgress shows an acquisition progress bar. Fire-and-forget: waiting
// for an ack here would stall the polling loop.
func (sf *Controller) SetProgress(current, total int) error {
	return sf.send(fmt.Sprintf("PROGRESS %d %d", current, total))
}

// Clear resets the panel to its default state.
func (sf *Controller) Clear() error {
	return sf.send("CLEAR")
}

// Close releases the serial port.
func (sf *Controller) Close() error {
	if sf.port == nil {
		return nil
	}
	err := sf.port.Close()
	sf.port = nil
	return err
}
