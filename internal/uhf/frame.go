// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package uhf

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Frame format constants for the M5Stack U107 UHF module protocol.
const (
	// FrameStart is the first byte of every command and response frame.
	FrameStart byte = 0xBB
	// FrameEnd is the terminator byte of every frame.
	FrameEnd byte = 0x7E
	// ModuleAddr is the fixed module address used in outgoing commands.
	ModuleAddr byte = 0x00

	// TypeTagNotice marks a response frame carrying a tag report.
	TypeTagNotice byte = 0x02

	// MinTagReportLen is the minimum length of a tag report frame. Shorter
	// frames are command acknowledgements or noise, never tag data.
	MinTagReportLen = 24
)

// Command codes understood by the reader firmware.
const (
	// CmdGetVersion queries the hardware version. Used only for device
	// auto-detection: any answer at all means a reader is on the port.
	CmdGetVersion byte = 0x03
	// CmdPollSingle performs one inventory round, reporting at most a few tags.
	CmdPollSingle byte = 0x22
	// CmdPollMulti performs a multi-tag inventory round, usually reporting
	// several tags per burst.
	CmdPollMulti byte = 0x27
	// CmdSetPower sets transmit power as a 2-byte centi-dB value.
	CmdSetPower byte = 0xB6
	// CmdSetRegion selects the regulatory frequency band.
	CmdSetRegion byte = 0xB8
)

// Region is a regulatory frequency band code.
type Region byte

// Frequency bands supported by the module.
const (
	RegionUS Region = 0x01 // 902-928 MHz
	RegionEU Region = 0x02 // 865-868 MHz
	RegionCN Region = 0x03 // 920-925 MHz
	RegionIN Region = 0x04 // 865-867 MHz
	RegionJP Region = 0x05 // 916-921 MHz
)

// ParseRegion maps a region name ("US", "EU", ...) to its wire code.
func ParseRegion(name string) (Region, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "US":
		return RegionUS, nil
	case "EU":
		return RegionEU, nil
	case "CN":
		return RegionCN, nil
	case "IN":
		return RegionIN, nil
	case "JP":
		return RegionJP, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
}

func (r Region) String() string {
	switch r {
	case RegionUS:
		return "US"
	case RegionEU:
		return "EU"
	case RegionCN:
		return "CN"
	case RegionIN:
		return "IN"
	case RegionJP:
		return "JP"
	}
	return fmt.Sprintf("Region(0x%02X)", byte(r))
}

// TagRecord is one decoded tag report. Records are immutable values;
// two reports of the same physical token compare equal on EPC.
type TagRecord struct {
	// EPC is the Electronic Product Code as an uppercase hex string.
	EPC string
	// PC is the protocol-control field as an uppercase hex string.
	PC string
	// RSSI is the received signal strength of this reading.
	RSSI int
}

func (t TagRecord) String() string {
	return fmt.Sprintf("TAG<EPC=%s PC=%s RSSI=%d>", t.EPC, t.PC, t.RSSI)
}

// Checksum computes the frame checksum: the byte sum of everything between
// the start byte and the trailing checksum/terminator pair, truncated to
// eight bits.
func Checksum(frame []byte) byte {
	var sum uint16
	for _, b := range frame[1 : len(frame)-2] {
		sum += uint16(b)
	}
	return byte(sum)
}

// BuildCommand encodes an outgoing command frame:
//
//	[0xBB, addr, cmd, lenHi, lenLo, params..., checksum, 0x7E]
func BuildCommand(cmd byte, params ...byte) []byte {
	frame := make([]byte, 0, 7+len(params))
	frame = append(frame, FrameStart, ModuleAddr, cmd,
		byte(len(params)>>8), byte(len(params)))
	frame = append(frame, params...)
	frame = append(frame, 0, FrameEnd)
	frame[len(frame)-2] = Checksum(frame)
	return frame
}

// VerifyFrame checks the envelope of a received frame: start byte,
// terminator and checksum. It says nothing about the payload type.
func VerifyFrame(frame []byte) error {
	if len(frame) < 7 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	if frame[0] != FrameStart {
		return fmt.Errorf("%w: 0x%02X", ErrInvalidStartByte, frame[0])
	}
	if frame[len(frame)-1] != FrameEnd {
		return fmt.Errorf("%w: 0x%02X", ErrInvalidEndByte, frame[len(frame)-1])
	}
	if cs := Checksum(frame); cs != frame[len(frame)-2] {
		return fmt.Errorf("%w: expected 0x%02X, got 0x%02X",
			ErrChecksumMismatch, cs, frame[len(frame)-2])
	}
	return nil
}

// ParseTagReport decodes a tag report frame into a TagRecord. Frames that
// are well-formed but not tag reports (acks, status answers) and frames
// that fail verification are rejected with an error; callers treat any
// rejection as "no tag this read" rather than a fault.
func ParseTagReport(frame []byte) (TagRecord, error) {
	if err := VerifyFrame(frame); err != nil {
		return TagRecord{}, err
	}
	if len(frame) < MinTagReportLen {
		return TagRecord{}, fmt.Errorf("%w: %d bytes", ErrNotTagReport, len(frame))
	}
	if frame[1] != TypeTagNotice {
		return TagRecord{}, fmt.Errorf("%w: type 0x%02X", ErrNotTagReport, frame[1])
	}
	return TagRecord{
		RSSI: int(frame[5]),
		PC:   strings.ToUpper(hex.EncodeToString(frame[6:8])),
		EPC:  strings.ToUpper(hex.EncodeToString(frame[8:20])),
	}, nil
}
