// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package uhf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tagFrame builds a well-formed tag report frame with a valid checksum.
func tagFrame(t *testing.T, rssi byte, pc [2]byte, epc [12]byte) []byte {
	t.Helper()
	frame := []byte{FrameStart, TypeTagNotice, 0x22, 0x00, 0x11, rssi}
	frame = append(frame, pc[:]...)
	frame = append(frame, epc[:]...)
	frame = append(frame, 0x34, 0x12) // tag CRC, opaque to us
	frame = append(frame, 0x00, FrameEnd)
	frame[len(frame)-2] = Checksum(frame)
	require.GreaterOrEqual(t, len(frame), MinTagReportLen)
	return frame
}

func TestBuildCommandKnownVectors(t *testing.T) {
	tests := []struct {
		name   string
		cmd    byte
		params []byte
		want   []byte
	}{
		{
			name: "get version",
			cmd:  CmdGetVersion, params: []byte{0x00},
			want: []byte{0xBB, 0x00, 0x03, 0x00, 0x01, 0x00, 0x04, 0x7E},
		},
		{
			name: "single poll",
			cmd:  CmdPollSingle,
			want: []byte{0xBB, 0x00, 0x22, 0x00, 0x00, 0x22, 0x7E},
		},
		{
			name: "multi poll",
			cmd:  CmdPollMulti,
			want: []byte{0xBB, 0x00, 0x27, 0x00, 0x00, 0x27, 0x7E},
		},
		{
			name: "set region EU",
			cmd:  CmdSetRegion, params: []byte{byte(RegionEU)},
			want: []byte{0xBB, 0x00, 0xB8, 0x00, 0x01, 0x02, 0xBB, 0x7E},
		},
		{
			name: "set power 26dBm",
			cmd:  CmdSetPower, params: []byte{0x0A, 0x28},
			want: []byte{0xBB, 0x00, 0xB6, 0x00, 0x02, 0x0A, 0x28, 0xEA, 0x7E},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildCommand(tt.cmd, tt.params...))
		})
	}
}

func TestParseTagReport(t *testing.T) {
	pc := [2]byte{0x30, 0x00}
	var epc [12]byte
	copy(epc[:], []byte{0xE2, 0x80, 0x11, 0x70, 0x00, 0x00, 0x02, 0x0F, 0x1A, 0x2B, 0x3C, 0x4D})
	frame := tagFrame(t, 0xC5, pc, epc)

	rec, err := ParseTagReport(frame)
	require.NoError(t, err)
	assert.Equal(t, "E28011700000020F1A2B3C4D", rec.EPC)
	assert.Equal(t, "3000", rec.PC)
	assert.Equal(t, 0xC5, rec.RSSI)
}

func TestParseTagReportRejectsChecksumBitFlips(t *testing.T) {
	frame := tagFrame(t, 0x40, [2]byte{0x30, 0x00}, [12]byte{0xAA})

	for bit := 0; bit < 8; bit++ {
		flipped := make([]byte, len(frame))
		copy(flipped, frame)
		flipped[len(flipped)-2] ^= 1 << bit

		_, err := ParseTagReport(flipped)
		assert.ErrorIs(t, err, ErrChecksumMismatch, "bit %d", bit)
	}
}

func TestParseTagReportRejectsMalformed(t *testing.T) {
	good := tagFrame(t, 0x40, [2]byte{0x30, 0x00}, [12]byte{0xAA})

	t.Run("bad start byte", func(t *testing.T) {
		frame := append([]byte{}, good...)
		frame[0] = 0xAA
		_, err := ParseTagReport(frame)
		assert.ErrorIs(t, err, ErrInvalidStartByte)
	})

	t.Run("bad terminator", func(t *testing.T) {
		frame := append([]byte{}, good...)
		frame[len(frame)-1] = 0x00
		_, err := ParseTagReport(frame)
		assert.ErrorIs(t, err, ErrInvalidEndByte)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ParseTagReport([]byte{FrameStart, FrameEnd})
		assert.ErrorIs(t, err, ErrFrameTooShort)
	})

	t.Run("command ack is not a tag report", func(t *testing.T) {
		// Well-formed envelope, but type byte 0x01 and below the tag
		// report minimum length.
		ack := []byte{FrameStart, 0x01, 0x22, 0x00, 0x01, 0x00, 0x00, FrameEnd}
		ack[len(ack)-2] = Checksum(ack)
		_, err := ParseTagReport(ack)
		assert.ErrorIs(t, err, ErrNotTagReport)
	})

	t.Run("long frame with wrong type byte", func(t *testing.T) {
		frame := append([]byte{}, good...)
		frame[1] = 0x01
		frame[len(frame)-2] = Checksum(frame)
		_, err := ParseTagReport(frame)
		assert.ErrorIs(t, err, ErrNotTagReport)
	})
}

func TestParseRegion(t *testing.T) {
	for name, want := range map[string]Region{
		"US": RegionUS, "eu": RegionEU, " CN ": RegionCN, "in": RegionIN, "JP": RegionJP,
	} {
		got, err := ParseRegion(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseRegion("XX")
	assert.ErrorIs(t, err, ErrUnknownRegion)
}
