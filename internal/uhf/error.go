// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package uhf

import (
	"errors"
)

// Frame-level errors. These never escalate past the codec: a frame that
// fails any of these checks is discarded and counted as an empty read.
var (
	ErrInvalidStartByte = errors.New("invalid start byte")
	ErrInvalidEndByte   = errors.New("invalid end byte")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrFrameTooShort    = errors.New("frame too short")
	ErrNotTagReport     = errors.New("not a tag report frame")
)

// Device and transport errors.
var (
	ErrUnknownRegion = errors.New("unknown region")
	ErrNoReader      = errors.New("no reader answered the version probe")
	ErrPortClosed    = errors.New("use of closed serial port")
)
