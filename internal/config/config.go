// Package config loads ISO-TP link tunables from an .ini-format file,
// the same library (gopkg.in/ini.v1) the teacher transport uses to load
// its own .ini-format EDS files, applied here to a much smaller schema.
//
// The core package (pkg/isotp) never parses configuration itself — per
// spec.md, tunables reach a Link only via constructor Options. This
// package exists purely for the demo host (cmd/isotpd) to load those
// Options from a file.
package config

import (
	"gopkg.in/ini.v1"
)

// Link holds the subset of [Link] section keys cmd/isotpd understands.
type Link struct {
	SendID      uint32 `ini:"send_id"`
	ReceiveID   uint32 `ini:"receive_id"`
	SendBufSize int    `ini:"send_buf_size"`
	RecvBufSize int    `ini:"receive_buf_size"`
	BlockSize   uint8  `ini:"block_size"`
	STMinUs     uint32 `ini:"st_min_us"`
	TimeoutUs   uint32 `ini:"timeout_us"`
	MaxWFT      uint8  `ini:"max_wft"`
	Padding     bool   `ini:"padding"`
	PadByte     byte   `ini:"pad_byte"`
}

// Default returns the tunables a Link would use absent a config file,
// mirroring pkg/isotp's own package-level defaults.
func Default() Link {
	return Link{
		SendID:      0x700,
		ReceiveID:   0x701,
		SendBufSize: 4096,
		RecvBufSize: 4096,
		BlockSize:   8,
		STMinUs:     0,
		TimeoutUs:   1_000_000,
		MaxWFT:      16,
		Padding:     false,
		PadByte:     0x00,
	}
}

// Load parses an .ini file at path into a Link, starting from Default()
// so a partial file only overrides the keys it sets.
//
// Example file:
//
//	[link]
//	send_id = 0x700
//	receive_id = 0x701
//	block_size = 8
//	st_min_us = 0
//	timeout_us = 1000000
//	padding = true
func Load(path string) (Link, error) {
	cfg := Default()

	file, err := ini.Load(path)
	if err != nil {
		return cfg, err
	}
	section, err := file.GetSection("link")
	if err != nil {
		// No [link] section: keep the defaults; keys in other sections,
		// including the default section, are ignored. Not an error.
		return cfg, nil
	}
	if err := section.MapTo(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
