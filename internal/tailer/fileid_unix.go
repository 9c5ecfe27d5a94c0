// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

//go:build unix

package tailer

import (
	"os"
	"syscall"
)

// fileID extracts the inode/device pair used for rotation detection.
func fileID(info os.FileInfo) (inode, device uint64) {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return stat.Ino, uint64(stat.Dev)
	}
	return 0, 0
}
