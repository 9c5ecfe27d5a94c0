// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

//go:build !unix

package tailer

import "os"

// fileID is unavailable on this platform; rotation detection falls back to
// the size heuristic alone.
func fileID(_ os.FileInfo) (inode, device uint64) {
	return 0, 0
}
