// Package downloader talks to download clients over their web APIs and
// exposes the subset of state the menus render.
package downloader

import "context"

// TransferInfo is a point-in-time snapshot of a client's transfer
// counters. Speeds are bytes per second, totals are session bytes.
type TransferInfo struct {
	DownloadSpeed   int64
	UploadSpeed     int64
	DownloadedBytes int64
	UploadedBytes   int64
}

// VersionInfo identifies the client build and its API revision.
type VersionInfo struct {
	App    string
	WebAPI string
}

// Accessor is one configured downloader instance. Implementations own
// authentication and reconnection; callers only see fresh reads.
type Accessor interface {
	Name() string
	Ping(ctx context.Context) error
	TransferInfo(ctx context.Context) (TransferInfo, error)
	Version(ctx context.Context) (VersionInfo, error)
}
