package types

import (
	"context"
)

// Client is the caching service as seen by the workflow.
type Client interface {
	GetName() string
	SubmitMagnet(ctx context.Context, magnet string) (*Torrent, error)
	GetTorrent(ctx context.Context, id string) (*Torrent, error)
	WaitForStatus(ctx context.Context, id string, desired string, sizeHint int64) error
	UnrestrictLinks(ctx context.Context, links []ResolvedLink) ([]ResolvedLink, error)
	DeleteTorrent(ctx context.Context, id string) error
}
