package scraper

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// Surface is a rendered document that can be read and watched for changes
type Surface interface {
	// URL returns the address the surface was opened with
	URL() string
	// Snapshot parses the current DOM
	Snapshot(ctx context.Context) (*goquery.Document, error)
	// Subscribe emits a signal for every batch of DOM mutations until ctx is
	// done or unsubscribe is called. Signals are coalesced; the channel is never closed.
	Subscribe(ctx context.Context) (changes <-chan struct{}, unsubscribe func())
}

// PageHandle identifies an open page context
type PageHandle string

// Page is a disposable, isolated page context opened on a listing
type Page interface {
	Surface
	Handle() PageHandle
}

// PageProvider opens and reclaims page contexts
type PageProvider interface {
	Open(ctx context.Context, url string) (Page, error)
	Close(handle PageHandle) error
	ListOpen() []PageHandle
}
