// Package store persists pages, their extracted fields and calculations, and
// the learned field patterns. Both backends enforce the (tenant_id, url)
// unique key and optimistic version updates.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/IRakow/aiaviizn-capture/internal/model"
)

// Sentinel errors surfaced by Store implementations. Callers check them with
// errors.Is and re-decide rather than treating them as fatal.
var (
	// ErrPageExists is returned by InsertPage when another writer already
	// created the (tenant_id, url) row. The caller retries as an update.
	ErrPageExists = eris.New("store: page already exists")

	// ErrVersionConflict is returned by UpdatePage when the expected version
	// is stale because another writer advanced the page.
	ErrVersionConflict = eris.New("store: version conflict")

	// ErrPageNotFound is returned by UpdatePage when no row matches the
	// (tenant_id, url) key at all.
	ErrPageNotFound = eris.New("store: page not found")
)

// PageFilter specifies criteria for listing pages.
type PageFilter struct {
	TenantID string `json:"tenant_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the capture pipeline.
type Store interface {
	// Pages. GetPage returns (nil, nil) when no row matches.
	GetPage(ctx context.Context, tenantID, url string) (*model.Page, error)
	InsertPage(ctx context.Context, page *model.Page) error
	UpdatePage(ctx context.Context, page *model.Page, expectedVersion int) error
	ListPages(ctx context.Context, filter PageFilter) ([]model.Page, error)

	// Patterns.
	LoadPatterns(ctx context.Context) ([]model.Pattern, error)
	UpsertPattern(ctx context.Context, p model.Pattern) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
