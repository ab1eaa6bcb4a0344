// Package memory registers a non-durable store driver for dev mode and tests.
package memory

import (
	"context"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/directory"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/records"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/store"
)

func init() {
	store.Register("memory", NewDriver)
}

// Driver keeps all state in process memory. Everything is lost on exit.
type Driver struct {
	ledger    *familyaccess.MemoryLedger
	directory *directory.MemoryStore
	records   *records.MemoryStore
}

// NewDriver creates a memory driver. The config is ignored.
func NewDriver(*store.DriverConfig) (store.Driver, error) {
	return &Driver{
		ledger:    familyaccess.NewMemoryLedger(),
		directory: directory.NewMemoryStore(),
		records:   records.NewMemoryStore(),
	}, nil
}

func (d *Driver) Name() string { return "memory" }
func (d *Driver) Init(context.Context) error { return nil }
func (d *Driver) Close() error { return nil }
func (d *Driver) Ping(context.Context) error { return nil }
func (d *Driver) Ledger() familyaccess.Ledger { return d.ledger }
func (d *Driver) Directory() directory.Store { return d.directory }
func (d *Driver) Records() records.Store { return d.records }
