// Package backend talks to the model-serving daemon.
//
// The Backend interface is what the rest of the dashboard consumes; Client is
// the HTTP implementation against the daemon's /api endpoints. Fetch calls
// never retry: retry policy belongs to the poller.
package backend

import (
	"context"
	"iter"

	"modeldash/pkg/types"
)

// Backend is the set of daemon operations the dashboard needs.
type Backend interface {
	// ListInstalled returns the models present on the daemon.
	ListInstalled(ctx context.Context) ([]types.InstalledModel, error)
	// ListRunning returns the models currently loaded.
	ListRunning(ctx context.Context) ([]types.RunningModel, error)
	// Show returns the inspection record of one installed model.
	Show(ctx context.Context, name string) (types.DetailRecord, error)
	// Delete removes an installed model.
	Delete(ctx context.Context, name string) error
	// Pull downloads a model. The returned sequence is lazy: nothing is sent
	// until it is ranged over, and it can be ranged over once.
	Pull(ctx context.Context, name string) iter.Seq2[types.ProgressEvent, error]
	// Create builds a model from a Modelfile definition. Same contract as Pull.
	Create(ctx context.Context, name, modelfile string) iter.Seq2[types.ProgressEvent, error]
}
