package types

import (
	"slices"
	"time"
)

// CollectionID names one mirrored resource set.
type CollectionID string

const (
	// CollectionInstalled is the set of models present on the daemon.
	CollectionInstalled CollectionID = "installed"
	// CollectionRunning is the set of models currently loaded into memory.
	CollectionRunning CollectionID = "running"
	// CollectionAll is used for the combined status across every collection.
	CollectionAll CollectionID = "all"
)

// InstalledModel is one row of the installed models table, keyed by Name.
type InstalledModel struct {
	// Model name including tag.
	// example: llama3.2:3b
	Name string `json:"model" example:"llama3.2:3b"`
	// Size on disk in bytes.
	// example: 2019393189
	Size int64 `json:"size" example:"2019393189"`
	// Last modification time reported by the daemon.
	ModifiedAt time.Time `json:"modified_at"`
	// Content digest of the model manifest.
	// example: a80c4f17acd5
	Digest string `json:"digest" example:"a80c4f17acd5"`
	// example: gguf
	Format string `json:"format,omitempty" example:"gguf"`
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
	Families []string `json:"families,omitempty"`
	// example: 3.2B
	ParameterSize string `json:"parameter_size,omitempty" example:"3.2B"`
	// example: Q4_K_M
	QuantizationLevel string `json:"quantization_level,omitempty" example:"Q4_K_M"`
}

// Key returns the identifier the installed collection is keyed by.
func (m InstalledModel) Key() string { return m.Name }

// Equal compares every attribute.
func (m InstalledModel) Equal(o InstalledModel) bool {
	return m.Name == o.Name &&
		m.Size == o.Size &&
		m.ModifiedAt.Equal(o.ModifiedAt) &&
		m.Digest == o.Digest &&
		m.Format == o.Format &&
		m.Family == o.Family &&
		slices.Equal(m.Families, o.Families) &&
		m.ParameterSize == o.ParameterSize &&
		m.QuantizationLevel == o.QuantizationLevel
}

// RunningModel is one row of the running models table, keyed by Name.
type RunningModel struct {
	// Running instance name.
	// example: llama3.2:3b
	Name string `json:"name" example:"llama3.2:3b"`
	// Model the instance was loaded from.
	// example: llama3.2:3b
	Model string `json:"model" example:"llama3.2:3b"`
	// Time at which the daemon unloads the instance. Zero when it never expires.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	// Total resident size in bytes.
	Size int64 `json:"size"`
	// Portion of Size held in VRAM.
	SizeVRAM int64 `json:"size_vram"`
	Digest   string `json:"digest"`
}

// Key returns the identifier the running collection is keyed by.
func (m RunningModel) Key() string { return m.Name }

// Equal compares every attribute.
func (m RunningModel) Equal(o RunningModel) bool {
	return m.Name == o.Name &&
		m.Model == o.Model &&
		m.ExpiresAt.Equal(o.ExpiresAt) &&
		m.Size == o.Size &&
		m.SizeVRAM == o.SizeVRAM &&
		m.Digest == o.Digest
}

// MinutesUntilExpiry rounds the remaining lifetime at now to whole minutes.
// The second result is false when the instance has no expiry.
func (m RunningModel) MinutesUntilExpiry(now time.Time) (int, bool) {
	if m.ExpiresAt.IsZero() {
		return 0, false
	}
	d := m.ExpiresAt.Sub(now)
	return int(d.Round(time.Minute) / time.Minute), true
}

// ModelDetails describes the model format and lineage.
type ModelDetails struct {
	ParentModel       string   `json:"parent_model,omitempty"`
	Format            string   `json:"format,omitempty"`
	Family            string   `json:"family,omitempty"`
	Families          []string `json:"families,omitempty"`
	ParameterSize     string   `json:"parameter_size,omitempty"`
	QuantizationLevel string   `json:"quantization_level,omitempty"`
}

// DetailRecord is the read-only inspection view of one installed model.
type DetailRecord struct {
	Name       string         `json:"model"`
	ModifiedAt time.Time      `json:"modified_at"`
	Template   string         `json:"template,omitempty"`
	Modelfile  string         `json:"modelfile,omitempty"`
	License    string         `json:"license,omitempty"`
	Parameters string         `json:"parameters,omitempty"`
	Details    *ModelDetails  `json:"details,omitempty"`
	ModelInfo  map[string]any `json:"model_info,omitempty"`
}

// ProgressEvent is one status line streamed by a pull or create.
type ProgressEvent struct {
	// example: pulling manifest
	Status string `json:"status" example:"pulling manifest"`
	Digest string `json:"digest,omitempty"`
	// Bytes completed so far; zero when not reported.
	Completed int64 `json:"completed,omitempty"`
	// Total bytes expected; zero when not reported.
	Total int64 `json:"total,omitempty"`
}

// Fraction returns completed/total, or 0 when either is not reported.
func (p ProgressEvent) Fraction() float64 {
	if p.Completed <= 0 || p.Total <= 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

// MutationKind names a user-initiated write operation.
type MutationKind string

const (
	MutationDelete MutationKind = "delete"
	MutationPull   MutationKind = "pull"
	MutationCreate MutationKind = "create"
)
