package backend

import (
	"time"

	"modeldash/pkg/types"
)

// Wire formats of the daemon API. Only fields the dashboard shows are decoded.

type wireDetails struct {
	ParentModel       string   `json:"parent_model"`
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

type wireListModel struct {
	Name       string      `json:"name"`
	Model      string      `json:"model"`
	ModifiedAt time.Time   `json:"modified_at"`
	Size       int64       `json:"size"`
	Digest     string      `json:"digest"`
	Details    wireDetails `json:"details"`
}

type wireListResponse struct {
	Models []wireListModel `json:"models"`
}

type wireProcessModel struct {
	Name      string      `json:"name"`
	Model     string      `json:"model"`
	Size      int64       `json:"size"`
	Digest    string      `json:"digest"`
	Details   wireDetails `json:"details"`
	ExpiresAt time.Time   `json:"expires_at"`
	SizeVRAM  int64       `json:"size_vram"`
}

type wireProcessResponse struct {
	Models []wireProcessModel `json:"models"`
}

type wireShowResponse struct {
	Modelfile  string         `json:"modelfile"`
	Parameters string         `json:"parameters"`
	Template   string         `json:"template"`
	License    string         `json:"license"`
	Details    *wireDetails   `json:"details"`
	ModelInfo  map[string]any `json:"model_info"`
	ModifiedAt time.Time      `json:"modified_at"`
}

type wireModelRequest struct {
	Model string `json:"model"`
}

type wirePullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type wireCreateRequest struct {
	Model     string `json:"model"`
	Modelfile string `json:"modelfile"`
	Stream    bool   `json:"stream"`
}

type wireProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

type wireError struct {
	Error string `json:"error"`
}

type wireVersion struct {
	Version string `json:"version"`
}

func (m wireListModel) toInstalled() types.InstalledModel {
	name := m.Model
	if name == "" {
		name = m.Name
	}
	return types.InstalledModel{
		Name:              name,
		Size:              m.Size,
		ModifiedAt:        m.ModifiedAt,
		Digest:            m.Digest,
		Format:            m.Details.Format,
		Family:            m.Details.Family,
		Families:          m.Details.Families,
		ParameterSize:     m.Details.ParameterSize,
		QuantizationLevel: m.Details.QuantizationLevel,
	}
}

func (m wireProcessModel) toRunning() types.RunningModel {
	return types.RunningModel{
		Name:      m.Name,
		Model:     m.Model,
		ExpiresAt: m.ExpiresAt,
		Size:      m.Size,
		SizeVRAM:  m.SizeVRAM,
		Digest:    m.Digest,
	}
}

func (r wireShowResponse) toDetail(name string) types.DetailRecord {
	out := types.DetailRecord{
		Name:       name,
		ModifiedAt: r.ModifiedAt,
		Template:   r.Template,
		Modelfile:  r.Modelfile,
		License:    r.License,
		Parameters: r.Parameters,
		ModelInfo:  r.ModelInfo,
	}
	if r.Details != nil {
		out.Details = &types.ModelDetails{
			ParentModel:       r.Details.ParentModel,
			Format:            r.Details.Format,
			Family:            r.Details.Family,
			Families:          r.Details.Families,
			ParameterSize:     r.Details.ParameterSize,
			QuantizationLevel: r.Details.QuantizationLevel,
		}
	}
	return out
}

func (p wireProgress) toEvent() types.ProgressEvent {
	return types.ProgressEvent{Status: p.Status, Digest: p.Digest, Completed: p.Completed, Total: p.Total}
}
