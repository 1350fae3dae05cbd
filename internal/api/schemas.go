package api

import "github.com/heimdex/heimdex-edit/internal/upload"

type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeS        int64  `json:"uptime_s"`
	ActiveSessions int    `json:"active_sessions"`
	ActivePreviews int    `json:"active_previews"`
}

type InstructionRequest struct {
	Instruction string `json:"instruction"`
}

type WidgetResponse struct {
	State        string `json:"state"`
	FileName     string `json:"file_name,omitempty"`
	Error        string `json:"error,omitempty"`
	Instruction  string `json:"instruction"`
	PreviewURL   string `json:"preview_url,omitempty"`
	MaxSize      int64  `json:"max_size"`
	MaxSizeLabel string `json:"max_size_label"`
	PickerArmed  bool   `json:"picker_armed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ViewToResponse(v upload.View) WidgetResponse {
	return WidgetResponse{
		State:        string(v.State),
		FileName:     v.FileName,
		Error:        v.ErrorMessage,
		Instruction:  v.Instruction,
		PreviewURL:   v.PreviewURL,
		MaxSize:      v.MaxSize,
		MaxSizeLabel: v.MaxSizeLabel,
		PickerArmed:  v.PickerArmed,
	}
}
