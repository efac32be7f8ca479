package handlers

import "authfuzz/pkg/engine"

type ScanRequest struct {
	Target  string `json:"target" binding:"required"`
	BaseURL string `json:"base_url" binding:"required,url"`
	ScanID  string `json:"scan_id"`
}

type ScanResponse struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"`
}

type ScanListResponse struct {
	Scans []engine.ScanState `json:"scans"`
	Queue engine.QueueStatus `json:"queue"`
}

type SprayRequest struct {
	Mode          string `json:"mode" binding:"required,oneof=password jwt fixation"`
	BaseURL       string `json:"base_url" binding:"required,url"`
	LoginPath     string `json:"login_path"`
	Username      string `json:"username"`
	CheckPath     string `json:"check_path"`
	Limit         int    `json:"limit" binding:"gte=0"`
	Attempts      int    `json:"attempts" binding:"gte=0"`
	SessionCookie string `json:"session_cookie"`
}

type SprayResponse struct {
	SprayID string `json:"spray_id"`
	Status  string `json:"status"`
}
