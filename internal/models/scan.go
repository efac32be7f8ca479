package models

// Scan mirrors engine.ScanState so scan history survives restarts.
type Scan struct {
	UUID            string  `gorm:"primaryKey;type:varchar(64)" json:"uuid"`
	Target          string  `json:"target"`
	BaseURL         string  `json:"base_url"`
	Status          string  `gorm:"index" json:"status"`
	Done            int     `json:"done"`
	Total           int     `json:"total"`
	Progress        float64 `json:"progress"`
	Findings        int     `json:"findings"`
	CapturedRecords int     `json:"captured_records"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	CreatedAt       int64   `json:"created_at"`
	UpdatedAt       int64   `json:"updated_at"`
	FinishedAt      int64   `json:"finished_at,omitempty"`
}
