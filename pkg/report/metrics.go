package report

import "math"

// ModeStats counts attempts and successes for one mode.
type ModeStats struct {
	TotalAttempts int `json:"total_attempts"`
	Successful    int `json:"successful"`
}

// Ratio is successes over attempts, nil when there were no attempts.
func (m ModeStats) Ratio() *float64 {
	if m.TotalAttempts == 0 {
		return nil
	}
	r := float64(m.Successful) / float64(m.TotalAttempts)
	return &r
}

// Metrics are the derived success rates of the spray modes. A nil ratio
// means the results file had no attempts of that mode.
type Metrics struct {
	UAR         *float64  `json:"UAR"`
	UARDetails  ModeStats `json:"UAR_details"`
	UAFT        *float64  `json:"UAFT"`
	UAFTDetails ModeStats `json:"UAFT_details"`
	USFX        *float64  `json:"USFX"`
	USFXDetails ModeStats `json:"USFX_details"`
	URPR        *float64  `json:"URPR"`
	URPRDetails ModeStats `json:"URPR_details"`
	ULIR        *float64  `json:"ULIR"`
	ULIRDetails ModeStats `json:"ULIR_details"`
	UTLA        *float64  `json:"UTLA"`
	Notes       string    `json:"notes,omitempty"`
}

// ComputeMetrics derives per-mode success ratios from raw attempts.
func ComputeMetrics(attempts []Attempt) Metrics {
	stats := map[string]*ModeStats{
		ModePassword: {},
		ModeJWT:      {},
		ModeFixation: {},
		ModeReplay:   {},
		ModeLogout:   {},
	}

	var ttlSum float64
	var ttlCount int

	for _, a := range attempts {
		mode := a.Mode
		if mode == "fix" {
			mode = ModeFixation
		}

		if mode == ModeTTL {
			if a.ObservedTTL != nil && a.ConfigTTL != nil {
				cfg := *a.ConfigTTL
				if cfg == 0 {
					cfg = 1
				}
				ttlSum += 1 - math.Abs(*a.ObservedTTL-cfg)/cfg
				ttlCount++
			}
			continue
		}

		s, ok := stats[mode]
		if !ok {
			continue
		}
		s.TotalAttempts++
		if a.OK {
			s.Successful++
		}
	}

	m := Metrics{
		UARDetails:  *stats[ModePassword],
		UAFTDetails: *stats[ModeJWT],
		USFXDetails: *stats[ModeFixation],
		URPRDetails: *stats[ModeReplay],
		ULIRDetails: *stats[ModeLogout],
	}
	m.UAR = m.UARDetails.Ratio()
	m.UAFT = m.UAFTDetails.Ratio()
	m.USFX = m.USFXDetails.Ratio()
	m.URPR = m.URPRDetails.Ratio()
	m.ULIR = m.ULIRDetails.Ratio()
	if ttlCount > 0 {
		utla := ttlSum / float64(ttlCount)
		m.UTLA = &utla
	}
	return m
}
