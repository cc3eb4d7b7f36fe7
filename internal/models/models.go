package models

import (
	"fmt"
	"time"
)

// EmployerFinancials holds the financial snapshot fetched for a single
// employer from an external financial data provider. The employer itself is
// carried by the cache identifier, so Company is optional here.
type EmployerFinancials struct {
	Company    string  `json:"company,omitempty"`
	Revenue    float64 `json:"revenue"`
	Employees  int     `json:"employees,omitempty"`
	FiscalYear int     `json:"fiscal_year,omitempty"`
	Currency   string  `json:"currency,omitempty"`
}

func (e *EmployerFinancials) Validate() error {
	if e.Revenue < 0 {
		return fmt.Errorf("employer financials: revenue must be non-negative, got %f", e.Revenue)
	}
	if e.Employees < 0 {
		return fmt.Errorf("employer financials: employees must be non-negative, got %d", e.Employees)
	}
	return nil
}

// WARNNotice is a single WARN Act layoff notice.
type WARNNotice struct {
	Company       string `json:"company,omitempty"`
	Location      string `json:"location,omitempty"`
	Employees     int    `json:"employees"`
	NoticeDate    string `json:"notice_date,omitempty"`
	EffectiveDate string `json:"effective_date,omitempty"`
}

// WARNNoticeSet groups the WARN notices fetched for one state feed.
type WARNNoticeSet struct {
	State   string       `json:"state,omitempty"`
	Notices []WARNNotice `json:"notices"`
}

func (w *WARNNoticeSet) Validate() error {
	for i, n := range w.Notices {
		if n.Employees < 0 {
			return fmt.Errorf("warn notices: notice %d has negative employee count %d", i, n.Employees)
		}
	}
	return nil
}

// IndustryStatistics holds labor-statistics aggregates for one industry code.
type IndustryStatistics struct {
	IndustryCode    string  `json:"industry_code,omitempty"`
	IndustryName    string  `json:"industry_name,omitempty"`
	MeanAnnualWage  float64 `json:"mean_annual_wage,omitempty"`
	EmploymentTotal int64   `json:"employment_total,omitempty"`
	GrowthRatePct   float64 `json:"growth_rate_pct,omitempty"`
}

func (s *IndustryStatistics) Validate() error {
	if s.MeanAnnualWage < 0 {
		return fmt.Errorf("industry statistics: mean_annual_wage must be non-negative, got %f", s.MeanAnnualWage)
	}
	if s.EmploymentTotal < 0 {
		return fmt.Errorf("industry statistics: employment_total must be non-negative, got %d", s.EmploymentTotal)
	}
	return nil
}

// JobSecurityScore is the computed layoff-risk score for one user.
type JobSecurityScore struct {
	UserID     int64     `json:"user_id,omitempty"`
	Score      float64   `json:"score"`
	RiskLevel  string    `json:"risk_level,omitempty"`
	Factors    []string  `json:"factors,omitempty"`
	ComputedAt time.Time `json:"computed_at,omitzero"`
}

func (j *JobSecurityScore) Validate() error {
	if j.UserID < 0 {
		return fmt.Errorf("job security score: user_id must be non-negative, got %d", j.UserID)
	}
	if j.Score < 0 || j.Score > 100 {
		return fmt.Errorf("job security score: score must be in [0,100], got %f", j.Score)
	}
	return nil
}

// LaborMarketSnapshot holds regional labor-market indicators.
type LaborMarketSnapshot struct {
	Region              string  `json:"region,omitempty"`
	UnemploymentRatePct float64 `json:"unemployment_rate_pct"`
	OpeningsPerCapita   float64 `json:"openings_per_capita,omitempty"`
	MedianWage          float64 `json:"median_wage,omitempty"`
	Period              string  `json:"period,omitempty"`
}

func (l *LaborMarketSnapshot) Validate() error {
	if l.UnemploymentRatePct < 0 || l.UnemploymentRatePct > 100 {
		return fmt.Errorf("labor market snapshot: unemployment_rate_pct must be in [0,100], got %f", l.UnemploymentRatePct)
	}
	return nil
}
