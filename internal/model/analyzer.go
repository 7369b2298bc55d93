package model

import (
	"context"
	"time"
)

// AlertReport is the attack summary handed to an analyzer.
type AlertReport struct {
	Summary string // markdown table of the grouped attacks
	Attacks int
	Since   time.Time
	Until   time.Time
}

// Analyzer defines the standard interface for an AI analyzer.
type Analyzer interface {
	// AnalyzeAlerts receives an attack report and returns the analysis from the AI model.
	AnalyzeAlerts(ctx context.Context, report AlertReport) (string, error)
}
