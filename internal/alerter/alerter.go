// Package alerter mails periodic summaries of the connections the classifier
// flagged as attacks.
package alerter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/model"
	"Go2NetKDD/internal/predictor"

	"github.com/gomarkdown/markdown"
	"go.uber.org/zap"
)

// Alerter collects ATTACK predictions and periodically mails a summary of
// them, optionally with an AI-written analysis.
type Alerter struct {
	source        <-chan predictor.Prediction
	notifier      model.Notifier
	analyzer      model.Analyzer
	checkInterval time.Duration
	minConfidence float64
	aiTimeout     time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup

	mu      sync.Mutex
	pending []predictor.Prediction
}

// NewAlerter creates a new Alerter reading from source. analyzer may be nil.
func NewAlerter(cfg *config.AlerterConfig, source <-chan predictor.Prediction, notifier model.Notifier, analyzer model.Analyzer) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}
	aiTimeout, err := time.ParseDuration(cfg.AIAnalysis.Timeout)
	if err != nil {
		aiTimeout = 60 * time.Second
	}

	a := &Alerter{
		source:        source,
		notifier:      notifier,
		checkInterval: interval,
		minConfidence: cfg.MinConfidence,
		aiTimeout:     aiTimeout,
		stopChan:      make(chan struct{}),
	}
	if cfg.AIAnalysis.Enabled {
		a.analyzer = analyzer
	}
	return a, nil
}

// Start begins consuming predictions in the background.
func (a *Alerter) Start() {
	zap.S().Infof("Alerter started, checking every %v for attacks with confidence >= %.2f", a.checkInterval, a.minConfidence)
	a.wg.Add(1)
	go a.run()
}

// Stop drains queued predictions and sends a last summary.
func (a *Alerter) Stop() {
	zap.S().Info("Stopping Alerter...")
	close(a.stopChan)
	a.wg.Wait()
	a.evaluate()
}

func (a *Alerter) run() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	source := a.source
	for {
		select {
		case p, ok := <-source:
			if !ok {
				source = nil
				continue
			}
			a.collect(p)
		case <-ticker.C:
			a.evaluate()
		case <-a.stopChan:
			for {
				select {
				case p, ok := <-source:
					if !ok {
						return
					}
					a.collect(p)
				default:
					return
				}
			}
		}
	}
}

func (a *Alerter) collect(p predictor.Prediction) {
	if p.Label != predictor.LabelAttack || p.Confidence < a.minConfidence {
		return
	}
	a.mu.Lock()
	a.pending = append(a.pending, p)
	a.mu.Unlock()
}

// evaluate sends one notification for the attacks collected since the last
// check and reports how many it covered.
func (a *Alerter) evaluate() int {
	a.mu.Lock()
	attacks := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(attacks) == 0 {
		return 0
	}
	zap.S().Infof("Alerter evaluation completed. %d attack(s) detected.", len(attacks))

	summary := Summarize(attacks, a.minConfidence)
	body := string(markdown.ToHTML([]byte(summary), nil, nil))

	aiAnalysis, err := a.getAIAnalysis(Report(attacks, summary))
	if err != nil {
		zap.S().Errorf("Failed to get AI analysis: %v", err)
	} else if aiAnalysis != "" {
		html := markdown.ToHTML([]byte(aiAnalysis), nil, nil)
		body += "<hr><h2>AI-Powered Analysis</h2>" + string(html)
	}

	if a.notifier != nil {
		subject := fmt.Sprintf("Go2NetKDD Attack Summary (%d Detected)", len(attacks))
		if err := a.notifier.Send(subject, body); err != nil {
			zap.S().Errorf("Failed to send attack notification: %v", err)
		} else {
			zap.S().Info("Attack notification sent successfully.")
		}
	}
	return len(attacks)
}

func (a *Alerter) getAIAnalysis(report model.AlertReport) (string, error) {
	if a.analyzer == nil {
		return "", nil
	}
	zap.S().Info("Requesting AI analysis for attack summary...")
	ctx, cancel := context.WithTimeout(context.Background(), a.aiTimeout)
	defer cancel()
	return a.analyzer.AnalyzeAlerts(ctx, report)
}

// Report wraps a rendered summary with the attack count and the time span of
// the predictions it covers.
func Report(attacks []predictor.Prediction, summary string) model.AlertReport {
	r := model.AlertReport{Summary: summary, Attacks: len(attacks)}
	for _, p := range attacks {
		if r.Since.IsZero() || p.Time.Before(r.Since) {
			r.Since = p.Time
		}
		if p.Time.After(r.Until) {
			r.Until = p.Time
		}
	}
	return r
}

type group struct {
	protocol, service, flag string
	count                   int
	maxConfidence           float64
	srcBytes, dstBytes      int64
}

// Summarize renders the attacks as a markdown report, grouped by protocol,
// service and flag with the largest groups first.
func Summarize(attacks []predictor.Prediction, minConfidence float64) string {
	groups := make(map[string]*group)
	for _, p := range attacks {
		fv := p.Features
		key := fv.ProtocolType + "/" + fv.Service + "/" + fv.Flag
		g, ok := groups[key]
		if !ok {
			g = &group{protocol: fv.ProtocolType, service: fv.Service, flag: fv.Flag}
			groups[key] = g
		}
		g.count++
		g.maxConfidence = max(g.maxConfidence, p.Confidence)
		g.srcBytes += fv.SrcBytes
		g.dstBytes += fv.DstBytes
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		return ordered[i].protocol+ordered[i].service+ordered[i].flag <
			ordered[j].protocol+ordered[j].service+ordered[j].flag
	})

	var sb strings.Builder
	sb.WriteString("# Go2NetKDD Attack Summary\n\n")
	fmt.Fprintf(&sb, "%d connection(s) were classified as ATTACK with confidence >= %.2f during the last check.\n\n",
		len(attacks), minConfidence)
	sb.WriteString("| Protocol | Service | Flag | Count | Max confidence | Src bytes | Dst bytes |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, g := range ordered {
		fmt.Fprintf(&sb, "| %s | %s | %s | %d | %.2f | %d | %d |\n",
			g.protocol, g.service, g.flag, g.count, g.maxConfidence, g.srcBytes, g.dstBytes)
	}
	return sb.String()
}
