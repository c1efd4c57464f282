package audit

import (
	"sort"
	"sync"
	"time"
)

// Collector aggregates in-process counters behind GET /metrics. It is a
// running total since process start; durable analytics belong to whatever
// scrapes the OpenTelemetry stream.
type Collector struct {
	mu              sync.Mutex
	totalRequests   int
	approved        int
	denied          int
	escalations     int
	artifactsShared map[string]int
	responseTimes   []time.Duration
	errors          int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{artifactsShared: make(map[string]int)}
}

// RecordRequest tallies one processed request.
func (c *Collector) RecordRequest(approved, escalated bool, artifacts []string, responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	if approved {
		c.approved++
	} else {
		c.denied++
	}
	if escalated {
		c.escalations++
	}
	for _, a := range artifacts {
		c.artifactsShared[a]++
	}
	c.responseTimes = append(c.responseTimes, responseTime)
}

// RecordError tallies one processing failure.
func (c *Collector) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
}

// ArtifactCount is one entry of the top-artifacts leaderboard.
type ArtifactCount struct {
	Artifact string `json:"artifact"`
	Count    int    `json:"count"`
}

// Summary is the JSON shape served by GET /metrics. Rates are percentages.
type Summary struct {
	TotalRequests      int             `json:"total_requests"`
	ApprovalRate       float64         `json:"approval_rate"`
	EscalationRate     float64         `json:"escalation_rate"`
	AvgResponseSeconds float64         `json:"avg_response_time"`
	TopArtifacts       []ArtifactCount `json:"top_artifacts"`
	ErrorCount         int             `json:"error_count"`
}

// Summarize computes the current summary.
func (c *Collector) Summarize() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		TotalRequests: c.totalRequests,
		ErrorCount:    c.errors,
		TopArtifacts:  []ArtifactCount{},
	}
	if c.totalRequests > 0 {
		s.ApprovalRate = float64(c.approved) / float64(c.totalRequests) * 100
		s.EscalationRate = float64(c.escalations) / float64(c.totalRequests) * 100
	}
	if len(c.responseTimes) > 0 {
		var total time.Duration
		for _, d := range c.responseTimes {
			total += d
		}
		s.AvgResponseSeconds = (total / time.Duration(len(c.responseTimes))).Seconds()
	}

	for a, n := range c.artifactsShared {
		s.TopArtifacts = append(s.TopArtifacts, ArtifactCount{Artifact: a, Count: n})
	}
	sort.Slice(s.TopArtifacts, func(i, j int) bool {
		if s.TopArtifacts[i].Count != s.TopArtifacts[j].Count {
			return s.TopArtifacts[i].Count > s.TopArtifacts[j].Count
		}
		return s.TopArtifacts[i].Artifact < s.TopArtifacts[j].Artifact
	})
	if len(s.TopArtifacts) > 5 {
		s.TopArtifacts = s.TopArtifacts[:5]
	}
	return s
}
