package domain

import (
	"math"
	"time"
)

// HighVolumeThreshold is the message count above which a project is flagged "High".
const HighVolumeThreshold = 10_000

type HistoryPoint struct {
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// BucketCount is a count grouped by a formatted time bucket ("2006-01-02 15:04" or "2006-01-02 15:00").
type BucketCount struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

type ModuleTrend struct {
	Module string `json:"module"`
	Hour   string `json:"hour"`
	Count  int64  `json:"count"`
}

type PublicationCount struct {
	Module string `json:"module"`
	Count  int64  `json:"count"`
}

type DeleteModuleResult struct {
	Measurements int64 `json:"measurements"`
	Publications int64 `json:"publications"`
}

type GlobalAnalysis struct {
	TotalMessages  int64   `json:"total_messages"`
	ComplianceRate float64 `json:"compliance_rate"`
	ActiveProjects int64   `json:"active_projects"`
}

type ProjectSummary struct {
	Name           string  `json:"name"`
	Total          int64   `json:"total"`
	Compliant      int64   `json:"compliant"`
	ComplianceRate float64 `json:"compliance_rate"`
	LastSeen       string  `json:"last_seen"`
	Score          float64 `json:"score"`
	Volume         string  `json:"volume"`
	UniqueTopics   int64   `json:"unique_topics"`
}

type TopicCount struct {
	Topic    string     `json:"topic"`
	Count    int64      `json:"count"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type LoggedMessage struct {
	Topic     string    `json:"topic"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	Compliant bool      `json:"is_compliant"`
}

type ProjectStats struct {
	Total     int64      `json:"total"`
	Compliant int64      `json:"compliant"`
	FirstSeen *time.Time `json:"first_seen"`
	LastSeen  *time.Time `json:"last_seen"`
}

type Frequency struct {
	Data []BucketCount `json:"data"`
	Max  int64         `json:"max"`
	Avg  float64       `json:"avg"`
}

type ProjectDetails struct {
	Project        string          `json:"project"`
	Stats          ProjectStats    `json:"stats"`
	Errors         []TopicCount    `json:"errors"`
	Frequency      Frequency       `json:"frequency"`
	Categories     []CategoryCount `json:"categories"`
	TopTopics      []TopicCount    `json:"top_topics"`
	Timeline       []BucketCount   `json:"timeline"`
	RecentMessages []LoggedMessage `json:"recent_messages"`
}

// NewGlobalAnalysis derives the compliance percentage, rounded to one decimal.
func NewGlobalAnalysis(total, compliant, active int64) GlobalAnalysis {
	var rate float64
	if total > 0 {
		rate = float64(compliant) / float64(total) * 100
	}
	return GlobalAnalysis{
		TotalMessages:  total,
		ComplianceRate: Round(rate, 1),
		ActiveProjects: active,
	}
}

// NewProjectSummary scores a project: score is the compliant share out of 100.
func NewProjectSummary(name string, total, compliant, uniqueTopics int64, lastSeen *time.Time) ProjectSummary {
	var ratio float64
	if total > 0 {
		ratio = float64(compliant) / float64(total)
	}
	volume := "Normal"
	if total > HighVolumeThreshold {
		volume = "High"
	}
	seen := "N/A"
	if lastSeen != nil && !lastSeen.IsZero() {
		seen = lastSeen.Format(time.RFC3339)
	}
	return ProjectSummary{
		Name:           name,
		Total:          total,
		Compliant:      compliant,
		ComplianceRate: Round(ratio*100, 1),
		LastSeen:       seen,
		Score:          Round(ratio*100, 0),
		Volume:         volume,
		UniqueTopics:   uniqueTopics,
	}
}

// NewFrequency summarises per-minute counts with their max and average.
func NewFrequency(data []BucketCount) Frequency {
	f := Frequency{Data: data}
	if len(data) == 0 {
		return f
	}
	var sum int64
	for _, d := range data {
		sum += d.Count
		if d.Count > f.Max {
			f.Max = d.Count
		}
	}
	f.Avg = Round(float64(sum)/float64(len(data)), 1)
	return f
}

func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
