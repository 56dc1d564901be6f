package main

import "time"

type Commit struct {
	SHA          string
	Message      string
	Author       string
	Date         time.Time
	FilesChanged []string
	Additions    int
	Deletions    int
	DiffSnippet  string
	URL          string
}

type PullRequest struct {
	Number      int
	Title       string
	Description string
	Author      string
	CreatedAt   time.Time
	MergedAt    time.Time // zero when the PR is still open
	CommitSHAs  []string
	Labels      []string
	Comments    []string
	URL         string
}

// Classification is the structured eligibility verdict for one commit or PR.
// Confidence is always within [0, 100]; parseClassification clamps it.
type Classification struct {
	Qualifies  bool
	Confidence float64

	HasTechnologicalUncertainty bool
	UncertaintyDescription      string

	HasSystematicInvestigation bool
	SystematicApproach         string

	AchievesTechnicalAdvance bool
	AdvanceDescription       string

	EvidenceQuality    string // "strong", "moderate", or "weak"
	SupportingEvidence []string

	Reasoning   string
	Limitations string
}

// Activity is a qualifying piece of work expanded into report-ready prose.
type Activity struct {
	ID          string
	Title       string
	Description string
	Timeframe   string

	TechnologicalUncertainty string
	SystematicInvestigation  string
	TechnicalAdvance         string

	Commits      []string // contributing commit SHAs
	PullRequests []int

	Confidence float64
	CreatedAt  time.Time
}

// ActivityRef carries the evidence identifiers handed to the narrative
// generator. The generator copies these through; it never asks the model
// for them.
type ActivityRef struct {
	ID           string
	Commits      []string
	PullRequests []int
	CreatedAt    time.Time
}

type CriterionChunk struct {
	ID        string
	Category  string // "advance", "uncertainty", "systematic", "evidence", "exclusion", "software"
	Text      string
	Section   string
	Embedding []float32
}

type RetrievedCriterion struct {
	CriterionChunk
	Distance float64
}

// AnalysisWindow returns the [from, to) range covering monthsBack months
// before now. A month is counted as 30 days.
func AnalysisWindow(now time.Time, monthsBack int) (time.Time, time.Time) {
	if monthsBack < 1 {
		monthsBack = 1
	}
	return now.AddDate(0, 0, -monthsBack*30), now
}
