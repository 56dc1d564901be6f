package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Agent wires the collector, criteria store, classifier, and narrative
// generator into the end-to-end analysis workflow.
type Agent struct {
	cfg       Config
	db        *sql.DB
	store     *CriteriaStore
	classify  *Classifier
	narrative *NarrativeGenerator

	// Collector seams, replaced in tests.
	fetchCommits func(token, repo string, since, until time.Time) ([]Commit, error)
	fetchPRs     func(token, repo string, since time.Time) ([]PullRequest, error)
}

func NewAgent(cfg Config, db *sql.DB) *Agent {
	chat := NewChatClient(cfg)
	store := NewCriteriaStore(db, NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel))
	return &Agent{
		cfg:          cfg,
		db:           db,
		store:        store,
		classify:     NewClassifier(chat, store, cfg.RetrievalK),
		narrative:    NewNarrativeGenerator(chat),
		fetchCommits: FetchCommits,
		fetchPRs:     FetchPullRequests,
	}
}

// BatchStats are the user-facing counters for one processing batch.
type BatchStats struct {
	Seen       int
	Qualifying int
	Failed     int
}

// AnalysisResult summarizes one full repository run.
type AnalysisResult struct {
	RunID       string
	Repo        string
	PeriodStart time.Time
	PeriodEnd   time.Time
	CommitsSeen int
	PRsSeen     int
	Stats       BatchStats
	Activities  []Activity
	ReportPath  string
}

// ProcessPullRequests classifies each PR in input order, filters by the
// qualifies-and-confidence gate (threshold inclusive), and expands
// survivors into activities. A hard failure on one item is logged and
// skipped; later items are unaffected. Output order follows input order.
func (a *Agent) ProcessPullRequests(prs []PullRequest, commits []Commit, minConfidence float64) ([]Activity, BatchStats) {
	bySHA := make(map[string]int, len(commits))
	for i, c := range commits {
		bySHA[c.SHA] = i
	}

	var activities []Activity
	stats := BatchStats{Seen: len(prs)}

	for i, pr := range prs {
		if (i+1)%5 == 0 {
			log.Printf("classify progress %d/%d prs", i+1, len(prs))
		}

		var prCommits []Commit
		for _, sha := range pr.CommitSHAs {
			if idx, ok := bySHA[sha]; ok {
				prCommits = append(prCommits, commits[idx])
			}
		}

		verdict, err := a.classify.ClassifyPullRequest(pr, prCommits)
		if err != nil {
			log.Printf("classification failed pr=%d: %v", pr.Number, err)
			stats.Failed++
			continue
		}

		if !verdict.Qualifies || verdict.Confidence < minConfidence {
			continue
		}

		ref := ActivityRef{
			ID:           fmt.Sprintf("pr_%d", pr.Number),
			Commits:      pr.CommitSHAs,
			PullRequests: []int{pr.Number},
			CreatedAt:    pr.CreatedAt,
		}
		activity, err := a.narrative.Generate(verdict, ref)
		if err != nil {
			log.Printf("narrative failed pr=%d: %v", pr.Number, err)
			stats.Failed++
			continue
		}

		log.Printf("qualifies pr=%d confidence=%.0f title=%q", pr.Number, verdict.Confidence, truncate(pr.Title, 60))
		stats.Qualifying++
		activities = append(activities, activity)
	}

	return activities, stats
}

// AnalyzeRepository runs the whole workflow: fetch evidence, seed the
// criteria store, classify and expand, persist, render the report, and
// notify. Returns an error only when no evidence could be collected at
// all; per-item problems are counted, logged, and skipped.
func (a *Agent) AnalyzeRepository(repo string) (AnalysisResult, error) {
	from, to := AnalysisWindow(time.Now(), a.cfg.MonthsBack)
	result := AnalysisResult{
		RunID:       uuid.NewString(),
		Repo:        repo,
		PeriodStart: from,
		PeriodEnd:   to,
	}

	log.Printf("analyze repo=%s months=%d min_confidence=%.0f run=%s", repo, a.cfg.MonthsBack, a.cfg.MinConfidence, result.RunID)

	commits, err := a.fetchCommits(a.cfg.GitHubToken, repo, from, to)
	if err != nil {
		// PRs summarize their own commits, so a commit-listing failure
		// degrades the prompts rather than aborting the run.
		log.Printf("commit fetch failed, continuing without commit detail: %v", err)
		commits = nil
	}
	result.CommitsSeen = len(commits)

	prs, err := a.fetchPRs(a.cfg.GitHubToken, repo, from)
	if err != nil {
		return result, fmt.Errorf("fetching pull requests: %w", err)
	}
	result.PRsSeen = len(prs)
	log.Printf("collected commits=%d prs=%d", len(commits), len(prs))

	if err := a.store.Seed(); err != nil {
		log.Printf("criteria seeding failed, classifying without context: %v", err)
	}

	result.Activities, result.Stats = a.ProcessPullRequests(prs, commits, a.cfg.MinConfidence)

	if _, err := InsertActivities(a.db, result.RunID, result.Activities); err != nil {
		log.Printf("storing activities failed: %v", err)
	}

	path, err := WriteReportFile(BuildReport(result.Activities, repo, a.cfg.CompanyName, from, to), a.cfg.ReportOutputDir, repo, to)
	if err != nil {
		log.Printf("writing report failed: %v", err)
	} else {
		result.ReportPath = path
	}

	if err := InsertRun(a.db, RunRecord{
		ID:          result.RunID,
		Repo:        repo,
		PeriodStart: from,
		PeriodEnd:   to,
		CommitsSeen: result.CommitsSeen,
		PRsSeen:     result.PRsSeen,
		Qualifying:  result.Stats.Qualifying,
		Failed:      result.Stats.Failed,
		ReportPath:  result.ReportPath,
	}); err != nil {
		log.Printf("storing run record failed: %v", err)
	}

	logRunSummary(result)
	NotifyRunComplete(a.cfg, result)
	return result, nil
}

// QuickTest classifies up to n recent commits and prints the verdicts. No
// narratives, no report; meant for checking credentials and prompt output.
func (a *Agent) QuickTest(repo string, n int) error {
	from, to := AnalysisWindow(time.Now(), 1)
	commits, err := a.fetchCommits(a.cfg.GitHubToken, repo, from, to)
	if err != nil {
		return fmt.Errorf("fetching commits: %w", err)
	}
	commits = firstN(commits, n)

	if err := a.store.Seed(); err != nil {
		log.Printf("criteria seeding failed, classifying without context: %v", err)
	}

	for i, commit := range commits {
		log.Printf("quick-test commit %d/%d sha=%s message=%q", i+1, len(commits), shortSHA(commit.SHA), truncate(commit.Message, 100))
		verdict, err := a.classify.ClassifyCommit(commit)
		if err != nil {
			log.Printf("classification failed sha=%s: %v", shortSHA(commit.SHA), err)
			continue
		}
		log.Printf("verdict sha=%s qualifies=%t confidence=%.0f uncertainty=%t systematic=%t advance=%t",
			shortSHA(commit.SHA), verdict.Qualifies, verdict.Confidence,
			verdict.HasTechnologicalUncertainty, verdict.HasSystematicInvestigation, verdict.AchievesTechnicalAdvance)
		log.Printf("reasoning sha=%s: %s", shortSHA(commit.SHA), truncate(verdict.Reasoning, 200))
	}
	return nil
}

func logRunSummary(result AnalysisResult) {
	log.Printf("analysis complete repo=%s run=%s", result.Repo, result.RunID)
	log.Printf("period %s to %s", result.PeriodStart.Format("2006-01-02"), result.PeriodEnd.Format("2006-01-02"))
	log.Printf("commits=%d prs=%d qualifying=%d failed=%d", result.CommitsSeen, result.PRsSeen, result.Stats.Qualifying, result.Stats.Failed)
	if result.ReportPath != "" {
		log.Printf("report written to %s", result.ReportPath)
	}
}
