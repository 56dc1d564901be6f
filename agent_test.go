package main

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// routeChat dispatches on the system prompt so one stub can answer both
// classification and narrative calls.
func routeChat(classifyFor func(userPrompt string) (string, error), narrativeFor func(userPrompt string) (string, error)) chatFunc {
	return func(systemPrompt, userPrompt string, temperature float64) (string, LLMUsage, error) {
		switch systemPrompt {
		case prSystemPrompt, commitSystemPrompt:
			resp, err := classifyFor(userPrompt)
			return resp, LLMUsage{}, err
		case narrativeSystemPrompt:
			resp, err := narrativeFor(userPrompt)
			return resp, LLMUsage{}, err
		}
		return "", LLMUsage{}, fmt.Errorf("unexpected system prompt: %s", systemPrompt)
	}
}

func testAgent(chat chatFunc) *Agent {
	return &Agent{
		classify:  NewClassifier(chat, nil, 3),
		narrative: NewNarrativeGenerator(chat),
	}
}

func verdictJSON(qualifies bool, confidence float64) string {
	return fmt.Sprintf(`{"qualifies": %t, "confidence_score": %f}`, qualifies, confidence)
}

func prFixture(number int, title string) PullRequest {
	return PullRequest{
		Number:     number,
		Title:      title,
		CreatedAt:  time.Date(2026, 3, number, 0, 0, 0, 0, time.UTC),
		CommitSHAs: []string{fmt.Sprintf("sha%d", number)},
	}
}

func TestProcessPullRequestsFiltering(t *testing.T) {
	// PR #1 qualifies above threshold, #2 exactly at threshold, #3 below,
	// #4 does not qualify despite high confidence.
	verdicts := map[int]string{
		1: verdictJSON(true, 95),
		2: verdictJSON(true, 90),
		3: verdictJSON(true, 89),
		4: verdictJSON(false, 99),
	}

	chat := routeChat(
		func(userPrompt string) (string, error) {
			for number, verdict := range verdicts {
				if strings.Contains(userPrompt, fmt.Sprintf("Number: #%d\n", number)) {
					return verdict, nil
				}
			}
			return "", fmt.Errorf("no verdict fixture matched")
		},
		func(userPrompt string) (string, error) { return fullNarrativeResponse(), nil },
	)
	agent := testAgent(chat)

	prs := []PullRequest{prFixture(1, "a"), prFixture(2, "b"), prFixture(3, "c"), prFixture(4, "d")}
	activities, stats := agent.ProcessPullRequests(prs, nil, 90)

	if stats.Seen != 4 {
		t.Errorf("Seen = %d, want 4", stats.Seen)
	}
	if stats.Failed != 0 {
		t.Errorf("Failed = %d, want 0", stats.Failed)
	}
	if stats.Qualifying != 2 {
		t.Fatalf("Qualifying = %d, want 2 (threshold is inclusive)", stats.Qualifying)
	}
	// Output order follows input order.
	if activities[0].ID != "pr_1" || activities[1].ID != "pr_2" {
		t.Errorf("activity order = %s, %s", activities[0].ID, activities[1].ID)
	}
	if activities[1].Confidence != 90 {
		t.Errorf("boundary activity confidence = %f, want 90", activities[1].Confidence)
	}
}

func TestProcessPullRequestsFailureIsolation(t *testing.T) {
	// #1 fails classification, #2 fails narrative generation, #3 succeeds.
	chat := routeChat(
		func(userPrompt string) (string, error) {
			if strings.Contains(userPrompt, "Number: #1\n") {
				return "", fmt.Errorf("model timeout")
			}
			return verdictJSON(true, 80), nil
		},
		func(userPrompt string) (string, error) {
			if strings.Contains(userPrompt, `"pr_2"`) {
				return `{"title": "only a title"}`, nil
			}
			return fullNarrativeResponse(), nil
		},
	)
	agent := testAgent(chat)

	prs := []PullRequest{prFixture(1, "a"), prFixture(2, "b"), prFixture(3, "c")}
	activities, stats := agent.ProcessPullRequests(prs, nil, 50)

	if stats.Failed != 2 {
		t.Errorf("Failed = %d, want 2", stats.Failed)
	}
	if stats.Qualifying != 1 {
		t.Fatalf("Qualifying = %d, want 1", stats.Qualifying)
	}
	if activities[0].ID != "pr_3" {
		t.Errorf("surviving activity = %s, want pr_3", activities[0].ID)
	}
}

func TestProcessPullRequestsEmptyInput(t *testing.T) {
	calls := 0
	chat := func(systemPrompt, userPrompt string, temperature float64) (string, LLMUsage, error) {
		calls++
		return "", LLMUsage{}, nil
	}
	agent := testAgent(chat)

	activities, stats := agent.ProcessPullRequests(nil, nil, 50)
	if calls != 0 {
		t.Errorf("empty batch made %d model calls", calls)
	}
	if len(activities) != 0 || stats.Seen != 0 {
		t.Errorf("empty batch produced activities=%d seen=%d", len(activities), stats.Seen)
	}
}

func TestProcessPullRequestsMatchesCommits(t *testing.T) {
	var sawPrompt string
	chat := routeChat(
		func(userPrompt string) (string, error) {
			sawPrompt = userPrompt
			return verdictJSON(false, 0), nil
		},
		func(userPrompt string) (string, error) { return fullNarrativeResponse(), nil },
	)
	agent := testAgent(chat)

	commits := []Commit{
		{SHA: "sha1", Message: "matching commit", Additions: 10},
		{SHA: "other", Message: "unrelated commit"},
	}
	agent.ProcessPullRequests([]PullRequest{prFixture(1, "a")}, commits, 50)

	if !strings.Contains(sawPrompt, "matching commit") {
		t.Error("prompt missing the PR's own commit")
	}
	if strings.Contains(sawPrompt, "unrelated commit") {
		t.Error("prompt includes a commit that is not part of the PR")
	}
}

func TestAnalyzeRepositoryEndToEnd(t *testing.T) {
	db := openTestDB(t)

	chat := routeChat(
		func(userPrompt string) (string, error) { return verdictJSON(true, 75), nil },
		func(userPrompt string) (string, error) { return fullNarrativeResponse(), nil },
	)
	cfg := Config{
		CompanyName:     "Acme Ltd",
		MonthsBack:      6,
		MinConfidence:   50,
		ReportOutputDir: t.TempDir(),
	}

	agent := &Agent{
		cfg:       cfg,
		db:        db,
		store:     NewCriteriaStore(db, stubEmbed),
		classify:  NewClassifier(chat, nil, 3),
		narrative: NewNarrativeGenerator(chat),
		fetchCommits: func(token, repo string, since, until time.Time) ([]Commit, error) {
			return []Commit{{SHA: "sha1", Message: "work"}}, nil
		},
		fetchPRs: func(token, repo string, since time.Time) ([]PullRequest, error) {
			return []PullRequest{prFixture(1, "feature")}, nil
		},
	}

	result, err := agent.AnalyzeRepository("acme/widget")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if result.RunID == "" {
		t.Error("missing run id")
	}
	if result.Stats.Qualifying != 1 {
		t.Errorf("Qualifying = %d, want 1", result.Stats.Qualifying)
	}
	if result.ReportPath == "" {
		t.Fatal("missing report path")
	}

	// Run and activities must be persisted.
	stored, err := GetActivitiesByRun(db, result.RunID)
	if err != nil {
		t.Fatalf("loading stored activities: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored activities = %d, want 1", len(stored))
	}
	if stored[0].Title != "Adaptive Index Compaction" {
		t.Errorf("stored title = %q", stored[0].Title)
	}
}

func TestAnalyzeRepositoryDegradesWithoutCommits(t *testing.T) {
	db := openTestDB(t)

	chat := routeChat(
		func(userPrompt string) (string, error) { return verdictJSON(false, 0), nil },
		func(userPrompt string) (string, error) { return fullNarrativeResponse(), nil },
	)
	agent := &Agent{
		cfg:       Config{MonthsBack: 3, MinConfidence: 50, ReportOutputDir: t.TempDir()},
		db:        db,
		store:     NewCriteriaStore(db, stubEmbed),
		classify:  NewClassifier(chat, nil, 3),
		narrative: NewNarrativeGenerator(chat),
		fetchCommits: func(token, repo string, since, until time.Time) ([]Commit, error) {
			return nil, fmt.Errorf("rate limited")
		},
		fetchPRs: func(token, repo string, since time.Time) ([]PullRequest, error) {
			return []PullRequest{prFixture(1, "feature")}, nil
		},
	}

	result, err := agent.AnalyzeRepository("acme/widget")
	if err != nil {
		t.Fatalf("commit fetch failure should not abort the run: %v", err)
	}
	if result.CommitsSeen != 0 || result.PRsSeen != 1 {
		t.Errorf("commits=%d prs=%d", result.CommitsSeen, result.PRsSeen)
	}
}

func TestAnalyzeRepositoryPRFetchFailure(t *testing.T) {
	db := openTestDB(t)

	agent := &Agent{
		cfg:   Config{MonthsBack: 3, ReportOutputDir: t.TempDir()},
		db:    db,
		store: NewCriteriaStore(db, stubEmbed),
		fetchCommits: func(token, repo string, since, until time.Time) ([]Commit, error) {
			return nil, nil
		},
		fetchPRs: func(token, repo string, since time.Time) ([]PullRequest, error) {
			return nil, fmt.Errorf("repo not found")
		},
	}

	if _, err := agent.AnalyzeRepository("acme/missing"); err == nil {
		t.Fatal("PR listing failure should abort the run")
	}
}
