package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// Classifier judges commits and pull requests against the three-part HMRC
// eligibility test, pulling relevant guidance chunks into the prompt first.
type Classifier struct {
	chat       chatFunc
	store      criteriaRetriever // nil disables retrieval context
	retrievalK int
}

type criteriaRetriever interface {
	Retrieve(query string, k int) ([]RetrievedCriterion, error)
}

func NewClassifier(chat chatFunc, store criteriaRetriever, retrievalK int) *Classifier {
	if retrievalK <= 0 {
		retrievalK = 3
	}
	return &Classifier{chat: chat, store: store, retrievalK: retrievalK}
}

// Low temperature keeps verdicts consistent across runs.
const classifyTemperature = 0.3

const commitSystemPrompt = `You are an expert in HMRC R&D tax relief criteria.
Analyze code changes to determine if they qualify as R&D work.
Be rigorous but fair in your assessment.`

const prSystemPrompt = `You are an expert in HMRC R&D tax relief criteria.
Analyze pull requests to identify R&D qualifying work.`

// classificationSchemaBlock is shared by the commit and PR prompts so the
// two never drift apart.
const classificationSchemaBlock = `HMRC R&D CRITERIA:
1. ADVANCE: Does this represent an advance in the field of science/technology, not just for this company?
2. UNCERTAINTY: Was there technological uncertainty that couldn't be readily resolved by a competent professional?
3. SYSTEMATIC: Was systematic investigation used to resolve the uncertainty?

Respond in JSON format with:
{
    "qualifies": boolean,
    "confidence_score": 0-100,
    "has_technological_uncertainty": boolean,
    "uncertainty_description": "What uncertainty existed?",
    "has_systematic_investigation": boolean,
    "systematic_approach": "How was it investigated?",
    "achieves_technical_advance": boolean,
    "advance_description": "What advance was achieved?",
    "evidence_quality": "strong|moderate|weak",
    "supporting_evidence": ["list", "of", "evidence", "points"],
    "reasoning": "Brief explanation of decision",
    "limitations": "Any concerns or weak points in the claim"
}`

// ClassifyCommit judges a single commit. The only side effect is the
// outbound model call.
func (c *Classifier) ClassifyCommit(commit Commit) (Classification, error) {
	criteria := c.retrieveContext(commit.Message + "\n" + commit.DiffSnippet)
	prompt := buildCommitPrompt(commit, criteria)

	responseText, _, err := c.chat(commitSystemPrompt, prompt, classifyTemperature)
	if err != nil {
		return Classification{}, err
	}
	return parseClassification(responseText)
}

// ClassifyPullRequest judges a whole PR together with its child commits.
func (c *Classifier) ClassifyPullRequest(pr PullRequest, commits []Commit) (Classification, error) {
	criteria := c.retrieveContext(pr.Title + "\n" + pr.Description)
	prompt := buildPRPrompt(pr, commits, criteria)

	responseText, _, err := c.chat(prSystemPrompt, prompt, classifyTemperature)
	if err != nil {
		return Classification{}, err
	}
	return parseClassification(responseText)
}

// retrieveContext never fails a classification: when the store is missing
// or the lookup errors, the item is classified without guidance context.
func (c *Classifier) retrieveContext(query string) []RetrievedCriterion {
	if c.store == nil {
		return nil
	}
	criteria, err := c.store.Retrieve(query, c.retrievalK)
	if err != nil {
		log.Printf("criteria retrieval failed, classifying without context: %v", err)
		return nil
	}
	return criteria
}

func buildCommitPrompt(commit Commit, criteria []RetrievedCriterion) string {
	var b strings.Builder
	b.WriteString("Analyze this commit for R&D tax eligibility according to HMRC criteria.\n\n")
	b.WriteString("COMMIT DETAILS:\n")
	b.WriteString(fmt.Sprintf("SHA: %s\n", shortSHA(commit.SHA)))
	b.WriteString(fmt.Sprintf("Author: %s\n", commit.Author))
	b.WriteString(fmt.Sprintf("Date: %s\n", commit.Date.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Message: %s\n\n", strings.TrimSpace(commit.Message)))

	b.WriteString(fmt.Sprintf("FILES CHANGED: %d files\n", len(commit.FilesChanged)))
	b.WriteString(strings.Join(firstN(commit.FilesChanged, 5), ", "))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("CODE CHANGES: +%d/-%d lines\n\n", commit.Additions, commit.Deletions))
	b.WriteString("DIFF SNIPPET:\n")
	b.WriteString(commit.DiffSnippet)
	b.WriteString("\n")

	b.WriteString(criteriaContextBlock(criteria))
	b.WriteString("\n")
	b.WriteString(classificationSchemaBlock)
	return b.String()
}

func buildPRPrompt(pr PullRequest, commits []Commit, criteria []RetrievedCriterion) string {
	status := "Open"
	if !pr.MergedAt.IsZero() {
		status = "Merged"
	}

	var commitLines strings.Builder
	for _, c := range firstN(commits, 5) {
		commitLines.WriteString(fmt.Sprintf("- %s (+%d/-%d)\n", truncate(strings.TrimSpace(c.Message), 100), c.Additions, c.Deletions))
	}

	firstComment := "None"
	if len(pr.Comments) > 0 {
		firstComment = truncate(pr.Comments[0], 200)
	}

	var b strings.Builder
	b.WriteString("Analyze this pull request for R&D tax eligibility according to HMRC criteria.\n\n")
	b.WriteString("PR DETAILS:\n")
	b.WriteString(fmt.Sprintf("Number: #%d\n", pr.Number))
	b.WriteString(fmt.Sprintf("Title: %s\n", pr.Title))
	b.WriteString(fmt.Sprintf("Author: %s\n", pr.Author))
	b.WriteString(fmt.Sprintf("Created: %s\n", pr.CreatedAt.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Status: %s\n", status))
	b.WriteString(fmt.Sprintf("Labels: %s\n\n", strings.Join(pr.Labels, ", ")))

	b.WriteString("DESCRIPTION:\n")
	b.WriteString(truncate(pr.Description, 500))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("COMMITS (%d total):\n", len(commits)))
	b.WriteString(commitLines.String())
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("COMMENTS (%d):\n%s\n", len(pr.Comments), firstComment))

	b.WriteString(criteriaContextBlock(criteria))
	b.WriteString("\n")
	b.WriteString(classificationSchemaBlock)
	return b.String()
}

func criteriaContextBlock(criteria []RetrievedCriterion) string {
	if len(criteria) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nRELEVANT HMRC CRITERIA:\n")
	for _, criterion := range criteria {
		b.WriteString(fmt.Sprintf("- %s\n", strings.TrimSpace(criterion.Text)))
	}
	return b.String()
}

type classificationResponse struct {
	Qualifies                   bool     `json:"qualifies"`
	ConfidenceScore             float64  `json:"confidence_score"`
	HasTechnologicalUncertainty bool     `json:"has_technological_uncertainty"`
	UncertaintyDescription      string   `json:"uncertainty_description"`
	HasSystematicInvestigation  bool     `json:"has_systematic_investigation"`
	SystematicApproach          string   `json:"systematic_approach"`
	AchievesTechnicalAdvance    bool     `json:"achieves_technical_advance"`
	AdvanceDescription          string   `json:"advance_description"`
	EvidenceQuality             string   `json:"evidence_quality"`
	SupportingEvidence          []string `json:"supporting_evidence"`
	Reasoning                   string   `json:"reasoning"`
	Limitations                 string   `json:"limitations"`
}

// parseClassification is deliberately lenient: missing fields fall back to
// safe defaults so one omitted key never sinks the item. Only a payload
// that isn't a JSON object at all is an error.
func parseClassification(responseText string) (Classification, error) {
	responseText = stripJSONFences(responseText)

	var parsed classificationResponse
	if err := json.Unmarshal([]byte(responseText), &parsed); err != nil {
		truncated := truncate(responseText, 512)
		return Classification{}, fmt.Errorf("parsing classification response: %w (response: %s)", err, truncated)
	}

	quality := strings.ToLower(strings.TrimSpace(parsed.EvidenceQuality))
	switch quality {
	case "strong", "moderate", "weak":
	default:
		quality = "weak"
	}

	return Classification{
		Qualifies:                   parsed.Qualifies,
		Confidence:                  clampConfidence(parsed.ConfidenceScore),
		HasTechnologicalUncertainty: parsed.HasTechnologicalUncertainty,
		UncertaintyDescription:      parsed.UncertaintyDescription,
		HasSystematicInvestigation:  parsed.HasSystematicInvestigation,
		SystematicApproach:          parsed.SystematicApproach,
		AchievesTechnicalAdvance:    parsed.AchievesTechnicalAdvance,
		AdvanceDescription:          parsed.AdvanceDescription,
		EvidenceQuality:             quality,
		SupportingEvidence:          parsed.SupportingEvidence,
		Reasoning:                   parsed.Reasoning,
		Limitations:                 parsed.Limitations,
	}, nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func firstN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
