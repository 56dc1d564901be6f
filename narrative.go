package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NarrativeGenerator expands an accepted verdict into report prose. Unlike
// classification, every field here is required: a report entry without a
// title or narrative is useless, so a missing field fails the item.
type NarrativeGenerator struct {
	chat chatFunc
}

func NewNarrativeGenerator(chat chatFunc) *NarrativeGenerator {
	return &NarrativeGenerator{chat: chat}
}

// Higher temperature than classification: prose should read naturally
// across activities, not repeat itself.
const narrativeTemperature = 0.7

const narrativeSystemPrompt = `You are a technical writer specializing in R&D tax documentation.`

// Generate produces the full activity write-up. Confidence and evidence
// identifiers come from the verdict and reference, never from the model.
func (g *NarrativeGenerator) Generate(verdict Classification, ref ActivityRef) (Activity, error) {
	prompt := buildNarrativePrompt(verdict, ref)

	responseText, _, err := g.chat(narrativeSystemPrompt, prompt, narrativeTemperature)
	if err != nil {
		return Activity{}, err
	}
	return parseActivity(responseText, verdict, ref)
}

func buildNarrativePrompt(verdict Classification, ref ActivityRef) string {
	refJSON, err := json.MarshalIndent(map[string]any{
		"id":            ref.ID,
		"commits":       ref.Commits,
		"pull_requests": ref.PullRequests,
		"created_at":    ref.CreatedAt.Format("2006-01-02"),
	}, "", "  ")
	if err != nil {
		refJSON = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("Based on this R&D classification, generate a professional technical narrative\n")
	b.WriteString("suitable for an HMRC R&D tax relief claim.\n\n")
	b.WriteString("CLASSIFICATION:\n")
	b.WriteString(fmt.Sprintf("- Qualifies: %t\n", verdict.Qualifies))
	b.WriteString(fmt.Sprintf("- Confidence: %.0f%%\n", verdict.Confidence))
	b.WriteString(fmt.Sprintf("- Uncertainty: %s\n", verdict.UncertaintyDescription))
	b.WriteString(fmt.Sprintf("- Systematic Approach: %s\n", verdict.SystematicApproach))
	b.WriteString(fmt.Sprintf("- Technical Advance: %s\n\n", verdict.AdvanceDescription))
	b.WriteString("ACTIVITY DETAILS:\n")
	b.Write(refJSON)
	b.WriteString("\n\n")
	b.WriteString(`Generate a JSON response with:
{
    "title": "Brief, clear title for this R&D activity",
    "description": "2-3 paragraph description of the work undertaken",
    "technological_uncertainty": "Detailed explanation of the technological uncertainty that existed at the project's start",
    "systematic_investigation": "Description of the systematic approach taken to resolve the uncertainty",
    "technical_advance": "Explanation of the advance in science/technology achieved",
    "timeframe": "Timeframe of this activity (e.g., 'Q3 2024')"
}

Write in professional but clear language. Focus on technical substance, not business benefits.`)
	return b.String()
}

type narrativeResponse struct {
	Title                    string `json:"title"`
	Description              string `json:"description"`
	TechnologicalUncertainty string `json:"technological_uncertainty"`
	SystematicInvestigation  string `json:"systematic_investigation"`
	TechnicalAdvance         string `json:"technical_advance"`
	Timeframe                string `json:"timeframe"`
}

func parseActivity(responseText string, verdict Classification, ref ActivityRef) (Activity, error) {
	responseText = stripJSONFences(responseText)

	var parsed narrativeResponse
	if err := json.Unmarshal([]byte(responseText), &parsed); err != nil {
		return Activity{}, fmt.Errorf("parsing narrative response: %w (response: %s)", err, truncate(responseText, 512))
	}

	required := map[string]string{
		"title":                     parsed.Title,
		"description":               parsed.Description,
		"technological_uncertainty": parsed.TechnologicalUncertainty,
		"systematic_investigation":  parsed.SystematicInvestigation,
		"technical_advance":         parsed.TechnicalAdvance,
		"timeframe":                 parsed.Timeframe,
	}
	for field, val := range required {
		if strings.TrimSpace(val) == "" {
			return Activity{}, fmt.Errorf("narrative response missing required field '%s'", field)
		}
	}

	return Activity{
		ID:                       ref.ID,
		Title:                    parsed.Title,
		Description:              parsed.Description,
		Timeframe:                parsed.Timeframe,
		TechnologicalUncertainty: parsed.TechnologicalUncertainty,
		SystematicInvestigation:  parsed.SystematicInvestigation,
		TechnicalAdvance:         parsed.TechnicalAdvance,
		Commits:                  ref.Commits,
		PullRequests:             ref.PullRequests,
		Confidence:               verdict.Confidence,
		CreatedAt:                ref.CreatedAt,
	}, nil
}
