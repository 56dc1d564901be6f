package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BuildReport renders the technical report as Markdown: cover block,
// executive summary, methodology, one section per activity, an evidence
// appendix, and a conclusion.
func BuildReport(activities []Activity, repo, companyName string, periodStart, periodEnd time.Time) string {
	var b strings.Builder

	b.WriteString("# R&D Tax Relief Technical Report\n\n")
	if companyName != "" {
		b.WriteString(fmt.Sprintf("**Company:** %s\n\n", companyName))
	}
	b.WriteString(fmt.Sprintf("**Repository:** %s\n\n", repo))
	b.WriteString(fmt.Sprintf("**Analysis period:** %s to %s\n\n",
		periodStart.Format("2 January 2006"), periodEnd.Format("2 January 2006")))
	b.WriteString(fmt.Sprintf("**Prepared:** %s\n\n", periodEnd.Format("2 January 2006")))

	b.WriteString("## Executive Summary\n\n")
	if len(activities) == 0 {
		b.WriteString("No qualifying R&D activities were identified in the analysis period.\n\n")
	} else {
		b.WriteString(fmt.Sprintf(
			"This report documents %d qualifying R&D activities identified in the development "+
				"history of %s between %s and %s. Each activity has been assessed against the HMRC "+
				"criteria for R&D tax relief: advance in science or technology, scientific or "+
				"technological uncertainty, and systematic investigation.\n\n",
			len(activities), repo,
			periodStart.Format("January 2006"), periodEnd.Format("January 2006")))
		b.WriteString(fmt.Sprintf("Average classification confidence: %.0f%%.\n\n", averageConfidence(activities)))
	}

	b.WriteString("## Methodology\n\n")
	b.WriteString("Commit and pull-request history was collected from the repository and each change " +
		"was assessed against HMRC Corporation Tax R&D relief guidance using an AI-assisted " +
		"classification pipeline with retrieval of the relevant guidance criteria. Activities " +
		"below the confidence threshold were excluded. All qualifying activities should be " +
		"reviewed by a competent professional before inclusion in a claim.\n\n")

	if len(activities) > 0 {
		b.WriteString("## Qualifying R&D Activities\n\n")
		for i, a := range activities {
			b.WriteString(fmt.Sprintf("### %d. %s\n\n", i+1, a.Title))
			b.WriteString(fmt.Sprintf("**Timeframe:** %s | **Confidence:** %.0f%%\n\n", a.Timeframe, a.Confidence))
			b.WriteString(a.Description)
			b.WriteString("\n\n")
			b.WriteString("#### Technological Uncertainty\n\n")
			b.WriteString(a.TechnologicalUncertainty)
			b.WriteString("\n\n")
			b.WriteString("#### Systematic Investigation\n\n")
			b.WriteString(a.SystematicInvestigation)
			b.WriteString("\n\n")
			b.WriteString("#### Technical Advance\n\n")
			b.WriteString(a.TechnicalAdvance)
			b.WriteString("\n\n")
		}

		b.WriteString("## Appendix: Evidence\n\n")
		for _, a := range activities {
			b.WriteString(fmt.Sprintf("### %s\n\n", a.Title))
			if len(a.PullRequests) > 0 {
				var refs []string
				for _, n := range a.PullRequests {
					refs = append(refs, fmt.Sprintf("#%d", n))
				}
				b.WriteString(fmt.Sprintf("- Pull requests: %s\n", strings.Join(refs, ", ")))
			}
			if len(a.Commits) > 0 {
				var shas []string
				for _, sha := range a.Commits {
					shas = append(shas, shortSHA(sha))
				}
				b.WriteString(fmt.Sprintf("- Commits: %s\n", strings.Join(shas, ", ")))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Conclusion\n\n")
	if len(activities) == 0 {
		b.WriteString("No activities met the qualification criteria in this period.\n")
	} else {
		b.WriteString(fmt.Sprintf(
			"%d activities in this period show the characteristics of qualifying R&D under the "+
				"HMRC definition. Supporting evidence (commit history, pull-request discussion) is "+
				"retained in the repository and referenced in the appendix.\n", len(activities)))
	}

	return b.String()
}

func averageConfidence(activities []Activity) float64 {
	if len(activities) == 0 {
		return 0
	}
	var sum float64
	for _, a := range activities {
		sum += a.Confidence
	}
	return sum / float64(len(activities))
}

func WriteReportFile(content, outputDir, repo string, reportDate time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s_rd_report_%s.md", sanitizeFilename(repo), reportDate.Format("20060102"))
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	return replacer.Replace(s)
}
