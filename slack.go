package main

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// NotifyRunComplete posts the batch summary to the configured Slack
// channel. Posting is best-effort: a failure is logged, never returned.
func NotifyRunComplete(cfg Config, result AnalysisResult) {
	if !cfg.SlackConfigured() {
		return
	}

	api := slack.New(cfg.SlackBotToken)

	msg := fmt.Sprintf(
		"R&D analysis complete for *%s* (%s - %s):\n"+
			"- %d PRs analyzed, %d commits collected\n"+
			"- %d qualifying activities, %d failed items",
		result.Repo,
		result.PeriodStart.Format("Jan 2 2006"), result.PeriodEnd.Format("Jan 2 2006"),
		result.PRsSeen, result.CommitsSeen,
		result.Stats.Qualifying, result.Stats.Failed,
	)
	if result.ReportPath != "" {
		msg += fmt.Sprintf("\nReport: %s", result.ReportPath)
	}

	_, _, err := api.PostMessage(cfg.ReportChannelID, slack.MsgOptionText(msg, false))
	if err != nil {
		log.Printf("slack post error: %v", err)
	} else {
		log.Printf("slack summary posted channel=%s", cfg.ReportChannelID)
	}
}
