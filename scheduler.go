package main

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// RunAnalysisScheduler re-runs the repository analysis on a recurring
// schedule. The schedule is a standard 5-field cron expression (minute
// hour day-of-month month day-of-week). Examples: "0 6 1 * *" (monthly),
// "0 6 * * 1" (Mondays 6am). Blocks forever.
func RunAnalysisScheduler(agent *Agent, repo, schedule string) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Fatalf("invalid analysis_schedule '%s': %v", schedule, err)
	}

	log.Printf("analysis scheduled repo=%s cron=%q", repo, schedule)

	for {
		now := time.Now()
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Printf("next analysis at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		time.Sleep(wait)

		if _, err := agent.AnalyzeRepository(repo); err != nil {
			log.Printf("scheduled analysis error: %v", err)
		}
	}
}
