package main

import (
	"flag"
	"log"
	"os"
)

func main() {
	months := flag.Int("months", 0, "months of history to analyze (overrides config)")
	minConfidence := flag.Float64("min-confidence", -1, "minimum confidence score 0-100 (overrides config)")
	company := flag.String("company", "", "company name for the report (overrides config)")
	testMode := flag.Bool("test", false, "quick test: classify 5 recent commits and exit")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: rdagent [flags] owner/repo")
	}
	repo := flag.Arg(0)

	cfg := LoadConfig()
	if *months > 0 {
		cfg.MonthsBack = *months
	}
	if *minConfidence >= 0 {
		cfg.MinConfidence = *minConfidence
	}
	if *company != "" {
		cfg.CompanyName = *company
	}

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	os.MkdirAll(cfg.ReportOutputDir, 0755)

	agent := NewAgent(cfg, db)

	if *testMode {
		if err := agent.QuickTest(repo, 5); err != nil {
			log.Fatalf("Quick test error: %v", err)
		}
		return
	}

	if cfg.AnalysisSchedule != "" {
		RunAnalysisScheduler(agent, repo, cfg.AnalysisSchedule)
		return
	}

	if _, err := agent.AnalyzeRepository(repo); err != nil {
		log.Fatalf("Analysis error: %v", err)
	}
}
