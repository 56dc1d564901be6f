package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const githubAPIBase = "https://api.github.com"

// Diff snippets are bounded so prompts stay small: at most 3 files, 200
// chars of patch each, 500 chars total.
const (
	diffMaxFiles      = 3
	diffPatchMaxChars = 200
	diffSnippetMax    = 500
)

type githubCommitItem struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type githubCommitDetail struct {
	Stats struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
	} `json:"stats"`
	Files []struct {
		Filename string `json:"filename"`
		Patch    string `json:"patch"`
	} `json:"files"`
}

type githubPullItem struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	HTMLURL   string `json:"html_url"`
	CreatedAt string `json:"created_at"`
	MergedAt  string `json:"merged_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

type githubPRCommit struct {
	SHA string `json:"sha"`
}

type githubIssueComment struct {
	Body string `json:"body"`
}

// FetchCommits returns all commits on the default branch within [since,
// until]. A commit whose detail fetch fails is logged and omitted; only a
// listing failure aborts the fetch.
func FetchCommits(token, repo string, since, until time.Time) ([]Commit, error) {
	query := url.Values{}
	query.Set("since", since.Format(time.RFC3339))
	query.Set("until", until.Format(time.RFC3339))
	query.Set("per_page", "100")

	var commits []Commit
	page := 1
	for {
		query.Set("page", fmt.Sprintf("%d", page))
		apiURL := fmt.Sprintf("%s/repos/%s/commits?%s", githubAPIBase, repo, query.Encode())

		var items []githubCommitItem
		if err := githubGet(token, apiURL, &items); err != nil {
			return nil, fmt.Errorf("listing commits: %w", err)
		}

		for _, item := range items {
			commit, err := fetchCommitDetail(token, repo, item)
			if err != nil {
				log.Printf("github commit skipped sha=%s: %v", shortSHA(item.SHA), err)
				continue
			}
			commits = append(commits, commit)
		}

		if len(items) < 100 {
			break
		}
		page++
	}

	log.Printf("github fetch commits done repo=%s total=%d", repo, len(commits))
	return commits, nil
}

func fetchCommitDetail(token, repo string, item githubCommitItem) (Commit, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/commits/%s", githubAPIBase, repo, item.SHA)

	var detail githubCommitDetail
	if err := githubGet(token, apiURL, &detail); err != nil {
		return Commit{}, err
	}

	files, snippet := summarizeCommitFiles(detail)
	date, _ := time.Parse(time.RFC3339, item.Commit.Author.Date)

	return Commit{
		SHA:          item.SHA,
		Message:      item.Commit.Message,
		Author:       item.Commit.Author.Name,
		Date:         date,
		FilesChanged: files,
		Additions:    detail.Stats.Additions,
		Deletions:    detail.Stats.Deletions,
		DiffSnippet:  snippet,
		URL:          item.HTMLURL,
	}, nil
}

// summarizeCommitFiles returns the changed filenames and a bounded diff
// snippet suitable for a prompt.
func summarizeCommitFiles(detail githubCommitDetail) ([]string, string) {
	var files []string
	var diffParts []string
	for i, f := range detail.Files {
		files = append(files, f.Filename)
		if i < diffMaxFiles && f.Patch != "" {
			patch := f.Patch
			if len(patch) > diffPatchMaxChars {
				patch = patch[:diffPatchMaxChars]
			}
			diffParts = append(diffParts, fmt.Sprintf("File: %s\n%s", f.Filename, patch))
		}
	}
	snippet := strings.Join(diffParts, "\n\n")
	if len(snippet) > diffSnippetMax {
		snippet = snippet[:diffSnippetMax]
	}
	return files, snippet
}

// FetchPullRequests returns PRs created at or after since, newest first as
// the API serves them. Listing is sorted by creation date descending, so
// the walk stops at the first PR older than the window.
func FetchPullRequests(token, repo string, since time.Time) ([]PullRequest, error) {
	var prs []PullRequest
	page := 1
pages:
	for {
		apiURL := fmt.Sprintf("%s/repos/%s/pulls?state=all&sort=created&direction=desc&per_page=100&page=%d",
			githubAPIBase, repo, page)

		var items []githubPullItem
		if err := githubGet(token, apiURL, &items); err != nil {
			return nil, fmt.Errorf("listing pull requests: %w", err)
		}

		for _, item := range items {
			createdAt, _ := time.Parse(time.RFC3339, item.CreatedAt)
			if createdAt.Before(since) {
				break pages
			}

			pr, err := expandPullRequest(token, repo, item, createdAt)
			if err != nil {
				log.Printf("github pr skipped number=%d: %v", item.Number, err)
				continue
			}
			prs = append(prs, pr)
		}

		if len(items) < 100 {
			break
		}
		page++
	}

	log.Printf("github fetch prs done repo=%s total=%d", repo, len(prs))
	return prs, nil
}

func expandPullRequest(token, repo string, item githubPullItem, createdAt time.Time) (PullRequest, error) {
	var prCommits []githubPRCommit
	commitsURL := fmt.Sprintf("%s/repos/%s/pulls/%d/commits?per_page=100", githubAPIBase, repo, item.Number)
	if err := githubGet(token, commitsURL, &prCommits); err != nil {
		return PullRequest{}, fmt.Errorf("fetching PR commits: %w", err)
	}
	var shas []string
	for _, c := range prCommits {
		shas = append(shas, c.SHA)
	}

	var comments []githubIssueComment
	commentsURL := fmt.Sprintf("%s/repos/%s/issues/%d/comments?per_page=100", githubAPIBase, repo, item.Number)
	if err := githubGet(token, commentsURL, &comments); err != nil {
		return PullRequest{}, fmt.Errorf("fetching PR comments: %w", err)
	}
	var bodies []string
	for _, c := range comments {
		bodies = append(bodies, c.Body)
	}

	var mergedAt time.Time
	if item.MergedAt != "" {
		mergedAt, _ = time.Parse(time.RFC3339, item.MergedAt)
	}

	var labels []string
	for _, l := range item.Labels {
		labels = append(labels, l.Name)
	}

	return PullRequest{
		Number:      item.Number,
		Title:       item.Title,
		Description: item.Body,
		Author:      item.User.Login,
		CreatedAt:   createdAt,
		MergedAt:    mergedAt,
		CommitSHAs:  shas,
		Labels:      labels,
		Comments:    bodies,
		URL:         item.HTMLURL,
	}, nil
}

func githubGet(token, apiURL string, out any) error {
	req, err := http.NewRequest("GET", apiURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != 200 {
		return fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
