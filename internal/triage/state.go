package triage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNotFound is returned when no archived result exists for an issue.
var ErrNotFound = errors.New("triage result not found")

// Store archives finished triage results as JSON files on disk.
// Layout: {baseDir}/{repo_slug}/{issue}.json
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// RepoSlug converts an "owner/repo" string into a filesystem-safe slug.
func RepoSlug(repo string) string {
	if repo == "" {
		return "_unknown"
	}
	return strings.ReplaceAll(repo, "/", "-")
}

func (s *Store) resultPath(repo string, issue int) string {
	return filepath.Join(s.baseDir, RepoSlug(repo), strconv.Itoa(issue)+".json")
}

// Save writes res atomically, replacing any earlier result for the issue.
func (s *Store) Save(res *Result) error {
	if err := writeJSON(s.resultPath(res.Report.Repo, res.Report.Issue), res); err != nil {
		return fmt.Errorf("write result for issue %d: %w", res.Report.Issue, err)
	}
	return nil
}

// Get reads the archived result for an issue.
func (s *Store) Get(repo string, issue int) (*Result, error) {
	var res Result
	if err := readJSON(s.resultPath(repo, issue), &res); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("issue %d in %s: %w", issue, repo, ErrNotFound)
		}
		return nil, fmt.Errorf("read result %d: %w", issue, err)
	}
	return &res, nil
}

// List returns archived results, optionally restricted to one repo and one
// status. Pass "" to disable either filter. Results are sorted by repo, then
// issue number.
func (s *Store) List(repo, statusFilter string) ([]Result, error) {
	var dirs []string
	if repo != "" {
		dirs = []string{filepath.Join(s.baseDir, RepoSlug(repo))}
	} else {
		entries, err := os.ReadDir(s.baseDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, filepath.Join(s.baseDir, e.Name()))
			}
		}
	}

	var results []Result
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read dir %s: %w", dir, err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ".json") {
				continue
			}
			if _, err := strconv.Atoi(strings.TrimSuffix(name, ".json")); err != nil {
				continue // temp files and strays
			}
			var res Result
			if err := readJSON(filepath.Join(dir, name), &res); err != nil {
				continue // skip broken entries
			}
			if statusFilter == "" || res.Status == statusFilter {
				results = append(results, res)
			}
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Report.Repo != results[j].Report.Repo {
			return results[i].Report.Repo < results[j].Report.Repo
		}
		return results[i].Report.Issue < results[j].Report.Issue
	})
	return results, nil
}
