// internal/jobs/jobs.go
package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Job is one scraped role with enough identity to drive an application run.
type Job struct {
	Company  string `json:"company"`
	Title    string `json:"title"`
	URL      string `json:"job_url"`
	Location string `json:"location,omitempty"`
	Source   string `json:"source,omitempty"`
}

func (j Job) String() string {
	return j.Company + " - " + j.Title
}

// jobsFile mirrors the scraper output: roles grouped by company slug.
type jobsFile struct {
	JobsByCompany map[string][]rawJob `json:"jobs_by_company"`
}

type rawJob struct {
	Company  string `json:"company"`
	Title    string `json:"title"`
	JobURL   string `json:"job_url"`
	Location string `json:"location"`
}

// Load reads a scraped jobs file and flattens it into jobs that carry a URL.
// Companies come out in sorted order so batch runs are reproducible. A job's
// own company name wins over the grouping key; either way it is title-cased.
func Load(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jobs file %s: %w", path, err)
	}
	var file jobsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("jobs file %s: %w", path, err)
	}

	companies := make([]string, 0, len(file.JobsByCompany))
	for company := range file.JobsByCompany {
		companies = append(companies, company)
	}
	sort.Strings(companies)

	var out []Job
	for _, company := range companies {
		for _, raw := range file.JobsByCompany[company] {
			if raw.JobURL == "" {
				continue
			}
			name := raw.Company
			if name == "" {
				name = company
			}
			out = append(out, Job{
				Company:  cases.Title(language.English).String(name),
				Title:    raw.Title,
				URL:      raw.JobURL,
				Location: raw.Location,
				Source:   "json",
			})
		}
	}
	return out, nil
}

// FindLatest returns the newest all_jobs_*.json under dir, matching the
// scraper's timestamped output names.
func FindLatest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "all_jobs_*.json"))
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}
	var latest string
	var latestMod time.Time
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = match
			latestMod = info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no scraped job files matching all_jobs_*.json in %s", dir)
	}
	return latest, nil
}

// FilterCompany keeps jobs whose company matches name, case-insensitively.
// An empty name keeps everything.
func FilterCompany(in []Job, name string) []Job {
	if strings.TrimSpace(name) == "" {
		return in
	}
	out := make([]Job, 0, len(in))
	for _, j := range in {
		if strings.EqualFold(j.Company, name) {
			out = append(out, j)
		}
	}
	return out
}

// Limit truncates to at most n jobs. Zero or negative keeps everything.
func Limit(in []Job, n int) []Job {
	if n <= 0 || n >= len(in) {
		return in
	}
	return in[:n]
}
