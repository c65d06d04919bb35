package summary

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alecgard/okrtracker/internal/okr"
)

// Fixed texts of the local renderer.
const (
	NoDataMessage     = "No data available for summary generation. Please add key results or progress updates to generate insights."
	ReasonUnavailable = "Summary generated using available data because the AI service is currently unavailable."
	ReasonDisabled    = "Summary generated using available data because the AI service is not configured."
	noUpdatesMessage  = "No progress updates have been logged yet. Encourage the team to share updates to enrich future summaries."
	dateLayout        = "2006-01-02"
)

// HasData reports whether there is anything to summarise.
func HasData(o *okr.Objective, updates []*okr.Update) bool {
	if len(updates) > 0 {
		return true
	}
	if o == nil {
		return false
	}
	return len(o.KeyResults) > 0 || strings.TrimSpace(o.Title) != "" || o.Description != nil
}

// RenderFallback composes a deterministic plain-text summary from the
// objective and its narrative updates. Sections are separated by blank
// lines and appear in a fixed order: reason, objective header, key results,
// most recent update, progress signals, blockers.
func RenderFallback(o *okr.Objective, updates []*okr.Update, reason string) string {
	sections := []string{reason}

	if o != nil {
		sections = append(sections, strings.Join([]string{
			"Objective: " + o.Title,
			"Status: " + string(o.Status),
			"Overall Progress: " + formatNumber(o.Progress) + "%",
			"Timeline: " + formatDate(o.StartDate) + " - " + formatDate(o.EndDate),
		}, "\n"))

		if len(o.KeyResults) > 0 {
			lines := make([]string, len(o.KeyResults))
			for i, kr := range o.KeyResults {
				lines[i] = fmt.Sprintf("%d. %s - %d%% towards %s %s",
					i+1, kr.Title, roundedPercent(kr.Current, kr.Target), formatNumber(kr.Target), kr.Unit)
			}
			sections = append(sections, "Key Results Snapshot:\n"+strings.Join(lines, "\n"))
		}
	}

	if len(updates) == 0 {
		sections = append(sections, noUpdatesMessage)
		return strings.Join(sections, "\n\n")
	}

	sorted := append([]*okr.Update(nil), updates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	latest := sorted[0]
	content := strings.TrimSpace(latest.Content)
	if content == "" {
		content = "No content provided."
	}
	sections = append(sections, fmt.Sprintf("Most Recent Update (%s by %s):\n%s",
		formatDate(latest.CreatedAt), author(latest), content))

	if line := progressSignals(sorted); line != "" {
		sections = append(sections, line)
	}
	if blockers := distinctBlockers(sorted); len(blockers) > 0 {
		sections = append(sections, "Blockers to watch:\n- "+strings.Join(blockers, "\n- "))
	}
	return strings.Join(sections, "\n\n")
}

func progressSignals(updates []*okr.Update) string {
	var values []float64
	for _, u := range updates {
		if u.Progress != nil {
			values = append(values, *u.Progress)
		}
	}
	if len(values) == 0 {
		return ""
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	noun := "update"
	if len(values) > 1 {
		noun = "updates"
	}
	return fmt.Sprintf("Progress signals: latest reported progress is %s%%, with an average of %d%% across %d %s.",
		formatNumber(values[0]), roundHalfUp(sum/float64(len(values))), len(values), noun)
}

func distinctBlockers(updates []*okr.Update) []string {
	seen := map[string]bool{}
	var out []string
	for _, u := range updates {
		if u.Blockers == nil {
			continue
		}
		b := strings.TrimSpace(*u.Blockers)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

func author(u *okr.Update) string {
	if u.Author != nil {
		if u.Author.Name != "" {
			return u.Author.Name
		}
		if u.Author.Email != "" {
			return u.Author.Email
		}
	}
	return "Unknown member"
}

func roundedPercent(current, target float64) int {
	if target <= 0 {
		return 0
	}
	return roundHalfUp(current / target * 100)
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// formatNumber prints integers without a fraction and everything else with
// one decimal.
func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format(dateLayout)
}
