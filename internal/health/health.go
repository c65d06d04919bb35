// Package health classifies key results as on track, at risk, or off track
// from their value and recent update history.
package health

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Status is the overall health classification. Its numeric value is the score.
type Status int

const (
	OffTrack Status = iota
	AtRisk
	OnTrack
)

var statusMeta = [...]struct {
	name, emoji, label string
}{
	OffTrack: {"off_track", "🔴", "Off-track"},
	AtRisk:   {"at_risk", "🟡", "At risk"},
	OnTrack:  {"on_track", "🟢", "On-track"},
}

// StatusFromScore maps a score onto a Status, clamping to the valid range.
func StatusFromScore(score int) Status {
	switch {
	case score <= int(OffTrack):
		return OffTrack
	case score >= int(OnTrack):
		return OnTrack
	default:
		return Status(score)
	}
}

// Score returns the numeric rank, 0 (off track) to 2 (on track).
func (s Status) Score() int { return int(s) }

func (s Status) valid() bool { return s >= OffTrack && s <= OnTrack }

func (s Status) String() string {
	if !s.valid() {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusMeta[s].name
}

// Emoji returns the presentation glyph for the status.
func (s Status) Emoji() string {
	if !s.valid() {
		return ""
	}
	return statusMeta[s].emoji
}

// Label returns the human-readable label for the status.
func (s Status) Label() string {
	if !s.valid() {
		return ""
	}
	return statusMeta[s].label
}

// MarshalText encodes the status as its snake_case name.
func (s Status) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid health status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a snake_case status name.
func (s *Status) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, m := range statusMeta {
		if m.name == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown health status %q", text)
}

// Update is one entry of a key result's progress history.
type Update struct {
	Current   float64
	Blockers  string
	CreatedAt time.Time
}

// Snapshot is the input to Evaluate. Updates are ordered newest first.
type Snapshot struct {
	Current float64
	Target  float64
	Updates []Update
}

// Verdict is the evaluated health of a key result.
type Verdict struct {
	Status  Status   `json:"status"`
	Score   int      `json:"score"`
	Emoji   string   `json:"emoji"`
	Label   string   `json:"label"`
	Reasons []string `json:"reasons"`
}

// Reason strings, in the order they can appear.
const (
	ReasonBelowTrajectory = "Progress is below expected trajectory."
	ReasonBehindTarget    = "Progress is behind target."
	ReasonNoUpdates       = "No updates yet."
	ReasonInfrequent      = "Updates are becoming infrequent."
	ReasonStale           = "No updates recently."
	ReasonTrendFlat       = "Progress trend is flat."
	ReasonTrendDeclining  = "Progress trend is declining."
	ReasonBlockers        = "Active blockers reported."
)

const (
	onTrackRatio  = 0.70
	atRiskRatio   = 0.50
	freshDays     = 7
	staleDays     = 14
	risingDelta   = 0.05
	flatDelta     = -0.01
	day           = 24 * time.Hour
	scoreOnTrack  = int(OnTrack)
	scoreAtRisk   = int(AtRisk)
	scoreOffTrack = int(OffTrack)
)

// Ratio returns current/target clamped to [0, 1]. A non-positive target
// yields 0.
func Ratio(current, target float64) float64 {
	if target <= 0 {
		return 0
	}
	r := current / target
	switch {
	case math.IsNaN(r), r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

type reasons []string

func (r *reasons) add(s string) {
	for _, existing := range *r {
		if existing == s {
			return
		}
	}
	*r = append(*r, s)
}

// Evaluate computes the health verdict of snap as of now. It never fails for
// any input.
func Evaluate(snap Snapshot, now time.Time) Verdict {
	rs := make(reasons, 0, 4)

	scores := [4]int{
		progressScore(snap, &rs),
		stalenessScore(snap, now, &rs),
		trendScore(snap, &rs),
		blockerScore(snap, &rs),
	}

	status := combine(scores[:])
	return Verdict{
		Status:  status,
		Score:   status.Score(),
		Emoji:   status.Emoji(),
		Label:   status.Label(),
		Reasons: []string(rs),
	}
}

func latestValue(snap Snapshot) float64 {
	if len(snap.Updates) > 0 {
		return snap.Updates[0].Current
	}
	return snap.Current
}

func progressScore(snap Snapshot, rs *reasons) int {
	ratio := Ratio(latestValue(snap), snap.Target)
	switch {
	case ratio >= onTrackRatio:
		return scoreOnTrack
	case ratio >= atRiskRatio:
		rs.add(ReasonBelowTrajectory)
		return scoreAtRisk
	default:
		rs.add(ReasonBehindTarget)
		return scoreOffTrack
	}
}

func stalenessScore(snap Snapshot, now time.Time, rs *reasons) int {
	if len(snap.Updates) == 0 {
		rs.add(ReasonNoUpdates)
		return scoreAtRisk
	}
	days := int(math.Floor(float64(now.Sub(snap.Updates[0].CreatedAt)) / float64(day)))
	switch {
	case days <= freshDays:
		return scoreOnTrack
	case days <= staleDays:
		rs.add(ReasonInfrequent)
		return scoreAtRisk
	default:
		rs.add(ReasonStale)
		return scoreOffTrack
	}
}

func trendScore(snap Snapshot, rs *reasons) int {
	if len(snap.Updates) < 2 {
		return scoreOnTrack
	}
	delta := Ratio(snap.Updates[0].Current, snap.Target) - Ratio(snap.Updates[1].Current, snap.Target)
	switch {
	case delta >= risingDelta:
		return scoreOnTrack
	case delta >= flatDelta:
		rs.add(ReasonTrendFlat)
		return scoreAtRisk
	default:
		rs.add(ReasonTrendDeclining)
		return scoreOffTrack
	}
}

func blockerScore(snap Snapshot, rs *reasons) int {
	if len(snap.Updates) == 0 || strings.TrimSpace(snap.Updates[0].Blockers) == "" {
		return scoreOnTrack
	}
	rs.add(ReasonBlockers)
	return scoreAtRisk
}

// combine folds sub-scores into a status. Any off-track sub-score is
// absorbing; otherwise the mean is rounded half up.
func combine(scores []int) Status {
	sum := 0
	for _, s := range scores {
		if s == scoreOffTrack {
			return OffTrack
		}
		sum += s
	}
	mean := float64(sum) / float64(len(scores))
	return StatusFromScore(int(math.Floor(mean + 0.5)))
}
