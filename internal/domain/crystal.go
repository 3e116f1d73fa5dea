// Package domain holds the shared types of the sync core: crystals,
// their ordering moments, and the merged registry state.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SpecVersion labels the ordering/merge rules a snapshot was built with.
const SpecVersion = "KKS-1.0"

// Moment is the total-order key of a crystal. Components compare
// most-significant first: pulse, then beat, then stepIndex. The zero
// value doubles as the empty-registry sentinel for `latest`.
type Moment struct {
	Pulse     int `json:"pulse"`
	Beat      int `json:"beat"`
	StepIndex int `json:"stepIndex"`
}

// Compare returns -1, 0 or 1 as m orders before, equal to or after o.
func (m Moment) Compare(o Moment) int {
	if m.Pulse != o.Pulse {
		return sign(m.Pulse - o.Pulse)
	}
	if m.Beat != o.Beat {
		return sign(m.Beat - o.Beat)
	}
	return sign(m.StepIndex - o.StepIndex)
}

// After reports whether m is strictly later than o.
func (m Moment) After(o Moment) bool { return m.Compare(o) > 0 }

func sign(d int) int {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	}
	return 0
}

// Crystal is one merged registry entry.
//
// The top-level pulse/beat/stepIndex are a verbatim echo of the same
// fields inside the payload, mirrored at decode time so callers never
// have to dig into payload. URL is informational only: it feeds the
// exported url lists and never participates in ordering or identity.
type Crystal struct {
	URL       string         `json:"url,omitempty"`
	Pulse     int            `json:"pulse"`
	Beat      int            `json:"beat"`
	StepIndex int            `json:"stepIndex"`
	Payload   map[string]any `json:"payload"`
}

// Moment returns the ordering key of the crystal.
func (c Crystal) Moment() Moment {
	return Moment{Pulse: c.Pulse, Beat: c.Beat, StepIndex: c.StepIndex}
}

// RegistryState is the full merged snapshot handed to readers.
// Registry is moment-descending; URLs mirrors registry order, skipping
// entries without a url.
type RegistryState struct {
	Spec      string    `json:"spec"`
	TotalURLs int       `json:"total_urls"`
	Latest    Moment    `json:"latest"`
	Seal      string    `json:"seal"`
	Registry  []Crystal `json:"registry"`
	URLs      []string  `json:"urls"`
}

// InhaleReport summarizes one merge run across uploaded files.
type InhaleReport struct {
	FilesReceived    int
	CrystalsTotal    int
	CrystalsImported int
	CrystalsFailed   int
	RegistryURLs     []string
	LatestPulse      *int
	Errors           []string
}

// CrystalRecord is the persisted row form of a Crystal.
type CrystalRecord struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	URL       string         `gorm:"column:url" json:"url"`
	Pulse     int            `gorm:"column:pulse;uniqueIndex:idx_crystals_moment,priority:1" json:"pulse"`
	Beat      int            `gorm:"column:beat;uniqueIndex:idx_crystals_moment,priority:2" json:"beat"`
	StepIndex int            `gorm:"column:step_index;uniqueIndex:idx_crystals_moment,priority:3" json:"stepIndex"`
	Payload   datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (CrystalRecord) TableName() string { return "crystals" }

// RecordFromCrystal converts an in-memory crystal to its row form.
func RecordFromCrystal(c Crystal) (*CrystalRecord, error) {
	blob, err := json.Marshal(c.Payload)
	if err != nil {
		return nil, err
	}
	return &CrystalRecord{
		ID:        uuid.New(),
		URL:       c.URL,
		Pulse:     c.Pulse,
		Beat:      c.Beat,
		StepIndex: c.StepIndex,
		Payload:   datatypes.JSON(blob),
	}, nil
}

// Crystal converts a persisted row back to the in-memory form.
func (r *CrystalRecord) Crystal() (Crystal, error) {
	payload := map[string]any{}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &payload); err != nil {
			return Crystal{}, err
		}
	}
	return Crystal{
		URL:       r.URL,
		Pulse:     r.Pulse,
		Beat:      r.Beat,
		StepIndex: r.StepIndex,
		Payload:   payload,
	}, nil
}
