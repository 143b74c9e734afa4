package learning

import (
	"time"

	"github.com/sells-group/estimator/internal/model"
)

// RecentLimit is how many memories Stats lists as recent.
const RecentLimit = 10

// Stats summarizes an account's learned memories.
type Stats struct {
	TotalCorrections int            `json:"totalCorrections"`
	TotalPreferences int            `json:"totalPreferences"`
	TotalPatterns    int            `json:"totalPatterns"`
	TotalStyles      int            `json:"totalStyles"`
	Recent           []RecentMemory `json:"recentLearnings"`
}

// RecentMemory is a memory as shown in the learning summary.
type RecentMemory struct {
	Type    model.MemoryType `json:"type"`
	Content string           `json:"content"`
	Date    time.Time        `json:"date"`
}

// Summarize counts memories by type and lists the newest RecentLimit.
func Summarize(memories []model.Memory) Stats {
	s := Stats{Recent: []RecentMemory{}}
	for _, m := range memories {
		switch m.Type {
		case model.MemoryPricingCorrection:
			s.TotalCorrections++
		case model.MemoryPreference:
			s.TotalPreferences++
		case model.MemoryPattern:
			s.TotalPatterns++
		case model.MemoryStyle:
			s.TotalStyles++
		}
	}
	for _, m := range model.MostRecent(memories, RecentLimit) {
		s.Recent = append(s.Recent, RecentMemory{Type: m.Type, Content: m.Content, Date: m.CreatedAt})
	}
	return s
}
