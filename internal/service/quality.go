package service

import "github.com/liliang-cn/recallchat/internal/domain"

// DefaultHighQualityThreshold is the top-result score at which results count as a confident match
const DefaultHighQualityThreshold = 0.3

// QualityAnalyzer grades a ranked result set by its top record only, so a
// weak tail cannot dilute a strong first hit. HighThreshold is tunable.
type QualityAnalyzer struct {
	HighThreshold float64
}

// NewQualityAnalyzer creates a new quality analyzer. A threshold <= 0 selects the default.
func NewQualityAnalyzer(threshold float64) *QualityAnalyzer {
	if threshold <= 0 {
		threshold = DefaultHighQualityThreshold
	}
	return &QualityAnalyzer{HighThreshold: threshold}
}

// Assess expects records in rank order, best first
func (a *QualityAnalyzer) Assess(records []domain.SearchRecord) domain.QualityAssessment {
	if len(records) == 0 {
		return domain.QualityAssessment{Quality: domain.QualityNone}
	}

	scores := make([]float64, len(records))
	maxScore := records[0].Score
	for i, r := range records {
		scores[i] = r.Score
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	quality := domain.QualityLow
	if records[0].Score >= a.HighThreshold {
		quality = domain.QualityHigh
	}

	return domain.QualityAssessment{
		Quality:    quality,
		FirstScore: records[0].Score,
		MaxScore:   maxScore,
		Count:      len(records),
		Scores:     scores,
	}
}
