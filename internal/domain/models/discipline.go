// internal/domain/models/discipline.go
package models

// DisciplinaryLevel is one of five sanction tiers, strictly increasing in
// severity.
type DisciplinaryLevel string

const (
	LevelWarning     DisciplinaryLevel = "warning"
	LevelReprimand   DisciplinaryLevel = "reprimand"
	LevelFine30      DisciplinaryLevel = "fine_30"
	LevelFine50      DisciplinaryLevel = "fine_50"
	LevelTermination DisciplinaryLevel = "termination"
)

// DisciplinaryLevels in order of severity. The index of a level is the number
// of prior violations that selects it.
var DisciplinaryLevels = []DisciplinaryLevel{
	LevelWarning,
	LevelReprimand,
	LevelFine30,
	LevelFine50,
	LevelTermination,
}

var levelPenalty = map[DisciplinaryLevel]float64{
	LevelWarning:     0,
	LevelReprimand:   5,
	LevelFine30:      30,
	LevelFine50:      50,
	LevelTermination: 100,
}

var levelMessage = map[DisciplinaryLevel]string{
	LevelWarning:     "first offense: warning",
	LevelReprimand:   "second offense: reprimand",
	LevelFine30:      "third offense: 30% fine",
	LevelFine50:      "fourth offense: 50% fine",
	LevelTermination: "fifth offense: contract terminated",
}

// LevelForCount maps a prior violation count to a level. Negative counts are
// treated as zero; anything at or above four is Termination.
func LevelForCount(n int64) DisciplinaryLevel {
	if n < 0 {
		n = 0
	}
	if n >= int64(len(DisciplinaryLevels)) {
		return LevelTermination
	}
	return DisciplinaryLevels[n]
}

// Penalty is the KPI score deduction for the level.
func (l DisciplinaryLevel) Penalty() float64 { return levelPenalty[l] }

// Message is the fixed human-readable description of the level.
func (l DisciplinaryLevel) Message() string { return levelMessage[l] }
