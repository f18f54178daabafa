// internal/domain/models/stage.go
package models

// Stage is the processing stage a document currently occupies.
// The set is closed; the documents collection validator rejects anything else.
type Stage string

const (
	StagePendingRegistration Stage = "pending_registration"
	StageRegistration        Stage = "registration"
	StageResolution          Stage = "resolution"
	StageAssignment          Stage = "assignment"
	StageExecution           Stage = "execution"
	StageDrafting            Stage = "drafting"
	StageRevisionRequested   Stage = "revision_requested"
	StageSignature           Stage = "signature"
	StageDispatch            Stage = "dispatch"
	StageFinalReview         Stage = "final_review"

	// Terminal stages.
	StageCompleted Stage = "completed"
	StageRejected  Stage = "rejected"
	StageOnHold    Stage = "on_hold"
	StageCancelled Stage = "cancelled"
	StageArchived  Stage = "archived"
)

// Stages lists every stage in processing order, terminal stages last.
var Stages = []Stage{
	StagePendingRegistration,
	StageRegistration,
	StageResolution,
	StageAssignment,
	StageExecution,
	StageDrafting,
	StageRevisionRequested,
	StageSignature,
	StageDispatch,
	StageFinalReview,
	StageCompleted,
	StageRejected,
	StageOnHold,
	StageCancelled,
	StageArchived,
}

// IsKnown reports whether s is one of the enumerated stages.
func (s Stage) IsKnown() bool {
	for _, st := range Stages {
		if st == s {
			return true
		}
	}
	return false
}

func (s Stage) String() string { return string(s) }
