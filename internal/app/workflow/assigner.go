package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/audit"
	"github.com/dalemusser/docflow/internal/app/store/queries/criteria"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/htmlsanitize"
	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ResolutionInput is a new resolution (ustxat) for a document.
type ResolutionInput struct {
	Text              string
	Deadline          *time.Time
	PrimaryExecutorID *primitive.ObjectID
	EqualExecutorIDs  []primitive.ObjectID
	CoExecutorIDs     []primitive.ObjectID
	AssistantID       *primitive.ObjectID
	Priority          string
	Notes             string
	ActorID           primitive.ObjectID
}

// Resolution is the assignment view of a document.
type Resolution struct {
	DocumentID        primitive.ObjectID   `json:"document_id"`
	Text              string               `json:"text"`
	Notes             string               `json:"notes,omitempty"`
	Priority          string               `json:"priority,omitempty"`
	Deadline          *time.Time           `json:"deadline,omitempty"`
	PrimaryExecutorID *primitive.ObjectID  `json:"primary_executor_id,omitempty"`
	EqualExecutorIDs  []primitive.ObjectID `json:"equal_executor_ids"`
	CoExecutorIDs     []primitive.ObjectID `json:"co_executor_ids"`
	AssistantID       *primitive.ObjectID  `json:"assistant_id,omitempty"`
	ResolvedByID      *primitive.ObjectID  `json:"resolved_by_id,omitempty"`
	ResolvedAt        *time.Time           `json:"resolved_at,omitempty"`
}

// ResolutionOf projects the resolution out of a document.
func ResolutionOf(d models.Document) Resolution {
	co := d.CoExecutorIDs
	if co == nil {
		co = []primitive.ObjectID{}
	}
	eq := d.EqualExecutorIDs()
	if eq == nil {
		eq = []primitive.ObjectID{}
	}
	return Resolution{
		DocumentID:        d.ID,
		Text:              d.ResolutionText,
		Notes:             d.ResolutionNotes,
		Priority:          d.Priority,
		Deadline:          d.Deadline,
		PrimaryExecutorID: d.PrimaryExecutorID,
		EqualExecutorIDs:  eq,
		CoExecutorIDs:     co,
		AssistantID:       d.AssistantID(),
		ResolvedByID:      d.ResolvedByID,
		ResolvedAt:        d.ResolvedAt,
	}
}

// ResolutionResult is returned by CreateResolution.
type ResolutionResult struct {
	Document   models.Document `json:"document"`
	Resolution Resolution      `json:"resolution"`
}

// CommentResult lists who was told about a comment.
type CommentResult struct {
	Comment    string               `json:"comment"`
	Recipients []primitive.ObjectID `json:"recipients"`
}

// ResolutionStats summarizes assigned documents.
type ResolutionStats struct {
	TotalAssigned  int64 `json:"total_assigned"`
	InProgress     int64 `json:"in_progress"`
	Completed      int64 `json:"completed"`
	Overdue        int64 `json:"overdue"`
	CompletionRate int64 `json:"completion_rate"`
}

// inProgressStages are the stages counted as work in progress.
var inProgressStages = map[models.Stage]bool{
	models.StageAssignment: true,
	models.StageExecution:  true,
	models.StageDrafting:   true,
}

// Assigner creates and maintains resolutions. Stage changes go through the
// Engine.
type Assigner struct {
	docs    DocumentRepo
	engine  *Engine
	tx      TxRunner
	effects EffectFlusher
	log     *zap.Logger
	now     func() time.Time
}

// CreateResolution assigns executors to a document and moves it to the
// assignment stage.
func (a *Assigner) CreateResolution(ctx context.Context, documentID primitive.ObjectID, in ResolutionInput) (ResolutionResult, error) {
	const op = "assigner.CreateResolution"

	in.Text = htmlsanitize.Sanitize(in.Text)
	in.Notes = htmlsanitize.StripTags(in.Notes)
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	fields := map[string]string{}
	if in.Text == "" {
		fields["text"] = "required"
	}
	if in.ActorID.IsZero() {
		fields["actor_id"] = "required"
	}
	switch in.Priority {
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
	default:
		fields["priority"] = "must be low, normal, high or urgent"
	}
	if in.PrimaryExecutorID != nil && in.PrimaryExecutorID.IsZero() {
		fields["primary_executor_id"] = "invalid"
	}
	if in.AssistantID != nil && in.AssistantID.IsZero() {
		fields["assistant_id"] = "invalid"
	}
	if len(fields) > 0 {
		return ResolutionResult{}, apperr.Validation(op, "invalid resolution", fields)
	}

	held := a.engine.lockDocument(documentID)
	defer held.Release()

	out := sideeffects.NewOutbox()
	var doc models.Document
	err := a.tx.Run(ctx, func(ctx context.Context) error {
		out.Reset()
		current, err := a.docs.GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		now := a.now().UTC()

		upd := ResolutionUpdate{
			Text:              in.Text,
			Notes:             in.Notes,
			Priority:          in.Priority,
			Deadline:          in.Deadline,
			PrimaryExecutorID: in.PrimaryExecutorID,
			CoExecutorIDs:     uniqueIDs(in.CoExecutorIDs),
			Reviewers:         mergeEqualExecutors(current.Reviewers, uniqueIDs(in.EqualExecutorIDs), now),
			Contributors:      mergeAssistant(current.Contributors, in.AssistantID, now),
			ResolvedByID:      in.ActorID,
			ResolvedAt:        now,
			Status:            models.DocumentStatusInProgress,
		}
		if err := a.docs.ApplyResolution(ctx, documentID, upd); err != nil {
			return err
		}

		if current.Stage != models.StageAssignment {
			current.Reviewers = upd.Reviewers
			if _, err := a.engine.transition(ctx, out, held, current, models.StageAssignment, in.ActorID, "resolution created"); err != nil {
				return err
			}
		}

		doc, err = a.docs.GetByID(ctx, documentID)
		if err != nil {
			return err
		}

		msg := fmt.Sprintf("You were assigned to document %s", doc.Label())
		for _, user := range assignees(doc) {
			out.Add(sideeffects.Notify(user, msg, documentLink(doc.ID)))
		}
		docID := doc.ID
		actor := in.ActorID
		out.Add(sideeffects.Audit(models.AuditRecord{
			DocumentID: &docID,
			Action:     audit.EventResolutionCreated,
			ActorID:    &actor,
			Detail:     resolutionDetail(doc),
		}))
		return nil
	})
	if err != nil {
		return ResolutionResult{}, err
	}
	a.effects.Flush(ctx, out)

	a.log.Info("resolution created", zap.String("document_id", doc.ID.Hex()), zap.Int("assignees", len(assignees(doc))))
	return ResolutionResult{Document: doc, Resolution: ResolutionOf(doc)}, nil
}

// ReassignExecutor replaces the primary executor. Stage history is not
// touched.
func (a *Assigner) ReassignExecutor(ctx context.Context, documentID, newExecutor primitive.ObjectID, reason string, actor primitive.ObjectID) (models.Document, error) {
	const op = "assigner.ReassignExecutor"
	reason = htmlsanitize.StripTags(reason)
	fields := map[string]string{}
	if newExecutor.IsZero() {
		fields["executor_id"] = "required"
	}
	if actor.IsZero() {
		fields["actor_id"] = "required"
	}
	if len(fields) > 0 {
		return models.Document{}, apperr.Validation(op, "invalid reassignment", fields)
	}

	doc, err := a.docs.GetByID(ctx, documentID)
	if err != nil {
		return models.Document{}, err
	}
	previous := ""
	if doc.PrimaryExecutorID != nil {
		previous = doc.PrimaryExecutorID.Hex()
	}
	now := a.now().UTC()
	if err := a.docs.SetPrimaryExecutor(ctx, documentID, newExecutor, now); err != nil {
		return models.Document{}, err
	}
	doc.PrimaryExecutorID = &newExecutor
	doc.UpdatedAt = now

	out := sideeffects.NewOutbox()
	msg := fmt.Sprintf("You are now the primary executor of document %s", doc.Label())
	if reason != "" {
		msg += ". Reason: " + reason
	}
	out.Add(
		sideeffects.Notify(newExecutor, msg, documentLink(doc.ID)),
		sideeffects.Audit(models.AuditRecord{
			DocumentID: &doc.ID,
			Action:     audit.EventExecutorReassigned,
			ActorID:    &actor,
			Detail:     map[string]string{"from": previous, "to": newExecutor.Hex(), "reason": reason},
		}),
	)
	a.effects.Flush(ctx, out)
	return doc, nil
}

// AddResolutionComment records a comment and tells every executor.
func (a *Assigner) AddResolutionComment(ctx context.Context, documentID, actor primitive.ObjectID, comment string) (CommentResult, error) {
	const op = "assigner.AddResolutionComment"
	comment = htmlsanitize.StripTags(comment)
	fields := map[string]string{}
	if comment == "" {
		fields["comment"] = "required"
	}
	if actor.IsZero() {
		fields["actor_id"] = "required"
	}
	if len(fields) > 0 {
		return CommentResult{}, apperr.Validation(op, "invalid comment", fields)
	}

	doc, err := a.docs.GetByID(ctx, documentID)
	if err != nil {
		return CommentResult{}, err
	}

	var recipients []primitive.ObjectID
	if doc.PrimaryExecutorID != nil {
		recipients = append(recipients, *doc.PrimaryExecutorID)
	}
	recipients = append(recipients, doc.CoExecutorIDs...)
	recipients = append(recipients, doc.EqualExecutorIDs()...)
	recipients = uniqueIDs(recipients)

	out := sideeffects.NewOutbox()
	out.Add(sideeffects.Audit(models.AuditRecord{
		DocumentID: &doc.ID,
		Action:     audit.EventResolutionComment,
		ActorID:    &actor,
		Detail:     map[string]string{"comment": comment},
	}))
	msg := fmt.Sprintf("New comment on document %s: %s", doc.Label(), comment)
	for _, user := range recipients {
		out.Add(sideeffects.Notify(user, msg, documentLink(doc.ID)))
	}
	a.effects.Flush(ctx, out)

	if recipients == nil {
		recipients = []primitive.ObjectID{}
	}
	return CommentResult{Comment: comment, Recipients: recipients}, nil
}

// CompleteResolution moves the document to completed with status done.
func (a *Assigner) CompleteResolution(ctx context.Context, documentID, actor primitive.ObjectID, notes string) (models.Document, error) {
	const op = "assigner.CompleteResolution"
	notes = htmlsanitize.StripTags(notes)
	if actor.IsZero() {
		return models.Document{}, apperr.Validation(op, "actor is required", map[string]string{"actor_id": "required"})
	}

	held := a.engine.lockDocument(documentID)
	defer held.Release()

	out := sideeffects.NewOutbox()
	var doc models.Document
	err := a.tx.Run(ctx, func(ctx context.Context) error {
		out.Reset()
		current, err := a.docs.GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		if current.Stage == models.StageCompleted {
			return apperr.Conflict(op, "document %s is already completed", current.Label())
		}
		if _, err := a.engine.transition(ctx, out, held, current, models.StageCompleted, actor, notes); err != nil {
			return err
		}
		if err := a.docs.MarkCompleted(ctx, documentID, notes, a.now().UTC()); err != nil {
			return err
		}
		doc, err = a.docs.GetByID(ctx, documentID)
		if err != nil {
			return err
		}

		out.Add(sideeffects.Audit(models.AuditRecord{
			DocumentID: &doc.ID,
			Action:     audit.EventResolutionCompleted,
			ActorID:    &actor,
			Detail:     map[string]string{"notes": notes},
		}))
		if doc.AuthorID != nil {
			out.Add(sideeffects.Notify(*doc.AuthorID, fmt.Sprintf("Document %s was completed", doc.Label()), documentLink(doc.ID)))
		}
		return nil
	})
	if err != nil {
		return models.Document{}, err
	}
	a.effects.Flush(ctx, out)

	a.log.Info("resolution completed", zap.String("document_id", doc.ID.Hex()))
	return doc, nil
}

// ResolutionStatistics summarizes assigned documents matching c. A user
// criteria selects documents where the user is primary, equal or
// co-executor.
func (a *Assigner) ResolutionStatistics(ctx context.Context, c criteria.Criteria) (ResolutionStats, error) {
	docs, err := a.docs.ListAssigned(ctx, c)
	if err != nil {
		return ResolutionStats{}, err
	}
	now := a.now().UTC()
	reg := a.engine.stages
	var st ResolutionStats
	for _, d := range docs {
		st.TotalAssigned++
		switch {
		case d.Stage == models.StageCompleted:
			st.Completed++
		case inProgressStages[d.Stage]:
			st.InProgress++
		}
		if d.IsOverdue(now) && !reg.IsTerminal(d.Stage) {
			st.Overdue++
		}
	}
	st.CompletionRate = percent(st.Completed, st.TotalAssigned)
	return st, nil
}

// DocumentsByRole lists the documents where user holds role. Primary
// executor documents come back by deadline, earliest first, with undated
// ones last.
func (a *Assigner) DocumentsByRole(ctx context.Context, user primitive.ObjectID, role models.ExecutorRole) ([]models.Document, error) {
	const op = "assigner.DocumentsByRole"
	fields := map[string]string{}
	if user.IsZero() {
		fields["user_id"] = "required"
	}
	if !role.Valid() {
		fields["role"] = "must be primary, equal, co or assistant"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(op, "invalid role query", fields)
	}
	docs, err := a.docs.ListByRole(ctx, user, role)
	if err != nil {
		return nil, err
	}
	if role == models.ExecutorPrimary {
		sort.SliceStable(docs, func(i, j int) bool {
			di, dj := docs[i].Deadline, docs[j].Deadline
			switch {
			case di == nil:
				return false
			case dj == nil:
				return true
			}
			return di.Before(*dj)
		})
	}
	return docs, nil
}

func mergeEqualExecutors(existing []models.Reviewer, equal []primitive.ObjectID, now time.Time) []models.Reviewer {
	out := make([]models.Reviewer, 0, len(existing)+len(equal))
	for _, r := range existing {
		if r.Role != models.RoleEqualExecutor {
			out = append(out, r)
		}
	}
	for _, id := range equal {
		out = append(out, models.Reviewer{UserID: id, Status: models.ReviewerPending, Role: models.RoleEqualExecutor, AddedAt: now})
	}
	return out
}

// mergeAssistant replaces any assistant with the given one, keeping at most
// one assistant per document.
func mergeAssistant(existing []models.Contributor, assistant *primitive.ObjectID, now time.Time) []models.Contributor {
	out := make([]models.Contributor, 0, len(existing)+1)
	for _, c := range existing {
		if c.Role != models.RoleAssistant {
			out = append(out, c)
		}
	}
	if assistant != nil {
		out = append(out, models.Contributor{UserID: *assistant, Role: models.RoleAssistant, AddedAt: now})
	}
	return out
}

// assignees returns everyone holding an executor role on d, without
// duplicates.
func assignees(d models.Document) []primitive.ObjectID {
	var ids []primitive.ObjectID
	if d.PrimaryExecutorID != nil {
		ids = append(ids, *d.PrimaryExecutorID)
	}
	ids = append(ids, d.EqualExecutorIDs()...)
	ids = append(ids, d.CoExecutorIDs...)
	if as := d.AssistantID(); as != nil {
		ids = append(ids, *as)
	}
	return uniqueIDs(ids)
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func resolutionDetail(d models.Document) map[string]string {
	detail := map[string]string{
		"priority":        d.Priority,
		"co_executors":    joinIDs(d.CoExecutorIDs),
		"equal_executors": joinIDs(d.EqualExecutorIDs()),
	}
	if d.PrimaryExecutorID != nil {
		detail["primary_executor"] = d.PrimaryExecutorID.Hex()
	}
	if as := d.AssistantID(); as != nil {
		detail["assistant"] = as.Hex()
	}
	if d.Deadline != nil {
		detail["deadline"] = d.Deadline.UTC().Format(time.RFC3339)
	}
	return detail
}

func joinIDs(ids []primitive.ObjectID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.Hex()
	}
	return strings.Join(parts, ",")
}
