package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/datasets/internal/logging"
)

// Field limits for metadata submissions.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxCategoryLength    = 100
	MaxCommentLength     = 1000
)

// maxSubmitAttempts bounds the read-decide-write retries when a concurrent
// update wins the revision check.
const maxSubmitAttempts = 3

// Submission is a role-tagged metadata change. The metadata fields are
// embedded, so the JSON form is flat: title_en, ..., role, status, comment.
type Submission struct {
	Metadata
	Role    Role   `json:"role"`
	Status  Status `json:"status,omitempty"` // defaults to under_review
	Comment string `json:"comment,omitempty"`
}

// Validate checks the submission and returns the trigger it fires.
func (s Submission) Validate() (Trigger, error) {
	const op = "submit metadata"
	var problems []string

	switch s.Role {
	case RoleEditor, RoleAdmin, RoleAI:
	default:
		problems = append(problems, fmt.Sprintf("invalid role %q: must be one of editor, admin, ai", s.Role))
	}

	target := s.Status
	if target == "" {
		target = StatusUnderReview
	}
	trigger, err := TriggerFor(target)
	if err != nil {
		problems = append(problems, fmt.Sprintf("invalid status %q: must be one of under_review, approved, changes_requested", target))
	}
	if (trigger == TriggerApprove || trigger == TriggerRequestChanges) && s.Role != RoleAdmin {
		problems = append(problems, "only admins can approve or request changes")
	}

	if s.Role == RoleAdmin && strings.TrimSpace(s.Comment) == "" {
		problems = append(problems, "comment is required for admin actions")
	}
	problems = appendTooLong(problems, "comment", s.Comment, MaxCommentLength)

	m := s.Metadata
	problems = appendTooLong(problems, "title_en", m.TitleEN, MaxTitleLength)
	problems = appendTooLong(problems, "title_ar", m.TitleAR, MaxTitleLength)
	problems = appendTooLong(problems, "description_en", m.DescriptionEN, MaxDescriptionLength)
	problems = appendTooLong(problems, "description_ar", m.DescriptionAR, MaxDescriptionLength)
	problems = appendTooLong(problems, "category_en", m.CategoryEN, MaxCategoryLength)
	problems = appendTooLong(problems, "category_ar", m.CategoryAR, MaxCategoryLength)
	problems = appendTooLong(problems, "subcategory_en", m.SubcategoryEN, MaxCategoryLength)
	problems = appendTooLong(problems, "subcategory_ar", m.SubcategoryAR, MaxCategoryLength)
	if len(m.Tags) > MaxTags {
		problems = append(problems, fmt.Sprintf("tags cannot exceed %d entries", MaxTags))
	}

	if len(problems) > 0 {
		return "", newError(ErrInvalidInput, op, strings.Join(problems, "; "), nil)
	}
	return trigger, nil
}

func appendTooLong(problems []string, field, v string, limit int) []string {
	if utf8.RuneCountInString(v) > limit {
		return append(problems, fmt.Sprintf("%s cannot exceed %d characters", field, limit))
	}
	return problems
}

// SubmitMetadata replaces the dataset's metadata and moves it to the
// submitted status.
//
// A change request against a dataset with history annotates the last
// entry's comment instead of adding a snapshot: the comment belongs to the
// snapshot that was reviewed. Every other submission appends an entry.
// The decision is made against a read of the dataset and written with a
// revision check, so a concurrent update forces a fresh read.
func (s *Service) SubmitMetadata(ctx context.Context, id string, sub Submission) (Dataset, error) {
	const op = "submit metadata"

	trigger, err := sub.Validate()
	if err != nil {
		return Dataset{}, err
	}
	logger := logging.ForDataset(ctx, id, "role", sub.Role)

	for attempt := 1; attempt <= maxSubmitAttempts; attempt++ {
		cur, err := s.store.FindByID(ctx, id)
		if err != nil {
			return Dataset{}, storeError(op, id, err)
		}
		to, err := Transition(cur.Status, trigger)
		if err != nil {
			return Dataset{}, err
		}

		md := sub.Metadata.clone()
		u := Update{
			ExpectRevision: cur.Revision,
			IfStatus:       SourcesOf(trigger),
			Status:         &to,
			Metadata:       &md,
		}
		if to == StatusChangesRequested && len(cur.MetadataHistory) > 0 {
			comment := sub.Comment
			u.AmendLastComment = &comment
		} else {
			u.PushHistory = &HistoryEntry{
				Metadata:  md,
				CreatedBy: string(sub.Role),
				CreatedAt: s.now(),
				Comment:   sub.Comment,
			}
		}

		updated, err := s.store.Update(ctx, id, u)
		if errors.Is(err, ErrConflict) {
			logger.Debug("metadata submission lost a race, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return Dataset{}, storeError(op, id, err)
		}

		s.recorder.ReviewTransition(trigger)
		logger.Info("metadata submitted", "from", cur.Status, "to", to, "history", len(updated.MetadataHistory))
		return updated, nil
	}

	return Dataset{}, newError(ErrConflict, op, fmt.Sprintf("concurrent modification of dataset %s, please retry", id), nil)
}
