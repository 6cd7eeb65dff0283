package core

// lifecycle.go defines the dataset status graph.
//
//	uploaded -> processed -> metadata_generated | metadata_failed
//	         -> under_review -> approved | changes_requested
//
// changes_requested -> under_review is the only cycle. A repeated change
// request re-annotates the reviewed snapshot. approved only re-enters
// itself through versioning.

import "slices"

// Status is the review state of a dataset.
type Status string

const (
	StatusUploaded          Status = "uploaded"
	StatusProcessed         Status = "processed"
	StatusMetadataGenerated Status = "metadata_generated"
	StatusMetadataFailed    Status = "metadata_failed"
	StatusUnderReview       Status = "under_review"
	StatusChangesRequested  Status = "changes_requested"
	StatusApproved          Status = "approved"
)

var allStatuses = []Status{
	StatusUploaded,
	StatusProcessed,
	StatusMetadataGenerated,
	StatusMetadataFailed,
	StatusUnderReview,
	StatusChangesRequested,
	StatusApproved,
}

// AllStatuses returns the declared status set in lifecycle order,
// independent of what is currently stored.
func AllStatuses() []Status {
	return slices.Clone(allStatuses)
}

// Valid reports whether s is a declared status.
func (s Status) Valid() bool {
	return slices.Contains(allStatuses, s)
}

// Trigger is an event that moves a dataset between statuses.
type Trigger string

const (
	TriggerIngested       Trigger = "ingested"
	TriggerAISucceeded    Trigger = "ai_succeeded"
	TriggerAIFailed       Trigger = "ai_failed"
	TriggerSubmit         Trigger = "submit"
	TriggerApprove        Trigger = "approve"
	TriggerRequestChanges Trigger = "request_changes"
	TriggerNewVersion     Trigger = "new_version"
)

type edge struct {
	from []Status
	to   Status
}

var transitions = map[Trigger]edge{
	TriggerIngested:    {from: []Status{"", StatusUploaded}, to: StatusProcessed},
	TriggerAISucceeded: {from: []Status{StatusProcessed}, to: StatusMetadataGenerated},
	TriggerAIFailed:    {from: []Status{StatusProcessed}, to: StatusMetadataFailed},
	TriggerSubmit: {
		from: []Status{StatusMetadataGenerated, StatusMetadataFailed, StatusUnderReview, StatusChangesRequested},
		to:   StatusUnderReview,
	},
	TriggerApprove:        {from: []Status{StatusUnderReview}, to: StatusApproved},
	TriggerRequestChanges: {from: []Status{StatusUnderReview, StatusChangesRequested}, to: StatusChangesRequested},
	TriggerNewVersion:     {from: []Status{StatusApproved}, to: StatusApproved},
}

// Transition returns the status reached by firing t from the given status.
// Illegal moves fail with ErrInvalidState.
func Transition(from Status, t Trigger) (Status, error) {
	e, ok := transitions[t]
	if !ok {
		return "", invalidState("transition", "unknown trigger %q", t)
	}
	if !slices.Contains(e.from, from) {
		return "", invalidState("transition", "cannot move from %s to %s", describe(from), e.to)
	}
	return e.to, nil
}

// SourcesOf lists the statuses t may fire from. Stores use it as the
// status precondition of the corresponding update.
func SourcesOf(t Trigger) []Status {
	return slices.Clone(transitions[t].from)
}

// TriggerFor maps a requested review status to the trigger that reaches it.
func TriggerFor(target Status) (Trigger, error) {
	switch target {
	case StatusUnderReview:
		return TriggerSubmit, nil
	case StatusApproved:
		return TriggerApprove, nil
	case StatusChangesRequested:
		return TriggerRequestChanges, nil
	}
	return "", invalidInput("submit metadata", "invalid status %q: must be one of under_review, approved, changes_requested", target)
}

func describe(s Status) string {
	if s == "" {
		return "(none)"
	}
	return string(s)
}
