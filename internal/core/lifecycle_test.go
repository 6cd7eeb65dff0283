package core

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		trigger Trigger
		want    Status
		wantErr bool
	}{
		{"new dataset ingested", "", TriggerIngested, StatusProcessed, false},
		{"uploaded ingested", StatusUploaded, TriggerIngested, StatusProcessed, false},
		{"ai success", StatusProcessed, TriggerAISucceeded, StatusMetadataGenerated, false},
		{"ai failure", StatusProcessed, TriggerAIFailed, StatusMetadataFailed, false},
		{"submit generated", StatusMetadataGenerated, TriggerSubmit, StatusUnderReview, false},
		{"submit after failure", StatusMetadataFailed, TriggerSubmit, StatusUnderReview, false},
		{"resubmit under review", StatusUnderReview, TriggerSubmit, StatusUnderReview, false},
		{"resubmit after changes", StatusChangesRequested, TriggerSubmit, StatusUnderReview, false},
		{"approve", StatusUnderReview, TriggerApprove, StatusApproved, false},
		{"request changes", StatusUnderReview, TriggerRequestChanges, StatusChangesRequested, false},
		{"new version keeps approved", StatusApproved, TriggerNewVersion, StatusApproved, false},

		{"ai result after review", StatusUnderReview, TriggerAISucceeded, "", true},
		{"submit while processing", StatusProcessed, TriggerSubmit, "", true},
		{"approve generated", StatusMetadataGenerated, TriggerApprove, "", true},
		{"approve twice", StatusApproved, TriggerApprove, "", true},
		{"submit approved", StatusApproved, TriggerSubmit, "", true},
		{"request changes again", StatusChangesRequested, TriggerRequestChanges, StatusChangesRequested, false},
		{"approve after changes requested", StatusChangesRequested, TriggerApprove, "", true},
		{"version under review", StatusUnderReview, TriggerNewVersion, "", true},
		{"ingest twice", StatusProcessed, TriggerIngested, "", true},
		{"unknown trigger", StatusProcessed, Trigger("publish"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.from, tt.trigger)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidState) {
					t.Fatalf("expected ErrInvalidState, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Transition(%q, %q) = %q, want %q", tt.from, tt.trigger, got, tt.want)
			}
		})
	}
}

func TestTransition_ErrorMapsToReviewCode(t *testing.T) {
	_, err := Transition(StatusApproved, TriggerSubmit)
	if got := MapError(err).Code; got != "REV004" {
		t.Errorf("code = %q, want REV004 (err: %v)", got, err)
	}
}

func TestTriggerFor(t *testing.T) {
	tests := []struct {
		target Status
		want   Trigger
	}{
		{StatusUnderReview, TriggerSubmit},
		{StatusApproved, TriggerApprove},
		{StatusChangesRequested, TriggerRequestChanges},
	}
	for _, tt := range tests {
		got, err := TriggerFor(tt.target)
		if err != nil {
			t.Fatalf("TriggerFor(%q): %v", tt.target, err)
		}
		if got != tt.want {
			t.Errorf("TriggerFor(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}

	for _, s := range []Status{StatusProcessed, StatusMetadataGenerated, "published"} {
		if _, err := TriggerFor(s); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("TriggerFor(%q): expected ErrInvalidInput, got %v", s, err)
		}
	}
}

func TestAllStatuses(t *testing.T) {
	got := AllStatuses()
	if len(got) != 7 {
		t.Fatalf("got %d statuses, want 7", len(got))
	}
	for _, s := range got {
		if !s.Valid() {
			t.Errorf("%q reported invalid", s)
		}
	}

	// The returned slice is a copy.
	got[0] = "mutated"
	if AllStatuses()[0] != StatusUploaded {
		t.Error("AllStatuses exposed its backing array")
	}

	if Status("published").Valid() {
		t.Error("undeclared status reported valid")
	}
}
