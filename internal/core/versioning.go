package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/datasets/internal/logging"
)

// CreateVersion promotes a newly uploaded file to the current file of an
// approved dataset. The superseded file is archived as a version entry and
// stays on disk; status is not changed. On any failure the new file is
// removed and the dataset is left as it was.
func (s *Service) CreateVersion(ctx context.Context, id string, u Upload) (Dataset, error) {
	const op = "create version"

	cur, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Dataset{}, storeError(op, id, err)
	}
	if err := requireApproved(op, cur); err != nil {
		return Dataset{}, err
	}

	profile, err := s.ingest(ctx, u)
	if err != nil {
		return Dataset{}, err
	}
	discard := func() { _ = s.blobs.Delete(profile.FilePath) }

	for attempt := 1; attempt <= maxSubmitAttempts; attempt++ {
		if attempt > 1 {
			if cur, err = s.store.FindByID(ctx, id); err != nil {
				discard()
				return Dataset{}, storeError(op, id, err)
			}
		}
		// Status may have moved while the file was being parsed.
		if err := requireApproved(op, cur); err != nil {
			discard()
			return Dataset{}, err
		}

		archived := cur.archive()
		next := cur.CurrentVersion + 1
		updated, err := s.store.Update(ctx, id, Update{
			ExpectRevision: cur.Revision,
			IfStatus:       SourcesOf(TriggerNewVersion),
			File:           &FileReplacement{Profile: profile, UploadDate: s.now()},
			CurrentVersion: &next,
			PushVersion:    &archived,
		})
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			discard()
			return Dataset{}, storeError(op, id, err)
		}

		s.recorder.VersionCreated()
		logging.ForDataset(ctx, id).Info("dataset version created",
			"version", updated.CurrentVersion,
			"archived", archived.VersionNumber,
			"rows", profile.RowCount,
		)
		return updated, nil
	}

	discard()
	return Dataset{}, newError(ErrConflict, op, fmt.Sprintf("concurrent modification of dataset %s, please retry", id), nil)
}

func requireApproved(op string, d Dataset) error {
	if _, err := Transition(d.Status, TriggerNewVersion); err != nil {
		return invalidState(op, "dataset must be approved before a new version can be uploaded (status %s)", d.Status)
	}
	return nil
}
