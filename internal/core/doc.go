// Package core contains the dataset domain: ingestion, type inference,
// the review lifecycle, metadata history and data versioning.
//
// It has no transport dependencies. Persistence and the metadata model
// are reached through the [Store] and [MetadataGenerator] interfaces.
//
// # Ingestion
//
// [Ingester.Ingest] validates an upload (size, extension), streams it to a
// [BlobStore] under a random name and profiles it. CSV files are parsed
// row by row behind a BOM-skipping, UTF-8 repairing reader. Excel files
// (.xlsx, .xls) are loaded whole and only their first sheet is read. Each
// column gets up to [MaxDistinctSamples] distinct values for
// [InferDataType], of which [MaxStoredSamples] are kept.
//
// # Lifecycle
//
// Status changes go through [Transition]. A dataset is created in
// processed; the [Dispatcher] then moves it to metadata_generated or
// metadata_failed. Reviewers drive it through under_review,
// changes_requested and approved with [Service.SubmitMetadata]. Approved
// datasets accept new files with [Service.CreateVersion] without leaving
// approved.
//
// # Concurrency
//
// Every Store.Update is a single conditional write. Read-decide-write
// operations carry the revision they read and retry on [ErrConflict].
//
// # Errors
//
// Errors wrap one of the kinds [ErrInvalidInput], [ErrNotFound],
// [ErrInvalidState], [ErrConflict] or [ErrUpstream]; use [KindOf] or
// errors.Is to classify them and [MapError] for a user-facing message.
package core
