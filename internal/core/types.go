package core

import (
	"context"
	"fmt"
	"time"
)

// DataType is the inferred type of a column.
type DataType string

const (
	TypeNumber  DataType = "number"
	TypeDate    DataType = "date"
	TypeBoolean DataType = "boolean"
	TypeString  DataType = "string"
)

// Column describes one column of an ingested file.
// Immutable once computed for a given file version.
type Column struct {
	Name         string   `json:"name"`
	DataType     DataType `json:"dataType"`
	SampleValues []string `json:"sampleValues"`
}

// Profile is the structured output of ingesting a file.
type Profile struct {
	Filename         string   `json:"filename"`         // Internal storage name
	OriginalFilename string   `json:"originalFilename"` // Name supplied by the uploader
	FileSize         int64    `json:"fileSize"`
	FileType         string   `json:"fileType"` // Lowercase extension without the dot
	RowCount         int      `json:"rowCount"`
	Columns          []Column `json:"columns"`
	FilePath         string   `json:"filePath"`
}

// Metadata is the bilingual descriptive record of a dataset.
type Metadata struct {
	TitleEN       string   `json:"title_en,omitempty"`
	TitleAR       string   `json:"title_ar,omitempty"`
	DescriptionEN string   `json:"description_en,omitempty"`
	DescriptionAR string   `json:"description_ar,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	CategoryEN    string   `json:"category_en,omitempty"`
	CategoryAR    string   `json:"category_ar,omitempty"`
	SubcategoryEN string   `json:"subcategory_en,omitempty"`
	SubcategoryAR string   `json:"subcategory_ar,omitempty"`
}

// MaxTags is the upper bound on tags stored on a dataset.
const MaxTags = 20

// Role identifies who submitted a metadata change.
type Role string

const (
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
	RoleAI     Role = "ai"
)

// CreatedByAI is the history attribution for generated metadata.
const CreatedByAI = "AI"

// HistoryEntry is one metadata submission. Entries are only ever appended,
// except that a change request annotates the comment of the last entry.
type HistoryEntry struct {
	Metadata  Metadata  `json:"metadata"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Comment   string    `json:"comment"`
}

// VersionHistoryEntry is an immutable snapshot of a superseded file.
type VersionHistoryEntry struct {
	VersionNumber    int       `json:"versionNumber"`
	Filename         string    `json:"filename"`
	FilePath         string    `json:"filePath"`
	FileSize         int64     `json:"fileSize"`
	FileType         string    `json:"fileType"`
	OriginalFilename string    `json:"originalFilename"`
	UploadDate       time.Time `json:"uploadDate"`
	RowCount         int       `json:"rowCount"`
	Columns          []Column  `json:"columns"`
}

// Dataset is the root entity: the current file, its review state and
// the history of metadata submissions and superseded files.
type Dataset struct {
	ID string `json:"id"`
	Profile
	UploadDate      time.Time             `json:"uploadDate"`
	Status          Status                `json:"status"`
	Metadata        Metadata              `json:"metadata"`
	MetadataHistory []HistoryEntry        `json:"metadata_history"`
	Versions        []VersionHistoryEntry `json:"versions"`
	CurrentVersion  int                   `json:"currentVersion"`

	// Revision increases on every update and backs optimistic concurrency.
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the structural invariants of a dataset.
func (d Dataset) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("dataset id is required")
	}
	if d.RowCount < 0 {
		return fmt.Errorf("row count must be non-negative, got %d", d.RowCount)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("unknown status %q", d.Status)
	}
	if d.Status != StatusUploaded && len(d.Columns) == 0 {
		return fmt.Errorf("dataset in status %q must have columns", d.Status)
	}
	if d.CurrentVersion != len(d.Versions)+1 {
		return fmt.Errorf("current version %d does not match %d archived versions", d.CurrentVersion, len(d.Versions))
	}
	if len(d.Metadata.Tags) > MaxTags {
		return fmt.Errorf("at most %d tags allowed, got %d", MaxTags, len(d.Metadata.Tags))
	}
	return nil
}

// archive snapshots the current file fields as the next version entry.
func (d Dataset) archive() VersionHistoryEntry {
	return VersionHistoryEntry{
		VersionNumber:    len(d.Versions) + 1,
		Filename:         d.Filename,
		FilePath:         d.FilePath,
		FileSize:         d.FileSize,
		FileType:         d.FileType,
		OriginalFilename: d.OriginalFilename,
		UploadDate:       d.UploadDate,
		RowCount:         d.RowCount,
		Columns:          cloneColumns(d.Columns),
	}
}

// Clone returns a deep copy so callers can't alias stored slices.
func (d Dataset) Clone() Dataset {
	out := d
	out.Columns = cloneColumns(d.Columns)
	out.Metadata = d.Metadata.clone()
	if d.MetadataHistory != nil {
		out.MetadataHistory = make([]HistoryEntry, len(d.MetadataHistory))
		for i, h := range d.MetadataHistory {
			h.Metadata = h.Metadata.clone()
			out.MetadataHistory[i] = h
		}
	}
	if d.Versions != nil {
		out.Versions = make([]VersionHistoryEntry, len(d.Versions))
		for i, v := range d.Versions {
			v.Columns = cloneColumns(v.Columns)
			out.Versions[i] = v
		}
	}
	return out
}

func (m Metadata) clone() Metadata {
	if m.Tags != nil {
		m.Tags = append([]string(nil), m.Tags...)
	}
	return m
}

func cloneColumns(cols []Column) []Column {
	if cols == nil {
		return nil
	}
	out := make([]Column, len(cols))
	for i, c := range cols {
		c.SampleValues = append([]string(nil), c.SampleValues...)
		out[i] = c
	}
	return out
}

// FileReplacement swaps the current file of a dataset for a new one.
type FileReplacement struct {
	Profile    Profile
	UploadDate time.Time
}

// Update is a single conditional mutation of a stored dataset.
// Zero-valued pointer fields are left untouched.
type Update struct {
	// ExpectRevision, when non-zero, fails the update with ErrConflict
	// unless the stored revision matches.
	ExpectRevision int64

	// IfStatus, when non-empty, fails the update with ErrConflict unless
	// the stored status is one of the listed values.
	IfStatus []Status

	Status         *Status
	Metadata       *Metadata
	File           *FileReplacement
	CurrentVersion *int

	PushHistory      *HistoryEntry
	AmendLastComment *string
	PushVersion      *VersionHistoryEntry
}

// Filter selects datasets for listing and counting.
type Filter struct {
	// Search is a case-insensitive substring matched against titles,
	// descriptions, tags, original filename and file type.
	Search string

	// Categories match when any entry equals category_en or category_ar.
	Categories []string
}

// Page is an offset window over a sorted result set.
type Page struct {
	Skip  int
	Limit int
}

// Store persists datasets. Implementations must apply each Update atomically.
type Store interface {
	Insert(ctx context.Context, d Dataset) error
	FindByID(ctx context.Context, id string) (Dataset, error)
	Update(ctx context.Context, id string, u Update) (Dataset, error)
	DeleteByID(ctx context.Context, id string) error
	Count(ctx context.Context, f Filter) (int, error)
	Find(ctx context.Context, f Filter, p Page) ([]Dataset, error)
	DistinctCategories(ctx context.Context) ([]string, error)
}
