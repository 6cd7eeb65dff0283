package core

// ingest.go turns an uploaded file into a Profile.
//
// The body is streamed to the blob store under a random name, then read
// back and parsed. CSV is parsed row by row; Excel workbooks are loaded
// whole because both formats are zip/BIFF containers that need random
// access. Any failure after the write removes the stored file.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// DefaultMaxFileSize is the upload size cap (10 MiB).
const DefaultMaxFileSize int64 = 10 << 20

// ContextCheckInterval is how many CSV records are read between
// cancellation checks.
var ContextCheckInterval = 1000

// AllowedExtensions lists the accepted file extensions, lowercase.
var AllowedExtensions = []string{".csv", ".xlsx", ".xls"}

// Upload is a file received from a client.
type Upload struct {
	Filename string    // Name supplied by the client; never used for storage
	Size     int64     // Declared size, or -1 when unknown
	Body     io.Reader // File contents
}

// Ingester validates, stores and profiles uploaded files.
type Ingester struct {
	blobs       BlobStore
	maxFileSize int64
	recorder    Recorder
}

// NewIngester returns an Ingester writing to blobs. A non-positive
// maxFileSize selects DefaultMaxFileSize.
func NewIngester(blobs BlobStore, maxFileSize int64, rec Recorder) *Ingester {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Ingester{blobs: blobs, maxFileSize: maxFileSize, recorder: rec}
}

// Ingest stores u and returns its profile. Errors are *Error values of
// kind ErrInvalidInput (bad type, size or content) or ErrUpstream (blob
// storage). No file is left behind on error.
func (in *Ingester) Ingest(ctx context.Context, u Upload) (Profile, error) {
	const op = "ingest"
	start := time.Now()

	if u.Body == nil {
		return Profile{}, invalidInput(op, "no file uploaded")
	}
	ext := strings.ToLower(filepath.Ext(u.Filename))
	if !slices.Contains(AllowedExtensions, ext) {
		in.recorder.IngestCompleted("other", "rejected", 0, time.Since(start))
		return Profile{}, invalidInput(op, "invalid file type %q: only .csv, .xlsx and .xls files are allowed", ext)
	}
	fileType := strings.TrimPrefix(ext, ".")
	if u.Size > in.maxFileSize {
		in.recorder.IngestCompleted(fileType, "rejected", 0, time.Since(start))
		return Profile{}, in.tooLarge(u.Size)
	}

	// Read one byte past the cap so oversized bodies with no declared size
	// are still detected.
	path, size, err := in.blobs.Write(ctx, ext, io.LimitReader(u.Body, in.maxFileSize+1))
	if err != nil {
		in.recorder.IngestCompleted(fileType, "error", 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Profile{}, newError(ErrInvalidInput, op, "upload interrupted", ctxErr)
		}
		return Profile{}, upstream(op, err)
	}

	profile, err := in.profile(ctx, path, size, ext)
	if err != nil {
		_ = in.blobs.Delete(path)
		in.recorder.IngestCompleted(fileType, "rejected", 0, time.Since(start))
		return Profile{}, err
	}

	profile.Filename = filepath.Base(path)
	profile.OriginalFilename = filepath.Base(u.Filename)
	profile.FileSize = size
	profile.FileType = fileType
	profile.FilePath = path

	in.recorder.IngestCompleted(fileType, "ok", profile.RowCount, time.Since(start))
	return profile, nil
}

func (in *Ingester) tooLarge(size int64) *Error {
	return invalidInput("ingest", "file size %d bytes exceeds the limit of %d bytes", size, in.maxFileSize)
}

// profile parses the stored file at path.
func (in *Ingester) profile(ctx context.Context, path string, size int64, ext string) (Profile, error) {
	if size > in.maxFileSize {
		return Profile{}, in.tooLarge(size)
	}

	f, err := in.blobs.Open(path)
	if err != nil {
		return Profile{}, upstream("ingest", err)
	}
	defer f.Close()

	var p Profile
	switch ext {
	case ".csv":
		p, err = parseCSV(ctx, f)
	case ".xlsx":
		p, err = parseXLSX(f)
	case ".xls":
		p, err = parseXLS(f)
	}
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return Profile{}, e
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Profile{}, newError(ErrInvalidInput, "ingest", "upload interrupted", err)
		}
		return Profile{}, newError(ErrInvalidInput, "ingest", fmt.Sprintf("error parsing %s file", strings.TrimPrefix(ext, ".")), err)
	}
	if p.RowCount == 0 || len(p.Columns) == 0 {
		return Profile{}, invalidInput("ingest", "file is empty")
	}
	return p, nil
}

// parseCSV streams r and samples every record. The first record is the
// header.
func parseCSV(ctx context.Context, r io.Reader) (Profile, error) {
	cr := csv.NewReader(newCSVSource(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, err
	}
	sampler := newColumnSampler(slices.Clone(header))

	rows := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Profile{}, err
		}
		rows++
		if rows%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Profile{}, err
			}
		}
		if !sampler.saturated() {
			sampler.add(record)
		}
	}

	return Profile{RowCount: rows, Columns: sampler.columns()}, nil
}

// parseXLSX reads the first worksheet of an Office Open XML workbook.
func parseXLSX(r io.Reader) (Profile, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return Profile{}, err
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return Profile{}, nil
	}
	rows, err := wb.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Profile{}, err
	}
	if err := renderBoolCells(wb, sheets[0], rows); err != nil {
		return Profile{}, err
	}
	return profileRows(rows), nil
}

// renderBoolCells rewrites boolean cells, which raw values report as 1/0,
// to true/false. Numbers and dates keep their raw values.
func renderBoolCells(wb *excelize.File, sheet string, rows [][]string) error {
	for i, row := range rows {
		for j, v := range row {
			if v != "0" && v != "1" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			typ, err := wb.GetCellType(sheet, cell)
			if err != nil {
				return err
			}
			if typ == excelize.CellTypeBool {
				row[j] = strconv.FormatBool(v == "1")
			}
		}
	}
	return nil
}

// parseXLS reads the first worksheet of a legacy BIFF workbook. The xls
// decoder panics on some malformed inputs, so panics become parse errors.
func parseXLS(r io.ReadSeeker) (p Profile, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed workbook: %v", rec)
		}
	}()

	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return Profile{}, err
	}
	if wb.NumSheets() == 0 {
		return Profile{}, nil
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return Profile{}, nil
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return profileRows(rows), nil
}

// xlsRow returns row i of sheet, or nil when the sheet has no record for
// it. WorkSheet.Row dereferences a nil row for such gaps.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// profileRows builds a profile from a fully loaded sheet. Blank rows are
// skipped; the first remaining row is the header. Only the first
// ExcelSampleRows data rows are sampled but every data row is counted.
func profileRows(rows [][]string) Profile {
	var header []string
	sampled, count := 0, 0
	var sampler *columnSampler

	for _, row := range rows {
		if blank(row) {
			continue
		}
		if header == nil {
			header = headerNames(row)
			sampler = newColumnSampler(header)
			continue
		}
		count++
		if sampled < ExcelSampleRows {
			sampler.add(row)
			sampled++
		}
	}
	if sampler == nil {
		return Profile{}
	}
	return Profile{RowCount: count, Columns: sampler.columns()}
}

// headerNames names unlabeled header cells __EMPTY, __EMPTY_1, ...
func headerNames(row []string) []string {
	names := make([]string, len(row))
	empty := 0
	for i, cell := range row {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = "__EMPTY"
			if empty > 0 {
				name += "_" + strconv.Itoa(empty)
			}
			empty++
		}
		names[i] = name
	}
	return names
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
