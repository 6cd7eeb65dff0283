package core

const (
	// MaxDistinctSamples is how many distinct non-empty values are
	// collected per column for type inference.
	MaxDistinctSamples = 10

	// MaxStoredSamples is how many of those are kept on the column.
	MaxStoredSamples = 5

	// ExcelSampleRows limits Excel sampling to the leading data rows.
	ExcelSampleRows = 100
)

// columnSampler accumulates distinct values per column in first-seen order.
type columnSampler struct {
	names   []string
	seen    []map[string]struct{}
	samples [][]string
}

func newColumnSampler(names []string) *columnSampler {
	s := &columnSampler{
		names:   names,
		seen:    make([]map[string]struct{}, len(names)),
		samples: make([][]string, len(names)),
	}
	for i := range names {
		s.seen[i] = make(map[string]struct{}, MaxDistinctSamples)
	}
	return s
}

// add records one data row. Cells beyond the header are ignored and
// missing cells count as empty.
func (s *columnSampler) add(record []string) {
	for i := range s.names {
		if i >= len(record) || len(s.samples[i]) >= MaxDistinctSamples {
			continue
		}
		v := record[i]
		if v == "" {
			continue
		}
		if _, dup := s.seen[i][v]; dup {
			continue
		}
		s.seen[i][v] = struct{}{}
		s.samples[i] = append(s.samples[i], v)
	}
}

// saturated reports whether every column has its full sample set, after
// which further rows cannot change the result.
func (s *columnSampler) saturated() bool {
	for _, vals := range s.samples {
		if len(vals) < MaxDistinctSamples {
			return false
		}
	}
	return true
}

func (s *columnSampler) columns() []Column {
	cols := make([]Column, len(s.names))
	for i, name := range s.names {
		vals := s.samples[i]
		stored := vals
		if len(stored) > MaxStoredSamples {
			stored = stored[:MaxStoredSamples]
		}
		cols[i] = Column{
			Name:         name,
			DataType:     InferDataType(vals),
			SampleValues: append([]string{}, stored...),
		}
	}
	return cols
}
