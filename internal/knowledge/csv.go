package knowledge

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// emptyAnswer is substituted when a row has a question but no response text.
const emptyAnswer = "I found a match but the response is empty."

// ParseCSV reads knowledge entries from CSV data. The header must contain a
// Question column and a Response (or Answer) column; Category and Tags are
// optional. Header matching is case-insensitive and tolerates a BOM.
func ParseCSV(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\uFEFF")
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	qCol, ok := cols["question"]
	if !ok {
		return nil, fmt.Errorf("missing Question column (header: %v)", header)
	}
	aCol, ok := cols["response"]
	if !ok {
		if aCol, ok = cols["answer"]; !ok {
			return nil, fmt.Errorf("missing Response column (header: %v)", header)
		}
	}
	catCol, hasCat := cols["category"]
	tagCol, hasTags := cols["tags"]

	var entries []Entry
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(entries)+2, err)
		}

		q := strings.TrimSpace(field(record, qCol))
		if q == "" {
			continue
		}

		e := Entry{
			ID:       fmt.Sprintf("kb-%04d", len(entries)),
			Question: q,
			Answer:   strings.TrimSpace(field(record, aCol)),
		}
		if e.Answer == "" {
			e.Answer = emptyAnswer
		}
		if hasCat {
			e.Category = strings.TrimSpace(field(record, catCol))
		}
		if hasTags {
			e.Tags = splitTags(field(record, tagCol))
		}
		entries = append(entries, e)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries found")
	}
	return entries, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
