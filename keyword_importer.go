package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// KeywordImporter loads keywords for a project from a CSV file. The
// first column is the keyword; a header row named "keyword" is skipped.
type KeywordImporter struct {
	db *DatabaseService
}

func NewKeywordImporter(db *DatabaseService) *KeywordImporter {
	return &KeywordImporter{db: db}
}

type ImportResult struct {
	RowsRead int `json:"rows_read"`
	Added    int `json:"added"`
	Skipped  int `json:"skipped"`
}

func (i *KeywordImporter) ImportFile(projectID, path string) (*ImportResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()
	return i.Import(projectID, file)
}

func (i *KeywordImporter) Import(projectID string, source io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(source)
	reader.FieldsPerRecord = -1

	result := &ImportResult{}
	var keywords []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		result.RowsRead++
		keyword := strings.TrimSpace(record[0])
		if keyword == "" || (result.RowsRead == 1 && strings.EqualFold(keyword, "keyword")) {
			result.Skipped++
			continue
		}
		keywords = append(keywords, keyword)
	}

	added, err := i.db.AddKeywords(projectID, keywords)
	if err != nil {
		return nil, err
	}
	result.Added = added
	result.Skipped += len(keywords) - added
	return result, nil
}
