// Package logstore reads the append-only log file written by the logging
// package and answers per-request log queries.
package logstore

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"pdfhub/internal/domain"
)

// Record is one line of the log store. Raw is the line as written; Timestamp
// is extracted from the line when it parses as JSON, otherwise it is the time
// of the query.
type Record struct {
	Timestamp string `json:"timestamp"`
	Raw       string `json:"raw_log"`
}

// Result is the outcome of one query. Message is set when the store file does
// not exist yet.
type Result struct {
	Logs    []Record
	Total   int
	Limit   int
	Filter  string
	Message string
}

// Query reads the full log file, keeps only lines containing filter as a
// substring (when non-empty), and returns the last limit matches in their
// original order. A missing file yields an empty result; any other read
// failure is reported as ErrStoreUnavailable.
func Query(path string, limit int, filter string) (Result, error) {
	if limit <= 0 {
		limit = 100
	}
	res := Result{Logs: []Record{}, Limit: limit, Filter: filter}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		res.Message = "No log file found"
		return res, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	lines := strings.Split(string(data), "\n")
	matched := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if filter != "" && !strings.Contains(line, filter) {
			continue
		}
		matched = append(matched, line)
	}

	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	for _, line := range matched {
		res.Logs = append(res.Logs, Record{Timestamp: lineTimestamp(line), Raw: line})
	}
	res.Total = len(res.Logs)
	return res, nil
}

// lineTimestamp pulls the "time" field out of a JSON log line. Free-text
// lines get the current time so consumers always see a timestamp.
func lineTimestamp(line string) string {
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err == nil {
		if ts, ok := fields["time"].(string); ok && ts != "" {
			return ts
		}
	}
	return time.Now().Format(time.RFC3339)
}
