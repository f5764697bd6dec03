package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// MaxSummaryLength is the number of characters of a result summary that are kept
const MaxSummaryLength = 1000

// RecordAnalysis appends an entry to the analysis log. params is stored as
// JSON (strings as-is) and summary is cut to MaxSummaryLength characters.
func (s *Store) RecordAnalysis(ctx context.Context, analysisType string, params any, summary string) error {
	err := s.withConn(ctx, func(q Querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO analysis_history (analysis_type, parameters, result_summary, created_at)
			VALUES (?, ?, ?, ?)
		`, analysisType, encodeParams(params), truncate(summary, MaxSummaryLength), formatTimestamp(now()))
		return err
	})
	if err != nil {
		return s.fail("record_analysis", err, log.Fields{"type": analysisType})
	}
	return nil
}

// ListAnalyses returns up to limit analysis records, newest first
func (s *Store) ListAnalyses(ctx context.Context, limit int) ([]AnalysisRecord, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	records := make([]AnalysisRecord, 0)
	err := s.withConn(ctx, func(q Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT id, analysis_type, parameters, result_summary, created_at
			FROM analysis_history
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var r AnalysisRecord
			var analysisType, params, summary, createdAt sql.NullString
			if err := rows.Scan(&r.ID, &analysisType, &params, &summary, &createdAt); err != nil {
				return err
			}
			r.AnalysisType = analysisType.String
			r.Parameters = params.String
			r.ResultSummary = summary.String
			if r.CreatedAt, err = parseNullTimestamp(createdAt); err != nil {
				return err
			}
			records = append(records, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, s.fail("list_analyses", err, nil)
	}
	return records, nil
}

func encodeParams(params any) string {
	switch p := params.(type) {
	case nil:
		return ""
	case string:
		return p
	case []byte:
		return string(p)
	}
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%v", params)
	}
	return string(b)
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
