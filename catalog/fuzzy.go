// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

var initScoring sync.Once

// Rank returns the records that fuzzy-match query, best match first.
// Each record scores as its best-scoring searchable field. Ties keep
// the input order. An empty query returns records unchanged.
func Rank(kind Kind, records []Record, query string) []Record {
	pattern := []rune(strings.ToLower(strings.TrimSpace(query)))
	if len(pattern) == 0 {
		return records
	}
	initScoring.Do(func() { algo.Init("default") })

	slab := util.MakeSlab(100*1024, 2048)
	type scored struct {
		record Record
		score  int
	}
	var hits []scored
	for _, record := range records {
		best, ok := 0, false
		for _, text := range rankTexts(kind, record) {
			if text == "" {
				continue
			}
			chars := util.ToChars([]byte(text))
			result, _ := algo.FuzzyMatchV2(false, true, true, &chars, pattern, false, slab)
			if result.Start < 0 {
				continue
			}
			if !ok || result.Score > best {
				best, ok = result.Score, true
			}
		}
		if ok {
			hits = append(hits, scored{record: record, score: best})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	ranked := make([]Record, len(hits))
	for i, hit := range hits {
		ranked[i] = hit.record
	}
	return ranked
}

func rankTexts(kind Kind, record Record) []string {
	fields := searchFields[kind]
	texts := make([]string, 0, len(fields)+1)
	if kind != Products {
		texts = append(texts, record.ID)
	}
	for _, field := range fields {
		texts = append(texts, record.Text(field))
	}
	return texts
}
