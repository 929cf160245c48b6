// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import "strings"

// searchFields are the fields a query is matched against, per kind.
var searchFields = map[Kind][]string{
	Products:  {"name", "barcode", "supplier"},
	Customers: {"name", "phone", "address"},
	Invoices:  {"number", "customer", "customerName", "date"},
	Expenses:  {"description", "category", "date"},
}

// Filter returns the records whose searchable fields contain query,
// case-insensitively. Surrounding whitespace in query is ignored and
// an empty query matches everything.
func Filter(kind Kind, records []Record, query string) []Record {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return records
	}
	var matched []Record
	for _, record := range records {
		if matches(kind, record, query) {
			matched = append(matched, record)
		}
	}
	return matched
}

func matches(kind Kind, record Record, query string) bool {
	if strings.Contains(strings.ToLower(record.ID), query) && kind != Products {
		return true
	}
	for _, field := range searchFields[kind] {
		if strings.Contains(strings.ToLower(record.Text(field)), query) {
			return true
		}
	}
	return false
}
