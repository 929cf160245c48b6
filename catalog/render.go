// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

// Currency is printed after every amount.
const Currency = "ج.م"

const placeholder = "—"

// column is one rendered field of a row.
type column struct {
	field  string
	width  int
	amount bool
}

var layouts = map[Kind][]column{
	Products:  {{field: "name", width: 28}, {field: "barcode", width: 16}, {field: "supplier", width: 16}, {field: "price", width: 12, amount: true}},
	Customers: {{field: "name", width: 28}, {field: "phone", width: 16}, {field: "balance", width: 12, amount: true}},
	Invoices:  {{field: "number", width: 12}, {field: "customerName", width: 24}, {field: "date", width: 12}, {field: "total", width: 12, amount: true}},
	Expenses:  {{field: "description", width: 28}, {field: "category", width: 16}, {field: "date", width: 12}, {field: "amount", width: 12, amount: true}},
}

var countFormats = map[string]map[Kind]string{
	"ar": {Products: "%d منتج", Customers: "%d عميل", Invoices: "%d فاتورة", Expenses: "%d مصروف"},
	"en": {Products: "%d products", Customers: "%d customers", Invoices: "%d invoices", Expenses: "%d expenses"},
}

var emptyMessages = map[string]string{
	"ar": "لا توجد نتائج",
	"en": "No matching records",
}

// RenderOptions controls Render.
type RenderOptions struct {
	Locale string
	// Plain disables colour and emphasis even on a terminal.
	Plain bool
}

// Render writes records as a table: a count line, then one row per
// record. Styling follows what w supports; a plain writer gets plain
// text.
func Render(w io.Writer, kind Kind, records []Record, options RenderOptions) error {
	locale := options.Locale
	renderer := lipgloss.NewRenderer(w)
	if options.Plain {
		renderer.SetColorProfile(termenv.Ascii)
	}
	countStyle := renderer.NewStyle().Faint(true)
	nameStyle := renderer.NewStyle().Bold(true)
	detailStyle := renderer.NewStyle().Foreground(lipgloss.Color("245"))
	amountStyle := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("33")).Align(lipgloss.Right)

	var out strings.Builder
	out.WriteString(countStyle.Render(countLine(kind, len(records), locale)))
	out.WriteString("\n")

	if len(records) == 0 {
		message, ok := emptyMessages[locale]
		if !ok {
			message = emptyMessages["en"]
		}
		out.WriteString(message)
		out.WriteString("\n")
		_, err := io.WriteString(w, out.String())
		return err
	}

	for _, record := range records {
		cells := make([]string, 0, len(layouts[kind])+1)
		for index, column := range layouts[kind] {
			switch {
			case column.amount:
				cells = append(cells, amountStyle.Width(column.width).Render(fmt.Sprintf("%.2f", record.Number(column.field))))
			case index == 0:
				cells = append(cells, nameStyle.Width(column.width).Render(ansi.Truncate(cellText(record, column.field), column.width-1, "…")))
			default:
				cells = append(cells, detailStyle.Width(column.width).Render(ansi.Truncate(cellText(record, column.field), column.width-1, "…")))
			}
		}
		cells = append(cells, " "+detailStyle.Render(Currency))
		out.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		out.WriteString("\n")
	}
	_, err := io.WriteString(w, out.String())
	return err
}

func countLine(kind Kind, count int, locale string) string {
	format, ok := countFormats[locale][kind]
	if !ok {
		format = countFormats["en"][kind]
	}
	return fmt.Sprintf(format, count)
}

func cellText(record Record, field string) string {
	text := record.Text(field)
	if text == "" && field == "number" {
		text = record.ID
	}
	if text == "" {
		return placeholder
	}
	return text
}
