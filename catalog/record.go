// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"strconv"

	"github.com/ysk-pos/scanner/docstore"
)

// Kind is one mirrored collection.
type Kind string

const (
	Products  Kind = "products"
	Customers Kind = "customers"
	Invoices  Kind = "invoices"
	Expenses  Kind = "expenses"
)

// Kinds lists every mirrored kind in refresh order.
var Kinds = []Kind{Products, Customers, Invoices, Expenses}

// ParseKind accepts a kind name.
func ParseKind(name string) (Kind, error) {
	for _, kind := range Kinds {
		if string(kind) == name {
			return kind, nil
		}
	}
	return "", fmt.Errorf("catalog: unknown kind %q (want products, customers, invoices or expenses)", name)
}

// Collection returns the store collection holding kind under prefix.
func (k Kind) Collection(prefix string) string {
	return prefix + "_" + string(k)
}

var nouns = map[string]map[Kind]string{
	"ar": {Products: "المنتجات", Customers: "العملاء", Invoices: "الفواتير", Expenses: "المصروفات"},
	"en": {Products: "products", Customers: "customers", Invoices: "invoices", Expenses: "expenses"},
}

// Noun names the kind in locale, for notices.
func (k Kind) Noun(locale string) string {
	if noun, ok := nouns[locale][k]; ok {
		return noun
	}
	return string(k)
}

// Record is one cached document.
type Record struct {
	ID     string
	Fields docstore.Fields
}

// Text renders a field for display and search: strings as-is, numbers
// in their shortest form, anything else empty.
func (r Record) Text(field string) string {
	switch value := r.Fields[field].(type) {
	case string:
		return value
	case int64:
		return strconv.FormatInt(value, 10)
	case int:
		return strconv.Itoa(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	return ""
}

// Number returns a numeric field, zero when absent.
func (r Record) Number(field string) float64 {
	value, _ := r.Fields.Float(field)
	return value
}

// Barcode returns the product barcode.
func (r Record) Barcode() string { return r.Text("barcode") }
