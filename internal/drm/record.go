/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package drm

import (
	"strings"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// AccountingRecord is the parsed key/value detail of a single job,
// keeping the field order of the raw scheduler output. Each key occurs
// at most once; setting an existing key overwrites its value in place.
type AccountingRecord struct {
	keys   []string
	values map[string]string
}

func NewAccountingRecord() *AccountingRecord {
	return &AccountingRecord{values: make(map[string]string)}
}

func (r *AccountingRecord) Set(key, value string) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// appendToValue extends key's value with a single space and the given
// token. Used by the parser to reconstruct values that contained
// whitespace in the source format.
func (r *AccountingRecord) appendToValue(key, token string) {
	r.values[key] += " " + token
}

func (r *AccountingRecord) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in insertion order.
func (r *AccountingRecord) Keys() []string {
	return r.keys
}

func (r *AccountingRecord) Len() int {
	return len(r.keys)
}

// JSON renders the record as a JSON object preserving field order,
// which a plain map marshal would lose.
func (r *AccountingRecord) JSON() string {
	out := "{}"
	for _, k := range r.keys {
		out, _ = sjson.Set(out, escapeJSONPath(k), r.values[k])
	}
	return out
}

// IndentedJSON is the human-readable form used in diagnostics.
func (r *AccountingRecord) IndentedJSON() string {
	return strings.TrimRight(string(pretty.Pretty([]byte(r.JSON()))), "\n")
}

func escapeJSONPath(key string) string {
	var b strings.Builder
	for _, c := range key {
		switch c {
		case '\\', '.', '*', '?', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
