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
)

// ParseAccounting turns the whitespace-tokenized key=value output of
// "scontrol show jobid -d -o" into an ordered record. A token without
// "=" is a continuation of the previous value, glued back with a single
// space; a continuation before any key is a ParseError. A token is
// split on its first "=" only, so values like "TRES=cpu=1,mem=2G" keep
// their embedded "=".
func ParseAccounting(raw string) (*AccountingRecord, error) {
	record := NewAccountingRecord()
	currentKey := ""
	for _, token := range strings.Fields(raw) {
		eqPos := strings.Index(token, "=")
		if eqPos == -1 {
			if currentKey == "" {
				return nil, &ParseError{Token: token, Raw: raw}
			}
			record.appendToValue(currentKey, token)
			continue
		}
		currentKey = token[:eqPos]
		record.Set(currentKey, token[eqPos+1:])
	}
	return record, nil
}

// ParseStatusTable parses squeue output: the first line is the header
// row, every following line one job, all columns split on runs of
// whitespace. Rows are keyed by their first column (the job id); the
// row map also keeps that column under its own header name. Rows with
// fewer columns than headers keep only the columns present.
func ParseStatusTable(out string) StatusTable {
	table := make(StatusTable)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return table
	}
	headers := strings.Fields(lines[0])
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		row := make(map[string]string, len(headers))
		for i, header := range headers {
			if i >= len(fields) {
				break
			}
			row[header] = fields[i]
		}
		table[fields[0]] = row
	}
	return table
}
