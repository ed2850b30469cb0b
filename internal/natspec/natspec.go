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

// Package natspec tokenizes a backend-specific native specification
// string into argv words. The content of each word is passed through to
// the scheduler verbatim and never validated; only the word boundaries
// are interpreted here, since commands are spawned without a shell.
package natspec

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var specLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"])*"`},
	{Name: "Word", Pattern: `[^\s"]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type spec struct {
	Words []string `parser:"( @String | @Word )*"`
}

var specParser = participle.MustBuild[spec](
	participle.Lexer(specLexer),
	participle.Unquote("String"),
	participle.Elide("Whitespace"),
)

// Split breaks s into words on runs of whitespace. A double-quoted word
// keeps its embedded spaces and loses the quotes.
func Split(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parsed, err := specParser.ParseString("", s)
	if err != nil {
		return nil, err
	}
	return parsed.Words, nil
}
