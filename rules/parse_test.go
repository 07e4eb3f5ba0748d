// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package rules

import (
	"fmt"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want []Rule
	}{
		{
			text: ` // some comment text
(x y), (isOkay y) -> z
[Named] (x y:("z")) -> (bar baz)
`,
			want: []Rule{
				{
					From: []Value{
						List{
							{Name: "x"},
							{Name: "y"},
						},
						List{
							{Name: "isOkay"},
							{Name: "y"},
						},
					},
					To: Term{Name: "z"},
				},
				{
					Label: "Named",
					From: []Value{
						List{
							{Name: "x"},
							{Name: "y", Value: List{{Value: String("z")}}},
						},
					},
					To: Term{
						Value: List{
							{Name: "bar"},
							{Name: "baz"},
						},
					},
				},
			},
		},
		{
			text: "(Bool `true` 42) -> (Bool \"false\")",
			want: []Rule{
				{
					From: []Value{
						List{
							{Name: "Bool"},
							{Value: RawString("true")},
							{Value: String("42")},
						},
					},
					To: Term{
						Value: List{
							{Name: "Bool"},
							{Value: String("false")},
						},
					},
				},
			},
		},
	}

	for i := range tests {
		t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
			r := strings.NewReader(tests[i].text)
			rules, err := Parse(r)
			if err != nil {
				t.Fatal(err)
			}
			if len(rules) != len(tests[i].want) {
				t.Errorf("got %d rules out; wanted %d", len(rules), len(tests[i].want))
			}
			for j := range rules {
				if j >= len(tests[i].want) {
					break
				}
				if !rules[j].Equal(&tests[i].want[j]) {
					t.Errorf("got  rule %s", rules[j].String())
					t.Errorf("want rule %s", tests[i].want[j].String())
				}
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"(x y)",           // no arrow
		"(x y) -> ",       // no right-hand-side
		"[ (x) -> y",      // bad label
		"(x (y) -> z",     // unterminated
		"[Label (a) -> b", // unterminated label
	}
	for i := range bad {
		_, err := Parse(strings.NewReader(bad[i]))
		if err == nil {
			t.Errorf("%q: expected an error", bad[i])
		}
	}
}

func TestReadTerms(t *testing.T) {
	text := `(Not (Not (Bool "true"))) world (lambda (a) a)`
	terms, err := ReadTerms(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 3 {
		t.Fatalf("got %d terms", len(terms))
	}
	var out []string
	for i := range terms {
		out = append(out, terms[i].String())
	}
	if got := strings.Join(out, " "); got != text {
		t.Errorf("round-trip: got %s", got)
	}
	l, ok := terms[0].Value.(List)
	if !ok || l.Head() != "Not" {
		t.Errorf("unexpected head of %s", terms[0].String())
	}
	if terms[0].Location.Line != 1 || terms[0].Location.Column != 1 {
		t.Errorf("unexpected location %s", terms[0].Location)
	}
	if _, err := ReadTerms(strings.NewReader("(a b")); err == nil {
		t.Error("expected error for unterminated list")
	}
}
