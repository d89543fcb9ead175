// Package expr implements the criterion expression language: a tokenizer, a
// recursive-descent parser, and an interpreter that evaluates parsed
// expressions against the metrics record tree.
//
// Precedence, lowest to highest: OR, AND/BUT, comparisons, .length access,
// parentheses. BUT is a synonym of AND. There is no type coercion anywhere.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokPath
	tokNumber
	tokString
	tokBool
	tokNull
	tokEmptyArray
	tokEmptyObject
	tokLParen
	tokRParen
	tokCmpOp // == != > >= < <=
	tokAnd   // AND or BUT
	tokOr
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// ParseError reports a malformed expression. It is a criterion-level soft
// failure: the criterion evaluates false with reduced evidence confidence.
type ParseError struct {
	Expression string
	Pos        int
	Message    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d in %q: %s", e.Pos, e.Expression, e.Message)
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := rune(input[i])
		switch {
		case unicode.IsSpace(c):
			i++

		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++

		case c == '[':
			j := skipSpaces(input, i+1)
			if j >= len(input) || input[j] != ']' {
				return nil, &ParseError{Expression: input, Pos: i, Message: "only the empty array literal [] is supported"}
			}
			tokens = append(tokens, token{kind: tokEmptyArray, text: "[]", pos: i})
			i = j + 1
		case c == '{':
			j := skipSpaces(input, i+1)
			if j >= len(input) || input[j] != '}' {
				return nil, &ParseError{Expression: input, Pos: i, Message: "only the empty object literal {} is supported"}
			}
			tokens = append(tokens, token{kind: tokEmptyObject, text: "{}", pos: i})
			i = j + 1

		case c == '"' || c == '\'':
			quote := byte(c)
			j := i + 1
			for j < len(input) && input[j] != quote {
				j++
			}
			if j >= len(input) {
				return nil, &ParseError{Expression: input, Pos: i, Message: "unterminated string literal"}
			}
			tokens = append(tokens, token{kind: tokString, text: input[i+1 : j], pos: i})
			i = j + 1

		case c == '=' || c == '!':
			if i+1 >= len(input) || input[i+1] != '=' {
				return nil, &ParseError{Expression: input, Pos: i, Message: fmt.Sprintf("expected %c= operator", c)}
			}
			tokens = append(tokens, token{kind: tokCmpOp, text: input[i : i+2], pos: i})
			i += 2
		case c == '>' || c == '<':
			op := string(c)
			if i+1 < len(input) && input[i+1] == '=' {
				op += "="
			}
			tokens = append(tokens, token{kind: tokCmpOp, text: op, pos: i})
			i += len(op)

		case unicode.IsDigit(c) || (c == '-' && i+1 < len(input) && unicode.IsDigit(rune(input[i+1]))):
			j := i + 1
			for j < len(input) && (unicode.IsDigit(rune(input[j])) || input[j] == '.') {
				j++
			}
			text := input[i:j]
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &ParseError{Expression: input, Pos: i, Message: fmt.Sprintf("bad number %q", text)}
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: num, pos: i})
			i = j

		case isIdentRune(c):
			j := i + 1
			for j < len(input) && (isIdentRune(rune(input[j])) || input[j] == '.') {
				j++
			}
			text := input[i:j]
			tokens = append(tokens, keywordOrPath(text, i))
			i = j

		default:
			return nil, &ParseError{Expression: input, Pos: i, Message: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(input)})
	return tokens, nil
}

func keywordOrPath(text string, pos int) token {
	switch text {
	case "AND", "BUT":
		return token{kind: tokAnd, text: text, pos: pos}
	case "OR":
		return token{kind: tokOr, text: text, pos: pos}
	case "true", "false":
		return token{kind: tokBool, text: text, pos: pos}
	case "null":
		return token{kind: tokNull, text: text, pos: pos}
	default:
		return token{kind: tokPath, text: strings.Trim(text, "."), pos: pos}
	}
}

func isIdentRune(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

func skipSpaces(s string, i int) int {
	for i < len(s) && unicode.IsSpace(rune(s[i])) {
		i++
	}
	return i
}
