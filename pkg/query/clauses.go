package query

import "strings"

// clause is a predicate expression such as (#eq? @name "main") lifted out
// of the pattern text before the structural part is compiled.
type clause struct {
	name  string
	args  []Argument
	start int // offset of the opening parenthesis
	end   int // offset just past the closing parenthesis
}

// liftClauses removes every predicate clause from src and returns the
// remaining structural pattern plus the clauses in source order.
//
// Removed bytes are overwritten with spaces (newlines are kept) so that
// offsets reported by the structural compiler still point into src.
func liftClauses(src string) (string, []clause, *Error) {
	buf := []byte(src)
	var clauses []clause

	i := 0
	for i < len(src) {
		switch src[i] {
		case ';':
			i = skipComment(src, i)
		case '"':
			_, next, ok := readString(src, i)
			if !ok {
				// Left for the structural compiler to report.
				return string(buf), clauses, nil
			}
			i = next
		case '(':
			j := skipSpace(src, i+1)
			if j < len(src) && src[j] == '#' {
				c, err := readClause(src, i, j+1)
				if err != nil {
					return "", nil, err
				}
				for k := c.start; k < c.end; k++ {
					if buf[k] != '\n' {
						buf[k] = ' '
					}
				}
				clauses = append(clauses, c)
				i = c.end
				continue
			}
			i++
		default:
			i++
		}
	}

	return string(buf), clauses, nil
}

// readClause parses a clause whose '(' is at start; pos points just past '#'.
func readClause(src string, start, pos int) (clause, *Error) {
	nameEnd := scanToken(src, pos)
	if nameEnd == pos {
		return clause{}, newError(KindSyntax, src, pos, "expected predicate name after '#'")
	}
	c := clause{name: src[pos:nameEnd], start: start}

	i := nameEnd
	for {
		i = skipSpace(src, i)
		if i < len(src) && src[i] == ';' {
			i = skipComment(src, i)
			continue
		}
		if i >= len(src) {
			return clause{}, newError(KindSyntax, src, start, "unterminated predicate #%s", c.name)
		}

		switch src[i] {
		case ')':
			c.end = i + 1
			return c, nil

		case '(':
			return clause{}, newError(KindSyntax, src, i, "unexpected '(' inside predicate #%s", c.name)

		case '"':
			value, next, ok := readString(src, i)
			if !ok {
				return clause{}, newError(KindSyntax, src, i, "unterminated string in predicate #%s", c.name)
			}
			c.args = append(c.args, Argument{Kind: ArgLiteral, Value: value, offset: i})
			i = next

		case '@':
			end := scanToken(src, i+1)
			if end == i+1 {
				return clause{}, newError(KindSyntax, src, i, "expected capture name after '@'")
			}
			c.args = append(c.args, Argument{Kind: ArgCapture, Value: src[i+1 : end], offset: i})
			i = end

		default:
			end := scanToken(src, i)
			c.args = append(c.args, Argument{Kind: ArgLiteral, Value: src[i:end], offset: i})
			i = end
		}
	}
}

// readString decodes the quoted string starting at src[start] == '"'.
// It returns the decoded value and the offset just past the closing quote.
func readString(src string, start int) (string, int, bool) {
	var sb strings.Builder
	i := start + 1
	for i < len(src) {
		ch := src[i]
		switch ch {
		case '"':
			return sb.String(), i + 1, true
		case '\\':
			if i+1 >= len(src) {
				return "", len(src), false
			}
			switch esc := src[i+1]; esc {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '0':
				sb.WriteByte(0)
			default:
				sb.WriteByte(esc)
			}
			i += 2
		default:
			sb.WriteByte(ch)
			i++
		}
	}
	return "", len(src), false
}

func skipSpace(src string, i int) int {
	for i < len(src) {
		switch src[i] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			i++
		default:
			return i
		}
	}
	return i
}

func skipComment(src string, i int) int {
	for i < len(src) && src[i] != '\n' {
		i++
	}
	return i
}

// scanToken returns the end of an identifier-like token starting at i.
func scanToken(src string, i int) int {
	for i < len(src) {
		switch src[i] {
		case ' ', '\t', '\n', '\r', '\f', '\v', '(', ')', '"', ';', '@':
			return i
		}
		i++
	}
	return i
}
