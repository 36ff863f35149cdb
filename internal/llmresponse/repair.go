package llmresponse

import "strings"

var quoteReplacer = strings.NewReplacer(
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`,
	"\u2018", "'", "\u2019", "'", "\u201a", "'",
)

var invisibleReplacer = strings.NewReplacer(
	"\u00a0", " ", "\u202f", " ",
	"\u200b", "", "\u200c", "", "\u200d", "", "\u2060", "", "\ufeff", "",
)

// Repair applies the lenient fixes, in order, to a candidate JSON object.
func Repair(s string) string {
	s = quoteReplacer.Replace(s)
	s = singleToDoubleQuotes(s)
	s = stripTrailingCommas(s)
	s = invisibleReplacer.Replace(s)
	s = quoteBareKeys(s)
	return s
}

// singleToDoubleQuotes rewrites 'string' literals as "string" literals. An
// apostrophe inside a single-quoted literal is kept when it is not followed by
// a structural character.
func singleToDoubleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	const (
		outside = iota
		inDouble
		inSingle
	)
	state := outside
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case outside:
			switch c {
			case '"':
				state = inDouble
				b.WriteByte(c)
			case '\'':
				state = inSingle
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}
		case inDouble:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
				continue
			}
			if c == '"' {
				state = outside
			}
		case inSingle:
			switch c {
			case '\\':
				if i+1 < len(s) && s[i+1] == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				b.WriteByte(c)
				if i+1 < len(s) {
					i++
					b.WriteByte(s[i])
				}
			case '"':
				b.WriteString(`\"`)
			case '\'':
				if closesLiteral(s, i+1) {
					state = outside
					b.WriteByte('"')
				} else {
					b.WriteByte('\'')
				}
			default:
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

func closesLiteral(s string, from int) bool {
	for j := from; j < len(s); j++ {
		switch s[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case ':', ',', '}', ']':
			return true
		default:
			return false
		}
	}
	return true
}

// stripTrailingCommas drops commas that directly precede a closing brace or bracket.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// quoteBareKeys wraps unquoted object keys in double quotes.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	inString := false
	var prev byte // last significant byte outside strings
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				inString = false
				prev = '"'
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case (prev == '{' || prev == ',') && isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
			} else {
				b.WriteString(s[i:j])
			}
			prev = s[j-1]
			i = j - 1
		default:
			b.WriteByte(c)
			if !isSpace(c) {
				prev = c
			}
		}
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
