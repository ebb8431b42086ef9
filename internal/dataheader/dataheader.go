// Package dataheader parses the data-channel header:
// '{' (key ':' value (',' key ':' value)* )? '}'
// with case-insensitive keys, bare or double-quoted values, and
// backslash-escaping inside quoted values. Grounded on the grammar in
// spec.md §4.3/§6; implemented as a small hand-rolled scanner rather than
// the original's regex, per the streaming-tokenizer design note.
package dataheader

import (
	"strings"

	"etdc/internal/etderrors"
)

// MaxHeaderBytes is the largest prefix of a data connection's first bytes
// that Find will scan looking for a balanced, unnested "{ ... }".
const MaxHeaderBytes = 4096

// Header is the decoded set of key-value pairs from a data-channel header.
// Keys are normalized to lower case.
type Header struct {
	fields map[string]string
}

// Get returns the value for key (case-insensitive) and whether it was
// present.
func (h Header) Get(key string) (string, bool) {
	v, ok := h.fields[strings.ToLower(key)]
	return v, ok
}

// Find scans buf for the first balanced, unnested "{ ... }" span. It
// returns the decoded Header and the number of bytes consumed (i.e. the
// offset immediately following the closing brace), or ok=false if no
// closing brace appears in buf at all (the caller should read more and
// retry, up to MaxHeaderBytes).
func Find(buf []byte) (h Header, consumed int, ok bool, err error) {
	if len(buf) == 0 || buf[0] != '{' {
		return Header{}, 0, false, etderrors.NewProtocolError("data header does not start with '{'")
	}
	end := -1
	for i := 1; i < len(buf); i++ {
		if buf[i] == '{' {
			return Header{}, 0, false, etderrors.NewProtocolError("nested '{' in data header")
		}
		if buf[i] == '}' {
			end = i
			break
		}
	}
	if end < 0 {
		return Header{}, 0, false, nil
	}
	fields, perr := parseFields(string(buf[1:end]))
	if perr != nil {
		return Header{}, 0, false, perr
	}
	return Header{fields: fields}, end + 1, true, nil
}

// parseFields splits "key:value, key:value, ..." into a map, rejecting
// duplicate keys.
func parseFields(body string) (map[string]string, error) {
	fields := make(map[string]string)
	i := 0
	n := len(body)
	for i < n {
		for i < n && isSpace(body[i]) {
			i++
		}
		if i >= n {
			break
		}
		keyStart := i
		for i < n && isKeyChar(body[i]) {
			i++
		}
		key := body[keyStart:i]
		if key == "" {
			return nil, etderrors.NewProtocolError("data header: expected key")
		}
		for i < n && isSpace(body[i]) {
			i++
		}
		if i >= n || body[i] != ':' {
			return nil, etderrors.NewProtocolError("data header: expected ':' after key " + key)
		}
		i++ // consume ':'
		for i < n && isSpace(body[i]) {
			i++
		}
		var value string
		var err error
		value, i, err = parseValue(body, i)
		if err != nil {
			return nil, err
		}

		lowerKey := strings.ToLower(key)
		if _, dup := fields[lowerKey]; dup {
			return nil, etderrors.NewProtocolError("data header: duplicate key " + key)
		}
		fields[lowerKey] = value

		for i < n && isSpace(body[i]) {
			i++
		}
		if i < n {
			if body[i] != ',' {
				return nil, etderrors.NewProtocolError("data header: expected ',' between fields")
			}
			i++
		}
	}
	return fields, nil
}

// parseValue reads either a double-quoted, backslash-escaped string or a
// bare token terminated by ',', space, tab, or vertical tab.
func parseValue(body string, i int) (value string, next int, err error) {
	n := len(body)
	if i < n && body[i] == '"' {
		var sb strings.Builder
		i++
		for i < n && body[i] != '"' {
			if body[i] == '\\' && i+1 < n {
				sb.WriteByte(body[i+1])
				i += 2
				continue
			}
			sb.WriteByte(body[i])
			i++
		}
		if i >= n {
			return "", 0, etderrors.NewProtocolError("data header: unterminated quoted value")
		}
		i++ // consume closing quote
		return sb.String(), i, nil
	}
	start := i
	for i < n && body[i] != ',' && !isSpace(body[i]) {
		i++
	}
	if i == start {
		return "", 0, etderrors.NewProtocolError("data header: expected value")
	}
	return body[start:i], i, nil
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\v' }

func isKeyChar(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_' || b == '-'
}
