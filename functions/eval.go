package functions

import (
	"strconv"
	"strings"

	"github.com/cube2222/octojit/octojit"
)

const initCapDelimiters = `!?@"^#$&~_,.:;+-*%/|\[](){}<>`

var initCapDelimiterSet = func() (out [256]bool) {
	for i := 0; i < len(initCapDelimiters); i++ {
		out[initCapDelimiters[i]] = true
	}
	return out
}()

// Eval applies a string-producing operation. The second return value reports a null result.
func (op *StringOp) Eval(str string) (string, bool) {
	switch op.Kind {
	case StringOpKindLower:
		return mapASCII(str, toLowerASCII), false
	case StringOpKindUpper:
		return mapASCII(str, toUpperASCII), false
	case StringOpKindInitCap:
		return initCap(str), false
	case StringOpKindReverse:
		out := []byte(str)
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		return string(out), false
	case StringOpKindRepeat:
		return strings.Repeat(str, op.Repeat.N), false
	case StringOpKindConcat, StringOpKindRConcat:
		if op.Concat.Reverse {
			return op.Concat.Literal + str, false
		}
		return str + op.Concat.Literal, false
	case StringOpKindLPad, StringOpKindRPad:
		return op.Pad.apply(str), false
	case StringOpKindTrim, StringOpKindLTrim, StringOpKindRTrim:
		return op.Trim.apply(str), false
	case StringOpKindSubstring:
		start := capStart(op.Substring.Start, len(str))
		end := len(str)
		if op.Substring.Length < end-start {
			end = start + op.Substring.Length
		}
		return str[start:end], false
	case StringOpKindOverlay:
		return op.Overlay.apply(str), false
	case StringOpKindReplace:
		if op.Replace.Pattern == "" {
			return str, false
		}
		return strings.ReplaceAll(str, op.Replace.Pattern, op.Replace.Replacement), false
	case StringOpKindSplitPart:
		return op.SplitPart.apply(str)
	case StringOpKindRegexpReplace:
		return op.RegexpReplace.apply(str), false
	case StringOpKindRegexpSubstr, StringOpKindRegexpExtract:
		return op.RegexpSubstr.apply(str)
	case StringOpKindCharLength, StringOpKindTryStringCast:
		panic("invalid string evaluation of numeric string operation " + op.Kind.String())
	}
	panic("unexhaustive string operation kind match")
}

// NumericEval applies CharLength or TryStringCast.
func (op *StringOp) NumericEval(str string) octojit.Value {
	switch op.Kind {
	case StringOpKindCharLength:
		return octojit.NewInt64(int64(len(str)))
	case StringOpKindTryStringCast:
		return op.TryStringCast.apply(str)
	}
	panic("invalid numeric evaluation of string operation " + op.Kind.String())
}

func mapASCII(str string, f func(c byte) byte) string {
	out := []byte(str)
	for i := range out {
		out[i] = f(out[i])
	}
	return string(out)
}

func toLowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func toUpperASCII(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func isSpaceASCII(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func initCap(str string) string {
	out := []byte(str)
	lastWasDelimiter := true
	for i, c := range out {
		if isSpaceASCII(c) || initCapDelimiterSet[c] {
			lastWasDelimiter = true
			continue
		}
		if lastWasDelimiter {
			out[i] = toUpperASCII(c)
			lastWasDelimiter = false
		} else {
			out[i] = toLowerASCII(c)
		}
	}
	return string(out)
}

// capStart wraps negative starts around the end and clamps to [0, length].
func capStart(start, length int) int {
	if start < 0 {
		start = length + start
	}
	if start > length {
		return length
	}
	if start < 0 {
		return 0
	}
	return start
}

func (pad *Pad) apply(str string) string {
	fill := 0
	if len(str) < pad.PaddedLength {
		fill = pad.PaddedLength - len(str)
	}
	if fill == 0 {
		if pad.Left {
			return str[:pad.PaddedLength]
		}
		return str[len(str)-pad.PaddedLength:]
	}
	if len(pad.PaddingString) == 0 {
		return str
	}
	var sb strings.Builder
	sb.Grow(pad.PaddedLength)
	if !pad.Left {
		sb.WriteString(str)
	}
	for i := 0; i < fill; i++ {
		sb.WriteByte(pad.PaddingString[i%len(pad.PaddingString)])
	}
	if pad.Left {
		sb.WriteString(str)
	}
	return sb.String()
}

func (trim *Trim) apply(str string) string {
	begin, end := 0, len(str)
	if trim.Left {
		for begin < end && trim.Chars[str[begin]] {
			begin++
		}
	}
	if trim.Right {
		for end > begin && trim.Chars[str[end-1]] {
			end--
		}
	}
	return str[begin:end]
}

func (overlay *Overlay) apply(str string) string {
	wrappedStart := overlay.Start
	if wrappedStart < 0 {
		wrappedStart = len(str) + wrappedStart
	}
	start := capStart(overlay.Start, len(str))
	remainderStart := wrappedStart + overlay.ReplacementLength
	if remainderStart > len(str) {
		remainderStart = len(str)
	}
	if remainderStart < start {
		remainderStart = start
	}
	return str[:start] + overlay.Insert + str[remainderStart:]
}

// apply splits the string on the delimiter and returns the requested part.
// A limit caps the number of splits, the last part then holds the remainder of the string.
// Reverse parts are counted from the end of the string.
func (sp *SplitPart) apply(str string) (string, bool) {
	if sp.Delimiter == "" {
		return str, false
	}
	if sp.Limit == 1 {
		if sp.Part == 1 {
			return str, false
		}
		return "", true
	}

	delimiterLength := len(sp.Delimiter)
	pos := 0
	if sp.Reverse {
		pos = len(str)
	}
	var lastPos int
	delimiterIndex := 0
	limitCounter := 0
	for {
		lastPos = pos
		if sp.Reverse {
			// Matches may start right before the previous one, a previous match at 0 searches the whole string again.
			end := len(str)
			if lastPos > 0 && lastPos-1+delimiterLength < end {
				end = lastPos - 1 + delimiterLength
			}
			pos = strings.LastIndex(str[:end], sp.Delimiter)
		} else {
			// A match at 0 doesn't skip the delimiter, so a leading delimiter is found again.
			from := 0
			if lastPos != 0 {
				from = lastPos + delimiterLength
			}
			pos = strings.Index(str[from:], sp.Delimiter)
			if pos != -1 {
				pos += from
			}
		}
		limitCounter++
		if pos == -1 {
			break
		}
		delimiterIndex++
		if delimiterIndex >= sp.Part {
			break
		}
		if sp.Limit != 0 && limitCounter >= sp.Limit {
			break
		}
	}

	if sp.Limit != 0 && limitCounter == sp.Limit {
		// The split limit has been reached, whatever remains is a single part.
		pos = -1
	}
	if delimiterIndex == 0 && sp.Part == 1 {
		return str, false
	}
	if pos == -1 && (delimiterIndex < sp.Part-1 || delimiterIndex < 1) {
		return "", true
	}

	// A part ending before it starts extends to the end of the string.
	var start, end int
	if sp.Reverse {
		if pos != -1 {
			start = pos + delimiterLength
		}
		end = lastPos
	} else {
		if sp.Part != 1 {
			start = lastPos + delimiterLength
		}
		end = len(str)
		if pos != -1 {
			end = pos
		}
	}
	if end < start {
		end = len(str)
	}
	return str[start:end], false
}

func regexStart(start, length int) int {
	if start < 0 {
		start = length + start
		if start < 0 {
			start = 0
		}
	}
	if start > length {
		return length
	}
	return start
}

// nthMatch returns the byte range of the n-th match (zero-based, negative from the end) starting at start.
func nthMatch(re *regex, str string, start, n int) (int, int, bool) {
	matches := re.FindAllStringIndex(str[start:], -1)
	if n < 0 {
		n = len(matches) + n
	}
	if n < 0 || n >= len(matches) {
		return 0, 0, false
	}
	return start + matches[n][0], start + matches[n][1], true
}

func (rr *RegexpReplace) apply(str string) string {
	start := regexStart(rr.Start, len(str))
	if rr.Occurrence == 0 {
		return str[:start] + rr.Regex.ReplaceAllString(str[start:], rr.Replacement)
	}
	n := rr.Occurrence
	if n > 0 {
		n--
	}
	matchStart, matchEnd, ok := nthMatch(rr.Regex, str, start, n)
	if !ok {
		return str
	}
	replaced := rr.Regex.ReplaceAllString(str[matchStart:matchEnd], rr.Replacement)
	return str[:matchStart] + replaced + str[matchEnd:]
}

func (rs *RegexpSubstr) apply(str string) (string, bool) {
	start := regexStart(rs.Start, len(str))
	matches := rs.Regex.FindAllStringSubmatch(str[start:], -1)
	n := rs.Occurrence
	if n < 0 {
		n = len(matches) + n
	}
	if n < 0 || n >= len(matches) {
		return "", true
	}
	match := matches[n]
	if !rs.SubMatch {
		return match[0], false
	}
	subMatchCount := len(match) - 1
	if rs.SubMatchN >= subMatchCount {
		return "", false
	}
	return match[rs.SubMatchN+1], false
}

func (cast *TryStringCast) apply(str string) octojit.Value {
	target := cast.Target
	if str == "" {
		return octojit.NewNull(target)
	}
	switch target.TypeID {
	case octojit.TypeIDBoolean:
		v, err := strconv.ParseBool(strings.TrimSpace(str))
		if err != nil {
			return octojit.NewNull(target)
		}
		return octojit.Value{Type: target, Boolean: v}
	case octojit.TypeIDInt8, octojit.TypeIDInt16, octojit.TypeIDInt32, octojit.TypeIDInt64:
		v, err := strconv.ParseInt(strings.TrimSpace(str), 10, target.ByteWidth()*8)
		if err != nil {
			return octojit.NewNull(target)
		}
		return octojit.Value{Type: target, Int: v}
	case octojit.TypeIDFloat32, octojit.TypeIDFloat64:
		v, err := strconv.ParseFloat(strings.TrimSpace(str), target.ByteWidth()*8)
		if err != nil {
			return octojit.NewNull(target)
		}
		return octojit.Value{Type: target, Float: v}
	}
	return octojit.NewNull(target)
}
