package functions

import (
	"errors"
	"fmt"
	"math"

	"github.com/cube2222/octojit/octojit"
)

var ErrInvalidParameter = errors.New("invalid string operation parameter")

type StringOpKind int

const (
	StringOpKindLower StringOpKind = iota
	StringOpKindUpper
	StringOpKindInitCap
	StringOpKindReverse
	StringOpKindRepeat
	StringOpKindCharLength
	StringOpKindConcat
	StringOpKindRConcat
	StringOpKindLPad
	StringOpKindRPad
	StringOpKindTrim
	StringOpKindLTrim
	StringOpKindRTrim
	StringOpKindSubstring
	StringOpKindOverlay
	StringOpKindReplace
	StringOpKindSplitPart
	StringOpKindRegexpReplace
	StringOpKindRegexpSubstr
	StringOpKindRegexpExtract
	StringOpKindTryStringCast
)

func (kind StringOpKind) String() string {
	switch kind {
	case StringOpKindLower:
		return "lower"
	case StringOpKindUpper:
		return "upper"
	case StringOpKindInitCap:
		return "initcap"
	case StringOpKindReverse:
		return "reverse"
	case StringOpKindRepeat:
		return "repeat"
	case StringOpKindCharLength:
		return "char_length"
	case StringOpKindConcat:
		return "concat"
	case StringOpKindRConcat:
		return "rconcat"
	case StringOpKindLPad:
		return "lpad"
	case StringOpKindRPad:
		return "rpad"
	case StringOpKindTrim:
		return "trim"
	case StringOpKindLTrim:
		return "ltrim"
	case StringOpKindRTrim:
		return "rtrim"
	case StringOpKindSubstring:
		return "substring"
	case StringOpKindOverlay:
		return "overlay"
	case StringOpKindReplace:
		return "replace"
	case StringOpKindSplitPart:
		return "split_part"
	case StringOpKindRegexpReplace:
		return "regexp_replace"
	case StringOpKindRegexpSubstr:
		return "regexp_substr"
	case StringOpKindRegexpExtract:
		return "regexp_extract"
	case StringOpKindTryStringCast:
		return "try_cast"
	}
	return fmt.Sprintf("StringOpKind(%d)", int(kind))
}

func StringOpKindFromName(name string) (StringOpKind, bool) {
	for kind := StringOpKindLower; kind <= StringOpKindTryStringCast; kind++ {
		if kind.String() == name {
			return kind, true
		}
	}
	return 0, false
}

// StringOp is a single per-row string transformation with its literal parameters bound.
type StringOp struct {
	Kind StringOpKind
	// Only the one matching Kind may be non-null. Lower, Upper, InitCap, Reverse and CharLength have no parameters.
	Repeat        *Repeat
	Concat        *Concat
	Pad           *Pad
	Trim          *Trim
	Substring     *Substring
	Overlay       *Overlay
	Replace       *Replace
	SplitPart     *SplitPart
	RegexpReplace *RegexpReplace
	RegexpSubstr  *RegexpSubstr
	TryStringCast *TryStringCast
}

type Repeat struct {
	N int
}

type Concat struct {
	Literal string
	// Reverse puts the literal in front of the input.
	Reverse bool
}

type Pad struct {
	Left          bool
	PaddedLength  int
	PaddingString string
}

type Trim struct {
	Left, Right bool
	Chars       [256]bool
}

type Substring struct {
	// Start is zero-based, negative values count from the end.
	Start  int
	Length int
}

type Overlay struct {
	Insert            string
	Start             int
	ReplacementLength int
}

type Replace struct {
	Pattern     string
	Replacement string
}

type SplitPart struct {
	Delimiter string
	Limit     int
	Part      int
	Reverse   bool
}

type RegexpReplace struct {
	Regex       *regex
	Replacement string
	Start       int
	Occurrence  int
}

type RegexpSubstr struct {
	Regex      *regex
	Start      int
	Occurrence int
	SubMatch   bool
	SubMatchN  int
}

type TryStringCast struct {
	Target octojit.Type
}

// NewStringOp validates the literal parameters for the given kind and binds them.
// Params follow the SQL argument order, excluding the string input itself.
func NewStringOp(kind StringOpKind, params []octojit.Value, returnType octojit.Type) (*StringOp, error) {
	p := paramReader{kind: kind, params: params}
	op := &StringOp{Kind: kind}

	switch kind {
	case StringOpKindLower, StringOpKindUpper, StringOpKindInitCap, StringOpKindReverse, StringOpKindCharLength:
	case StringOpKindRepeat:
		n, err := p.int(0, "repeat count")
		if err != nil {
			return nil, err
		}
		if n < 0 {
			n = 0
		}
		op.Repeat = &Repeat{N: int(n)}
	case StringOpKindConcat, StringOpKindRConcat:
		literal, err := p.string(0, "concatenated literal")
		if err != nil {
			return nil, err
		}
		op.Concat = &Concat{Literal: literal, Reverse: kind == StringOpKindRConcat}
	case StringOpKindLPad, StringOpKindRPad:
		length, err := p.int(0, "padded length")
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, fmt.Errorf("%w: %s padded length must be non-negative, got %d", ErrInvalidParameter, kind, length)
		}
		padding, err := p.string(1, "padding string")
		if err != nil {
			return nil, err
		}
		op.Pad = &Pad{Left: kind == StringOpKindLPad, PaddedLength: int(length), PaddingString: padding}
	case StringOpKindTrim, StringOpKindLTrim, StringOpKindRTrim:
		chars, err := p.string(0, "trim characters")
		if err != nil {
			return nil, err
		}
		trim := &Trim{
			Left:  kind != StringOpKindRTrim,
			Right: kind != StringOpKindLTrim,
		}
		for i := 0; i < len(chars); i++ {
			trim.Chars[chars[i]] = true
		}
		op.Trim = trim
	case StringOpKindSubstring:
		start, err := p.int(0, "start position")
		if err != nil {
			return nil, err
		}
		length := int64(math.MaxInt32)
		if p.has(1) {
			if length, err = p.int(1, "length"); err != nil {
				return nil, err
			}
			if length < 0 {
				return nil, fmt.Errorf("%w: substring length must be non-negative, got %d", ErrInvalidParameter, length)
			}
		}
		op.Substring = &Substring{Start: oneBasedToZeroBased(start), Length: int(length)}
	case StringOpKindOverlay:
		insert, err := p.string(0, "replacement string")
		if err != nil {
			return nil, err
		}
		start, err := p.int(1, "start position")
		if err != nil {
			return nil, err
		}
		replacementLength := int64(len(insert))
		if p.has(2) {
			if replacementLength, err = p.int(2, "length"); err != nil {
				return nil, err
			}
		}
		op.Overlay = &Overlay{Insert: insert, Start: oneBasedToZeroBased(start), ReplacementLength: int(replacementLength)}
	case StringOpKindReplace:
		pattern, err := p.string(0, "pattern")
		if err != nil {
			return nil, err
		}
		replacement, err := p.string(1, "replacement")
		if err != nil {
			return nil, err
		}
		op.Replace = &Replace{Pattern: pattern, Replacement: replacement}
	case StringOpKindSplitPart:
		delimiter, err := p.string(0, "delimiter")
		if err != nil {
			return nil, err
		}
		var limit, part int64
		if p.has(2) {
			// split(input, delimiter, limit)[part]
			if limit, err = p.int(1, "limit"); err != nil {
				return nil, err
			}
			if limit < 0 {
				return nil, fmt.Errorf("%w: split limit must be non-negative, got %d", ErrInvalidParameter, limit)
			}
			if part, err = p.int(2, "split part"); err != nil {
				return nil, err
			}
		} else if part, err = p.int(1, "split part"); err != nil {
			return nil, err
		}
		splitPart := &SplitPart{Delimiter: delimiter, Limit: int(limit), Reverse: part < 0}
		switch {
		case part == 0:
			splitPart.Part = 1
		case part < 0:
			splitPart.Part = int(-part)
		default:
			splitPart.Part = int(part)
		}
		op.SplitPart = splitPart
	case StringOpKindRegexpReplace:
		pattern, err := p.string(0, "pattern")
		if err != nil {
			return nil, err
		}
		replacement, err := p.string(1, "replacement")
		if err != nil {
			return nil, err
		}
		start, err := p.int(2, "start position")
		if err != nil {
			return nil, err
		}
		occurrence, err := p.int(3, "occurrence")
		if err != nil {
			return nil, err
		}
		regexParams := "c"
		if p.has(4) {
			if regexParams, err = p.string(4, "regex parameters"); err != nil {
				return nil, err
			}
		}
		re, err := compileRegex(kind, pattern, regexParams, false)
		if err != nil {
			return nil, err
		}
		op.RegexpReplace = &RegexpReplace{
			Regex:       re,
			Replacement: expandTemplate(replacement),
			Start:       oneBasedToZeroBased(start),
			Occurrence:  int(occurrence),
		}
	case StringOpKindRegexpSubstr:
		pattern, err := p.string(0, "pattern")
		if err != nil {
			return nil, err
		}
		start, err := p.int(1, "start position")
		if err != nil {
			return nil, err
		}
		occurrence, err := p.int(2, "occurrence")
		if err != nil {
			return nil, err
		}
		regexParams := "c"
		if p.has(3) {
			if regexParams, err = p.string(3, "regex parameters"); err != nil {
				return nil, err
			}
		}
		var subMatchIndex int64
		if p.has(4) {
			if subMatchIndex, err = p.int(4, "sub-match index"); err != nil {
				return nil, err
			}
		}
		re, err := compileRegex(kind, pattern, regexParams, true)
		if err != nil {
			return nil, err
		}
		substr, err := newRegexpSubstr(re, start, occurrence, subMatchIndex)
		if err != nil {
			return nil, err
		}
		op.RegexpSubstr = substr
	case StringOpKindRegexpExtract:
		pattern, err := p.string(0, "pattern")
		if err != nil {
			return nil, err
		}
		group, err := p.int(1, "group index")
		if err != nil {
			return nil, err
		}
		re, err := compileRegex(kind, pattern, "c", true)
		if err != nil {
			return nil, err
		}
		substr, err := newRegexpSubstr(re, 1, 1, group)
		if err != nil {
			return nil, err
		}
		op.RegexpSubstr = substr
	case StringOpKindTryStringCast:
		switch returnType.TypeID {
		case octojit.TypeIDBoolean, octojit.TypeIDInt8, octojit.TypeIDInt16, octojit.TypeIDInt32, octojit.TypeIDInt64,
			octojit.TypeIDFloat32, octojit.TypeIDFloat64:
		default:
			return nil, fmt.Errorf("%w: try_cast target type %s is not supported", ErrInvalidParameter, returnType)
		}
		op.TryStringCast = &TryStringCast{Target: returnType.WithNullable(true)}
	default:
		return nil, fmt.Errorf("%w: unknown string operation %d", ErrInvalidParameter, int(kind))
	}

	if !p.allUsed() {
		return nil, fmt.Errorf("%w: too many parameters for %s: %d", ErrInvalidParameter, kind, len(params))
	}
	return op, nil
}

func newRegexpSubstr(re *regex, start, occurrence, subMatchIndex int64) (*RegexpSubstr, error) {
	if subMatchIndex < 0 {
		return nil, fmt.Errorf("%w: sub-match index must be non-negative, got %d", ErrInvalidParameter, subMatchIndex)
	}
	out := &RegexpSubstr{
		Regex:      re,
		Start:      oneBasedToZeroBased(start),
		Occurrence: oneBasedToZeroBased(occurrence),
		SubMatch:   subMatchIndex > 0,
	}
	if out.SubMatch {
		out.SubMatchN = int(subMatchIndex - 1)
	}
	return out, nil
}

func oneBasedToZeroBased(position int64) int {
	if position > 0 {
		return int(position - 1)
	}
	return int(position)
}

// ReturnsString tells whether Eval or NumericEval should be used.
func (op *StringOp) ReturnsString() bool {
	return op.Kind != StringOpKindCharLength && op.Kind != StringOpKindTryStringCast
}

func (op *StringOp) ResultType() octojit.Type {
	switch op.Kind {
	case StringOpKindCharLength:
		return octojit.Int64
	case StringOpKindTryStringCast:
		return op.TryStringCast.Target
	case StringOpKindSplitPart, StringOpKindRegexpSubstr, StringOpKindRegexpExtract:
		return octojit.String.WithNullable(true)
	}
	return octojit.String
}

func (op *StringOp) String() string {
	return op.Kind.String()
}

type paramReader struct {
	kind   StringOpKind
	params []octojit.Value
	used   int
}

func (p *paramReader) has(i int) bool {
	return i < len(p.params)
}

func (p *paramReader) mark(i int) {
	if i+1 > p.used {
		p.used = i + 1
	}
}

func (p *paramReader) allUsed() bool {
	return p.used >= len(p.params)
}

func (p *paramReader) int(i int, name string) (int64, error) {
	if !p.has(i) {
		return 0, fmt.Errorf("%w: %s is missing the %s parameter", ErrInvalidParameter, p.kind, name)
	}
	p.mark(i)
	value := p.params[i]
	if value.Null || !value.Type.IsInteger() {
		return 0, fmt.Errorf("%w: %s parameter %s must be a non-null integer, got %s", ErrInvalidParameter, p.kind, name, value.Type)
	}
	return value.Int, nil
}

func (p *paramReader) string(i int, name string) (string, error) {
	if !p.has(i) {
		return "", fmt.Errorf("%w: %s is missing the %s parameter", ErrInvalidParameter, p.kind, name)
	}
	p.mark(i)
	value := p.params[i]
	if value.Null || value.Type.TypeID != octojit.TypeIDString {
		return "", fmt.Errorf("%w: %s parameter %s must be a non-null string, got %s", ErrInvalidParameter, p.kind, name, value.Type)
	}
	return value.Str, nil
}
