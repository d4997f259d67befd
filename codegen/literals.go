package codegen

import (
	"errors"
	"fmt"
	"math"

	"github.com/cube2222/octojit/abi"
	"github.com/cube2222/octojit/octojit"
)

var ErrLiteralOverflow = errors.New("too many literals")

// Variable-length literal data must stay addressable by the 16-bit offsets in literal headers.
const maxLiteralBufferSize = math.MaxUint16

type LiteralKind int

const (
	LiteralKindScalar LiteralKind = iota
	// LiteralKindString is a none-encoded string: a header pointing into the data region.
	LiteralKindString
	// LiteralKindDictString is a dictionary-encoded string stored as its int32 id.
	LiteralKindDictString
	// LiteralKindArray is a list: a header pointing at consecutive fixed-width elements in the data region.
	LiteralKindArray
)

func (kind LiteralKind) String() string {
	switch kind {
	case LiteralKindScalar:
		return "scalar"
	case LiteralKindString:
		return "string"
	case LiteralKindDictString:
		return "dict_string"
	case LiteralKindArray:
		return "array"
	}
	return fmt.Sprintf("LiteralKind(%d)", int(kind))
}

// Sub-indices of the values a literal is loaded as.
const (
	LiteralValue = 0

	LiteralStringStart   = 0
	LiteralStringAddress = 1
	LiteralStringLength  = 2

	LiteralArrayAddress = 0
	LiteralArrayLength  = 1
)

func (kind LiteralKind) ValueCount() int {
	switch kind {
	case LiteralKindString:
		return 3
	case LiteralKindArray:
		return 2
	default:
		return 1
	}
}

type Literal struct {
	Offset   int16
	Size     int
	Kind     LiteralKind
	Value    octojit.Value
	Encoding octojit.Encoding
	DictID   int
	// DictionaryID is the resolved id of dictionary-encoded strings, -1 if the string isn't in the dictionary.
	DictionaryID int32

	dataOffset int
	dataLength int
}

type literalKey struct {
	typeName string
	bits     uint64
	str      string
	encoding octojit.Encoding
	dictID   int
}

// LiteralTable assigns each distinct literal a slot in the literal buffer.
// Literals are registered per device, a literal registered on multiple devices always gets a single offset.
type LiteralTable struct {
	literals  []Literal
	offsets   map[literalKey]int16
	perDevice []map[literalKey]int16

	size int
	data []byte

	dictionaries map[int][]string
}

func NewLiteralTable(deviceCount int, dictionaries map[int][]string) *LiteralTable {
	perDevice := make([]map[literalKey]int16, deviceCount)
	for i := range perDevice {
		perDevice[i] = map[literalKey]int16{}
	}
	return &LiteralTable{
		offsets:      map[literalKey]int16{},
		perDevice:    perDevice,
		dictionaries: dictionaries,
	}
}

func keyOf(value octojit.Value, encoding octojit.Encoding, dictID int) literalKey {
	key := literalKey{
		typeName: value.Type.WithNullable(false).String(),
		encoding: encoding,
	}
	switch value.Type.TypeID {
	case octojit.TypeIDString:
		key.str = value.Str
		if encoding == octojit.EncodingDict {
			key.dictID = dictID
		}
	case octojit.TypeIDList:
		key.str = string(listData(value))
	default:
		key.bits = value.Bits()
	}
	return key
}

func listData(value octojit.Value) []byte {
	var out []byte
	for i := range value.List {
		out = value.List[i].AppendBytes(out)
	}
	return out
}

func literalKind(value octojit.Value, encoding octojit.Encoding) LiteralKind {
	switch value.Type.TypeID {
	case octojit.TypeIDString:
		if encoding == octojit.EncodingDict {
			return LiteralKindDictString
		}
		return LiteralKindString
	case octojit.TypeIDList:
		return LiteralKindArray
	default:
		return LiteralKindScalar
	}
}

// GetOrAdd returns the buffer offset of the literal, adding it if it's not yet present.
func (t *LiteralTable) GetOrAdd(value octojit.Value, encoding octojit.Encoding, dictID int, deviceID int) (int16, error) {
	if deviceID < 0 || deviceID >= len(t.perDevice) {
		return 0, fmt.Errorf("invalid device id %d, have %d devices", deviceID, len(t.perDevice))
	}
	if value.Null {
		return 0, fmt.Errorf("null literal of type %s can't be stored in the literal buffer", value.Type)
	}
	key := keyOf(value, encoding, dictID)

	shared, sharedOk := t.offsets[key]
	if offset, ok := t.perDevice[deviceID][key]; ok {
		if !sharedOk || offset != shared {
			panic(fmt.Sprintf("literal %s registered at offset %d on device %d, but at offset %d on other devices", value, offset, deviceID, shared))
		}
		return offset, nil
	}
	if sharedOk {
		t.perDevice[deviceID][key] = shared
		return shared, nil
	}

	offset, err := t.add(value, encoding, dictID)
	if err != nil {
		return 0, err
	}
	t.offsets[key] = offset
	t.perDevice[deviceID][key] = offset
	return offset, nil
}

func (t *LiteralTable) add(value octojit.Value, encoding octojit.Encoding, dictID int) (int16, error) {
	kind := literalKind(value, encoding)
	size := 4
	if kind == LiteralKindScalar {
		size = value.Type.ByteWidth()
	}

	offset := int(abi.AlignUp(uint32(t.size), uint32(size)))
	if offset > math.MaxInt16 {
		return 0, ErrLiteralOverflow
	}

	literal := Literal{
		Offset:   int16(offset),
		Size:     size,
		Kind:     kind,
		Value:    value,
		Encoding: encoding,
		DictID:   dictID,
	}

	switch kind {
	case LiteralKindString, LiteralKindArray:
		var data []byte
		alignment := uint32(4)
		if kind == LiteralKindString {
			data = []byte(value.Str)
			literal.dataLength = len(data)
		} else {
			data = listData(value)
			literal.dataLength = len(value.List)
			if value.Type.List.Element.ByteWidth() == 8 {
				alignment = 8
			}
		}
		dataOffset := int(abi.AlignUp(uint32(len(t.data)), alignment))
		// The data region starts after all slots, which never exceed MaxInt16.
		if math.MaxInt16+8+dataOffset+len(data) > maxLiteralBufferSize || literal.dataLength > math.MaxUint16 {
			return 0, fmt.Errorf("literal data of %d bytes doesn't fit: %w", len(data), ErrLiteralOverflow)
		}
		t.data = append(t.data, make([]byte, dataOffset-len(t.data))...)
		t.data = append(t.data, data...)
		literal.dataOffset = dataOffset
	case LiteralKindDictString:
		id, err := t.lookupDictionary(dictID, value.Str)
		if err != nil {
			return 0, err
		}
		literal.DictionaryID = id
	}

	t.literals = append(t.literals, literal)
	t.size = offset + size
	return int16(offset), nil
}

func (t *LiteralTable) lookupDictionary(dictID int, str string) (int32, error) {
	dictionary, ok := t.dictionaries[dictID]
	if !ok {
		return 0, fmt.Errorf("unknown string dictionary %d", dictID)
	}
	for i := range dictionary {
		if dictionary[i] == str {
			return int32(i), nil
		}
	}
	return -1, nil
}

// Literals returns all literals in offset order.
func (t *LiteralTable) Literals() []Literal {
	return t.literals
}

func (t *LiteralTable) Literal(offset int16) (Literal, bool) {
	for i := range t.literals {
		if t.literals[i].Offset == offset {
			return t.literals[i], true
		}
	}
	return Literal{}, false
}

func (t *LiteralTable) Len() int {
	return len(t.literals)
}

func (t *LiteralTable) dataStart() int {
	return int(abi.AlignUp(uint32(t.size), 8))
}

// Size is the size of the serialized literal buffer.
func (t *LiteralTable) Size() int {
	if len(t.data) == 0 {
		return t.size
	}
	return t.dataStart() + len(t.data)
}

// Buffer serializes the literal buffer. The executor copies it into memory and stores its address in the context.
func (t *LiteralTable) Buffer() []byte {
	out := make([]byte, t.Size())
	dataStart := t.dataStart()
	if len(t.data) > 0 {
		copy(out[dataStart:], t.data)
	}
	for _, literal := range t.literals {
		var slot []byte
		switch literal.Kind {
		case LiteralKindScalar:
			slot = literal.Value.AppendBytes(nil)
		case LiteralKindDictString:
			slot = octojit.NewInt32(literal.DictionaryID).AppendBytes(nil)
		case LiteralKindString, LiteralKindArray:
			header := uint32(dataStart+literal.dataOffset)<<16 | uint32(literal.dataLength)
			slot = octojit.NewInt32(int32(header)).AppendBytes(nil)
		}
		copy(out[literal.Offset:], slot)
	}
	return out
}
