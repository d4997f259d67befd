package octojit

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Value struct {
	Type    Type
	Null    bool
	Boolean bool
	Int     int64
	Float   float64
	Str     string
	List    []Value
}

func NewNull(t Type) Value {
	return Value{
		Type: t.WithNullable(true),
		Null: true,
	}
}

func NewBoolean(value bool) Value {
	return Value{
		Type:    Boolean,
		Boolean: value,
	}
}

func NewInt8(value int8) Value {
	return Value{Type: Int8, Int: int64(value)}
}

func NewInt16(value int16) Value {
	return Value{Type: Int16, Int: int64(value)}
}

func NewInt32(value int32) Value {
	return Value{Type: Int32, Int: int64(value)}
}

func NewInt64(value int64) Value {
	return Value{Type: Int64, Int: value}
}

func NewDate(daysSinceEpoch int32) Value {
	return Value{Type: Date, Int: int64(daysSinceEpoch)}
}

func NewTimestamp(microsSinceEpoch int64) Value {
	return Value{Type: Timestamp, Int: microsSinceEpoch}
}

func NewFloat32(value float32) Value {
	return Value{Type: Float32, Float: float64(value)}
}

func NewFloat64(value float64) Value {
	return Value{Type: Float64, Float: value}
}

func NewString(value string) Value {
	return Value{
		Type: String,
		Str:  value,
	}
}

// NewList creates a list value. All elements must have the element type.
func NewList(element Type, values []Value) Value {
	return Value{
		Type: ListOf(element),
		List: values,
	}
}

// Bits returns the little-endian bit pattern of a fixed-width value, as it's stored in columns and the literal buffer.
func (value Value) Bits() uint64 {
	switch value.Type.TypeID {
	case TypeIDBoolean:
		if value.Boolean {
			return 1
		}
		return 0
	case TypeIDInt8, TypeIDInt16, TypeIDInt32, TypeIDInt64, TypeIDDate, TypeIDTimestamp:
		return uint64(value.Int)
	case TypeIDFloat32:
		return uint64(math.Float32bits(float32(value.Float)))
	case TypeIDFloat64:
		return math.Float64bits(value.Float)
	}
	panic(fmt.Sprintf("value of type %s has no fixed-width representation", value.Type))
}

// AppendBytes appends the fixed-width little-endian representation of the value.
func (value Value) AppendBytes(out []byte) []byte {
	bits := value.Bits()
	switch value.Type.ByteWidth() {
	case 1:
		return append(out, byte(bits))
	case 2:
		return binary.LittleEndian.AppendUint16(out, uint16(bits))
	case 4:
		return binary.LittleEndian.AppendUint32(out, uint32(bits))
	case 8:
		return binary.LittleEndian.AppendUint64(out, bits)
	}
	panic("impossible, byte width bug")
}

func ValueFromBits(t Type, bits uint64) Value {
	switch t.TypeID {
	case TypeIDBoolean:
		return Value{Type: t, Boolean: bits != 0}
	case TypeIDInt8:
		return Value{Type: t, Int: int64(int8(bits))}
	case TypeIDInt16:
		return Value{Type: t, Int: int64(int16(bits))}
	case TypeIDInt32, TypeIDDate:
		return Value{Type: t, Int: int64(int32(bits))}
	case TypeIDInt64, TypeIDTimestamp:
		return Value{Type: t, Int: int64(bits)}
	case TypeIDFloat32:
		return Value{Type: t, Float: float64(math.Float32frombits(uint32(bits)))}
	case TypeIDFloat64:
		return Value{Type: t, Float: math.Float64frombits(bits)}
	}
	panic(fmt.Sprintf("type %s has no fixed-width representation", t))
}

func (value Value) Equal(other Value) bool {
	if value.Null || other.Null {
		return value.Null == other.Null && value.Type.Equals(other.Type)
	}
	if !value.Type.Equals(other.Type) {
		return false
	}
	switch value.Type.TypeID {
	case TypeIDString:
		return value.Str == other.Str
	case TypeIDList:
		if len(value.List) != len(other.List) {
			return false
		}
		for i := range value.List {
			if !value.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	}
	return value.Bits() == other.Bits()
}

func (value Value) String() string {
	if value.Null {
		return "NULL"
	}
	switch value.Type.TypeID {
	case TypeIDBoolean:
		return strconv.FormatBool(value.Boolean)
	case TypeIDInt8, TypeIDInt16, TypeIDInt32, TypeIDInt64, TypeIDDate, TypeIDTimestamp:
		return strconv.FormatInt(value.Int, 10)
	case TypeIDFloat32, TypeIDFloat64:
		return strconv.FormatFloat(value.Float, 'g', -1, 64)
	case TypeIDString:
		return fmt.Sprintf("'%s'", value.Str)
	case TypeIDList:
		elements := make([]string, len(value.List))
		for i := range value.List {
			elements[i] = value.List[i].String()
		}
		return fmt.Sprintf("[%s]", strings.Join(elements, ", "))
	}
	panic("impossible, type switch bug")
}
