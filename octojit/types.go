package octojit

import (
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
)

type TypeID int

const (
	TypeIDBoolean TypeID = iota
	TypeIDInt8
	TypeIDInt16
	TypeIDInt32
	TypeIDInt64
	TypeIDFloat32
	TypeIDFloat64
	TypeIDString
	TypeIDDate
	TypeIDTimestamp
	TypeIDList
)

type Type struct {
	TypeID   TypeID
	Nullable bool
	List     struct {
		Element *Type
	}
}

var (
	Boolean   Type = Type{TypeID: TypeIDBoolean}
	Int8      Type = Type{TypeID: TypeIDInt8}
	Int16     Type = Type{TypeID: TypeIDInt16}
	Int32     Type = Type{TypeID: TypeIDInt32}
	Int64     Type = Type{TypeID: TypeIDInt64}
	Float32   Type = Type{TypeID: TypeIDFloat32}
	Float64   Type = Type{TypeID: TypeIDFloat64}
	String    Type = Type{TypeID: TypeIDString}
	Date      Type = Type{TypeID: TypeIDDate}
	Timestamp Type = Type{TypeID: TypeIDTimestamp}
)

func ListOf(element Type) Type {
	t := Type{TypeID: TypeIDList}
	t.List.Element = &element
	return t
}

// WithNullable returns a copy of the type with the given nullability.
func (t Type) WithNullable(nullable bool) Type {
	t.Nullable = nullable
	return t
}

func (t Type) Equals(other Type) bool {
	if t.TypeID != other.TypeID {
		return false
	}
	if t.TypeID == TypeIDList {
		return t.List.Element.Equals(*other.List.Element)
	}
	return true
}

func (t Type) IsInteger() bool {
	switch t.TypeID {
	case TypeIDInt8, TypeIDInt16, TypeIDInt32, TypeIDInt64, TypeIDDate, TypeIDTimestamp:
		return true
	}
	return false
}

func (t Type) IsFloat() bool {
	return t.TypeID == TypeIDFloat32 || t.TypeID == TypeIDFloat64
}

func (t Type) IsNumeric() bool {
	return t.IsInteger() || t.IsFloat()
}

// ByteWidth is the size of a single value in a column buffer or in the literal buffer.
// Strings and lists are represented by a 4-byte header.
func (t Type) ByteWidth() int {
	switch t.TypeID {
	case TypeIDBoolean, TypeIDInt8:
		return 1
	case TypeIDInt16:
		return 2
	case TypeIDInt32, TypeIDFloat32, TypeIDDate, TypeIDString, TypeIDList:
		return 4
	case TypeIDInt64, TypeIDFloat64, TypeIDTimestamp:
		return 8
	}
	panic(fmt.Sprintf("invalid type id: %d", t.TypeID))
}

func (t Type) String() string {
	var out string
	switch t.TypeID {
	case TypeIDBoolean:
		out = "Boolean"
	case TypeIDInt8:
		out = "Int8"
	case TypeIDInt16:
		out = "Int16"
	case TypeIDInt32:
		out = "Int32"
	case TypeIDInt64:
		out = "Int64"
	case TypeIDFloat32:
		out = "Float32"
	case TypeIDFloat64:
		out = "Float64"
	case TypeIDString:
		out = "String"
	case TypeIDDate:
		out = "Date"
	case TypeIDTimestamp:
		out = "Timestamp"
	case TypeIDList:
		out = fmt.Sprintf("[%s]", *t.List.Element)
	default:
		panic("impossible, type switch bug")
	}
	if t.Nullable {
		return out + "?"
	}
	return out
}

func (t Type) ArrowDataType() arrow.DataType {
	switch t.TypeID {
	case TypeIDBoolean:
		return arrow.FixedWidthTypes.Boolean
	case TypeIDInt8:
		return arrow.PrimitiveTypes.Int8
	case TypeIDInt16:
		return arrow.PrimitiveTypes.Int16
	case TypeIDInt32:
		return arrow.PrimitiveTypes.Int32
	case TypeIDInt64:
		return arrow.PrimitiveTypes.Int64
	case TypeIDFloat32:
		return arrow.PrimitiveTypes.Float32
	case TypeIDFloat64:
		return arrow.PrimitiveTypes.Float64
	case TypeIDString:
		return arrow.BinaryTypes.String
	case TypeIDDate:
		return arrow.FixedWidthTypes.Date32
	case TypeIDTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	case TypeIDList:
		return arrow.ListOf(t.List.Element.ArrowDataType())
	}
	panic(fmt.Sprintf("invalid type id: %d", t.TypeID))
}

func TypeFromArrow(dt arrow.DataType, nullable bool) (Type, error) {
	var t Type
	switch dt.ID() {
	case arrow.BOOL:
		t = Boolean
	case arrow.INT8:
		t = Int8
	case arrow.INT16:
		t = Int16
	case arrow.INT32:
		t = Int32
	case arrow.INT64:
		t = Int64
	case arrow.FLOAT32:
		t = Float32
	case arrow.FLOAT64:
		t = Float64
	case arrow.STRING:
		t = String
	case arrow.DATE32:
		t = Date
	case arrow.TIMESTAMP:
		t = Timestamp
	case arrow.DICTIONARY:
		// Dictionary encoded columns are seen through their value type.
		return TypeFromArrow(dt.(*arrow.DictionaryType).ValueType, nullable)
	default:
		return Type{}, fmt.Errorf("unsupported arrow type: %s", dt)
	}
	return t.WithNullable(nullable), nil
}

type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingDict
)

func (e Encoding) String() string {
	switch e {
	case EncodingNone:
		return "none"
	case EncodingDict:
		return "dict"
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}
