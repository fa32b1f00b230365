// Package marc builds and serializes MARC 21 bibliographic records
// for deposited theses.
package marc

import (
	"bytes"
	"fmt"
	"strconv"
)

// MARC 21 structural delimiters.
const (
	subfieldDelimiter = 0x1f
	fieldTerminator   = 0x1e
	recordTerminator  = 0x1d
)

const (
	leaderLength         = 24
	directoryEntryLength = 12
	maxRecordLength      = 99999
)

// Subfield is one coded value inside a data field.
type Subfield struct {
	Code  byte
	Value string
}

// Field is a control field (Data set) or a data field (Indicators and
// Subfields set). Control fields have tags below 010.
type Field struct {
	Tag        string
	Data       string
	Indicators [2]byte
	Subfields  []Subfield
}

// DataField builds a variable data field from indicator characters and
// alternating code/value pairs.
func DataField(tag string, ind1, ind2 byte, subfields ...Subfield) Field {
	return Field{Tag: tag, Indicators: [2]byte{ind1, ind2}, Subfields: subfields}
}

// ControlField builds a fixed-content control field.
func ControlField(tag, data string) Field {
	return Field{Tag: tag, Data: data}
}

// Sub pairs a subfield code with its value.
func Sub(code byte, value string) Subfield {
	return Subfield{Code: code, Value: value}
}

// Record is an ordered set of fields under a leader template. The
// leader's record-length and base-address slots are filled during
// serialization.
type Record struct {
	Leader string
	Fields []Field
}

// AddField appends a field to the record.
func (r *Record) AddField(field Field) {
	r.Fields = append(r.Fields, field)
}

func (f *Field) encode() []byte {
	var buffer bytes.Buffer
	if f.Data != "" || len(f.Subfields) == 0 {
		buffer.WriteString(f.Data)
	} else {
		buffer.WriteByte(f.Indicators[0])
		buffer.WriteByte(f.Indicators[1])
		for _, subfield := range f.Subfields {
			buffer.WriteByte(subfieldDelimiter)
			buffer.WriteByte(subfield.Code)
			buffer.WriteString(subfield.Value)
		}
	}
	buffer.WriteByte(fieldTerminator)
	return buffer.Bytes()
}

// Bytes serializes the record: leader, directory, field data and the
// record terminator, with lengths measured in bytes.
func (r *Record) Bytes() ([]byte, error) {
	if len(r.Leader) != leaderLength {
		return nil, fmt.Errorf("leader must be %d characters, got %d", leaderLength, len(r.Leader))
	}

	var directory bytes.Buffer
	var fieldData bytes.Buffer
	for _, field := range r.Fields {
		if len(field.Tag) != 3 {
			return nil, fmt.Errorf("invalid tag %q", field.Tag)
		}
		encoded := field.encode()
		fmt.Fprintf(&directory, "%s%04d%05d", field.Tag, len(encoded), fieldData.Len())
		fieldData.Write(encoded)
	}
	directory.WriteByte(fieldTerminator)

	baseAddress := leaderLength + directory.Len()
	totalLength := baseAddress + fieldData.Len() + 1
	if totalLength > maxRecordLength {
		return nil, fmt.Errorf("record length %d exceeds the MARC limit", totalLength)
	}

	leader := []byte(r.Leader)
	copy(leader[0:5], zeroPad(totalLength, 5))
	copy(leader[12:17], zeroPad(baseAddress, 5))

	var record bytes.Buffer
	record.Write(leader)
	record.Write(directory.Bytes())
	record.Write(fieldData.Bytes())
	record.WriteByte(recordTerminator)
	return record.Bytes(), nil
}

func zeroPad(value, width int) []byte {
	text := strconv.Itoa(value)
	padded := make([]byte, width)
	for i := range padded {
		padded[i] = '0'
	}
	copy(padded[width-len(text):], text)
	return padded
}
