package cloud

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// Record is a SenML record as exchanged with the cloud broker,
// encoded in CBOR with the integer labels of RFC 8428.
type Record struct {
	BaseName  string   `cbor:"-2,keyasint,omitempty"`
	BaseTime  float64  `cbor:"-3,keyasint,omitempty"`
	Name      string   `cbor:"0,keyasint,omitempty"`
	Value     *float64 `cbor:"2,keyasint,omitempty"`
	StrValue  *string  `cbor:"3,keyasint,omitempty"`
	BoolValue *bool    `cbor:"4,keyasint,omitempty"`
	Time      float64  `cbor:"6,keyasint,omitempty"`
}

// ErrEmptyPack indicates a payload without records.
var ErrEmptyPack = errors.New("empty SenML pack")

// BoolRecord creates a record carrying a boolean value.
func BoolRecord(name string, v bool) Record {
	return Record{Name: name, BoolValue: &v}
}

// FullName is the base name joined with the name.
func (r Record) FullName() string {
	return r.BaseName + r.Name
}

// EncodeRecords encodes a SenML pack.
func EncodeRecords(recs ...Record) ([]byte, error) {
	return cbor.Marshal(recs)
}

// DecodeRecords decodes a SenML pack. Base names are resolved into
// the following records.
func DecodeRecords(data []byte) ([]Record, error) {
	var recs []Record
	if err := cbor.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrEmptyPack
	}
	var baseName string
	for n := range recs {
		if recs[n].BaseName != "" {
			baseName = recs[n].BaseName
		}
		recs[n].BaseName = baseName
	}
	return recs, nil
}
