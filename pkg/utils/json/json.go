// Package json wraps the JSON codec used by docqa.
// On amd64/arm64 it is backed by sonic, on every other architecture it falls
// back to encoding/json so the index snapshot stays readable everywhere.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

var (
	// Marshal encodes v into JSON bytes.
	Marshal func(v interface{}) ([]byte, error)

	// Unmarshal decodes JSON bytes into v.
	Unmarshal func(data []byte, v interface{}) error

	// MarshalStable encodes v with sorted map keys and standard escaping.
	// Used where byte-for-byte output must not depend on map iteration,
	// such as the on-disk index snapshot.
	MarshalStable func(v interface{}) ([]byte, error)

	// NewEncoder creates a new JSON encoder for the writer.
	NewEncoder func(w io.Writer) Encoder

	// NewDecoder creates a new JSON decoder for the reader.
	NewDecoder func(r io.Reader) Decoder

	usingSonic bool
)

// Encoder is a JSON encoder interface.
type Encoder interface {
	Encode(v interface{}) error
}

// Decoder is a JSON decoder interface.
type Decoder interface {
	Decode(v interface{}) error
}

// RawMessage is a raw encoded JSON value.
type RawMessage = stdjson.RawMessage

func init() {
	// sonic 仅支持 amd64 与 arm64
	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		Marshal = sonic.Marshal
		Unmarshal = sonic.Unmarshal
		MarshalStable = sonic.ConfigStd.Marshal
		NewEncoder = func(w io.Writer) Encoder {
			return sonic.ConfigDefault.NewEncoder(w)
		}
		NewDecoder = func(r io.Reader) Decoder {
			return sonic.ConfigDefault.NewDecoder(r)
		}
		usingSonic = true
		return
	}

	Marshal = stdjson.Marshal
	Unmarshal = stdjson.Unmarshal
	MarshalStable = stdjson.Marshal
	NewEncoder = func(w io.Writer) Encoder {
		return stdjson.NewEncoder(w)
	}
	NewDecoder = func(r io.Reader) Decoder {
		return stdjson.NewDecoder(r)
	}
}

// IsUsingSonic returns true if sonic is being used for JSON operations.
func IsUsingSonic() bool {
	return usingSonic
}
