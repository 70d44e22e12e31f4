package kv

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

var (
	encMode, _    = encOptions().EncMode()
	encoder, _    = zstd.NewWriter(nil)
	decoder, _    = zstd.NewReader(nil)
)

// encOptions is CBOR's canonical encoding with time.Time values written
// as RFC 3339 text at nanosecond precision, so timestamps keep their
// sub-second part through Decode.
func encOptions() cbor.EncOptions {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	return opts
}

// Encode marshals v to CBOR then compresses it, the same two-step
// encoding the teacher's service/storage package applies before a
// Badger write.
func Encode(v any) ([]byte, error) {
	raw, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("kv: could not encode value: %w", err)
	}
	return encoder.EncodeAll(raw, nil), nil
}

// Decode reverses Encode.
func Decode(data []byte, v any) error {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("kv: could not decompress value: %w", err)
	}
	if err := cbor.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("kv: could not decode value: %w", err)
	}
	return nil
}
