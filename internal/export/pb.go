package export

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mu3e-tools/tileangle/internal/fsutil"
	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
)

// Field numbers of the result stream. The file is one message:
//
//	message ResultSet {
//	  string mode = 1;
//	  string convention = 2;
//	  repeated Sample samples = 3;
//	}
//	message Sample {
//	  sint64 tile = 1;
//	  double angle = 2;
//	  double z = 3;
//	}
const (
	fieldMode       protowire.Number = 1
	fieldConvention protowire.Number = 2
	fieldSample     protowire.Number = 3

	fieldTile  protowire.Number = 1
	fieldAngle protowire.Number = 2
	fieldZ     protowire.Number = 3
)

// ErrMalformedPB is returned when a result stream cannot be decoded.
var ErrMalformedPB = errors.New("malformed result stream")

// MarshalPB encodes rs in protobuf wire format.
func MarshalPB(rs *tileangle.ResultSet) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldMode, protowire.BytesType)
	b = protowire.AppendString(b, rs.Mode.String())
	b = protowire.AppendTag(b, fieldConvention, protowire.BytesType)
	b = protowire.AppendString(b, rs.Convention.String())

	var sample []byte
	for i := 0; i < rs.Len(); i++ {
		sample = sample[:0]
		sample = protowire.AppendTag(sample, fieldTile, protowire.VarintType)
		sample = protowire.AppendVarint(sample, protowire.EncodeZigZag(int64(rs.TileID[i])))
		sample = protowire.AppendTag(sample, fieldAngle, protowire.Fixed64Type)
		sample = protowire.AppendFixed64(sample, math.Float64bits(rs.Angle[i]))
		sample = protowire.AppendTag(sample, fieldZ, protowire.Fixed64Type)
		sample = protowire.AppendFixed64(sample, math.Float64bits(rs.Z[i]))

		b = protowire.AppendTag(b, fieldSample, protowire.BytesType)
		b = protowire.AppendBytes(b, sample)
	}
	return b
}

// DecodedPB is the content of a result stream.
type DecodedPB struct {
	Mode       string
	Convention string
	Samples    []tileangle.MatchResult
}

// UnmarshalPB decodes a stream written by MarshalPB. Unknown fields are
// skipped.
func UnmarshalPB(b []byte) (*DecodedPB, error) {
	out := &DecodedPB{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPB, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldMode && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: mode: %v", ErrMalformedPB, protowire.ParseError(m))
			}
			out.Mode, n = s, m
		case num == fieldConvention && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: convention: %v", ErrMalformedPB, protowire.ParseError(m))
			}
			out.Convention, n = s, m
		case num == fieldSample && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: sample: %v", ErrMalformedPB, protowire.ParseError(m))
			}
			s, err := unmarshalSample(raw)
			if err != nil {
				return nil, err
			}
			out.Samples = append(out.Samples, s)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedPB, num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return out, nil
}

func unmarshalSample(b []byte) (tileangle.MatchResult, error) {
	var s tileangle.MatchResult
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, fmt.Errorf("%w: %v", ErrMalformedPB, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldTile && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return s, fmt.Errorf("%w: tile: %v", ErrMalformedPB, protowire.ParseError(m))
			}
			s.TileID = geometry.TileID(protowire.DecodeZigZag(v))
			n = m
		case (num == fieldAngle || num == fieldZ) && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return s, fmt.Errorf("%w: field %d: %v", ErrMalformedPB, num, protowire.ParseError(m))
			}
			if num == fieldAngle {
				s.Angle = math.Float64frombits(v)
			} else {
				s.Z = math.Float64frombits(v)
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return s, fmt.Errorf("%w: field %d: %v", ErrMalformedPB, num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return s, nil
}

// WritePB writes the result stream to <base>.pb.
func WritePB(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet) ([]string, error) {
	name := base + ".pb"
	if err := fsys.WriteFile(name, MarshalPB(rs), 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return []string{name}, nil
}
