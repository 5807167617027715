// Package gguf reads the metadata section of GGUF model files without
// touching tensor data. It is enough to learn a model's architecture,
// layer count and chat template before handing the file to the runtime.
package gguf

import (
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"
)

const magicGGUF = "GGUF"

type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

func (t ValueType) String() string {
	switch t {
	case TypeUint8:
		return "u8"
	case TypeInt8:
		return "i8"
	case TypeUint16:
		return "u16"
	case TypeInt16:
		return "i16"
	case TypeUint32:
		return "u32"
	case TypeInt32:
		return "i32"
	case TypeUint64:
		return "u64"
	case TypeInt64:
		return "i64"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// size returns the encoded width of fixed-size scalar types, 0 otherwise.
func (t ValueType) size() int {
	switch t {
	case TypeUint8, TypeInt8, TypeBool:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeUint64, TypeInt64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

// ArrayInfo describes an array value. Elements are skipped, not decoded:
// vocabularies run to hundreds of thousands of entries.
type ArrayInfo struct {
	ElemType ValueType
	Len      uint64
}

type Value struct {
	Type  ValueType
	Value any
}

// Metadata is the decoded header and key/value section of a GGUF file.
type Metadata struct {
	Path        string
	Version     uint32
	TensorCount uint64
	KV          map[string]Value
}

// ReadMetadata opens path and decodes its header and key/value pairs.
func ReadMetadata(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	r := newReader(f, st.Size())

	magic, err := r.readN(4)
	if err != nil {
		return nil, errors.Wrap(err, "read magic")
	}
	if string(magic) != magicGGUF {
		return nil, errors.Errorf("invalid magic: %q", string(magic))
	}
	version, err := r.readU32()
	if err != nil {
		return nil, errors.Wrap(err, "read version")
	}
	if version < 2 {
		return nil, errors.Errorf("unsupported gguf version %d", version)
	}
	tensorCount, err := r.readU64()
	if err != nil {
		return nil, errors.Wrap(err, "read tensor count")
	}
	kvCount, err := r.readU64()
	if err != nil {
		return nil, errors.Wrap(err, "read kv count")
	}
	if kvCount > uint64(st.Size()) {
		return nil, errors.Errorf("kv count too large: %d", kvCount)
	}

	kv := make(map[string]Value, kvCount)
	for i := range kvCount {
		key, err := r.readString()
		if err != nil {
			return nil, errors.Wrapf(err, "read key %d", i)
		}
		vt, err := r.readU32()
		if err != nil {
			return nil, errors.Wrapf(err, "read value type for %s", key)
		}
		val, err := readValue(r, ValueType(vt))
		if err != nil {
			return nil, errors.Wrapf(err, "read value for %s", key)
		}
		kv[key] = Value{Type: ValueType(vt), Value: val}
	}
	return &Metadata{Path: path, Version: version, TensorCount: tensorCount, KV: kv}, nil
}

func readValue(r *reader, vt ValueType) (any, error) {
	switch vt {
	case TypeUint8:
		return r.readU8()
	case TypeInt8:
		v, err := r.readU8()
		return int8(v), err
	case TypeUint16:
		return r.readU16()
	case TypeInt16:
		v, err := r.readU16()
		return int16(v), err
	case TypeUint32:
		return r.readU32()
	case TypeInt32:
		v, err := r.readU32()
		return int32(v), err
	case TypeUint64:
		return r.readU64()
	case TypeInt64:
		v, err := r.readU64()
		return int64(v), err
	case TypeFloat32:
		return r.readF32()
	case TypeFloat64:
		return r.readF64()
	case TypeBool:
		v, err := r.readU8()
		return v != 0, err
	case TypeString:
		return r.readString()
	case TypeArray:
		et, err := r.readU32()
		if err != nil {
			return nil, err
		}
		n, err := r.readU64()
		if err != nil {
			return nil, err
		}
		if err := skipArray(r, ValueType(et), n); err != nil {
			return nil, err
		}
		return ArrayInfo{ElemType: ValueType(et), Len: n}, nil
	default:
		return nil, errors.Errorf("unsupported value type %d", uint32(vt))
	}
}

func skipArray(r *reader, et ValueType, n uint64) error {
	// every element takes at least one byte, so n is bounded by what is left
	if limit := r.remaining(); n > limit {
		return errors.Errorf("array of %d elements exceeds the %d bytes left", n, limit)
	}
	if sz := et.size(); sz > 0 {
		if n > r.remaining()/uint64(sz) {
			return errors.Errorf("array of %d x %d bytes exceeds the file", n, sz)
		}
		return r.skip(int64(n) * int64(sz))
	}
	for range n {
		if _, err := readValue(r, et); err != nil {
			return err
		}
	}
	return nil
}

// String returns a string value.
func (m *Metadata) String(key string) (string, bool) {
	v, ok := m.KV[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value.(string)
	return s, ok
}

// Uint returns any non-negative integer value widened to uint64.
func (m *Metadata) Uint(key string) (uint64, bool) {
	v, ok := m.KV[key]
	if !ok {
		return 0, false
	}
	return asUint64(v.Value)
}

func (m *Metadata) Architecture() (string, bool) { return m.String("general.architecture") }

func (m *Metadata) Name() (string, bool) { return m.String("general.name") }

func (m *Metadata) ChatTemplate() (string, bool) { return m.String("tokenizer.chat_template") }

// BlockCount returns the architecture-specific layer count.
func (m *Metadata) BlockCount() (int, bool) {
	return m.archInt("block_count")
}

// ContextLength returns the training context length.
func (m *Metadata) ContextLength() (int, bool) {
	return m.archInt("context_length")
}

func (m *Metadata) archInt(suffix string) (int, bool) {
	arch, ok := m.Architecture()
	if !ok || arch == "" {
		return 0, false
	}
	n, ok := m.Uint(arch + "." + suffix)
	if !ok || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func asUint64(v any) (uint64, bool) {
	switch t := v.(type) {
	case uint8:
		return uint64(t), true
	case uint16:
		return uint64(t), true
	case uint32:
		return uint64(t), true
	case uint64:
		return t, true
	case int8:
		return uint64(t), t >= 0
	case int16:
		return uint64(t), t >= 0
	case int32:
		return uint64(t), t >= 0
	case int64:
		return uint64(t), t >= 0
	default:
		return 0, false
	}
}
