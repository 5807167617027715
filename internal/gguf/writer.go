package gguf

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// KV is one ordered metadata entry for WriteMetadata.
type KV struct {
	Key   string
	Value any
}

// WriteMetadata writes a version 3 GGUF header with the given key/value
// pairs and no tensors. Supported value types are string, bool, uint32,
// uint64, int32, float32 and []string.
func WriteMetadata(w io.Writer, kvs []KV) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian
	var scratch [8]byte
	u32 := func(v uint32) { le.PutUint32(scratch[:4], v); bw.Write(scratch[:4]) }
	u64 := func(v uint64) { le.PutUint64(scratch[:8], v); bw.Write(scratch[:8]) }
	str := func(s string) { u64(uint64(len(s))); bw.WriteString(s) }

	bw.WriteString(magicGGUF)
	u32(3)
	u64(0)
	u64(uint64(len(kvs)))
	for _, kv := range kvs {
		str(kv.Key)
		switch v := kv.Value.(type) {
		case string:
			u32(uint32(TypeString))
			str(v)
		case bool:
			u32(uint32(TypeBool))
			if v {
				bw.WriteByte(1)
			} else {
				bw.WriteByte(0)
			}
		case uint32:
			u32(uint32(TypeUint32))
			u32(v)
		case uint64:
			u32(uint32(TypeUint64))
			u64(v)
		case int32:
			u32(uint32(TypeInt32))
			u32(uint32(v))
		case float32:
			u32(uint32(TypeFloat32))
			u32(math.Float32bits(v))
		case []string:
			u32(uint32(TypeArray))
			u32(uint32(TypeString))
			u64(uint64(len(v)))
			for _, s := range v {
				str(s)
			}
		default:
			return errors.Errorf("gguf: unsupported value type %T for %s", kv.Value, kv.Key)
		}
	}
	return bw.Flush()
}

// WriteFile writes a metadata-only GGUF file at path.
func WriteFile(path string, kvs []KV) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteMetadata(f, kvs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
