package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sort"
)

// Records are persisted as a closed, versioned binary schema rather than a
// native object graph: anything that does not match the schema exactly is
// rejected before application logic sees it.
const schemaVersionCurrent = 1

const (
	maxSubjectIDLen     = 255
	maxAttributes       = 32
	maxAttributeKeyLen  = 64
	maxAttributeValLen  = 255
)

// ErrCorruptRecord is returned when stored bytes do not decode as a record.
var ErrCorruptRecord = errors.New("corrupt session record")

// Encode serializes a record. The token is the storage key and is not part
// of the payload. Attributes are written in sorted key order so equal
// records encode to equal bytes.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(schemaVersionCurrent)

	if len(r.SubjectID) == 0 || len(r.SubjectID) > maxSubjectIDLen {
		return nil, errors.New("subject id must be 1-255 bytes")
	}
	buf.WriteByte(byte(len(r.SubjectID)))
	buf.WriteString(r.SubjectID)

	if len(r.Attributes) > maxAttributes {
		return nil, errors.New("too many attributes")
	}
	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte(byte(len(keys)))
	for _, k := range keys {
		v := r.Attributes[k]
		if len(k) == 0 || len(k) > maxAttributeKeyLen {
			return nil, errors.New("attribute key must be 1-64 bytes")
		}
		if len(v) > maxAttributeValLen {
			return nil, errors.New("attribute value too long")
		}
		buf.WriteByte(byte(len(k)))
		buf.WriteString(k)
		buf.WriteByte(byte(len(v)))
		buf.WriteString(v)
	}

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.LastActiveAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.AbsoluteExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses stored bytes back into a record. Unknown schema versions,
// truncated payloads, and trailing bytes are all rejected as corrupt.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	if version != schemaVersionCurrent {
		return nil, ErrCorruptRecord
	}

	r := &Record{}

	subjectLen, err := reader.ReadByte()
	if err != nil || subjectLen == 0 {
		return nil, ErrCorruptRecord
	}
	subject := make([]byte, subjectLen)
	if _, err := io.ReadFull(reader, subject); err != nil {
		return nil, ErrCorruptRecord
	}
	r.SubjectID = string(subject)

	attrCount, err := reader.ReadByte()
	if err != nil || int(attrCount) > maxAttributes {
		return nil, ErrCorruptRecord
	}
	if attrCount > 0 {
		r.Attributes = make(map[string]string, attrCount)
	}
	for i := 0; i < int(attrCount); i++ {
		key, err := readLenPrefixed(reader, maxAttributeKeyLen)
		if err != nil || len(key) == 0 {
			return nil, ErrCorruptRecord
		}
		val, err := readLenPrefixed(reader, maxAttributeValLen)
		if err != nil {
			return nil, ErrCorruptRecord
		}
		if _, dup := r.Attributes[string(key)]; dup {
			return nil, ErrCorruptRecord
		}
		r.Attributes[string(key)] = string(val)
	}

	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, ErrCorruptRecord
	}
	if err := binary.Read(reader, binary.BigEndian, &r.LastActiveAt); err != nil {
		return nil, ErrCorruptRecord
	}
	if err := binary.Read(reader, binary.BigEndian, &r.AbsoluteExpiresAt); err != nil {
		return nil, ErrCorruptRecord
	}

	if reader.Len() != 0 {
		return nil, ErrCorruptRecord
	}
	if r.LastActiveAt > r.AbsoluteExpiresAt || r.CreatedAt > r.AbsoluteExpiresAt {
		return nil, ErrCorruptRecord
	}

	return r, nil
}

func readLenPrefixed(reader *bytes.Reader, max int) ([]byte, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if int(n) > max {
		return nil, ErrCorruptRecord
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}
