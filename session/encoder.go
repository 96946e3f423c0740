package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"

	"github.com/MrEthical07/goRBAC/constraint"
)

const (
	blobVersionCurrent = 2
	blobVersionV1      = 1
)

// ErrCorruptBlob is returned by Decode when a stored session blob cannot
// be parsed.
var ErrCorruptBlob = errors.New("corrupt session blob")

// Encode renders the session as a versioned binary blob for the registry.
// Constraints travel in their raw $-delimited storage form so the blob has
// no Go-specific encoding in it.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(blobVersionCurrent)

	if err := writeString8(&buf, s.ID); err != nil {
		return nil, err
	}
	if err := writeString8(&buf, s.UserID); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(s.State))
	buf.WriteByte(byte(s.LastViolation))

	if err := writeString16(&buf, constraint.Encode(s.UserConstraint)); err != nil {
		return nil, err
	}

	writeInt64(&buf, s.CreatedAt.Unix())
	writeInt64(&buf, s.LastAccess.Unix())

	if err := writeAssignments(&buf, s.Assigned); err != nil {
		return nil, err
	}
	if err := writeActives(&buf, s.Active); err != nil {
		return nil, err
	}
	if err := writeAssignments(&buf, s.AdminAssigned); err != nil {
		return nil, err
	}
	if err := writeActives(&buf, s.AdminActive); err != nil {
		return nil, err
	}

	if len(s.Warnings) > 255 {
		return nil, errors.New("too many warnings")
	}
	buf.WriteByte(byte(len(s.Warnings)))
	for _, w := range s.Warnings {
		buf.WriteByte(byte(w.Code))
		if err := writeString8(&buf, w.Role); err != nil {
			return nil, err
		}
		if err := writeString16(&buf, w.Detail); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode]. Unknown versions and short
// reads surface as [ErrCorruptBlob].
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorruptBlob
	}
	if version != blobVersionCurrent && version != blobVersionV1 {
		return nil, ErrCorruptBlob
	}

	s := &Session{}

	if s.ID, err = readString8(r); err != nil {
		return nil, err
	}
	if s.UserID, err = readString8(r); err != nil {
		return nil, err
	}
	state, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorruptBlob
	}
	s.State = State(state)
	if version >= blobVersionCurrent {
		violation, err := r.ReadByte()
		if err != nil {
			return nil, ErrCorruptBlob
		}
		s.LastViolation = constraint.Validity(violation)
	}

	rawConstraint, err := readString16(r)
	if err != nil {
		return nil, err
	}
	if s.UserConstraint, err = constraint.Decode(rawConstraint); err != nil {
		return nil, ErrCorruptBlob
	}

	created, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = time.Unix(created, 0).UTC()
	last, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	s.LastAccess = time.Unix(last, 0).UTC()

	if s.Assigned, err = readAssignments(r); err != nil {
		return nil, err
	}
	if s.Active, err = readActives(r); err != nil {
		return nil, err
	}
	if s.AdminAssigned, err = readAssignments(r); err != nil {
		return nil, err
	}
	if s.AdminActive, err = readActives(r); err != nil {
		return nil, err
	}

	count, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorruptBlob
	}
	for i := 0; i < int(count); i++ {
		var w Warning
		code, err := r.ReadByte()
		if err != nil {
			return nil, ErrCorruptBlob
		}
		w.Code = WarningCode(code)
		if w.Role, err = readString8(r); err != nil {
			return nil, err
		}
		if w.Detail, err = readString16(r); err != nil {
			return nil, err
		}
		s.Warnings = append(s.Warnings, w)
	}

	if r.Len() != 0 {
		return nil, ErrCorruptBlob
	}
	return s, nil
}

func writeAssignments(buf *bytes.Buffer, as []Assignment) error {
	if len(as) > 255 {
		return errors.New("too many assignments")
	}
	buf.WriteByte(byte(len(as)))
	for _, a := range as {
		if err := writeString8(buf, a.Role); err != nil {
			return err
		}
		if err := writeString16(buf, constraint.Encode(a.Constraint)); err != nil {
			return err
		}
	}
	return nil
}

func readAssignments(r *bytes.Reader) ([]Assignment, error) {
	count, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorruptBlob
	}
	if count == 0 {
		return nil, nil
	}
	out := make([]Assignment, 0, count)
	for i := 0; i < int(count); i++ {
		var a Assignment
		if a.Role, err = readString8(r); err != nil {
			return nil, err
		}
		raw, err := readString16(r)
		if err != nil {
			return nil, err
		}
		if a.Constraint, err = constraint.Decode(raw); err != nil {
			return nil, ErrCorruptBlob
		}
		out = append(out, a)
	}
	return out, nil
}

func writeActives(buf *bytes.Buffer, as []ActiveRole) error {
	if len(as) > 255 {
		return errors.New("too many active roles")
	}
	buf.WriteByte(byte(len(as)))
	for _, a := range as {
		if err := writeString8(buf, a.Name); err != nil {
			return err
		}
		writeInt64(buf, a.ActivatedAt.Unix())
		if a.ExpiresAt.IsZero() {
			writeInt64(buf, 0)
		} else {
			writeInt64(buf, a.ExpiresAt.Unix())
		}
	}
	return nil
}

func readActives(r *bytes.Reader) ([]ActiveRole, error) {
	count, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorruptBlob
	}
	if count == 0 {
		return nil, nil
	}
	out := make([]ActiveRole, 0, count)
	for i := 0; i < int(count); i++ {
		var a ActiveRole
		if a.Name, err = readString8(r); err != nil {
			return nil, err
		}
		activated, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		a.ActivatedAt = time.Unix(activated, 0).UTC()
		expires, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		if expires != 0 {
			a.ExpiresAt = time.Unix(expires, 0).UTC()
		}
		out = append(out, a)
	}
	return out, nil
}

func writeString8(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return errors.New("string too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString8(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", ErrCorruptBlob
	}
	return readBytes(r, int(n))
}

func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("string too long")
	}
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
	return nil
}

func readString16(r *bytes.Reader) (string, error) {
	var n [2]byte
	if _, err := r.Read(n[:]); err != nil {
		return "", ErrCorruptBlob
	}
	return readBytes(r, int(binary.BigEndian.Uint16(n[:])))
}

func readBytes(r *bytes.Reader, n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	read, err := r.Read(b)
	if err != nil || read != n {
		return "", ErrCorruptBlob
	}
	return string(b), nil
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	read, err := r.Read(b[:])
	if err != nil || read != len(b) {
		return 0, ErrCorruptBlob
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}
