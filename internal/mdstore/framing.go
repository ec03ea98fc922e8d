package mdstore

import (
	"encoding/binary"
	"io"
)

// writeKV and readKV frame a single key/value pair for MemoryStore's
// Backup/Restore file format: [keyLen:u32][key][valLen:u32][val].

func writeKV(w io.Writer, key string, value []byte) error {
	if err := writeU32(w, uint32(len(key))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, key); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(value))); err != nil {
		return err
	}
	_, err := w.Write(value)
	return err
}

func readKV(r io.Reader) (string, []byte, error) {
	keyLen, err := readU32(r)
	if err != nil {
		return "", nil, err
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return "", nil, err
	}
	valLen, err := readU32(r)
	if err != nil {
		return "", nil, err
	}
	val := make([]byte, valLen)
	if _, err := io.ReadFull(r, val); err != nil {
		return "", nil, err
	}
	return string(key), val, nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
