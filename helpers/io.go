package helpers

import (
	"io"
)

// WriteAll retries short writes until b is written.
// Writer that makes no progress without error gets io.ErrShortWrite,
// caller must not assume part of a frame reached the other side.
func WriteAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n <= 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}
