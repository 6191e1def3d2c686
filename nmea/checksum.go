package nmea

import (
	"bytes"
	"fmt"
)

const (
	DelimStandard     byte = '$'
	DelimEncapsulated byte = '!'
	Terminator             = "\r\n"
)

const hexUpper = "0123456789ABCDEF"

var (
	ErrNoDelimiter = fmt.Errorf("sentence must start with '$' or '!'")
	ErrNoChecksum  = fmt.Errorf("sentence has no '*HH' checksum")
)

// Frame is a finished sentence ready to be written as is. Never modified after build.
type Frame []byte

func (f Frame) String() string { return string(bytes.TrimRight(f, Terminator)) }

func IsDelimiter(b byte) bool { return b == DelimStandard || b == DelimEncapsulated }

// Checksum is XOR of every byte in payload.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// AppendChecksum returns `<payload>*HH\r\n`.
// Leading talker delimiter, if present, is excluded from checksum.
func AppendChecksum(payload []byte) Frame {
	body := payload
	if len(body) > 0 && IsDelimiter(body[0]) {
		body = body[1:]
	}
	sum := Checksum(body)
	f := make(Frame, 0, len(payload)+3+len(Terminator))
	f = append(f, payload...)
	f = append(f, '*', hexUpper[sum>>4], hexUpper[sum&0x0f])
	f = append(f, Terminator...)
	return f
}

// Encode joins fields with ',' after delim and appends checksum.
func Encode(delim byte, fields ...string) Frame {
	n := 1
	for _, f := range fields {
		n += len(f) + 1
	}
	payload := make([]byte, 0, n)
	payload = append(payload, delim)
	for i, f := range fields {
		if i != 0 {
			payload = append(payload, ',')
		}
		payload = append(payload, f...)
	}
	return AppendChecksum(payload)
}

// Split parses `<delim><body>*HH[\r\n]` and returns body and declared checksum.
func Split(frame []byte) (body []byte, declared byte, err error) {
	s := bytes.TrimRight(frame, "\r\n")
	if len(s) == 0 || !IsDelimiter(s[0]) {
		return nil, 0, ErrNoDelimiter
	}
	star := bytes.LastIndexByte(s, '*')
	if star < 0 || len(s)-star != 3 {
		return nil, 0, ErrNoChecksum
	}
	hi, ok1 := unhex(s[star+1])
	lo, ok2 := unhex(s[star+2])
	if !ok1 || !ok2 {
		return nil, 0, fmt.Errorf("invalid checksum digits %q", s[star+1:])
	}
	return s[1:star], hi<<4 | lo, nil
}

// Verify returns nil if declared checksum matches payload.
func Verify(frame []byte) error {
	body, declared, err := Split(frame)
	if err != nil {
		return err
	}
	if actual := Checksum(body); actual != declared {
		return fmt.Errorf("checksum mismatch declared=%02X actual=%02X", declared, actual)
	}
	return nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
