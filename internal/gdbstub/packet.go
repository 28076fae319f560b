package gdbstub

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrChecksum is returned for a frame whose checksum does not match.
var ErrChecksum = errors.New("packet checksum mismatch")

type frameKind int

const (
	frameAck frameKind = iota
	frameNack
	framePacket
	frameNotify
	frameInterrupt
)

func checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return sum
}

// escape protects the bytes that have a meaning inside a frame.
func escape(payload string) []byte {
	out := make([]byte, 0, len(payload))
	for i := 0; i < len(payload); i++ {
		b := payload[i]
		switch b {
		case '$', '#', '}', '*':
			out = append(out, '}', b^0x20)
		default:
			out = append(out, b)
		}
	}
	return out
}

// encodePacket frames payload as $payload#xx.
func encodePacket(payload string) []byte {
	body := escape(payload)
	out := make([]byte, 0, len(body)+4)
	out = append(out, '$')
	out = append(out, body...)
	out = append(out, '#')
	out = append(out, fmt.Sprintf("%02x", checksum(body))...)
	return out
}

// decodeBody undoes escaping and run-length encoding.
func decodeBody(body []byte) ([]byte, error) {
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		switch b := body[i]; b {
		case '}':
			i++
			if i >= len(body) {
				return nil, fmt.Errorf("dangling escape")
			}
			out = append(out, body[i]^0x20)
		case '*':
			i++
			if i >= len(body) || len(out) == 0 {
				return nil, fmt.Errorf("bad run-length marker")
			}
			n := int(body[i]) - 29
			last := out[len(out)-1]
			for j := 0; j < n; j++ {
				out = append(out, last)
			}
		default:
			out = append(out, b)
		}
	}
	return out, nil
}

// readFrame reads the next ack, nack, interrupt or packet from rd.
func readFrame(rd *bufio.Reader) (frameKind, string, error) {
	for {
		b, err := rd.ReadByte()
		if err != nil {
			return 0, "", err
		}
		switch b {
		case '+':
			return frameAck, "", nil
		case '-':
			return frameNack, "", nil
		case 0x03:
			return frameInterrupt, "", nil
		case '$', '%':
			body, err := rd.ReadBytes('#')
			if err != nil {
				return 0, "", err
			}
			body = body[:len(body)-1]
			var sum [2]byte
			if _, err := io.ReadFull(rd, sum[:]); err != nil {
				return 0, "", err
			}
			want, err := hex.DecodeString(string(sum[:]))
			if err != nil || want[0] != checksum(body) {
				return 0, "", ErrChecksum
			}
			payload, err := decodeBody(body)
			if err != nil {
				return 0, "", err
			}
			kind := framePacket
			if b == '%' {
				kind = frameNotify
			}
			return kind, string(payload), nil
		}
		// anything else between frames is noise
	}
}
