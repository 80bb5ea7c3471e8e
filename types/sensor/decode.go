package sensor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
)

var ErrUnknownKind = errors.New("unknown record kind")
var ErrInvalidRecord = errors.New("invalid record")

// DecodeRecord sniffs the "kind" attribute and decodes msg into the matching type.
func DecodeRecord(msg []byte) (Record, error) {
	kind := Kind(gjson.GetBytes(msg, "kind").String())
	var rec Record
	var err error
	switch {
	case kind.IsSample():
		s := Sample{}
		err = json.Unmarshal(msg, &s)
		if err == nil && !finite(s.X, s.Y, s.Z, s.Value) {
			err = fmt.Errorf("%w: non-finite %s sample", ErrInvalidRecord, kind)
		}
		rec = s
	case kind == KindFix:
		f := Fix{}
		err = json.Unmarshal(msg, &f)
		if err == nil && !finite(f.Lat, f.Lng, f.Accuracy) {
			err = fmt.Errorf("%w: non-finite fix", ErrInvalidRecord)
		}
		rec = f
	case kind == KindGNSS:
		g := GNSSStatus{}
		err = json.Unmarshal(msg, &g)
		rec = g
	case kind == KindBLE:
		b := BLEScan{}
		err = json.Unmarshal(msg, &b)
		rec = b
	case kind == KindUnavailable:
		u := Unavailable{}
		err = json.Unmarshal(msg, &u)
		if err == nil && u.Reason == "" {
			u.Reason = ReasonMissing
		}
		rec = u
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	if rec.RecordTime().IsZero() {
		return nil, fmt.Errorf("%w: missing time", ErrInvalidRecord)
	}
	return rec, nil
}

// EncodeRecord marshals r with its "kind" attribute set.
func EncodeRecord(r Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	m["kind"] = r.RecordKind()
	return json.Marshal(m)
}

// ScanJSONMessages reads a stream of JSON messages from an io.Reader,
// and calls onEach for each decoded message.
// If the stream is encoded as a JSON array, onEach is called for each element.
func ScanJSONMessages(body io.Reader, onEach func(message json.RawMessage) error) error {
	buf := bufio.NewReader(body)
	peek, err := buf.Peek(1)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewBuffer(peek))
	t, err := dec.Token()
	if err != nil {
		return err
	}
	dec = json.NewDecoder(buf)
	if t == json.Delim('[') {
		if _, err := dec.Token(); err != nil {
			return err
		}
	}
	for dec.More() {
		var msg json.RawMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decode err: %w", err)
		}
		if err := onEach(msg); err != nil {
			return err
		}
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if v != v || v > 1e308 || v < -1e308 {
			return false
		}
	}
	return true
}
