package acquire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/looptune/internal/dynamo"
)

// Reading is one decoded tag measurement.
type Reading struct {
	Tag    string
	Sample dynamo.Sample
}

// envelope is the wire payload:
//
//	{"tag": "TIC101.PV", "ts": "2024-05-01T10:00:00Z", "value": 42.1, "quality": 192}
//
// ts may also be Unix epoch milliseconds, as a number or a string.
type envelope struct {
	Tag     string          `json:"tag"`
	TS      json.RawMessage `json:"ts"`
	Value   json.Number     `json:"value"`
	Quality *int            `json:"quality"`
}

// Decoder turns raw payloads into Readings. The zero value is usable.
type Decoder struct {
	// Now stamps payloads that carry no ts. Nil means time.Now.
	Now func() time.Time
}

// Decode parses raw. fallbackTag is used when the payload has no tag field
// (the MQTT topic or Kafka key usually names it).
func (d Decoder) Decode(raw []byte, fallbackTag string) (Reading, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return Reading{}, fmt.Errorf("decode reading: %w", err)
	}

	tag := strings.TrimSpace(env.Tag)
	if tag == "" {
		tag = strings.TrimSpace(fallbackTag)
	}
	if tag == "" {
		return Reading{}, errors.New("reading has no tag")
	}

	if env.Value == "" {
		return Reading{}, fmt.Errorf("reading %s: value missing", tag)
	}
	v, err := env.Value.Float64()
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}, fmt.Errorf("reading %s: bad value %q", tag, env.Value)
	}

	ts, err := d.timestamp(env.TS)
	if err != nil {
		return Reading{}, fmt.Errorf("reading %s: %w", tag, err)
	}

	q := dynamo.QualityGood
	if env.Quality != nil {
		q = *env.Quality
	}
	return Reading{Tag: tag, Sample: dynamo.Sample{Time: ts, Value: v, Quality: q}}, nil
}

// Decode uses a zero Decoder.
func Decode(raw []byte, fallbackTag string) (Reading, error) {
	return Decoder{}.Decode(raw, fallbackTag)
}

func (d Decoder) timestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		if d.Now != nil {
			return d.Now().UTC(), nil
		}
		return time.Now().UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, errors.New("ts empty")
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("ts %q is neither RFC3339 nor epoch ms", s)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("ts: %w", err)
	}
	ms, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return time.Time{}, fmt.Errorf("ts %s: %w", n, ferr)
		}
		ms = int64(f)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// TagFromTopic takes the last topic level, so "plant/area1/TIC101.PV" names
// tag TIC101.PV.
func TagFromTopic(topic string) string {
	topic = strings.TrimRight(topic, "/")
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
