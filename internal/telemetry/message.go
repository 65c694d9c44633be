// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// DecodeError reports an inbound message whose structure cannot be used.
// The message is dropped; the stream continues.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Message is one decoded device message.
type Message struct {
	// Groups maps a channel-group key (e.g. "chunks", "mag_iis2") to its payload.
	Groups map[string]GroupPayload

	Summary    *Summary
	Statistics *Statistics
	Magnitude  *float64
	DeviceTime *float64

	// Identity is the device address announced in the stream, if any.
	Identity string
	// FullScale is the device-confirmed full scale, if echoed.
	FullScale *float64
}

// GroupPayload holds the per-channel samples of one group in one message.
type GroupPayload struct {
	Channels map[string][]float64
	Name     string
	Unit     string
}

// Summary is the compact rate block of the high-speed stream ("s").
type Summary struct {
	MessagesPerSec    *float64 `json:"mps"`
	PlotSamplesPerSec *float64 `json:"pps"`
	SamplesPerSec     *float64 `json:"sps"`
	QueueDepth        *float64 `json:"fifo"`
	Batch             *float64 `json:"batch"`
	Chunk             *float64 `json:"chunk"`
}

// Statistics is the rate block of the multi-sensor stream ("statistics").
type Statistics struct {
	MessagesPerSec    *float64 `json:"msg_per_second"`
	SamplesPerSec     *float64 `json:"samples_per_second"`
	PlotSamplesPerSec *float64 `json:"plot_samples_per_second"`
	SensorCount       *float64 `json:"sensor_count"`
}

// samples accepts a number, null, or an array of numbers and nulls.
// null becomes NaN so that it breaks the trace instead of drawing a zero.
type samples []float64

func (s *samples) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var raw []*float64
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			if v == nil {
				out[i] = math.NaN()
				continue
			}
			out[i] = *v
		}
		*s = out
		return nil
	}
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*s = samples{math.NaN()}
		return nil
	}
	*s = samples{*v}
	return nil
}

// Decode parses one inbound message. Any top-level object member that is
// itself an object and not one of the reserved keys is treated as a group
// payload.
func Decode(raw []byte) (*Message, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, &DecodeError{Reason: "message is not a JSON object", Err: err}
	}
	if top == nil {
		return nil, &DecodeError{Reason: "message is null"}
	}

	msg := &Message{Groups: make(map[string]GroupPayload)}
	for key, value := range top {
		var err error
		switch key {
		case "s":
			msg.Summary = &Summary{}
			err = json.Unmarshal(value, msg.Summary)
		case "statistics":
			msg.Statistics = &Statistics{}
			err = json.Unmarshal(value, msg.Statistics)
		case "mag":
			msg.Magnitude, err = decodeNumber(value)
		case "t":
			msg.DeviceTime, err = decodeNumber(value)
		case "full_scale_g":
			msg.FullScale, err = decodeNumber(value)
		case "ip":
			err = json.Unmarshal(value, &msg.Identity)
		default:
			if !isObject(value) {
				continue
			}
			var p GroupPayload
			p, err = decodeGroup(value)
			if err == nil {
				msg.Groups[key] = p
			}
		}
		if err != nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("field %q", key), Err: err}
		}
	}
	return msg, nil
}

func decodeNumber(value json.RawMessage) (*float64, error) {
	var v *float64
	if err := json.Unmarshal(value, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeGroup(value json.RawMessage) (GroupPayload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil {
		return GroupPayload{}, err
	}
	p := GroupPayload{Channels: make(map[string][]float64, len(fields))}
	for name, v := range fields {
		v = bytes.TrimSpace(v)
		if len(v) == 0 {
			continue
		}
		switch {
		case v[0] == '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return GroupPayload{}, err
			}
			switch name {
			case "name":
				p.Name = s
			case "unit":
				p.Unit = s
			}
		case v[0] == '[' || v[0] == '-' || (v[0] >= '0' && v[0] <= '9') || bytes.Equal(v, []byte("null")):
			var s samples
			if err := json.Unmarshal(v, &s); err != nil {
				return GroupPayload{}, fmt.Errorf("channel %q: %w", name, err)
			}
			p.Channels[name] = s
		}
	}
	return p, nil
}

func isObject(value json.RawMessage) bool {
	value = bytes.TrimSpace(value)
	return len(value) > 0 && value[0] == '{'
}
