// Package protocol implements the text wire format nodes use to advertise their distance vectors.
//
// A record is a single line:
//
//	<sender>,<dest1>:<distance1>,<dest2>:<distance2>,...
//
// where each distance is a non-negative decimal number without an exponent, or the sentinel
// "inf". A destination appears at most once.
package protocol

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/encodeous/dvnode/state"
)

const (
	FieldSep = ","
	PairSep  = ":"
	InfToken = "inf"
)

// Encode serializes the sender's id and every entry of vec, in destination order
func Encode(sender state.NodeId, vec *state.DistanceVector) []byte {
	buf := bytes.Buffer{}
	buf.WriteString(string(sender))
	for _, dest := range vec.Destinations() {
		buf.WriteString(FieldSep)
		buf.WriteString(string(dest))
		buf.WriteString(PairSep)
		buf.WriteString(formatMetric(vec.Get(dest)))
	}
	return buf.Bytes()
}

// Decode parses a record into the sender's id and its distance vector. The sender's own
// entry is always 0 in the result, whatever the record claims.
func Decode(data []byte) (state.NodeId, *state.DistanceVector, error) {
	line := strings.TrimRight(string(data), "\r\n")
	sender, rest, ok := strings.Cut(line, FieldSep)
	if !ok || rest == "" {
		return "", nil, fmt.Errorf("%w: expected a sender and at least one entry", state.ErrMalformedMessage)
	}
	if !validId(sender) {
		return "", nil, fmt.Errorf("%w: invalid sender %q", state.ErrMalformedMessage, sender)
	}

	vec := state.NewDistanceVector(state.NodeId(sender))
	seen := make(map[string]bool)
	for _, field := range strings.Split(rest, FieldSep) {
		dest, dist, ok := strings.Cut(field, PairSep)
		if !ok || !validId(dest) {
			return "", nil, fmt.Errorf("%w: invalid entry %q", state.ErrMalformedMessage, field)
		}
		if seen[dest] {
			return "", nil, fmt.Errorf("%w: repeated destination %q", state.ErrMalformedMessage, dest)
		}
		seen[dest] = true
		m, err := parseMetric(dist)
		if err != nil {
			return "", nil, fmt.Errorf("%w: entry %q: %v", state.ErrMalformedMessage, field, err)
		}
		if state.NodeId(dest) == vec.Self() {
			continue
		}
		if err := vec.Set(state.NodeId(dest), m); err != nil {
			return "", nil, fmt.Errorf("%w: entry %q: %v", state.ErrMalformedMessage, field, err)
		}
	}
	return state.NodeId(sender), vec, nil
}

func validId(id string) bool {
	return id != "" && !strings.ContainsAny(id, FieldSep+PairSep+" \t\r\n")
}

func formatMetric(m state.Metric) string {
	if m.IsInf() {
		return InfToken
	}
	return strconv.FormatFloat(float64(m), 'f', -1, 64)
}

func parseMetric(s string) (state.Metric, error) {
	if strings.EqualFold(s, InfToken) {
		return state.INF, nil
	}
	// ParseFloat also accepts "NaN", "Infinity", exponents and hex floats
	if s == "" || strings.Trim(s, "0123456789.") != "" {
		return 0, fmt.Errorf("%q is not a decimal number", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a non-negative finite number", s)
	}
	return state.Metric(f), nil
}
