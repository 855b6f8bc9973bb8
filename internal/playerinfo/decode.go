// Package playerinfo converts raw console replies for the playerinfo
// command into a structured snapshot. Decoding is pure: malformed or
// partial input degrades to unset fields, never to an error.
package playerinfo

import (
	"regexp"
	"strconv"
	"strings"
)

// Position is a decoded world coordinate triple.
type Position struct {
	X, Y, Z float64
}

// Snapshot is the fixed-shape decoding of one playerinfo reply. String
// fields are empty when the reply omitted them; Pos is nil until a location
// field parses. Species codes keep their original case — they are compared
// case-sensitively downstream. Growth stays a string; use GrowthValue for
// threshold checks.
type Snapshot struct {
	Name      string
	AccountID string
	Species   string
	Growth    string
	Role      string
	Marks     string
	Pos       *Position
}

// GrowthValue parses the growth field as a fraction, treating unset or
// unparseable input as 0.
func (s Snapshot) GrowthValue() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s.Growth), 64)
	if err != nil {
		return 0
	}
	return v
}

var (
	prefixRE   = regexp.MustCompile(`^\(playerinfo\s+[^)]*\):\s*`)
	locationRE = regexp.MustCompile(`X=(-?[0-9.]+)\s*Y=(-?[0-9.]+)\s*Z=(-?[0-9.]+)`)
)

// Decode parses a raw playerinfo reply. Fields arrive " / " separated as
// "key: value" pairs; keys match case-insensitively.
func Decode(raw string) Snapshot {
	var snap Snapshot
	raw = prefixRE.ReplaceAllString(strings.TrimSpace(raw), "")
	for _, field := range strings.Split(raw, " / ") {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "name":
			snap.Name = value
		case "agid":
			snap.AccountID = value
		case "dinosaur":
			snap.Species = value
		case "growth":
			snap.Growth = value
		case "role":
			snap.Role = value
		case "marks":
			snap.Marks = value
		case "location":
			if m := locationRE.FindStringSubmatch(value); m != nil {
				x, errX := strconv.ParseFloat(m[1], 64)
				y, errY := strconv.ParseFloat(m[2], 64)
				z, errZ := strconv.ParseFloat(m[3], 64)
				if errX == nil && errY == nil && errZ == nil {
					snap.Pos = &Position{X: x, Y: y, Z: z}
				}
			}
		}
	}
	return snap
}
