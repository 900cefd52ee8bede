package risk

import (
	"strings"

	"github.com/tidwall/gjson"
)

// flagKeys lists the accepted spellings of each flag in analyzer replies.
var flagKeys = []struct {
	names []string
	set   func(*Flags, bool)
}{
	{[]string{"openEdges", "open_edges"}, func(f *Flags, v bool) { f.OpenEdges = v }},
	{[]string{"heavyEquipmentNearPeople", "heavy_equipment_near_people"}, func(f *Flags, v bool) { f.HeavyEquipmentNearPeople = v }},
	{[]string{"thirdPartyVisible", "third_party_visible"}, func(f *Flags, v bool) { f.ThirdPartyVisible = v }},
	{[]string{"safetyBarrierMissing", "safety_barrier_missing"}, func(f *Flags, v bool) { f.SafetyBarrierMissing = v }},
	{[]string{"heightDifferenceDetected", "height_difference_detected"}, func(f *Flags, v bool) { f.HeightDifferenceDetected = v }},
}

// ParseFlags extracts hazard flags from a free-form analyzer reply. The reply
// may wrap the JSON object in prose or a code fence, and may nest the flags
// under "details" or "flags". Missing or unrecognised values read as false.
// A reply with no JSON object at all is ErrAnalysisUnavailable.
func ParseFlags(content string) (Flags, error) {
	obj, ok := extractObject(content)
	if !ok {
		return Flags{}, ErrAnalysisUnavailable
	}
	root := gjson.Parse(obj)
	for _, nested := range []string{"details", "flags"} {
		if sub := root.Get(nested); sub.IsObject() {
			root = sub
			break
		}
	}

	var flags Flags
	for _, key := range flagKeys {
		for _, name := range key.names {
			if v := root.Get(name); v.Exists() {
				key.set(&flags, truthy(v))
				break
			}
		}
	}
	return flags, nil
}

// extractObject returns the first balanced {...} span of s that is a valid
// JSON object. Braces in the surrounding prose are skipped over.
func extractObject(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end, ok := balancedEnd(s, i)
		if !ok {
			continue
		}
		if obj := s[i : end+1]; gjson.Valid(obj) {
			return obj, true
		}
	}
	return "", false
}

// balancedEnd returns the index of the brace closing the one at start,
// ignoring braces inside JSON strings.
func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "yes", "1", "はい", "あり":
			return true
		}
	case gjson.Number:
		return v.Num != 0
	}
	return false
}
