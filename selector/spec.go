package selector

import (
	"bytes"
	"encoding/json"
)

// Spec is the persisted form of a field rule. It decodes from either a
// plain selector string or an object with selector, attr, regex and default.
type Spec struct {
	Selector string `json:"selector" validate:"required"`
	Attr     string `json:"attr,omitempty"`
	Regex    string `json:"regex,omitempty"`
	Default  string `json:"default,omitempty"`
}

func (s *Spec) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		*s = Spec{}
		return json.Unmarshal(b, &s.Selector)
	}

	type plain Spec
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = Spec(p)

	return nil
}

func (s Spec) MarshalJSON() ([]byte, error) {
	if s.Attr == "" && s.Regex == "" && s.Default == "" {
		return json.Marshal(s.Selector)
	}

	type plain Spec
	return json.Marshal(plain(s))
}
