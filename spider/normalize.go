package spider

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	PhoneField = "phone"
	// PhoneE164Field holds the phone number in E.164 form when it parses as
	// a valid international number.
	PhoneE164Field = "phone_e164"
)

// fieldAliases lists, per canonical field, the alternative names targets
// use for it. The first non-blank alias fills a blank canonical field.
var fieldAliases = []struct {
	canonical string
	aliases   []string
}{
	{"email", []string{"email_address"}},
	{PhoneField, []string{"phone_number", "phonenumber"}},
	{"company", []string{"organization"}},
	{"organizer_name", []string{"organizer"}},
	{"website", []string{"website_url", "url", "site"}},
	{"event_name", []string{"event_text", "date_text", "event_description", "description"}},
}

// Canonicalize adds canonical fields filled from their aliases and the E.164
// form of the phone number. Existing non-blank values are never replaced and
// alias keys are kept.
func Canonicalize(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	for _, a := range fieldAliases {
		if strings.TrimSpace(out[a.canonical]) != "" {
			continue
		}
		for _, alias := range a.aliases {
			if v := strings.TrimSpace(fields[alias]); v != "" {
				out[a.canonical] = v
				break
			}
		}
	}
	if strings.TrimSpace(out[PhoneE164Field]) == "" {
		if e164 := NormalizePhone(out[PhoneField]); e164 != "" {
			out[PhoneE164Field] = e164
		}
	}
	return out
}

// NormalizePhone returns raw in E.164 form, or "" when it is not a valid
// number. Numbers without a country code are not guessed.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := phonenumbers.Parse(raw, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
