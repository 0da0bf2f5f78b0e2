package helper

import (
	"fmt"
	"regexp"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// defaultCountryCode is the country code prepended to local-format numbers.
// Configurable because sales teams operate per market; set once at startup
// from config.
var defaultCountryCode = "62"

// SetDefaultCountryCode overrides the prefix used for local-format numbers.
// Called from main with the configured value; empty input is ignored.
func SetDefaultCountryCode(code string) {
	if code != "" {
		defaultCountryCode = code
	}
}

// FormatPhoneNumber converts a dialable phone number into a messaging JID.
// Accepts digits plus common separators; local-format numbers (leading zero)
// get the configured country prefix.
func FormatPhoneNumber(phone string) (types.JID, error) {
	validFormat := regexp.MustCompile(`^[\d\s\+\-\(\)]+$`)
	if !validFormat.MatchString(phone) {
		return types.JID{}, fmt.Errorf("invalid phone number format: contains invalid characters")
	}

	cleaned := regexp.MustCompile(`[^\d]`).ReplaceAllString(phone, "")

	if len(cleaned) < 8 {
		return types.JID{}, fmt.Errorf("phone number too short")
	}

	// Local format: 0xxxxxxxx -> <prefix>xxxxxxxx
	if strings.HasPrefix(cleaned, "0") {
		cleaned = defaultCountryCode + cleaned[1:]
	}

	if len(cleaned) > 15 {
		return types.JID{}, fmt.Errorf("invalid phone number length")
	}

	return types.JID{
		User:   cleaned,
		Server: types.DefaultUserServer,
	}, nil
}

// ExtractPhoneFromJID pulls the bare number out of a full device JID,
// e.g. "15551234567:43@s.whatsapp.net" -> "15551234567".
func ExtractPhoneFromJID(jid string) string {
	atSplit := strings.SplitN(jid, "@", 2)
	if len(atSplit) == 0 {
		return jid
	}
	beforeAt := atSplit[0]
	colonSplit := strings.SplitN(beforeAt, ":", 2)
	return colonSplit[0]
}
