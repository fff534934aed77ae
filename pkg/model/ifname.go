package model

import (
	"strings"
	"unicode"
)

// Canonical two-letter interface prefixes.
const (
	PrefixGigabitEthernet    = "Gi"
	PrefixTenGigabitEthernet = "Te"
	PrefixFastEthernet       = "Fa"
	PrefixPortChannel        = "Po"
)

// longPrefixes maps the lowercase long form of each known interface type to
// its canonical short prefix. Any abbreviation of a long form that is at
// least as long as the short prefix is accepted ("gi", "gig", "giga", ...).
var longPrefixes = []struct {
	long  string
	short string
}{
	{"gigabitethernet", PrefixGigabitEthernet},
	{"tengigabitethernet", PrefixTenGigabitEthernet},
	{"fastethernet", PrefixFastEthernet},
	{"port-channel", PrefixPortChannel},
}

// NormalizeInterfaceName converts an interface name to its canonical short
// form: "GigabitEthernet1/0/1", "gi 1/0/1" and "Gi1/0/1" all become
// "Gi1/0/1". Names with an unrecognized type prefix are returned lowercased
// with whitespace removed. Normalizing a canonical name returns it unchanged.
func NormalizeInterfaceName(name string) string {
	name = strings.ToLower(strings.Join(strings.Fields(name), ""))

	idx := strings.IndexFunc(name, unicode.IsDigit)
	if idx <= 0 {
		return name
	}
	prefix, rest := name[:idx], name[idx:]

	for _, p := range longPrefixes {
		if len(prefix) >= len(p.short) && strings.HasPrefix(p.long, prefix) {
			return p.short + rest
		}
	}
	return name
}

// IsPortChannelName reports whether a canonical interface name refers to a
// port-channel (aggregate) interface.
func IsPortChannelName(name string) bool {
	return strings.HasPrefix(name, PrefixPortChannel)
}
