// Package runconfig parses IOS-style running configuration text into
// canonical interface descriptors.
//
// Parsing is permissive: a block that is not an interface block is ignored,
// and an interface block whose VLAN list cannot be expanded is reported in
// Config.Errors and left out of Config.Interfaces. Parse never fails as a
// whole.
package runconfig

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/swsync-network/swsync/pkg/model"
	"github.com/swsync-network/swsync/pkg/util"
)

// BlockDelimiter separates configuration blocks.
const BlockDelimiter = "!"

var (
	declRegexp         = regexp.MustCompile(`(?i)^interface\s+(.+)$`)
	shutdownRegexp     = regexp.MustCompile(`^shutdown\b`)
	descriptionRegexp  = regexp.MustCompile(`^description (.*)`)
	voiceVLANRegexp    = regexp.MustCompile(`^switchport voice vlan (\d+)`)
	channelGroupRegexp = regexp.MustCompile(`^channel-group (\d+) mode`)
	nativeVLANRegexp   = regexp.MustCompile(`^switchport trunk native vlan (\d+)`)
	accessVLANRegexp   = regexp.MustCompile(`^switchport access vlan (\d+)`)
	allowedVLANRegexp  = regexp.MustCompile(`^switchport trunk allowed vlan\s*(.*)$`)
)

// Config is the result of parsing one running configuration.
type Config struct {
	Interfaces map[string]*model.ParsedInterface
	Errors     []*BlockError
}

// BlockError reports an interface block that could not be parsed.
type BlockError struct {
	Interface string
	Line      string
	Err       error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("interface %s: %q: %v", e.Interface, e.Line, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// Names returns the parsed interface names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Interfaces))
	for name := range c.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the descriptor for an interface name in any spelling.
func (c *Config) Get(name string) (*model.ParsedInterface, bool) {
	p, ok := c.Interfaces[model.NormalizeInterfaceName(name)]
	return p, ok
}

// Parse parses running configuration text.
func Parse(text string) *Config {
	cfg := &Config{Interfaces: make(map[string]*model.ParsedInterface)}

	for _, block := range splitBlocks(text) {
		iface, err := parseBlock(block)
		if err != nil {
			cfg.Errors = append(cfg.Errors, err)
			continue
		}
		if iface != nil {
			cfg.Interfaces[iface.Name] = iface
		}
	}
	return cfg
}

// splitBlocks returns the trimmed, non-blank lines of each block. Blocks end
// at delimiter lines and blank lines. Any unindented line starts a new block,
// so global statements that follow an interface without a delimiter are never
// read as part of it.
func splitBlocks(text string) [][]string {
	var blocks [][]string
	var current []string

	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, current)
		}
		current = nil
	}

	for _, raw := range util.SplitLines(text) {
		line := strings.TrimSpace(raw)
		switch {
		case line == BlockDelimiter:
			flush()
		case line == "":
			flush()
		default:
			if raw[0] != ' ' && raw[0] != '\t' {
				flush()
			}
			current = append(current, line)
		}
	}
	flush()
	return blocks
}

// parseBlock returns nil, nil for a block that is not an interface block.
func parseBlock(lines []string) (*model.ParsedInterface, *BlockError) {
	m := declRegexp.FindStringSubmatch(lines[0])
	if m == nil {
		return nil, nil
	}
	name := model.NormalizeInterfaceName(m[1])
	if name == "" {
		return nil, nil
	}

	b := block(lines[1:])
	iface := model.NewParsedInterface(name)

	if b.has(shutdownRegexp) {
		iface.Enabled = false
	}
	if desc, ok := b.capture(descriptionRegexp); ok {
		desc = strings.TrimSpace(desc)
		iface.Description = &desc
	}
	iface.VoiceVLAN = b.captureInt(voiceVLANRegexp)
	iface.ChannelGroup = b.captureInt(channelGroupRegexp)

	iface.Mode = determineMode(b)

	switch iface.Mode {
	case model.ModeTrunk:
		iface.NativeVLAN = b.captureInt(nativeVLANRegexp)
		allowed, err := parseAllowedVLANs(b)
		if err != nil {
			err.Interface = name
			return nil, err
		}
		iface.AllowedVLANs = allowed
	case model.ModeAccess:
		iface.AccessVLAN = b.captureInt(accessVLANRegexp)
	}

	return iface, nil
}

// block is the immutable line sequence of one interface block, without the
// declaration line.
type block []string

func (b block) has(re *regexp.Regexp) bool {
	for _, line := range b {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func (b block) hasLine(want string) bool {
	for _, line := range b {
		if line == want {
			return true
		}
	}
	return false
}

func (b block) contains(substr string) bool {
	for _, line := range b {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func (b block) capture(re *regexp.Regexp) (string, bool) {
	for _, line := range b {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func (b block) captureInt(re *regexp.Regexp) *int {
	s, ok := b.capture(re)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func (b block) captureAll(re *regexp.Regexp) []string {
	var out []string
	for _, line := range b {
		if m := re.FindStringSubmatch(line); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}
