package session

import (
	"strconv"
	"strings"
)

// PrefixMode is a channel membership mode and the symbol shown before the
// nick, e.g. 'o' and '@'.
type PrefixMode struct {
	Mode   byte
	Symbol byte
}

// ISupport holds the RPL_ISUPPORT tokens the session interprets. Others are
// kept verbatim in Raw.
type ISupport struct {
	Network     string
	CaseMapping string
	ChanTypes   string
	// Prefix is ordered from highest to lowest rank.
	Prefix []PrefixMode
	// ChanModes are the A (list), B (always argument), C (argument when set)
	// and D (flag) groups.
	ChanModes [4]string
	NickLen   int
	Raw       map[string]string
}

func defaultISupport() ISupport {
	return ISupport{
		CaseMapping: CaseMappingRFC1459,
		ChanTypes:   "#&",
		Prefix:      []PrefixMode{{'o', '@'}, {'v', '+'}},
		ChanModes:   [4]string{"beI", "k", "l", "imnpst"},
		Raw:         map[string]string{},
	}
}

// apply handles one token such as "PREFIX=(ov)@+" or "-NETWORK".
func (is *ISupport) apply(token string) {
	if strings.HasPrefix(token, "-") {
		key := token[1:]
		delete(is.Raw, key)
		def := defaultISupport()
		switch key {
		case "NETWORK":
			is.Network = def.Network
		case "CASEMAPPING":
			is.CaseMapping = def.CaseMapping
		case "CHANTYPES":
			is.ChanTypes = def.ChanTypes
		case "PREFIX":
			is.Prefix = def.Prefix
		case "CHANMODES":
			is.ChanModes = def.ChanModes
		case "NICKLEN":
			is.NickLen = def.NickLen
		}
		return
	}

	key, value, _ := strings.Cut(token, "=")
	is.Raw[key] = value

	switch key {
	case "NETWORK":
		is.Network = value
	case "CASEMAPPING":
		if value != "" {
			is.CaseMapping = value
		}
	case "CHANTYPES":
		is.ChanTypes = value
	case "NICKLEN":
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			is.NickLen = n
		}
	case "CHANMODES":
		groups := strings.SplitN(value, ",", 4)
		var cm [4]string
		copy(cm[:], groups)
		is.ChanModes = cm
	case "PREFIX":
		is.Prefix = parsePrefix(value)
	}
}

// parsePrefix reads "(qaohv)~&@%+".
func parsePrefix(value string) []PrefixMode {
	if !strings.HasPrefix(value, "(") {
		return nil
	}
	modes, symbols, ok := strings.Cut(value[1:], ")")
	if !ok || len(modes) != len(symbols) {
		return nil
	}
	prefix := make([]PrefixMode, len(modes))
	for i := range modes {
		prefix[i] = PrefixMode{Mode: modes[i], Symbol: symbols[i]}
	}
	return prefix
}

func (is *ISupport) prefixRank(mode byte) int {
	for i, p := range is.Prefix {
		if p.Mode == mode {
			return i
		}
	}
	return -1
}

func (is *ISupport) modeForSymbol(symbol byte) (byte, bool) {
	for _, p := range is.Prefix {
		if p.Symbol == symbol {
			return p.Mode, true
		}
	}
	return 0, false
}

func (is *ISupport) symbolForMode(mode byte) byte {
	for _, p := range is.Prefix {
		if p.Mode == mode {
			return p.Symbol
		}
	}
	return 0
}

// modeTakesArg reports whether a channel mode letter consumes an argument
// in the given direction. Unknown letters are treated as flags.
func (is *ISupport) modeTakesArg(mode byte, adding bool) bool {
	if is.prefixRank(mode) >= 0 {
		return true
	}
	switch {
	case strings.IndexByte(is.ChanModes[0], mode) >= 0:
		return true
	case strings.IndexByte(is.ChanModes[1], mode) >= 0:
		return true
	case strings.IndexByte(is.ChanModes[2], mode) >= 0:
		return adding
	default:
		return false
	}
}

func (is *ISupport) isListMode(mode byte) bool {
	return strings.IndexByte(is.ChanModes[0], mode) >= 0
}
