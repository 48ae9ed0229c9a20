package tokenizer

import (
	"slices"
	"strings"
)

type mergePair struct {
	left, right string
}

type segment struct {
	text    string
	special bool
}

func symbols(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// bestMerge returns the adjacent pair with the lowest merge rank.
func bestMerge(word []string, ranks map[mergePair]int) (mergePair, bool) {
	best := mergePair{}
	bestRank := -1
	for i := 0; i+1 < len(word); i++ {
		p := mergePair{word[i], word[i+1]}
		if r, ok := ranks[p]; ok && (bestRank < 0 || r < bestRank) {
			best, bestRank = p, r
		}
	}
	return best, bestRank >= 0
}

func applyMerge(word []string, p mergePair) []string {
	out := word[:0:0]
	for i := 0; i < len(word); i++ {
		if i+1 < len(word) && word[i] == p.left && word[i+1] == p.right {
			out = append(out, p.left+p.right)
			i++
			continue
		}
		out = append(out, word[i])
	}
	return out
}

// splitSpecial cuts text around any occurrence of an added special token.
// specials must be sorted longest first so overlapping tokens match greedily.
func splitSpecial(text string, specials []string) []segment {
	if len(specials) == 0 {
		return []segment{{text: text}}
	}
	var out []segment
	start := 0
	for i := 0; i < len(text); {
		match := ""
		for _, sp := range specials {
			if strings.HasPrefix(text[i:], sp) {
				match = sp
				break
			}
		}
		if match == "" {
			i++
			continue
		}
		if start < i {
			out = append(out, segment{text: text[start:i]})
		}
		out = append(out, segment{text: match, special: true})
		i += len(match)
		start = i
	}
	if start < len(text) {
		out = append(out, segment{text: text[start:]})
	}
	return out
}

func longestFirst(tokens []string) []string {
	out := slices.Clone(tokens)
	slices.SortStableFunc(out, func(a, b string) int { return len(b) - len(a) })
	return out
}

// byteLevelTables builds the GPT-2 reversible byte to rune mapping: printable
// latin-1 bytes map to themselves, every other byte is shifted above U+0100.
func byteLevelTables() ([256]rune, map[rune]byte) {
	var enc [256]rune
	dec := make(map[rune]byte, 256)
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	shift := 0
	for b := range 256 {
		r := rune(b)
		if !printable(b) {
			r = rune(256 + shift)
			shift++
		}
		enc[b] = r
		dec[r] = byte(b)
	}
	return enc, dec
}
