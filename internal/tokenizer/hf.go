package tokenizer

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// gpt2Split is the GPT-2 pre-tokenizer regex with the `\s+(?!\S)`
// alternative removed; RE2 has no lookahead, so BPE.pretokenize reproduces
// that branch by hand.
const gpt2Split = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`

const lookaheadBranch = `\s+(?!\S)|`

type hfFile struct {
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
	PreTokenizer  *hfPreTokenizer  `json:"pre_tokenizer"`
	PostProcessor *hfPostProcessor `json:"post_processor"`
	Model         struct {
		Type         string         `json:"type"`
		Vocab        map[string]int `json:"vocab"`
		Merges       []any          `json:"merges"`
		UnkToken     string         `json:"unk_token"`
		IgnoreMerges bool           `json:"ignore_merges"`
	} `json:"model"`
}

type hfPreTokenizer struct {
	Type    string `json:"type"`
	Pattern struct {
		Regex string `json:"Regex"`
	} `json:"pattern"`
	UseRegex      *bool            `json:"use_regex"`
	Pretokenizers []hfPreTokenizer `json:"pretokenizers"`
}

type hfPostProcessor struct {
	Type   string `json:"type"`
	Single []struct {
		SpecialToken *struct {
			ID string `json:"id"`
		} `json:"SpecialToken"`
		Sequence *struct {
			ID string `json:"id"`
		} `json:"Sequence"`
	} `json:"single"`
	SpecialTokens map[string]struct {
		IDs []int `json:"ids"`
	} `json:"special_tokens"`
	Processors []hfPostProcessor `json:"processors"`
}

type addedToken struct {
	content string
	special bool
}

// BPE is a byte-level BPE tokenizer loaded from a Hugging Face
// tokenizer.json. It is safe for concurrent use.
type BPE struct {
	vocab   map[string]int
	tokens  []string
	added   map[int]addedToken
	addedBy map[string]int
	splitOn []string
	ranks   map[mergePair]int

	byteEnc [256]rune
	byteDec map[rune]byte

	pattern       *regexp.Regexp
	trailingSpace bool
	ignoreMerges  bool
	unkID         int

	prefix []int
	suffix []int

	mu    sync.Mutex
	cache map[string][]int
}

// Load reads and parses a tokenizer.json file.
func Load(path string) (*BPE, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tok, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tok, nil
}

// Parse builds a tokenizer from tokenizer.json contents.
func Parse(data []byte) (*BPE, error) {
	var f hfFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tokenizer json: %w", err)
	}
	if !strings.EqualFold(f.Model.Type, "BPE") {
		return nil, fmt.Errorf("%w: model type %q", ErrUnsupported, f.Model.Type)
	}
	if len(f.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer json: empty vocabulary")
	}

	t := &BPE{
		vocab:        make(map[string]int, len(f.Model.Vocab)),
		added:        make(map[int]addedToken, len(f.AddedTokens)),
		addedBy:      make(map[string]int, len(f.AddedTokens)),
		ranks:        make(map[mergePair]int, len(f.Model.Merges)),
		ignoreMerges: f.Model.IgnoreMerges,
		unkID:        -1,
		cache:        make(map[string][]int),
	}
	t.byteEnc, t.byteDec = byteLevelTables()

	size := 0
	for tok, id := range f.Model.Vocab {
		if id < 0 {
			return nil, fmt.Errorf("tokenizer json: negative id %d for %q", id, tok)
		}
		t.vocab[tok] = id
		size = max(size, id+1)
	}
	for _, at := range f.AddedTokens {
		if at.ID < 0 || at.Content == "" {
			return nil, fmt.Errorf("tokenizer json: invalid added token %d %q", at.ID, at.Content)
		}
		t.added[at.ID] = addedToken{content: at.Content, special: at.Special}
		t.addedBy[at.Content] = at.ID
		t.splitOn = append(t.splitOn, at.Content)
		size = max(size, at.ID+1)
	}
	t.splitOn = longestFirst(t.splitOn)
	t.tokens = make([]string, size)
	for tok, id := range t.vocab {
		t.tokens[id] = tok
	}
	for id, at := range t.added {
		t.tokens[id] = at.content
	}
	if f.Model.UnkToken != "" {
		if id, ok := t.TokenID(f.Model.UnkToken); ok {
			t.unkID = id
		}
	}

	rank := 0
	for _, raw := range f.Model.Merges {
		var left, right string
		switch v := raw.(type) {
		case string:
			l, r, ok := strings.Cut(strings.TrimSpace(v), " ")
			if !ok || strings.HasPrefix(v, "#") {
				continue
			}
			left, right = l, r
		case []any:
			if len(v) != 2 {
				continue
			}
			l, lok := v[0].(string)
			r, rok := v[1].(string)
			if !lok || !rok {
				continue
			}
			left, right = l, r
		default:
			continue
		}
		p := mergePair{left, right}
		if _, ok := t.ranks[p]; !ok {
			t.ranks[p] = rank
			rank++
		}
	}

	pat, err := splitPattern(f.PreTokenizer)
	if err != nil {
		return nil, err
	}
	if strings.Contains(pat, lookaheadBranch) {
		pat = strings.Replace(pat, lookaheadBranch, "", 1)
		t.trailingSpace = true
	}
	if pat == gpt2Split {
		t.trailingSpace = true
	}
	t.pattern, err = regexp.Compile(pat)
	if err != nil {
		return nil, fmt.Errorf("%w: pre-tokenizer regex: %v", ErrUnsupported, err)
	}

	if f.PostProcessor != nil {
		t.prefix, t.suffix = templateIDs(f.PostProcessor)
	}
	return t, nil
}

func splitPattern(pre *hfPreTokenizer) (string, error) {
	if pre == nil {
		return gpt2Split, nil
	}
	switch pre.Type {
	case "ByteLevel":
		if pre.UseRegex != nil && !*pre.UseRegex {
			return `(?s).+`, nil
		}
		return gpt2Split, nil
	case "Split":
		if pre.Pattern.Regex == "" {
			return "", fmt.Errorf("%w: split pre-tokenizer without regex", ErrUnsupported)
		}
		return pre.Pattern.Regex, nil
	case "Sequence":
		for i := range pre.Pretokenizers {
			p := &pre.Pretokenizers[i]
			if p.Type == "Split" || (p.Type == "ByteLevel" && (p.UseRegex == nil || *p.UseRegex)) {
				return splitPattern(p)
			}
		}
		return `(?s).+`, nil
	default:
		return "", fmt.Errorf("%w: pre-tokenizer %q", ErrUnsupported, pre.Type)
	}
}

// templateIDs extracts the special ids a TemplateProcessing post-processor
// places before and after a single sequence.
func templateIDs(pp *hfPostProcessor) (prefix, suffix []int) {
	switch pp.Type {
	case "TemplateProcessing":
		seen := false
		for _, piece := range pp.Single {
			switch {
			case piece.Sequence != nil:
				seen = true
			case piece.SpecialToken != nil:
				ids := pp.SpecialTokens[piece.SpecialToken.ID].IDs
				if seen {
					suffix = append(suffix, ids...)
				} else {
					prefix = append(prefix, ids...)
				}
			}
		}
	case "Sequence":
		for i := range pp.Processors {
			p, s := templateIDs(&pp.Processors[i])
			prefix = append(prefix, p...)
			suffix = append(suffix, s...)
		}
	}
	return prefix, suffix
}

func (t *BPE) VocabSize() int { return len(t.tokens) }

func (t *BPE) TokenID(token string) (int, bool) {
	if id, ok := t.addedBy[token]; ok {
		return id, true
	}
	id, ok := t.vocab[token]
	return id, ok
}

// IsSpecial reports whether id is an added token flagged as special.
func (t *BPE) IsSpecial(id int) bool {
	return t.added[id].special
}

func (t *BPE) Encode(text string, addSpecial bool) ([]int, error) {
	var ids []int
	if addSpecial {
		ids = append(ids, t.prefix...)
	}
	for _, seg := range splitSpecial(text, t.splitOn) {
		if seg.special {
			ids = append(ids, t.addedBy[seg.text])
			continue
		}
		for _, piece := range t.pretokenize(seg.text) {
			pieceIDs, err := t.encodePiece(piece)
			if err != nil {
				return nil, err
			}
			ids = append(ids, pieceIDs...)
		}
	}
	if addSpecial {
		ids = append(ids, t.suffix...)
	}
	return ids, nil
}

func (t *BPE) Decode(ids []int, skipSpecial bool) (string, error) {
	var buf []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.tokens) {
			return "", fmt.Errorf("%w: %d (vocab %d)", ErrTokenRange, id, len(t.tokens))
		}
		if at, ok := t.added[id]; ok {
			if at.special && skipSpecial {
				continue
			}
			buf = append(buf, at.content...)
			continue
		}
		for _, r := range t.tokens[id] {
			if b, ok := t.byteDec[r]; ok {
				buf = append(buf, b)
			} else {
				buf = utf8.AppendRune(buf, r)
			}
		}
	}
	// A single byte-level token can hold part of a multi-byte character;
	// those bytes decode to U+FFFD so every fragment is valid text.
	return strings.ToValidUTF8(string(buf), "\uFFFD"), nil
}

// pretokenize splits s with the pre-tokenizer regex. With trailingSpace set
// a whitespace run that precedes a non-space character gives up its last
// rune so the following word keeps its leading space.
func (t *BPE) pretokenize(s string) []string {
	var out []string
	for len(s) > 0 {
		loc := t.pattern.FindStringIndex(s)
		if loc == nil {
			break
		}
		start, end := loc[0], loc[1]
		if end == start {
			_, size := utf8.DecodeRuneInString(s[start:])
			s = s[start+size:]
			continue
		}
		if t.trailingSpace && end < len(s) {
			piece := s[start:end]
			next, _ := utf8.DecodeRuneInString(s[end:])
			if !unicode.IsSpace(next) && strings.TrimSpace(piece) == "" {
				if _, size := utf8.DecodeLastRuneInString(piece); size < len(piece) {
					end -= size
				}
			}
		}
		out = append(out, s[start:end])
		s = s[end:]
	}
	return out
}

func (t *BPE) encodePiece(piece string) ([]int, error) {
	t.mu.Lock()
	cached, ok := t.cache[piece]
	t.mu.Unlock()
	if ok {
		return cached, nil
	}

	var b strings.Builder
	for i := 0; i < len(piece); i++ {
		b.WriteRune(t.byteEnc[piece[i]])
	}
	encoded := b.String()

	var word []string
	if _, ok := t.vocab[encoded]; ok && t.ignoreMerges {
		word = []string{encoded}
	} else {
		word = symbols(encoded)
		for len(word) > 1 {
			p, ok := bestMerge(word, t.ranks)
			if !ok {
				break
			}
			word = applyMerge(word, p)
		}
	}

	ids := make([]int, 0, len(word))
	for _, w := range word {
		id, ok := t.vocab[w]
		if !ok {
			if t.unkID < 0 {
				return nil, fmt.Errorf("%w: %q", ErrUnknownToken, w)
			}
			id = t.unkID
		}
		ids = append(ids, id)
	}

	t.mu.Lock()
	t.cache[piece] = ids
	t.mu.Unlock()
	return ids, nil
}
