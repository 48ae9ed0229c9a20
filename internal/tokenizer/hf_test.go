package tokenizer

import (
	"errors"
	"slices"
	"testing"

	"github.com/goccy/go-json"
)

const eot = "<|endoftext|>"

// testTokenizerJSON builds a GPT-2 style tokenizer.json whose base vocabulary
// is the 256 byte symbols (id == byte value) plus a few merges.
func testTokenizerJSON(t *testing.T, post any) []byte {
	t.Helper()
	enc, _ := byteLevelTables()
	vocab := make(map[string]int, 300)
	for b := range 256 {
		vocab[string(enc[b])] = b
	}
	merged := []string{"he", "hel", "hell", "hello", "Ġw"}
	for i, m := range merged {
		vocab[m] = 256 + i
	}
	doc := map[string]any{
		"added_tokens": []map[string]any{
			{"id": 261, "content": eot, "special": true},
		},
		"pre_tokenizer": map[string]any{"type": "ByteLevel", "add_prefix_space": false},
		"model": map[string]any{
			"type":   "BPE",
			"vocab":  vocab,
			"merges": []any{"h e", []string{"he", "l"}, "hel l", "hell o", "Ġ w"},
		},
	}
	if post != nil {
		doc["post_processor"] = post
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func newTestTokenizer(t *testing.T) *BPE {
	t.Helper()
	tok, err := Parse(testTokenizerJSON(t, nil))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tok
}

func TestEncodeAppliesMerges(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer(t)
	ids, err := tok.Encode("hello w", false)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{259, 260}; !slices.Equal(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestPretokenizeTrailingWhitespace(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer(t)
	tests := []struct {
		in   string
		want []string
	}{
		{"\n\nQuestion: hi", []string{"\n", "\n", "Question", ":", " hi"}},
		{"a  b", []string{"a", " ", " b"}},
		{"end  ", []string{"end", "  "}},
		{"it's 42!", []string{"it", "'s", " 42", "!"}},
	}
	for _, tt := range tests {
		got := tok.pretokenize(tt.in)
		if !slices.Equal(got, tt.want) {
			t.Fatalf("pretokenize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer(t)
	for _, text := range []string{
		"\n\nQuestion: Describe this image.\n\nAnswer:",
		"hello world, héllo wörld ✓",
		"   ",
		"",
	} {
		ids, err := tok.Encode(text, true)
		if err != nil {
			t.Fatalf("encode %q: %v", text, err)
		}
		got, err := tok.Decode(ids, true)
		if err != nil {
			t.Fatal(err)
		}
		if got != text {
			t.Fatalf("round trip %q -> %v -> %q", text, ids, got)
		}
	}
}

func TestVocabEntryRoundTrip(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer(t)
	for id := 256; id <= 260; id++ {
		text, err := tok.Decode([]int{id}, true)
		if err != nil {
			t.Fatal(err)
		}
		ids, err := tok.Encode(text, false)
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(ids, []int{id}) {
			t.Fatalf("id %d decoded to %q which encodes to %v", id, text, ids)
		}
	}
}

func TestSpecialTokens(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer(t)
	id, ok := tok.TokenID(eot)
	if !ok || id != 261 {
		t.Fatalf("TokenID(%q) = %d, %v", eot, id, ok)
	}
	if !tok.IsSpecial(id) {
		t.Fatal("expected special")
	}
	ids, err := tok.Encode("hello"+eot, false)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{259, 261}; !slices.Equal(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	skipped, _ := tok.Decode(ids, true)
	kept, _ := tok.Decode(ids, false)
	if skipped != "hello" || kept != "hello"+eot {
		t.Fatalf("skip=%q keep=%q", skipped, kept)
	}
	if tok.VocabSize() != 262 {
		t.Fatalf("VocabSize = %d", tok.VocabSize())
	}
}

func TestTemplateProcessing(t *testing.T) {
	t.Parallel()
	post := map[string]any{
		"type": "TemplateProcessing",
		"single": []any{
			map[string]any{"SpecialToken": map[string]any{"id": eot, "type_id": 0}},
			map[string]any{"Sequence": map[string]any{"id": "A", "type_id": 0}},
		},
		"special_tokens": map[string]any{
			eot: map[string]any{"id": eot, "ids": []int{261}, "tokens": []string{eot}},
		},
	}
	tok, err := Parse(testTokenizerJSON(t, post))
	if err != nil {
		t.Fatal(err)
	}
	with, _ := tok.Encode("hello", true)
	without, _ := tok.Encode("hello", false)
	if !slices.Equal(with, []int{261, 259}) || !slices.Equal(without, []int{259}) {
		t.Fatalf("with=%v without=%v", with, without)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	if _, err := Parse([]byte(`{"model":{"type":"WordPiece","vocab":{"a":0}}}`)); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := Parse([]byte(`{"model":`)); err == nil {
		t.Fatal("expected error for malformed json")
	}
	if _, err := Parse([]byte(`{"model":{"type":"BPE","vocab":{}}}`)); err == nil {
		t.Fatal("expected error for empty vocab")
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer(t)
	if _, err := tok.Decode([]int{9999}, true); !errors.Is(err, ErrTokenRange) {
		t.Fatalf("expected ErrTokenRange, got %v", err)
	}
}

func TestByteLevelJSON(t *testing.T) {
	t.Parallel()
	raw, err := ByteLevelJSON(eot)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if tok.VocabSize() != 257 {
		t.Fatalf("VocabSize = %d", tok.VocabSize())
	}
	if id, ok := tok.TokenID(eot); !ok || id != 256 {
		t.Fatalf("TokenID = %d, %v", id, ok)
	}
	ids, err := tok.Encode("hi!", true)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{'h', 'i', '!'}; !slices.Equal(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestDecodePartialRune(t *testing.T) {
	t.Parallel()
	raw, err := ByteLevelJSON(eot)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	check := "✓" // e2 9c 93
	for i := range len(check) {
		got, err := tok.Decode([]int{int(check[i])}, true)
		if err != nil {
			t.Fatal(err)
		}
		if got != "�" {
			t.Fatalf("byte %#x decoded to %q, want U+FFFD", check[i], got)
		}
	}
	whole, err := tok.Decode([]int{0xe2, 0x9c, 0x93}, true)
	if err != nil {
		t.Fatal(err)
	}
	if whole != check {
		t.Fatalf("full sequence decoded to %q", whole)
	}
}
