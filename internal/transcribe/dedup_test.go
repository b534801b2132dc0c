package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		prev string
		next string
		want string
	}{
		{
			name: "no overlap emits verbatim",
			prev: "the quick brown fox",
			next: "jumped over the dog",
			want: "jumped over the dog",
		},
		{
			name: "full containment merges to empty",
			prev: "and that is the end",
			next: "the end",
			want: "",
		},
		{
			name: "partial overlap stripped",
			prev: "we were talking about the ring",
			next: "the ring buffer design",
			want: " buffer design",
		},
		{
			name: "identical strings merge to empty",
			prev: "hello world",
			next: "hello world",
			want: "",
		},
		{
			name: "case sensitive",
			prev: "Hello World",
			next: "world peace",
			want: "world peace",
		},
		{
			name: "whitespace preserved",
			prev: "ends with space ",
			next: " space remains",
			want: "remains",
		},
		{
			name: "empty previous",
			prev: "",
			next: "first transcript",
			want: "first transcript",
		},
		{
			name: "empty next",
			prev: "something",
			next: "",
			want: "",
		},
		{
			name: "single char overlap",
			prev: "ab",
			next: "bc",
			want: "c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.prev, tt.next))
		})
	}
}

func TestMergeIdempotence(t *testing.T) {
	// prev ending with X and next equal to X must merge to empty.
	prev := "some long transcript tail X marks the spot"
	next := "X marks the spot"
	assert.Equal(t, "", Merge(prev, next))
}

func TestOverlapPicksLongest(t *testing.T) {
	// "aba" suffix vs prefix: longest is "aba", not "a".
	assert.Equal(t, 3, Overlap("xxaba", "abayy"))
	assert.Equal(t, 0, Overlap("abc", "def"))
}
