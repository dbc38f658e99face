// Package tokencount estimates request token counts for the Context usage
// field the Request Normalizer attaches to every parsed request.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "o200k_base"

var (
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
)

func encoder() (*tiktoken.Tiktoken, error) {
	once.Do(func() {
		enc, err = tiktoken.GetEncoding(encodingName)
	})
	return enc, err
}

// Estimate returns the token count of text using the o200k_base encoding,
// matching the tokenizer the target model family actually uses. Falls back
// to a length/4 heuristic if the encoder failed to load.
func Estimate(text string) int {
	e, loadErr := encoder()
	if loadErr != nil || e == nil {
		return len(text) / 4
	}
	return len(e.Encode(text, nil, nil))
}
