package profile

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

// CountTokens approximates how much of the model's instruction budget text uses.
func CountTokens(text string) (int, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if codecErr != nil {
		return 0, errors.Wrap(codecErr, "load tokenizer")
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, errors.Wrap(err, "count tokens")
	}
	return len(ids), nil
}

// ErrInstructionsTooLong is returned by CheckBudget.
var ErrInstructionsTooLong = errors.New("instructions exceed token budget")

// CheckBudget counts the tokens of text and fails when limit > 0 and the count is above it.
func CheckBudget(text string, limit int) (int, error) {
	n, err := CountTokens(text)
	if err != nil {
		return 0, err
	}
	if limit > 0 && n > limit {
		return n, errors.Wrapf(ErrInstructionsTooLong, "%d tokens, limit %d", n, limit)
	}
	return n, nil
}
