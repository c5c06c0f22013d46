package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator approximates the token cost of a piece of text. This is a
// monitoring signal, not a billing-grade count; implementations may be
// as coarse as a fixed character ratio.
type Estimator interface {
	// EstimateTokens returns the approximate token count of text.
	// Empty input must return 0.
	EstimateTokens(text string) int

	// Description names the estimation method for stats output.
	Description() string
}

// charsPerToken is the fixed approximation ratio for English text.
const charsPerToken = 4

// RatioEstimator estimates tokens with a fixed characters-per-token
// ratio. It is the default estimator.
type RatioEstimator struct{}

func (RatioEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / charsPerToken
	if n < 1 {
		return 1
	}
	return n
}

func (RatioEstimator) Description() string {
	return fmt.Sprintf("%d chars per token (English text)", charsPerToken)
}

// TiktokenEstimator counts tokens with the cl100k_base BPE encoding.
// Use NewTiktokenEstimator; construction can fail when the encoding
// data is unavailable, in which case callers should fall back to
// RatioEstimator.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
}

func NewTiktokenEstimator() (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("tokens: load cl100k_base encoding: %w", err)
	}
	return &TiktokenEstimator{encoding: enc}, nil
}

func (e *TiktokenEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(e.encoding.Encode(text, nil, nil))
}

func (e *TiktokenEstimator) Description() string {
	return "tiktoken cl100k_base"
}
