package provider

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// EstimateTokens returns a cl100k token count for the request messages, used
// only for request logs. It returns -1 when the codec is unavailable.
func EstimateTokens(messages []Message) int {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = c
		}
	})
	if codec == nil {
		return -1
	}

	total := 0
	for _, m := range messages {
		ids, _, err := codec.Encode(m.Content)
		if err != nil {
			return -1
		}
		// role and separators
		total += len(ids) + 4
	}
	return total
}
