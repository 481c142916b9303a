package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Warn().Err(err).Msg("tiktoken unavailable, falling back to rough token estimate")
			return
		}
		enc = e
	})
	return enc
}

// EstimateTokens counts tokens across messages and the reply the way the
// vendor would bill them when it does not report usage itself.
func EstimateTokens(messages []Message, reply string) int {
	e := encoding()
	count := func(s string) int {
		if e == nil {
			return (len(s) + 3) / 4
		}
		return len(e.Encode(s, nil, nil))
	}

	n := count(reply)
	for _, m := range messages {
		// role and separators
		n += 4 + count(m.Content)
	}
	return n
}
