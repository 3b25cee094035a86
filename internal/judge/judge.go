// Package judge wraps the language-model oracle used to score search
// results and write summaries. The oracle is a strict text-in/text-out
// contract and is treated as unreliable: callers own all parsing and every
// degraded path.
package judge

import "context"

// Judge is the oracle capability. Invoke sends one prompt and returns the
// raw response text. Implementations must honour ctx cancellation; they may
// return malformed or fenced text, and callers must recover from that.
type Judge interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}
