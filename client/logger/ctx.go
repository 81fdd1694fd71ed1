package logger

// Ctx is the key-value context attached to log messages.
type Ctx map[string]interface{}

// WithCtx merges newCtx over c into a new map. Neither input is modified.
func (c Ctx) WithCtx(newCtx Ctx) Ctx {
	if c == nil {
		return newCtx
	}

	if newCtx == nil {
		return c
	}

	ret := make(Ctx, len(c)+len(newCtx))

	for k, v := range c {
		ret[k] = v
	}

	for k, v := range newCtx {
		ret[k] = v
	}

	return ret
}
