package anthropic

// BuildCachedSystemBlocks returns text as a single system block with a
// 5-minute cache breakpoint. The pricing directive is identical across the
// turns of a conversation, so consecutive turns read it from cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "5m"}}}
}
