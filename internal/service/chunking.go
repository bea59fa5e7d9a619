package service

// ChunkConfig controls how post text is split into passages.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig provides sane defaults for short social posts.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    400,
		Overlap: 40,
	}
}

func (c ChunkConfig) normalized() ChunkConfig {
	if c.Size <= 0 {
		c = DefaultChunkConfig()
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		c.Overlap = DefaultChunkConfig().Overlap
		if c.Overlap >= c.Size {
			c.Overlap = 0
		}
	}
	return c
}

// SplitText splits text into sliding windows of cfg.Size characters advancing
// by Size-Overlap, with the final window ending exactly at the text's end.
// Splitting is character based with no boundary detection, so the output is
// deterministic and locale agnostic. Text no longer than Size comes back as a
// single chunk.
func SplitText(text string, cfg ChunkConfig) []string {
	cfg = cfg.normalized()
	runes := []rune(text)
	if len(runes) <= cfg.Size {
		return []string{text}
	}

	chunks := make([]string, 0, len(runes)/(cfg.Size-cfg.Overlap)+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - cfg.Overlap
	}
	return chunks
}
