package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
)

// bagOfWordsEmbedder hashes each word into a bucket, so identical texts get
// identical vectors and shared words pull vectors together.
type bagOfWordsEmbedder struct {
	dimension int
	calls     int
	fail      bool
}

func newBagOfWordsEmbedder(dimension int) *bagOfWordsEmbedder {
	return &bagOfWordsEmbedder{dimension: dimension}
}

func (p *bagOfWordsEmbedder) Dimension() int {
	return p.dimension
}

func (p *bagOfWordsEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	if p.fail {
		return nil, errors.New("embedding backend unavailable")
	}
	embedding := make([]float32, p.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		embedding[int(h.Sum32())%p.dimension]++
	}
	// keep the vector non-zero for cosine distance
	embedding[0] += 0.01
	return embedding, nil
}

func (p *bagOfWordsEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := p.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
