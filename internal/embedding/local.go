package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultLocalDimensions = 256

// LocalProvider embeds text by hashing word unigrams and bigrams into a
// fixed number of buckets and L2-normalizing the counts. It needs no model
// or network access and is fully deterministic, so schema relevance works
// out of the box.
type LocalProvider struct {
	dims int
}

func NewLocalProvider(dims int) *LocalProvider {
	if dims <= 0 {
		dims = defaultLocalDimensions
	}

	return &LocalProvider{dims: dims}
}

func (p *LocalProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dims)
	tokens := tokenize(text)

	for i, token := range tokens {
		p.bump(vec, token)

		if i+1 < len(tokens) {
			p.bump(vec, token+" "+tokens[i+1])
		}
	}

	normalizeL2(vec)

	return vec, nil
}

func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}

		out[i] = vec
	}

	return out, nil
}

func (p *LocalProvider) Dimensions() int { return p.dims }
func (p *LocalProvider) Enabled() bool   { return true }
func (p *LocalProvider) Name() string    { return "local" }

func (p *LocalProvider) bump(vec []float32, feature string) {
	h := fnv.New32a()
	h.Write([]byte(feature))
	vec[int(h.Sum32())%p.dims]++
}

// tokenize lowercases and splits on any non-alphanumeric rune, so
// "user_id" and "user id" produce the same tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalizeL2(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}

	if sum == 0 {
		return
	}

	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
