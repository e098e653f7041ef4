package backendtest

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
)

// draw samples from synthetic logits with the stages of a sampler chain:
// temperature scaling, top-k, top-p and a seeded draw.
type draw struct {
	temp float32
	topK int
	topP float32
	rng  *rand.Rand
}

func newDraw(stages []backend.Stage) (*draw, error) {
	d := draw{
		temp: 1,
		topP: 1,
	}

	var seeded bool

	for _, st := range stages {
		switch st.Kind {
		case backend.StageTemperature:
			d.temp = st.Temperature
		case backend.StageTopK:
			d.topK = int(st.TopK)
		case backend.StageTopP:
			d.topP = st.TopP
		case backend.StageDist:
			seed := int64(st.Seed)
			if st.Seed == backend.DefaultSeed {
				seed = time.Now().UnixNano()
			}
			d.rng = rand.New(rand.NewSource(seed))
			seeded = true
		default:
			return nil, fmt.Errorf("new-sampler: unknown stage %d", st.Kind)
		}
	}

	if !seeded {
		return nil, fmt.Errorf("new-sampler: chain has no %s stage", backend.StageDist)
	}

	if d.temp <= 0 {
		return nil, fmt.Errorf("new-sampler: temperature %v must be positive", d.temp)
	}

	return &d, nil
}

// logit derives a stable score for a candidate from the decode state so the
// same prompt and seed always see the same distribution.
func logit(pos int, last backend.Token, tok backend.Token) float32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d:%d:%d", pos, last, tok)

	return float32(h.Sum32()%1000)/125 - 4
}

func (d *draw) next(vocab []backend.Token, pos int, last backend.Token) backend.Token {
	type cand struct {
		tok backend.Token
		val float32
	}

	cands := make([]cand, len(vocab))
	for i, tok := range vocab {
		cands[i] = cand{tok: tok, val: logit(pos, last, tok) / d.temp}
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].val > cands[j].val })

	if d.topK > 0 && d.topK < len(cands) {
		cands = cands[:d.topK]
	}

	maxv := float64(cands[0].val)
	prob := make([]float64, len(cands))

	var sum float64
	for i, c := range cands {
		prob[i] = math.Exp(float64(c.val) - maxv)
		sum += prob[i]
	}

	for i := range prob {
		prob[i] /= sum
	}

	cut := len(prob)
	if d.topP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if float32(c) >= d.topP {
				cut = i + 1
				break
			}
		}
	}

	var total float64
	for i := range cut {
		total += prob[i]
	}

	r := d.rng.Float64() * total

	var c float64
	for i := range cut {
		c += prob[i]
		if r <= c {
			return cands[i].tok
		}
	}

	return cands[cut-1].tok
}
