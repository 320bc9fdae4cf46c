package diagnose

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/qazmed/diagdex/internal/llm"
	"github.com/qazmed/diagdex/internal/retrieval"
)

// Generator turns retrieved protocol context into ranked diagnoses via the
// completion model.
type Generator struct {
	client llm.Client
	topN   int
	log    *zap.Logger
}

func NewGenerator(client llm.Client, topN int, log *zap.Logger) *Generator {
	if topN <= 0 {
		topN = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{client: client, topN: topN, log: log}
}

// Generate asks the model for at most topN diagnoses grounded in the given
// candidates. Missing ranks are filled from list position; anything past topN
// is cut.
func (g *Generator) Generate(ctx context.Context, symptoms string, candidates []retrieval.Candidate) ([]Diagnosis, error) {
	user := buildUserPrompt(symptoms, candidates, g.topN)

	raw, err := g.client.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	diagnoses, err := parseDiagnoses(raw)
	if err != nil {
		return nil, err
	}
	for i := range diagnoses {
		if diagnoses[i].Rank == 0 {
			diagnoses[i].Rank = i + 1
		}
	}
	if len(diagnoses) > g.topN {
		diagnoses = diagnoses[:g.topN]
	}
	g.log.Debug("generated diagnoses", zap.Int("count", len(diagnoses)))
	return diagnoses, nil
}
