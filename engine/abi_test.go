package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrategyNames(t *testing.T) {
	for s := DepthStrategy; s <= RandomStrategy; s++ {
		got, ok := ParseStrategy(s.String())
		assert.True(t, ok, s.String())
		assert.Equal(t, s, got)
	}
	assert.Equal(t, "mea", MEAStrategy.String())
	assert.Equal(t, "unknown", Strategy(9).String())
	assert.False(t, Strategy(-1).Valid())

	_, ok := ParseStrategy("fifo")
	assert.False(t, ok)
}

func TestSalienceEvaluationNames(t *testing.T) {
	mode, ok := ParseSalienceEvaluation("every-cycle")
	assert.True(t, ok)
	assert.Equal(t, EveryCycle, mode)
	assert.Equal(t, "when-activated", WhenActivated.String())
	assert.False(t, SalienceEvaluation(3).Valid())

	_, ok = ParseSalienceEvaluation("never")
	assert.False(t, ok)
}

func TestConstructKindString(t *testing.T) {
	assert.Equal(t, "defrule", DefruleKind.String())
	assert.Equal(t, "deffacts", DeffactsKind.String())
	assert.Equal(t, "unknown", ConstructKind(6).String())
}
