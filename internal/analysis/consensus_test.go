package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docflow/internal/document/models"
)

func TestConsensus(t *testing.T) {
	t.Run("majority wins", func(t *testing.T) {
		cat, conf := consensus(map[string]models.ProviderResult{
			"a": answer("boleto", 0.9, nil),
			"b": answer("boleto", 0.7, nil),
			"c": answer("recibo", 1.0, nil),
		})
		assert.Equal(t, "boleto", cat)
		assert.InDelta(t, 0.8*2.0/3.0, conf, 1e-9)
	})

	t.Run("tie broken by mean confidence", func(t *testing.T) {
		cat, _ := consensus(map[string]models.ProviderResult{
			"a": answer("boleto", 0.6, nil),
			"b": answer("recibo", 0.8, nil),
		})
		assert.Equal(t, "recibo", cat)
	})

	t.Run("full tie broken lexically", func(t *testing.T) {
		cat, conf := consensus(map[string]models.ProviderResult{
			"a": answer("recibo", 0.8, nil),
			"b": answer("boleto", 0.8, nil),
		})
		assert.Equal(t, "boleto", cat)
		assert.InDelta(t, 0.4, conf, 1e-9)
	})

	t.Run("categories compared case-insensitively", func(t *testing.T) {
		cat, conf := consensus(map[string]models.ProviderResult{
			"a": answer("Boleto ", 1, nil),
			"b": answer("boleto", 1, nil),
		})
		assert.Equal(t, "boleto", cat)
		assert.InDelta(t, 1.0, conf, 1e-9)
	})

	t.Run("no categories", func(t *testing.T) {
		cat, conf := consensus(map[string]models.ProviderResult{"a": {Confidence: 0.9}})
		assert.Empty(t, cat)
		assert.Zero(t, conf)
	})
}

func TestReconcileValidation(t *testing.T) {
	r := reconciler{threshold: 0.7, quorum: 1}

	undetermined := r.reconcile(map[string]models.ProviderResult{}, map[string]string{"a": "timeout"})
	assert.Equal(t, models.ValidationUndetermined, undetermined.ValidationStatus)

	// one responder disagreeing with nobody still yields a verdict
	single := r.reconcile(map[string]models.ProviderResult{"a": answer("boleto", 0.2, nil)}, nil)
	assert.Equal(t, models.ValidationNeedsReview, single.ValidationStatus)
	assert.Nil(t, single.Failures)

	valid := r.reconcile(map[string]models.ProviderResult{"a": answer("boleto", 0.7, nil)}, nil)
	assert.Equal(t, models.ValidationValid, valid.ValidationStatus)
}
