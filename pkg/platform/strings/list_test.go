package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeList(t *testing.T) {
	assert.Nil(t, NormalizeList(nil, false))
	assert.Empty(t, NormalizeList([]string{" ", ""}, false))
	assert.Equal(t,
		[]string{"documents:read", "Documents:Read", "audit:read"},
		NormalizeList([]string{" documents:read ", "Documents:Read", "documents:read", "", "audit:read"}, false),
	)
	assert.Equal(t,
		[]string{"documents:read", "audit:read"},
		NormalizeList([]string{" documents:read ", "Documents:Read", "", "AUDIT:READ"}, true),
	)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList("", false))
	assert.Nil(t, SplitList(" , ,", false))
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, SplitList("kafka-1:9092, kafka-2:9092,kafka-1:9092", false))
	assert.Equal(t, []string{"application/pdf", "image/png"}, SplitList("Application/PDF,image/png", true))
}
