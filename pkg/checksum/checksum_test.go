package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum(t *testing.T) {
	assert.Equal(t, "ef46db3751d8e999", Sum(nil))
	assert.Equal(t, Sum([]byte("<NFe/>")), Sum([]byte("<NFe/>")))
	assert.NotEqual(t, Sum([]byte("<NFe/>")), Sum([]byte("<NFe />")))
	assert.Len(t, Sum([]byte("anything")), 16)
}
