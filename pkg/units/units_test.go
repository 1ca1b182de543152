package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingular(t *testing.T) {
	assert.Equal(t, "hour", Singular("hours"))
	assert.Equal(t, "hour", Singular("hour"))
	assert.Equal(t, "session", Singular(" Sessions "))
	assert.Equal(t, "unit", Singular(""))
}

func TestForCount(t *testing.T) {
	tests := []struct {
		count string
		want  string
	}{
		{"1", "hour"},
		{"0", "hours"},
		{"2", "hours"},
		{"1.50", "hours"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ForCount("hour", tt.count), "count %s", tt.count)
	}
}
