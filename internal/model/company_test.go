package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmployeeSizeBucket(t *testing.T) {
	tests := []struct {
		count    int
		expected string
	}{
		{5, "1-10"},
		{45, "11-50"},
		{150, "51-200"},
		{450, "201-500"},
		{900, "501-1000"},
		{4500, "1001-5000"},
		{9000, "5001-10000"},
		{50000, "10000+"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, EmployeeSizeBucket(tt.count))
	}
}

func TestEmployeeSizeBucket_Boundaries(t *testing.T) {
	assert.Equal(t, "1-10", EmployeeSizeBucket(10))
	assert.Equal(t, "11-50", EmployeeSizeBucket(11))
	assert.Equal(t, "5001-10000", EmployeeSizeBucket(10000))
	assert.Equal(t, "10000+", EmployeeSizeBucket(10001))
}

func TestEmployeeRange(t *testing.T) {
	assert.Equal(t, "1,10", EmployeeRange(1, 10))
	assert.Equal(t, "201,500", EmployeeRange(201, 500))
}
