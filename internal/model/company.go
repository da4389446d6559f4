package model

import (
	"fmt"
	"time"
)

// Company is a reconciled company row. Name is the natural key and is
// matched exactly; the store enforces uniqueness.
type Company struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Source     string    `json:"source"`
	City       string    `json:"city,omitempty"`
	Country    string    `json:"country,omitempty"`
	SizeBucket string    `json:"size_bucket,omitempty"`
	Website    string    `json:"website,omitempty"`
	LinkedIn   string    `json:"linkedin_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// sizeBuckets maps employee-count ceilings to display buckets, checked in
// ascending order.
var sizeBuckets = []struct {
	max    int
	bucket string
}{
	{10, "1-10"},
	{50, "11-50"},
	{200, "51-200"},
	{500, "201-500"},
	{1000, "501-1000"},
	{5000, "1001-5000"},
	{10000, "5001-10000"},
}

// EmployeeSizeBucket returns the display bucket for an enriched employee
// count. Counts above the largest ceiling fall into "10000+".
func EmployeeSizeBucket(count int) string {
	for _, b := range sizeBuckets {
		if count <= b.max {
			return b.bucket
		}
	}
	return "10000+"
}

// EmployeeRange formats a min/max pair the way the provider expects
// organization_num_employees_ranges entries: "min,max".
func EmployeeRange(min, max int) string {
	return fmt.Sprintf("%d,%d", min, max)
}
