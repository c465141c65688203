package store

import (
	"encoding/json"
	"fmt"
	"sort"
)

// encodeInts serializes an int slice as a JSON array string. Nil encodes
// as "[]" so the column is never NULL and always parses.
func encodeInts(nums []int) string {
	if len(nums) == 0 {
		return "[]"
	}
	data, err := json.Marshal(nums)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeInts parses a JSON array string back into a sorted int slice.
// Empty or malformed input decodes as an empty slice, never nil.
func decodeInts(s string) []int {
	nums := []int{}
	if s == "" {
		return nums
	}
	if err := json.Unmarshal([]byte(s), &nums); err != nil {
		return []int{}
	}
	if nums == nil {
		return []int{}
	}
	sort.Ints(nums)
	return nums
}

// encodeStrings serializes a string slice as a JSON array string.
func encodeStrings(vals []string) string {
	if len(vals) == 0 {
		return "[]"
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeStrings parses a JSON array string back into a string slice.
func decodeStrings(s string) []string {
	vals := []string{}
	if s == "" {
		return vals
	}
	if err := json.Unmarshal([]byte(s), &vals); err != nil {
		return []string{}
	}
	if vals == nil {
		return []string{}
	}
	return vals
}

// formatCost renders a dollar amount with fixed 6 decimal places, the
// same precision as the numeric columns.
func formatCost(usd float64) string {
	return fmt.Sprintf("%.6f", usd)
}
