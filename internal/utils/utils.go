package utils

import "time"

// UniqueStrings returns the input with duplicates removed, preserving the
// first occurrence order.
func UniqueStrings(input []string) []string {
	seen := make(map[string]bool, len(input))
	var result []string
	for _, val := range input {
		if !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}

// Retry calls fn up to attempts times, sleeping delay between failures.
func Retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		time.Sleep(delay)
	}
	return err
}
