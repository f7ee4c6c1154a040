// Package bbl derives the canonical NYC borough-block-lot property identifier
// from the loosely formatted fields found on permit records.
package bbl

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	blockWidth = 5
	lotWidth   = 4
)

var validBBL = regexp.MustCompile(`^[1-5][0-9]{9}$`)

// boroughCodes maps every borough spelling seen on permits to its digit.
var boroughCodes = map[string]string{
	"MANHATTAN":     "1",
	"MN":            "1",
	"NEW YORK":      "1",
	"BRONX":         "2",
	"THE BRONX":     "2",
	"BX":            "2",
	"BROOKLYN":      "3",
	"BK":            "3",
	"KINGS":         "3",
	"QUEENS":        "4",
	"QN":            "4",
	"STATEN ISLAND": "5",
	"SI":            "5",
	"RICHMOND":      "5",
}

// BoroughCode normalizes a borough name or single-digit code to "1".."5".
// It returns "" when the input is not a recognized borough.
func BoroughCode(borough string) string {
	b := strings.ToUpper(strings.Join(strings.Fields(borough), " "))
	if code, ok := boroughCodes[b]; ok {
		return code
	}
	if len(b) == 1 && b[0] >= '1' && b[0] <= '5' {
		return b
	}
	return ""
}

// Resolve builds the 10-digit identifier from raw permit fields. The second
// return value is false when the fields cannot form a valid identifier; that
// is an expected outcome, not an error.
func Resolve(borough, block, lot string) (string, bool) {
	code := BoroughCode(borough)
	if code == "" {
		return "", false
	}

	blk, ok := pad(digitsOnly(block), blockWidth)
	if !ok {
		return "", false
	}
	lt, ok := pad(digitsOnly(lot), lotWidth)
	if !ok {
		return "", false
	}

	id := code + blk + lt
	if !validBBL.MatchString(id) {
		return "", false
	}
	return id, true
}

// Valid reports whether s is a well-formed identifier.
func Valid(s string) bool {
	return validBBL.MatchString(s)
}

// Parts is a decomposed identifier in the numeric form the open-data
// datasets filter on.
type Parts struct {
	Borough int
	Block   int
	Lot     int
}

// Split decomposes a valid identifier. ok is false for malformed input.
func Split(id string) (Parts, bool) {
	if !Valid(id) {
		return Parts{}, false
	}
	borough, _ := strconv.Atoi(id[0:1])
	block, _ := strconv.Atoi(id[1:6])
	lot, _ := strconv.Atoi(id[6:10])
	return Parts{Borough: borough, Block: block, Lot: lot}, true
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// pad left-pads digits to width after dropping leading zeros. All-zero and
// over-long values are rejected.
func pad(digits string, width int) (string, bool) {
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" || len(trimmed) > width {
		return "", false
	}
	return strings.Repeat("0", width-len(trimmed)) + trimmed, true
}
