// Package sqlutil provides helpers for building SQL statements.
package sqlutil

import (
	"fmt"
	"strings"
)

// ValuesPlaceholders returns the placeholder groups for an INSERT of
// numRows rows with valuesPerRow columns each, numbered from $1:
//
//	ValuesPlaceholders(2, 3) == "($1,$2),($3,$4),($5,$6)"
//
// It panics if either count is not positive.
func ValuesPlaceholders(valuesPerRow, numRows int) string {
	if valuesPerRow <= 0 || numRows <= 0 {
		panic("Cannot make placeholders for 0 rows or 0 values per row")
	}
	rows := make([]string, 0, numRows)
	n := 1
	for r := 0; r < numRows; r++ {
		cols := make([]string, 0, valuesPerRow)
		for c := 0; c < valuesPerRow; c++ {
			cols = append(cols, fmt.Sprintf("$%d", n))
			n++
		}
		rows = append(rows, "("+strings.Join(cols, ",")+")")
	}
	return strings.Join(rows, ",")
}
