// Package export writes planned paths and simulation runs to files: CSV and
// JSON for data, PNG plots and HTML charts for people.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/kilianp07/grocerybot/core/model"
)

// WriteJSON writes the path to w in JSON format.
func WriteJSON(w io.Writer, path []model.Point) error {
	enc := json.NewEncoder(w)
	return enc.Encode(path)
}

// WriteCSV writes the path to w in CSV format, one waypoint per row.
func WriteCSV(w io.Writer, path []model.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "x", "y"}); err != nil {
		return err
	}
	for i, p := range path {
		rec := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(p.X, 'f', -1, 64),
			strconv.FormatFloat(p.Y, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
