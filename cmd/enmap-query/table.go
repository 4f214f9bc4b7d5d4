package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/airbusgeo/enmap-catalog/catalog/entities"
	"github.com/airbusgeo/enmap-catalog/common"
	"github.com/airbusgeo/enmap-catalog/service/geometry"
)

const tableWidth = 100

// bboxFlag parses "minLon,minLat,maxLon,maxLat" (commas or spaces)
type bboxFlag struct {
	bbox *geometry.BBox
}

func (f *bboxFlag) String() string {
	if f == nil || f.bbox == nil {
		return ""
	}
	return fmt.Sprintf("%v,%v,%v,%v", f.bbox[0], f.bbox[1], f.bbox[2], f.bbox[3])
}

func (f *bboxFlag) Set(s string) error {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	values := make([]float64, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return fmt.Errorf("invalid coordinate %q", field)
		}
		values[i] = v
	}
	bbox, err := geometry.NewBBox(values)
	if err != nil {
		return err
	}
	f.bbox = &bbox
	return nil
}

func truncateID(id string) string {
	if len(id) > 40 {
		return id[:38] + ".."
	}
	return id
}

func formatDate(dt *string) string {
	if dt == nil || len(*dt) < 10 {
		return "N/A"
	}
	return (*dt)[:10]
}

func formatCloudCover(cc *float64) string {
	if cc == nil {
		return "N/A%"
	}
	return strconv.FormatFloat(*cc, 'f', -1, 64) + "%"
}

// printResults prints the results as a table
func printResults(w io.Writer, results []entities.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No EnMAP scenes found for the specified criteria.")
		return
	}
	sep := strings.Repeat("=", tableWidth)
	fmt.Fprintf(w, "Found %d matching EnMAP scenes!\n\n", len(results))
	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "%-40s %-20s %-15s %-15s\n", "ID", "Date", "Cloud Cover", "Data Available")
	fmt.Fprintln(w, sep)
	for _, r := range results {
		hasData := "✗ No"
		if r.HasAsset(common.AssetData) {
			hasData = "✓ Yes"
		}
		fmt.Fprintf(w, "%-40s %-20s %-15s %-15s\n", truncateID(r.ID), formatDate(r.Datetime), formatCloudCover(r.CloudCover), hasData)
	}
	fmt.Fprintln(w, sep)
	fmt.Fprintln(w)
}
