// File path: internal/bom/normalizer.go
package bom

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gridline-eng/permitpack/internal/common"
)

// ErrMalformedBOM indicates the input could not be normalized at all. It is
// fatal for a pipeline run; per-row problems are absorbed instead.
var ErrMalformedBOM = errors.New("malformed bill of materials")

// headerScanLimit bounds how many leading rows are inspected while locating
// the header of a CSV export. Vendor exports often carry title and date rows
// above the real header.
const headerScanLimit = 10

var headerAliases = map[string][]string{
	"part_number":  {"part number", "part no", "part no.", "part #", "pn", "mpn", "model", "model number"},
	"name":         {"name", "part name", "description", "component", "item"},
	"manufacturer": {"manufacturer", "mfr", "mfg", "make", "brand", "vendor"},
	"category":     {"category", "type", "component type", "class"},
	"quantity":     {"quantity", "qty", "count", "units"},
}

// RawRow is one positional row extracted from a scanned BOM document by the
// upstream extraction collaborator. Field order follows the table layout of
// the scan, already column-mapped by the extractor.
type RawRow struct {
	PartNumber   string `json:"part_number"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Category     string `json:"category"`
	Quantity     string `json:"quantity"`
}

// NormalizeCSV reads a CSV-like BOM table and produces normalized
// components. The header row is located by alias matching; failure to find
// one rejects the whole input with ErrMalformedBOM.
func NormalizeCSV(r io.Reader) ([]Component, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBOM, err)
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedBOM)
	}

	headerIdx, columns := locateHeader(rows)
	if columns == nil {
		return nil, fmt.Errorf("%w: header row not found", ErrMalformedBOM)
	}

	logger := common.Logger()
	components := make([]Component, 0, len(rows)-headerIdx-1)
	dropped := 0
	for i := headerIdx + 1; i < len(rows); i++ {
		component, ok := normalizeRecord(rows[i], columns, len(components))
		if !ok {
			dropped++
			continue
		}
		components = append(components, component)
	}
	logger.Info("bom: csv normalized", "components", len(components), "dropped", dropped)
	return components, nil
}

// NormalizeExtracted converts positional rows from a scanned BOM into
// components using the same retention rules as CSV input.
func NormalizeExtracted(rows []RawRow) ([]Component, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no extracted rows", ErrMalformedBOM)
	}
	logger := common.Logger()
	components := make([]Component, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		partNumber := strings.TrimSpace(row.PartNumber)
		name := strings.TrimSpace(row.Name)
		if partNumber == "" && name == "" {
			dropped++
			continue
		}
		components = append(components, Component{
			Row:          len(components),
			PartNumber:   partNumber,
			Name:         name,
			Manufacturer: KnownManufacturer(row.Manufacturer),
			Category:     strings.ToLower(strings.TrimSpace(row.Category)),
			Quantity:     parseQuantity(row.Quantity),
		})
	}
	logger.Info("bom: extracted rows normalized", "components", len(components), "dropped", dropped)
	return components, nil
}

// locateHeader scans leading rows for one that maps at least a part number
// or name column plus a manufacturer column.
func locateHeader(rows [][]string) (int, map[string]int) {
	limit := headerScanLimit
	if limit > len(rows) {
		limit = len(rows)
	}
	for idx := 0; idx < limit; idx++ {
		columns := matchHeader(rows[idx])
		if columns == nil {
			continue
		}
		_, hasPart := columns["part_number"]
		_, hasName := columns["name"]
		if hasPart || hasName {
			return idx, columns
		}
	}
	return -1, nil
}

func matchHeader(row []string) map[string]int {
	columns := make(map[string]int)
	for idx, cell := range row {
		normalized := strings.ToLower(strings.Join(strings.Fields(cell), " "))
		if normalized == "" {
			continue
		}
		for field, aliases := range headerAliases {
			if _, taken := columns[field]; taken {
				continue
			}
			for _, alias := range aliases {
				if normalized == alias {
					columns[field] = idx
					break
				}
			}
		}
	}
	if len(columns) < 2 {
		return nil
	}
	return columns
}

func normalizeRecord(record []string, columns map[string]int, row int) (Component, bool) {
	cell := func(field string) string {
		idx, ok := columns[field]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	partNumber := cell("part_number")
	name := cell("name")
	if partNumber == "" && name == "" {
		return Component{}, false
	}
	return Component{
		Row:          row,
		PartNumber:   partNumber,
		Name:         name,
		Manufacturer: KnownManufacturer(cell("manufacturer")),
		Category:     strings.ToLower(cell("category")),
		Quantity:     parseQuantity(cell("quantity")),
	}, true
}

func parseQuantity(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 1
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil || value <= 0 {
		return 1
	}
	return value
}
