package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hotel_pricing/internal/domain"
)

/********** alias registry (single source of truth) **********/

var priceSheetAliases = map[string][]string{
	"kind":  {"kind", "type", "entity_kind", "entity_type"},
	"id":    {"id", "entity_id", "food_item_id", "menu_item_id", "hotel_id"},
	"price": {"price", "new_price", "unit_price", "base_price_per_night"},
}

// PriceSheetRow is one price change requested by a sheet.
type PriceSheetRow struct {
	Line  int
	Ref   domain.EntityRef
	Price float64
}

/********** tiny helpers **********/

// columnIndex maps alias keys to their column, first alias wins.
func columnIndex(header []string) map[string]int {
	norm := make(map[string]int, len(header))
	for i, h := range header {
		norm[strings.ToLower(strings.TrimSpace(h))] = i
	}
	out := make(map[string]int, len(priceSheetAliases))
	for key, aliases := range priceSheetAliases {
		for _, a := range aliases {
			if i, ok := norm[a]; ok {
				out[key] = i
				break
			}
		}
	}
	return out
}

// kindFromColumn also understands hotel_id/food_item_id headers when no kind column exists.
func kindFromColumn(header []string, idCol int) (domain.EntityKind, bool) {
	switch strings.ToLower(strings.TrimSpace(header[idCol])) {
	case "hotel_id":
		return domain.KindRoomRate, true
	case "food_item_id", "menu_item_id":
		return domain.KindMenuItem, true
	}
	return "", false
}

// parseSheetPrice accepts "120", " 120.50 " and a decimal comma ("120,5").
// A comma is read as the decimal separator only when it is the sole
// separator and 1 or 2 digits follow it; "1,200" and "1.200,50" are
// rejected instead of guessed.
func parseSheetPrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty price")
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		frac := s[i+1:]
		if strings.Count(s, ",") > 1 || strings.Contains(s, ".") || len(frac) == 0 || len(frac) > 2 {
			return 0, errors.New("ambiguous digit grouping")
		}
		s = s[:i] + "." + frac
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

/********** sheet mapper **********/

// ParsePriceSheet reads a CSV price sheet. Malformed rows are logged and skipped;
// a missing header or id/price column is an error.
func ParsePriceSheet(r io.Reader) ([]PriceSheetRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := columnIndex(header)
	idCol, okID := cols["id"]
	priceCol, okPrice := cols["price"]
	if !okID || !okPrice {
		return nil, fmt.Errorf("price sheet needs id and price columns, got %v", header)
	}
	kindCol, hasKind := cols["kind"]
	implied, hasImplied := kindFromColumn(header, idCol)
	if !hasKind && !hasImplied {
		return nil, errors.New("price sheet needs a kind column or a hotel_id/food_item_id column")
	}

	var out []PriceSheetRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		row, rerr := mapRow(rec, line, idCol, priceCol, kindCol, hasKind, implied)
		if rerr != nil {
			log.Warn().Int("line", line).Err(rerr).Msg("price sheet row skipped")
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func mapRow(rec []string, line, idCol, priceCol, kindCol int, hasKind bool, implied domain.EntityKind) (PriceSheetRow, error) {
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	kind := implied
	if hasKind && field(kindCol) != "" {
		k, err := domain.ParseEntityKind(field(kindCol))
		if err != nil {
			return PriceSheetRow{}, err
		}
		kind = k
	}
	if kind == "" {
		return PriceSheetRow{}, errors.New("missing kind")
	}
	id := field(idCol)
	if id == "" {
		return PriceSheetRow{}, errors.New("missing id")
	}
	price, err := parseSheetPrice(field(priceCol))
	if err != nil {
		return PriceSheetRow{}, fmt.Errorf("bad price %q: %w", field(priceCol), err)
	}
	return PriceSheetRow{Line: line, Ref: domain.EntityRef{Kind: kind, ID: id}, Price: price}, nil
}
