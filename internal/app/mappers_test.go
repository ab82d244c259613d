package app_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotel_pricing/internal/app"
	"hotel_pricing/internal/domain"
)

func TestParsePriceSheet_KindColumn(t *testing.T) {
	sheet := "Kind,Entity_ID,New_Price\n" +
		"menu_item,idli,120\n" +
		"hotel,H, 12000.50 \n" +
		"room_rate,R,\"99,5\"\n"
	rows, err := app.ParsePriceSheet(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, app.PriceSheetRow{Line: 2, Ref: domain.EntityRef{Kind: domain.KindMenuItem, ID: "idli"}, Price: 120}, rows[0])
	assert.Equal(t, domain.KindRoomRate, rows[1].Ref.Kind)
	assert.Equal(t, 12000.50, rows[1].Price)
	assert.Equal(t, 99.5, rows[2].Price)
	assert.Equal(t, 4, rows[2].Line)
}

func TestParsePriceSheet_ImpliedKind(t *testing.T) {
	rows, err := app.ParsePriceSheet(strings.NewReader("hotel_id,base_price_per_night\nH,10000\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.EntityRef{Kind: domain.KindRoomRate, ID: "H"}, rows[0].Ref)

	rows, err = app.ParsePriceSheet(strings.NewReader("food_item_id,price\nidli,100\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.KindMenuItem, rows[0].Ref.Kind)
}

func TestParsePriceSheet_SkipsBadRows(t *testing.T) {
	sheet := "kind,id,price\n" +
		"menu_item,idli,abc\n" +
		"spa,x,10\n" +
		"menu_item,,10\n" +
		"menu_item,vada\n" +
		"menu_item,dosa,80\n"
	rows, err := app.ParsePriceSheet(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "dosa", rows[0].Ref.ID)
	assert.Equal(t, 6, rows[0].Line)
}

func TestParsePriceSheet_RejectsAmbiguousGrouping(t *testing.T) {
	sheet := "hotel_id,base_price_per_night\n" +
		"H,\"1,200\"\n" +
		"H2,\"1.200,50\"\n" +
		"H3,\"1,2,3\"\n" +
		"H4,\"12,\"\n" +
		"H5,\"1200,75\"\n"
	rows, err := app.ParsePriceSheet(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, rows, 1, "only the decimal-comma row survives")
	assert.Equal(t, "H5", rows[0].Ref.ID)
	assert.Equal(t, 1200.75, rows[0].Price)
}

func TestParsePriceSheet_HeaderErrors(t *testing.T) {
	for name, sheet := range map[string]string{
		"empty":    "",
		"no price": "kind,id\nmenu_item,idli\n",
		"no id":    "kind,price\nmenu_item,10\n",
		"no kind":  "id,price\nidli,10\n",
	} {
		_, err := app.ParsePriceSheet(strings.NewReader(sheet))
		assert.Error(t, err, name)
	}
}
