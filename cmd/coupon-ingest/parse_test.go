package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop-orders/internal/domain/coupon"
)

const csvHeader = "offer_code,offer_type,discount_type,discount_value,max_discount_value,min_order_value,start_date,end_date,usage_limit_per_user,description\n"

func TestParseFile(t *testing.T) {
	data := csvHeader +
		"SAVE10,general,percentage,10,15,100,2025-01-01,2025-12-31,1,Ten percent\n" +
		"WELCOME,new_user,fixed,50,,,2025-01-01T00:00:00Z,2026-01-01T00:00:00Z,,First order\n" +
		"BAD,general,bogo,10,,,2025-01-01,2025-12-31,,\n" +
		"HUGE,general,percentage,150,,,2025-01-01,2025-12-31,,\n" +
		"BACKWARDS,general,fixed,5,,,2025-12-31,2025-01-01,,\n" +
		"SHORT,general\n"

	coupons, bad, err := parseFile("coupons.csv", strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, coupons, 2)

	save := coupons[0]
	assert.Equal(t, "SAVE10", save.OfferCode)
	assert.Equal(t, coupon.OfferGeneral, save.OfferType)
	assert.Equal(t, coupon.DiscountPercentage, save.DiscountType)
	assert.True(t, decimal.NewFromInt(10).Equal(save.DiscountValue))
	require.NotNil(t, save.MaxDiscountValue)
	assert.True(t, decimal.NewFromInt(15).Equal(*save.MaxDiscountValue))
	assert.True(t, decimal.NewFromInt(100).Equal(save.MinOrderValue))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), save.StartDate)
	require.NotNil(t, save.UsageLimitPerUser)
	assert.Equal(t, 1, *save.UsageLimitPerUser)
	assert.True(t, save.IsActive)

	welcome := coupons[1]
	assert.Equal(t, coupon.OfferNewUser, welcome.OfferType)
	assert.Nil(t, welcome.MaxDiscountValue)
	assert.Nil(t, welcome.UsageLimitPerUser)
	assert.True(t, welcome.MinOrderValue.IsZero())

	require.Len(t, bad, 4)
	assert.Equal(t, 4, bad[0].Line)
	assert.Contains(t, bad[0].Error(), "coupons.csv:4: unknown discount_type")
	assert.Contains(t, bad[1].Error(), "exceeds 100")
	assert.Contains(t, bad[2].Error(), "end_date must be after start_date")
	assert.Equal(t, 7, bad[3].Line)
}

func TestParseFile_Header(t *testing.T) {
	_, _, err := parseFile("x.csv", strings.NewReader("code,type,discount_type,discount_value,max_discount_value,min_order_value,start_date,end_date,usage_limit_per_user,description\n"))
	assert.ErrorContains(t, err, `want "offer_code"`)

	_, _, err = parseFile("x.csv", strings.NewReader(""))
	assert.Error(t, err)
}

func TestParseGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := pgzip.NewWriter(&buf)
	_, err := zw.Write([]byte(csvHeader + "FLAT5,general,fixed,5,,,2025-01-01,2025-02-01,,\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	zr, err := pgzip.NewReader(&buf)
	require.NoError(t, err)
	coupons, bad, err := parseFile("flat.csv.gz", zr)
	require.NoError(t, err)
	assert.Empty(t, bad)
	require.Len(t, coupons, 1)
	assert.Equal(t, "FLAT5", coupons[0].OfferCode)
}

func TestDedupe(t *testing.T) {
	in := []coupon.Coupon{
		{OfferCode: "SAVE10", Description: "first"},
		{OfferCode: "FLAT5"},
		{OfferCode: "save10", Description: "second"},
		{OfferCode: "WELCOME"},
		{OfferCode: "Save10"},
	}

	kept, dropped := dedupe(in, 0.001)
	require.Len(t, kept, 3)
	assert.Equal(t, "first", kept[0].Description)
	assert.Equal(t, "FLAT5", kept[1].OfferCode)
	assert.Equal(t, "WELCOME", kept[2].OfferCode)
	assert.Equal(t, []string{"save10", "Save10"}, dropped)

	kept, dropped = dedupe(nil, 0.001)
	assert.Empty(t, kept)
	assert.Empty(t, dropped)
}
