package fetch

import (
	"net/url"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/tidwall/gjson"
)

func TestKISClient(t *testing.T) {
	// Ensure the client rejects missing credentials.
	_, err := NewKISClient(&KISConfig{})
	assert.Error(t, err)

	cfg := &KISConfig{
		BaseURL:     "http://base",
		AppKey:      "key",
		AppSecret:   "secret",
		AccessToken: "token",
		Account:     "12345678-01",
	}

	client, err := NewKISClient(cfg)
	assert.NoError(t, err)

	// Ensure urls can be formed accurately.
	params := url.Values{}
	params.Add("a", "bbb")
	params.Add("b", "ccc")

	formedURL := client.formURL("/path", params.Encode())
	assert.Equal(t, formedURL, "http://base/path?a=bbb&b=ccc")
	assert.Equal(t, client.formURL("/path", ""), "http://base/path")

	// Ensure the account splits into number and product code.
	account, product := client.accountParts()
	assert.Equal(t, account, "12345678")
	assert.Equal(t, product, "01")
}

func TestParseDailyBars(t *testing.T) {
	cfg := &KISConfig{
		BaseURL:     "http://base",
		AppKey:      "key",
		AppSecret:   "secret",
		AccessToken: "token",
		Account:     "12345678-01",
	}

	client, err := NewKISClient(cfg)
	assert.NoError(t, err)

	// Rows arrive newest first and must come back oldest first.
	data := `[
		{"stck_bsop_date":"20260303","stck_oprc":"10600","stck_hgpr":"10750","stck_lwpr":"10550","stck_clpr":"10700","acml_vol":"120000"},
		{"stck_bsop_date":"20260302","stck_oprc":"10400","stck_hgpr":"10500","stck_lwpr":"10300","stck_clpr":"10450","acml_vol":"90000"}
	]`
	rows := gjson.Parse(data).Array()

	bars, err := client.ParseDailyBars(rows, "122630")
	assert.NoError(t, err)
	assert.Equal(t, len(bars), 2)
	assert.Equal(t, bars[0].Date.Day(), 2)
	assert.Equal(t, bars[0].Open, int64(10400))
	assert.Equal(t, bars[0].High, int64(10500))
	assert.Equal(t, bars[0].Low, int64(10300))
	assert.Equal(t, bars[1].Date.Day(), 3)
	assert.Equal(t, bars[1].Close, int64(10700))
	assert.Equal(t, bars[1].Volume, int64(120000))
	assert.Equal(t, bars[1].Symbol, "122630")

	// A row without a business date is malformed.
	rows = gjson.Parse(`[{"stck_oprc":"10600"}]`).Array()
	_, err = client.ParseDailyBars(rows, "122630")
	assert.Error(t, err)
}

func TestParseFillEvent(t *testing.T) {
	data := []byte(`{"header":{"tr_id":"H0STCNI0"},"body":{"output":{"odno":"0001234567","ord_qty":"9","rmn_qty":"0","cntg_unpr":"10650"}}}`)

	event, ok := parseFillEvent(data)
	assert.Equal(t, ok, true)
	assert.Equal(t, event.OrderID, "0001234567")
	assert.Equal(t, event.OrderQty, int64(9))
	assert.Equal(t, event.UnfilledQty, int64(0))
	assert.Equal(t, event.FillPrice, int64(10650))

	// Non-notice frames are ignored.
	_, ok = parseFillEvent([]byte(`{"header":{"tr_id":"PINGPONG"}}`))
	assert.Equal(t, ok, false)

	_, ok = parseFillEvent([]byte(`{"header":{"tr_id":"H0STCNI0"},"body":{"output":{}}}`))
	assert.Equal(t, ok, false)
}
