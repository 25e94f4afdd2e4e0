package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jyhan/lwtrader/shared"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the production brokerage REST endpoint.
	BaseURL = "https://openapi.koreainvestment.com:9443"

	// Transaction ids for the REST calls.
	quoteTrID     = "FHKST01010100"
	dailyBarsTrID = "FHKST01010400"
	buyOrderTrID  = "TTTC0802U"
	sellOrderTrID = "TTTC0801U"
	balanceTrID   = "TTTC8434R"
	unfilledTrID  = "TTTC8036R"
)

// KISConfig represents the configuration for the brokerage client.
type KISConfig struct {
	// BaseURL is the brokerage REST endpoint.
	BaseURL string
	// AppKey is the issued application key.
	AppKey string
	// AppSecret is the issued application secret.
	AppSecret string
	// AccessToken is the issued OAuth access token.
	AccessToken string
	// Account is the cash account number (account-product code suffix split
	// on the dash).
	Account string
}

// KISClient represents the brokerage REST API client.
type KISClient struct {
	cfg   *KISConfig
	httpc http.Client
	buf   *bytes.Buffer
}

// Ensure the brokerage client implements the gateway interfaces.
var _ shared.MarketDataGateway = (*KISClient)(nil)
var _ shared.OrderGateway = (*KISClient)(nil)

// NewKISClient instantiates a new brokerage client.
func NewKISClient(cfg *KISConfig) (*KISClient, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("brokerage credentials cannot be empty strings")
	}
	if cfg.Account == "" {
		return nil, fmt.Errorf("brokerage account cannot be an empty string")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}

	return &KISClient{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 5},
		buf:   bytes.NewBuffer(make([]byte, 0, 512)),
	}, nil
}

// formURL creates full urls including parameters for the api.
func (c *KISClient) formURL(path string, params string) string {
	c.buf.WriteString(c.cfg.BaseURL)
	c.buf.WriteString(path)
	if params != "" {
		c.buf.WriteString("?")
		c.buf.WriteString(params)
	}
	url := c.buf.String()
	c.buf.Reset()

	return url
}

// accountParts splits the configured account into its number and product
// code components.
func (c *KISClient) accountParts() (string, string) {
	parts := strings.SplitN(c.cfg.Account, "-", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}

	return c.cfg.Account, "01"
}

// call performs an authenticated api call and returns the parsed response
// body after checking the brokerage return code.
func (c *KISClient) call(ctx context.Context, method string, url string, trID string, body io.Reader) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("creating %s request: %w", trID, err)
	}

	req.Header.Set("content-type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("appkey", c.cfg.AppKey)
	req.Header.Set("appsecret", c.cfg.AppSecret)
	req.Header.Set("tr_id", trID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("calling %s: %w", trID, err)
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("reading %s response body: %w", trID, err)
	}

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("%s returned status %d: %s", trID, resp.StatusCode, data)
	}

	parsed := gjson.ParseBytes(data)
	if rt := parsed.Get("rt_cd"); rt.Exists() && rt.String() != "0" {
		return gjson.Result{}, fmt.Errorf("%s rejected: %s %s", trID,
			parsed.Get("msg_cd").String(), parsed.Get("msg1").String())
	}

	return parsed, nil
}

// FetchQuote fetches the current price and cumulative volume for the
// provided symbol.
func (c *KISClient) FetchQuote(ctx context.Context, symbol string) (*shared.MarketSnapshot, error) {
	const quotePath = "/uapi/domestic-stock/v1/quotations/inquire-price"

	params := url.Values{}
	params.Add("FID_COND_MRKT_DIV_CODE", "J")
	params.Add("FID_INPUT_ISCD", symbol)

	resp, err := c.call(ctx, http.MethodGet, c.formURL(quotePath, params.Encode()), quoteTrID, nil)
	if err != nil {
		return nil, err
	}

	output := resp.Get("output")
	price := output.Get("stck_prpr")
	if !price.Exists() {
		return nil, fmt.Errorf("quote response missing current price for %s", symbol)
	}

	snapshot := &shared.MarketSnapshot{
		Symbol: symbol,
		Price:  price.Int(),
		Volume: output.Get("acml_vol").Int(),
		At:     time.Now(),
	}

	return snapshot, nil
}

// ParseDailyBars parses daily bars from the provided json rows, reordering
// them oldest to newest.
func (c *KISClient) ParseDailyBars(rows []gjson.Result, symbol string) ([]shared.Candlestick, error) {
	bars := make([]shared.Candlestick, 0, len(rows))

	// The api returns rows newest first.
	for idx := len(rows) - 1; idx >= 0; idx-- {
		row := rows[idx]
		if !row.Get("stck_bsop_date").Exists() {
			return nil, fmt.Errorf("daily bar row missing business date for %s", symbol)
		}

		date, err := time.Parse(shared.DayLayout, row.Get("stck_bsop_date").String())
		if err != nil {
			return nil, fmt.Errorf("parsing daily bar date: %w", err)
		}

		bars = append(bars, shared.Candlestick{
			Open:   row.Get("stck_oprc").Int(),
			High:   row.Get("stck_hgpr").Int(),
			Low:    row.Get("stck_lwpr").Int(),
			Close:  row.Get("stck_clpr").Int(),
			Volume: row.Get("acml_vol").Int(),
			Date:   date,
			Symbol: symbol,
		})
	}

	return bars, nil
}

// FetchDailyBars fetches up to count daily bars for the provided symbol,
// ordered oldest to newest.
func (c *KISClient) FetchDailyBars(ctx context.Context, symbol string, count int) ([]shared.Candlestick, error) {
	const dailyBarsPath = "/uapi/domestic-stock/v1/quotations/inquire-daily-price"

	params := url.Values{}
	params.Add("FID_COND_MRKT_DIV_CODE", "J")
	params.Add("FID_INPUT_ISCD", symbol)
	params.Add("FID_PERIOD_DIV_CODE", "D")
	params.Add("FID_ORG_ADJ_PRC", "1")

	resp, err := c.call(ctx, http.MethodGet, c.formURL(dailyBarsPath, params.Encode()), dailyBarsTrID, nil)
	if err != nil {
		return nil, err
	}

	rows := resp.Get("output").Array()
	bars, err := c.ParseDailyBars(rows, symbol)
	if err != nil {
		return nil, err
	}

	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}

	return bars, nil
}

// SendOrder sends a market order and returns the brokerage order id.
func (c *KISClient) SendOrder(ctx context.Context, side shared.OrderSide, symbol string, qty int64) (string, error) {
	const orderPath = "/uapi/domestic-stock/v1/trading/order-cash"

	trID := buyOrderTrID
	if side == shared.Sell {
		trID = sellOrderTrID
	}

	account, product := c.accountParts()

	// ORD_DVSN 01 is a market order, the price field is ignored.
	body := fmt.Sprintf(`{"CANO":%q,"ACNT_PRDT_CD":%q,"PDNO":%q,"ORD_DVSN":"01","ORD_QTY":"%d","ORD_UNPR":"0"}`,
		account, product, symbol, qty)

	resp, err := c.call(ctx, http.MethodPost, c.formURL(orderPath, ""), trID, strings.NewReader(body))
	if err != nil {
		return "", err
	}

	orderID := resp.Get("output.ODNO")
	if !orderID.Exists() || orderID.String() == "" {
		return "", fmt.Errorf("order response missing order id for %s %s", side, symbol)
	}

	return orderID.String(), nil
}

// FetchPositionQty fetches the held quantity for the provided symbol.
func (c *KISClient) FetchPositionQty(ctx context.Context, symbol string) (int64, error) {
	const balancePath = "/uapi/domestic-stock/v1/trading/inquire-balance"

	account, product := c.accountParts()

	params := url.Values{}
	params.Add("CANO", account)
	params.Add("ACNT_PRDT_CD", product)
	params.Add("AFHR_FLPR_YN", "N")
	params.Add("INQR_DVSN", "02")
	params.Add("UNPR_DVSN", "01")
	params.Add("FUND_STTL_ICLD_YN", "N")
	params.Add("FNCG_AMT_AUTO_RDPT_YN", "N")
	params.Add("PRCS_DVSN", "00")
	params.Add("OFL_YN", "")
	params.Add("CTX_AREA_FK100", "")
	params.Add("CTX_AREA_NK100", "")

	resp, err := c.call(ctx, http.MethodGet, c.formURL(balancePath, params.Encode()), balanceTrID, nil)
	if err != nil {
		return 0, err
	}

	for _, row := range resp.Get("output1").Array() {
		if row.Get("pdno").String() == symbol {
			return row.Get("hldg_qty").Int(), nil
		}
	}

	return 0, nil
}

// FetchUnfilledOrders fetches outstanding orders for the provided symbol.
func (c *KISClient) FetchUnfilledOrders(ctx context.Context, symbol string) ([]shared.UnfilledOrder, error) {
	const unfilledPath = "/uapi/domestic-stock/v1/trading/inquire-psbl-rvsecncl"

	account, product := c.accountParts()

	params := url.Values{}
	params.Add("CANO", account)
	params.Add("ACNT_PRDT_CD", product)
	params.Add("INQR_DVSN_1", "0")
	params.Add("INQR_DVSN_2", "0")
	params.Add("CTX_AREA_FK100", "")
	params.Add("CTX_AREA_NK100", "")

	resp, err := c.call(ctx, http.MethodGet, c.formURL(unfilledPath, params.Encode()), unfilledTrID, nil)
	if err != nil {
		return nil, err
	}

	var orders []shared.UnfilledOrder
	for _, row := range resp.Get("output").Array() {
		if symbol != "" && row.Get("pdno").String() != symbol {
			continue
		}

		side := shared.Sell
		if strings.Contains(row.Get("sll_buy_dvsn_cd_name").String(), "매수") {
			side = shared.Buy
		}

		orders = append(orders, shared.UnfilledOrder{
			OrderID:  row.Get("odno").String(),
			Symbol:   row.Get("pdno").String(),
			Side:     side,
			Qty:      row.Get("ord_qty").Int(),
			Unfilled: row.Get("psbl_qty").Int(),
			Price:    row.Get("ord_unpr").Int(),
		})
	}

	return orders, nil
}
