package kis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krx-trader/internal/broker"
	"krx-trader/internal/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fakeKIS struct {
	tokens   atomic.Int32
	lastTrID atomic.Value
	routes   map[string]http.HandlerFunc
}

func newFakeKIS(t *testing.T) (*fakeKIS, *httptest.Server) {
	f := &fakeKIS{routes: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			f.tokens.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "tok", "token_type": "Bearer", "expires_in": 86400})
			return
		}
		assert.Equal(t, "Bearer tok", r.Header.Get("authorization"))
		f.lastTrID.Store(r.Header.Get("tr_id"))
		h, ok := f.routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(t *testing.T, srv *httptest.Server, virtual bool) *Client {
	c, err := New(context.Background(), Config{
		AppKey:        "key",
		AppSecret:     "secret",
		Account:       "50000000-01",
		Virtual:       virtual,
		BaseURL:       srv.URL,
		RatePerSecond: 1000,
		Timeout:       2 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestNewAcquiresToken(t *testing.T) {
	f, srv := newFakeKIS(t)
	c := newTestClient(t, srv, false)

	assert.Equal(t, int32(1), f.tokens.Load())
	acc, err := c.Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.Account{Number: "50000000", ProductCode: "01"}, acc)
}

func TestNewRejectsBadAccount(t *testing.T) {
	_, err := New(context.Background(), Config{AppKey: "k", AppSecret: "s", Account: "123"})
	assert.Error(t, err)
}

func TestQuote(t *testing.T) {
	f, srv := newFakeKIS(t)
	f.routes["/uapi/domestic-stock/v1/quotations/inquire-price"] = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "005930", r.URL.Query().Get("FID_INPUT_ISCD"))
		writeJSON(w, http.StatusOK, map[string]any{
			"rt_cd": "0", "msg_cd": "MCA00000", "msg1": "정상처리 되었습니다.",
			"output": map[string]string{
				"stck_prpr": "71000", "prdy_ctrt": "1.43", "acml_vol": "1234567",
				"acml_tr_pbmn": "87654321000", "stck_oprc": "70000", "stck_hgpr": "71500",
				"stck_lwpr": "69800", "stck_sdpr": "70000", "mrkt_warn_cls_code": "00",
				"temp_stop_yn": "N", "short_over_yn": "Y",
			},
		})
	}
	c := newTestClient(t, srv, false)

	q, err := c.Quote(context.Background(), types.Stock{Symbol: "005930"})
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(71000)))
	assert.True(t, q.Rate.Equal(decimal.RequireFromString("1.43")))
	assert.Equal(t, int64(1234567), q.Volume)
	assert.Equal(t, "none", q.Risk)
	assert.False(t, q.Halt)
	assert.True(t, q.Overbought)
	assert.Equal(t, "FHKST01010100", f.lastTrID.Load())
}

func TestChartIsOldestFirst(t *testing.T) {
	f, srv := newFakeKIS(t)
	f.routes["/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"rt_cd": "0",
			"output2": []map[string]string{
				{"stck_bsop_date": "20240305", "stck_oprc": "1350", "stck_clpr": "1400", "stck_hgpr": "1420", "stck_lwpr": "1340", "acml_tr_pbmn": "2200"},
				{"stck_bsop_date": "20240304", "stck_oprc": "1000", "stck_clpr": "1300", "stck_hgpr": "1300", "stck_lwpr": "990", "acml_tr_pbmn": "2000"},
			},
		})
	}
	c := newTestClient(t, srv, false)

	ch, err := c.Chart(context.Background(), types.Stock{Symbol: "123456"}, time.Now().AddDate(0, 0, -4), time.Now())
	require.NoError(t, err)
	require.Len(t, ch.Bars, 2)
	assert.Equal(t, "2024-03-04", ch.Bars[0].Time.Format("2006-01-02"))
	assert.True(t, ch.Bars[1].Close.Equal(decimal.NewFromInt(1400)))
}

func TestOrderMarketClosed(t *testing.T) {
	f, srv := newFakeKIS(t)
	f.routes["/uapi/domestic-stock/v1/trading/order-cash"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"rt_cd": "1", "msg_cd": "40580000", "msg1": "모의투자 장종료 입니다."})
	}
	c := newTestClient(t, srv, true)
	acc, _ := c.Account(context.Background())

	_, err := c.Buy(context.Background(), acc, types.Stock{Symbol: "005930"}, 1, decimal.NewFromInt(70000))
	assert.ErrorIs(t, err, broker.ErrMarketClosed)
	assert.Equal(t, "VTTC0802U", f.lastTrID.Load())
}

func TestOrderAccepted(t *testing.T) {
	f, srv := newFakeKIS(t)
	f.routes["/uapi/domestic-stock/v1/trading/order-cash"] = func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "3", body["ORD_QTY"])
		assert.Equal(t, "70000", body["ORD_UNPR"])
		assert.Equal(t, "00", body["ORD_DVSN"])
		writeJSON(w, http.StatusOK, map[string]any{
			"rt_cd":  "0",
			"output": map[string]string{"KRX_FWDG_ORD_ORGNO": "91252", "ODNO": "0000117057", "ORD_TMD": "121052"},
		})
	}
	c := newTestClient(t, srv, false)
	acc, _ := c.Account(context.Background())

	o, err := c.Sell(context.Background(), acc, types.Stock{Symbol: "005930"}, 3, decimal.NewFromInt(70000))
	require.NoError(t, err)
	assert.Equal(t, "0000117057", o.ID)
	assert.Equal(t, "91252", o.Branch)
	assert.Equal(t, types.SideSell, o.Side)
	assert.Equal(t, "TTTC0801U", f.lastTrID.Load())
}

func TestServerErrorIsConnectivity(t *testing.T) {
	f, srv := newFakeKIS(t)
	f.routes["/uapi/domestic-stock/v1/quotations/inquire-price"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	c := newTestClient(t, srv, false)

	_, err := c.Quote(context.Background(), types.Stock{Symbol: "005930"})
	assert.True(t, broker.IsConnectivity(err))
}

func TestRateQuotaIsConnectivity(t *testing.T) {
	f, srv := newFakeKIS(t)
	f.routes["/uapi/domestic-stock/v1/quotations/inquire-price"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"rt_cd": "1", "msg_cd": "EGW00201", "msg1": "초당 거래건수를 초과하였습니다."})
	}
	c := newTestClient(t, srv, false)

	_, err := c.Quote(context.Background(), types.Stock{Symbol: "005930"})
	assert.True(t, broker.IsConnectivity(err))
}

func TestBalance(t *testing.T) {
	f, srv := newFakeKIS(t)
	f.routes["/uapi/domestic-stock/v1/trading/inquire-balance"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"rt_cd": "0",
			"output1": []map[string]string{
				{"pdno": "005930", "prdt_name": "삼성전자", "hldg_qty": "10", "pchs_avg_pric": "70000.0000", "prpr": "71000"},
				{"pdno": "000660", "prdt_name": "SK하이닉스", "hldg_qty": "0", "pchs_avg_pric": "0", "prpr": "130000"},
			},
			"output2": []map[string]string{{"dnca_tot_amt": "1000000", "prvs_rcdl_excc_amt": "850000"}},
		})
	}
	c := newTestClient(t, srv, false)
	acc, _ := c.Account(context.Background())

	bal, err := c.Balance(context.Background(), acc)
	require.NoError(t, err)
	require.Len(t, bal.Stocks, 1)
	assert.Equal(t, int64(10), bal.Stocks[0].Quantity)
	assert.True(t, bal.Deposits[types.KRW].Amount.Equal(decimal.NewFromInt(850000)))
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify("stock", "999999", &envelope{RtCd: "1", Msg1: "없는 종목코드입니다"}), broker.ErrNotFound)
	assert.ErrorIs(t, classify("order", "005930", &envelope{RtCd: "1", Msg1: "장운영시간이 아닙니다"}), broker.ErrMarketClosed)

	err := classify("quote", "005930", &envelope{RtCd: "1", MsgCd: "EGW00123", Msg1: "기간이 만료된 token 입니다."})
	assert.NotErrorIs(t, err, broker.ErrNotFound)
	assert.False(t, broker.IsConnectivity(err))
}
