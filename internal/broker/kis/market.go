package kis

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"krx-trader/internal/broker"
	"krx-trader/internal/clock"
	"krx-trader/internal/types"
)

type stockInfoResponse struct {
	envelope
	Output struct {
		Pdno         string `json:"pdno"`
		PrdtAbrvName string `json:"prdt_abrv_name"`
		MketIDCd     string `json:"mket_id_cd"`
	} `json:"output"`
}

type quoteResponse struct {
	envelope
	Output struct {
		StckPrpr      string `json:"stck_prpr"`
		PrdyCtrt      string `json:"prdy_ctrt"`
		AcmlVol       string `json:"acml_vol"`
		AcmlTrPbmn    string `json:"acml_tr_pbmn"`
		StckOprc      string `json:"stck_oprc"`
		StckHgpr      string `json:"stck_hgpr"`
		StckLwpr      string `json:"stck_lwpr"`
		StckSdpr      string `json:"stck_sdpr"`
		StckMxpr      string `json:"stck_mxpr"`
		StckLlam      string `json:"stck_llam"`
		Per           string `json:"per"`
		Pbr           string `json:"pbr"`
		Eps           string `json:"eps"`
		Bps           string `json:"bps"`
		RprsMrktName  string `json:"rprs_mrkt_kor_name"`
		BstpKorIsnm   string `json:"bstp_kor_isnm"`
		TempStopYn    string `json:"temp_stop_yn"`
		MrktWarnClsCd string `json:"mrkt_warn_cls_code"`
		ShortOverYn   string `json:"short_over_yn"`
	} `json:"output"`
}

type dailyChartResponse struct {
	envelope
	Output2 []struct {
		StckBsopDate string `json:"stck_bsop_date"`
		StckClpr     string `json:"stck_clpr"`
		StckOprc     string `json:"stck_oprc"`
		StckHgpr     string `json:"stck_hgpr"`
		StckLwpr     string `json:"stck_lwpr"`
		AcmlVol      string `json:"acml_vol"`
		AcmlTrPbmn   string `json:"acml_tr_pbmn"`
		PrdyVrss     string `json:"prdy_vrss"`
	} `json:"output2"`
}

var marketNames = map[string]string{
	"STK": "KOSPI",
	"KSQ": "KOSDAQ",
	"KNX": "KONEX",
}

func (c *Client) Stock(ctx context.Context, symbol string) (types.Stock, error) {
	var out stockInfoResponse
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/uapi/domestic-stock/v1/quotations/search-stock-info",
		trID:   "CTPF1002R",
		op:     "stock",
		symbol: symbol,
		query: map[string]string{
			"PRDT_TYPE_CD": "300",
			"PDNO":         symbol,
		},
	}, &out)
	if err != nil {
		return types.Stock{}, err
	}
	if out.Output.PrdtAbrvName == "" {
		return types.Stock{}, fmt.Errorf("%w: %s", broker.ErrNotFound, symbol)
	}
	return types.Stock{
		Symbol: symbol,
		Name:   out.Output.PrdtAbrvName,
		Market: marketNames[out.Output.MketIDCd],
	}, nil
}

func (c *Client) Quote(ctx context.Context, stock types.Stock) (types.Quote, error) {
	var out quoteResponse
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/uapi/domestic-stock/v1/quotations/inquire-price",
		trID:   "FHKST01010100",
		op:     "quote",
		symbol: stock.Symbol,
		query: map[string]string{
			"FID_COND_MRKT_DIV_CODE": "J",
			"FID_INPUT_ISCD":         stock.Symbol,
		},
	}, &out)
	if err != nil {
		return types.Quote{}, err
	}
	o := out.Output
	if o.StckPrpr == "" {
		return types.Quote{}, fmt.Errorf("%w: %s", broker.ErrNotFound, stock.Symbol)
	}
	return types.Quote{
		Symbol:     stock.Symbol,
		Market:     o.RprsMrktName,
		Sector:     o.BstpKorIsnm,
		Price:      num(o.StckPrpr),
		Volume:     integer(o.AcmlVol),
		Amount:     num(o.AcmlTrPbmn),
		Rate:       num(o.PrdyCtrt),
		Open:       num(o.StckOprc),
		High:       num(o.StckHgpr),
		Low:        num(o.StckLwpr),
		PrevPrice:  num(o.StckSdpr),
		HighLimit:  num(o.StckMxpr),
		LowLimit:   num(o.StckLlam),
		PER:        num(o.Per),
		PBR:        num(o.Pbr),
		EPS:        num(o.Eps),
		BPS:        num(o.Bps),
		Risk:       riskLevel(o.MrktWarnClsCd),
		Halt:       o.TempStopYn == "Y",
		Overbought: o.ShortOverYn == "Y",
		Time:       time.Now(),
	}, nil
}

// riskLevel maps the market warning code to the labels stored with
// corporate quotes.
func riskLevel(code string) string {
	switch code {
	case "", "00":
		return "none"
	case "01":
		return "caution"
	case "02":
		return "warning"
	case "03":
		return "danger"
	}
	return code
}

// Chart returns daily bars. KIS sends them newest first; they are reversed
// so the most recent bar is last.
func (c *Client) Chart(ctx context.Context, stock types.Stock, start, end time.Time) (types.Chart, error) {
	var out dailyChartResponse
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice",
		trID:   "FHKST03010100",
		op:     "chart",
		symbol: stock.Symbol,
		query: map[string]string{
			"FID_COND_MRKT_DIV_CODE": "J",
			"FID_INPUT_ISCD":         stock.Symbol,
			"FID_INPUT_DATE_1":       start.In(clock.KST).Format("20060102"),
			"FID_INPUT_DATE_2":       end.In(clock.KST).Format("20060102"),
			"FID_PERIOD_DIV_CODE":    "D",
			"FID_ORG_ADJ_PRC":        "0",
		},
	}, &out)
	if err != nil {
		return types.Chart{}, err
	}

	chart := types.Chart{Symbol: stock.Symbol, Bars: make([]types.ChartBar, 0, len(out.Output2))}
	for _, b := range out.Output2 {
		if b.StckBsopDate == "" {
			continue
		}
		ts, err := time.ParseInLocation("20060102", b.StckBsopDate, clock.KST)
		if err != nil {
			return types.Chart{}, fmt.Errorf("kis chart %s: bad date %q: %w", stock.Symbol, b.StckBsopDate, err)
		}
		chart.Bars = append(chart.Bars, types.ChartBar{
			Time:   ts,
			Open:   num(b.StckOprc),
			High:   num(b.StckHgpr),
			Low:    num(b.StckLwpr),
			Close:  num(b.StckClpr),
			Volume: integer(b.AcmlVol),
			Amount: num(b.AcmlTrPbmn),
			Change: num(b.PrdyVrss),
		})
	}
	sort.Slice(chart.Bars, func(i, j int) bool { return chart.Bars[i].Time.Before(chart.Bars[j].Time) })
	return chart, nil
}

func num(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func integer(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
