package kis

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"krx-trader/internal/clock"
	"krx-trader/internal/types"
)

type orderResponse struct {
	envelope
	Output struct {
		KrxFwdgOrdOrgno string `json:"KRX_FWDG_ORD_ORGNO"`
		Odno            string `json:"ODNO"`
		OrdTmd          string `json:"ORD_TMD"`
	} `json:"output"`
}

type balanceResponse struct {
	envelope
	Output1 []struct {
		Pdno        string `json:"pdno"`
		PrdtName    string `json:"prdt_name"`
		HldgQty     string `json:"hldg_qty"`
		PchsAvgPric string `json:"pchs_avg_pric"`
		Prpr        string `json:"prpr"`
	} `json:"output1"`
	Output2 []struct {
		DncaTotAmt      string `json:"dnca_tot_amt"`
		PrvsRcdlExccAmt string `json:"prvs_rcdl_excc_amt"`
	} `json:"output2"`
}

type pendingResponse struct {
	envelope
	Output []struct {
		Odno         string `json:"odno"`
		OrdGnoBrno   string `json:"ord_gno_brno"`
		Pdno         string `json:"pdno"`
		SllBuyDvsnCd string `json:"sll_buy_dvsn_cd"`
		OrdQty       string `json:"ord_qty"`
		OrdUnpr      string `json:"ord_unpr"`
		PsblQty      string `json:"psbl_qty"`
		OrdTmd       string `json:"ord_tmd"`
	} `json:"output"`
}

type cancelResponse struct {
	envelope
}

func (c *Client) Buy(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	return c.order(ctx, "TTTC0802U", types.SideBuy, account, stock, qty, price)
}

func (c *Client) Sell(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	return c.order(ctx, "TTTC0801U", types.SideSell, account, stock, qty, price)
}

func (c *Client) order(ctx context.Context, trID string, side types.Side, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	var out orderResponse
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/uapi/domestic-stock/v1/trading/order-cash",
		trID:   c.trID(trID),
		op:     "order",
		symbol: stock.Symbol,
		body: map[string]string{
			"CANO":         account.Number,
			"ACNT_PRDT_CD": account.ProductCode,
			"PDNO":         stock.Symbol,
			"ORD_DVSN":     "00", // limit
			"ORD_QTY":      strconv.FormatInt(qty, 10),
			"ORD_UNPR":     price.Floor().String(),
		},
	}, &out)
	if err != nil {
		return types.Order{}, err
	}
	return types.Order{
		ID:       out.Output.Odno,
		Branch:   out.Output.KrxFwdgOrdOrgno,
		Symbol:   stock.Symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Status:   "ACCEPTED",
		PlacedAt: orderTime(out.Output.OrdTmd),
	}, nil
}

// orderTime parses the HHMMSS order time as today in KST.
func orderTime(hhmmss string) time.Time {
	now := clock.Now()
	t, err := time.ParseInLocation("150405", hhmmss, clock.KST)
	if err != nil {
		return now
	}
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, clock.KST)
}

// Balance lists holdings and the KRW deposit. The deposit is the D+2
// settlement cash, which is what the account can actually spend.
func (c *Client) Balance(ctx context.Context, account types.Account) (types.Balance, error) {
	var out balanceResponse
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/uapi/domestic-stock/v1/trading/inquire-balance",
		trID:   c.trID("TTTC8434R"),
		op:     "balance",
		query: map[string]string{
			"CANO":                  account.Number,
			"ACNT_PRDT_CD":          account.ProductCode,
			"AFHR_FLPR_YN":          "N",
			"OFL_YN":                "",
			"INQR_DVSN":             "02",
			"UNPR_DVSN":             "01",
			"FUND_STTL_ICLD_YN":     "N",
			"FNCG_AMT_AUTO_RDPT_YN": "N",
			"PRCS_DVSN":             "00",
			"CTX_AREA_FK100":        "",
			"CTX_AREA_NK100":        "",
		},
	}, &out)
	if err != nil {
		return types.Balance{}, err
	}

	bal := types.Balance{Deposits: map[types.Currency]types.Deposit{}}
	for _, s := range out.Output1 {
		qty := integer(s.HldgQty)
		if qty <= 0 {
			continue
		}
		bal.Stocks = append(bal.Stocks, types.Holding{
			Symbol:   s.Pdno,
			Name:     s.PrdtName,
			Quantity: qty,
			AvgPrice: num(s.PchsAvgPric),
			Price:    num(s.Prpr),
			Currency: types.KRW,
		})
	}
	if len(out.Output2) > 0 {
		bal.Deposits[types.KRW] = types.Deposit{
			Currency: types.KRW,
			Amount:   num(out.Output2[0].PrvsRcdlExccAmt),
		}
	}
	return bal, nil
}

// PendingOrders lists orders that can still be revised or cancelled.
func (c *Client) PendingOrders(ctx context.Context, account types.Account) ([]types.Order, error) {
	var out pendingResponse
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/uapi/domestic-stock/v1/trading/inquire-psbl-rvsecncl",
		trID:   "TTTC8036R",
		op:     "pending_orders",
		query: map[string]string{
			"CANO":           account.Number,
			"ACNT_PRDT_CD":   account.ProductCode,
			"CTX_AREA_FK100": "",
			"CTX_AREA_NK100": "",
			"INQR_DVSN_1":    "0",
			"INQR_DVSN_2":    "0",
		},
	}, &out)
	if err != nil {
		return nil, err
	}

	orders := make([]types.Order, 0, len(out.Output))
	for _, o := range out.Output {
		side := types.SideBuy
		if o.SllBuyDvsnCd == "01" {
			side = types.SideSell
		}
		orders = append(orders, types.Order{
			ID:       o.Odno,
			Branch:   o.OrdGnoBrno,
			Symbol:   o.Pdno,
			Side:     side,
			Quantity: integer(o.PsblQty),
			Price:    num(o.OrdUnpr),
			Status:   "OPEN",
			PlacedAt: orderTime(o.OrdTmd),
		})
	}
	return orders, nil
}

func (c *Client) Cancel(ctx context.Context, account types.Account, order types.Order) error {
	var out cancelResponse
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   "/uapi/domestic-stock/v1/trading/order-rvsecncl",
		trID:   c.trID("TTTC0803U"),
		op:     "cancel",
		symbol: order.Symbol,
		body: map[string]string{
			"CANO":               account.Number,
			"ACNT_PRDT_CD":       account.ProductCode,
			"KRX_FWDG_ORD_ORGNO": order.Branch,
			"ORGN_ODNO":          order.ID,
			"ORD_DVSN":           "00",
			"RVSE_CNCL_DVSN_CD":  "02", // cancel
			"ORD_QTY":            "0",
			"ORD_UNPR":           "0",
			"QTY_ALL_ORD_YN":     "Y",
		},
	}, &out)
}
