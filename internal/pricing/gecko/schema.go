package gecko

import "fmt"

// Raw response shapes. Required fields are pointers so a missing field can
// be told apart from a zero value.

type tokenResponse struct {
	Data *struct {
		Attributes *struct {
			Name     *string  `json:"name"`
			Symbol   *string  `json:"symbol"`
			Decimals *float64 `json:"decimals"`
		} `json:"attributes"`
	} `json:"data"`
	Included []poolResource `json:"included"`
}

type poolResource struct {
	Attributes *struct {
		Address *string `json:"address"`
		Name    *string `json:"name"`
	} `json:"attributes"`
	Relationships *struct {
		BaseToken  *relationship `json:"base_token"`
		QuoteToken *relationship `json:"quote_token"`
	} `json:"relationships"`
}

type relationship struct {
	Data *struct {
		ID *string `json:"id"`
	} `json:"data"`
}

func (r *relationship) id() (string, bool) {
	if r == nil || r.Data == nil || r.Data.ID == nil {
		return "", false
	}
	return *r.Data.ID, true
}

func (r *tokenResponse) toToken() (*Token, error) {
	if r.Data == nil || r.Data.Attributes == nil {
		return nil, fmt.Errorf("token: %w: missing data.attributes", ErrSchema)
	}
	a := r.Data.Attributes
	if a.Name == nil || a.Symbol == nil || a.Decimals == nil {
		return nil, fmt.Errorf("token: %w: missing name, symbol or decimals", ErrSchema)
	}
	if r.Included == nil {
		return nil, fmt.Errorf("token: %w: missing included", ErrSchema)
	}

	t := &Token{
		Name:     *a.Name,
		Symbol:   *a.Symbol,
		Decimals: int(*a.Decimals),
		Pools:    make([]Pool, 0, len(r.Included)),
	}

	for i, p := range r.Included {
		if p.Attributes == nil || p.Attributes.Address == nil || p.Attributes.Name == nil || p.Relationships == nil {
			return nil, fmt.Errorf("token: %w: included[%d] incomplete", ErrSchema, i)
		}
		base, ok := p.Relationships.BaseToken.id()
		if !ok {
			return nil, fmt.Errorf("token: %w: included[%d] missing base_token", ErrSchema, i)
		}
		quote, ok := p.Relationships.QuoteToken.id()
		if !ok {
			return nil, fmt.Errorf("token: %w: included[%d] missing quote_token", ErrSchema, i)
		}
		t.Pools = append(t.Pools, Pool{
			Address:      *p.Attributes.Address,
			Name:         *p.Attributes.Name,
			BaseTokenID:  base,
			QuoteTokenID: quote,
		})
	}
	return t, nil
}

type ohlcvResponse struct {
	Data *struct {
		Attributes *struct {
			OHLCVList *[][]float64 `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

func (r *ohlcvResponse) toCandles() ([]Candle, error) {
	if r.Data == nil || r.Data.Attributes == nil || r.Data.Attributes.OHLCVList == nil {
		return nil, fmt.Errorf("ohlcv: %w: missing data.attributes.ohlcv_list", ErrSchema)
	}

	rows := *r.Data.Attributes.OHLCVList
	candles := make([]Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) != 6 {
			return nil, fmt.Errorf("ohlcv: %w: row %d has %d fields, want 6", ErrSchema, i, len(row))
		}
		candles = append(candles, Candle{
			Timestamp: int64(row[0]),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	return candles, nil
}
