package shopee

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/FranksOps/shopscout/internal/storage"
)

// ShopID is Shopee's seller identifier. The API sends it as a JSON number,
// but it is treated as opaque text so string IDs decode too.
type ShopID string

// UnmarshalJSON accepts a number or a string. Null and any other JSON kind
// decode to the empty identifier so the item is skipped, not the page.
func (id *ShopID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*id = ""
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*id = ShopID(strings.TrimSpace(s))
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(b, &n); err == nil {
			*id = ShopID(n.String())
		}
	}
	return nil
}

// Valid reports whether the identifier refers to a shop. Zero is treated
// like a missing value.
func (id ShopID) Valid() bool {
	return id != "" && id != "0"
}

// SearchHit is one search result reduced to the seller it references.
type SearchHit struct {
	ShopID ShopID
}

type searchResponse struct {
	Items    []searchItem `json:"items"`
	Error    *int64       `json:"error"`
	ErrorMsg *string      `json:"error_msg"`
}

type searchItem struct {
	ItemBasic *itemBasic
}

// UnmarshalJSON leaves the item empty when it, or its item_basic, is not an
// object.
func (it *searchItem) UnmarshalJSON(b []byte) error {
	*it = searchItem{}

	var raw struct {
		ItemBasic json.RawMessage `json:"item_basic"`
	}
	if err := json.Unmarshal(b, &raw); err != nil || len(raw.ItemBasic) == 0 {
		return nil
	}

	var basic *itemBasic
	if err := json.Unmarshal(raw.ItemBasic, &basic); err != nil {
		return nil
	}
	it.ItemBasic = basic
	return nil
}

type itemBasic struct {
	ShopID ShopID `json:"shopid"`
}

// hits keeps endpoint order and drops items without a seller identifier.
func (r *searchResponse) hits() []SearchHit {
	out := make([]SearchHit, 0, len(r.Items))
	for _, item := range r.Items {
		if item.ItemBasic == nil || !item.ItemBasic.ShopID.Valid() {
			continue
		}
		out = append(out, SearchHit{ShopID: item.ItemBasic.ShopID})
	}
	return out
}

type shopDetailResponse struct {
	Data json.RawMessage `json:"data"`
}

type shopDetail struct {
	Name    *string `json:"name"`
	Account *struct {
		Username *string `json:"username"`
	} `json:"account"`
	Place      *string      `json:"place"`
	RatingStar *float64     `json:"rating_star"`
	ItemCount  *json.Number `json:"item_count"`
}

// decodeShopDetail returns nil, nil when data is missing or empty: null,
// false, 0, "", [] or {}. Any other non-object is an error.
func decodeShopDetail(data json.RawMessage) (*shopDetail, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if !x {
			return nil, nil
		}
	case string:
		if x == "" {
			return nil, nil
		}
	case json.Number:
		if f, err := x.Float64(); err == nil && f == 0 {
			return nil, nil
		}
	case []any:
		if len(x) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(x) == 0 {
			return nil, nil
		}
		var d shopDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return &d, nil
	}
	return nil, fmt.Errorf("expected an object, got %s", data)
}

// storefront maps a shop-detail payload onto the flat export record.
func (d *shopDetail) storefront(baseURL string, id ShopID) storage.Storefront {
	s := storage.Storefront{
		ShopID:   string(id),
		Name:     deref(d.Name),
		Location: deref(d.Place),
	}
	if d.Account != nil {
		s.Username = deref(d.Account.Username)
	}
	if s.Username != "" {
		s.URL = StorefrontURL(baseURL, s.Username)
	}
	if d.RatingStar != nil {
		s.Rating = RoundRating(*d.RatingStar)
	}
	if d.ItemCount != nil {
		if n, ok := parseCount(*d.ItemCount); ok {
			s.ItemCount = &n
		}
	}
	return s
}

// StorefrontURL derives the public shop page from the platform base URL.
func StorefrontURL(baseURL, username string) string {
	return strings.TrimRight(baseURL, "/") + "/" + username
}

// RoundRating rounds to two decimal places. NaN and infinities become 0.
func RoundRating(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}

func parseCount(n json.Number) (int64, bool) {
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
