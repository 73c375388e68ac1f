package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const avnuQuotesPath = "/swap/v2/quotes"

// AVNUOptions parameterise the AVNU quote client.
type AVNUOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// QuoteInterval paces consecutive quote requests. Zero disables pacing.
	QuoteInterval time.Duration
}

// AVNU fetches swap quotes from the AVNU aggregator. Every failure mode
// (transport, non-200 status, empty body, malformed payload) is folded into
// an *Error; the client never returns a partially decoded quote.
type AVNU struct {
	opts    AVNUOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewAVNU constructs an AVNU quote source.
func NewAVNU(opts AVNUOptions, logger zerolog.Logger) *AVNU {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://starknet.api.avnu.fi"
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.QuoteInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.QuoteInterval), 1)
	}

	return &AVNU{
		opts:    opts,
		logger:  logger.With().Str("component", "avnu_oracle").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: limiter,
	}
}

// Quote requests one quote for selling sellAmountRaw of the sell asset.
// When the venue returns multiple candidate routes the first one is
// authoritative.
func (a *AVNU) Quote(ctx context.Context, sellAddress, buyAddress string, sellAmountRaw *big.Int) (Quote, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return Quote{}, &Error{Kind: KindTransport, Err: err}
	}

	params := url.Values{}
	params.Set("sellTokenAddress", sellAddress)
	params.Set("buyTokenAddress", buyAddress)
	params.Set("sellAmount", hexutil.EncodeBig(sellAmountRaw))

	endpoint := a.baseURL + avnuQuotesPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, &Error{Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(a.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "depthwatch/1.0")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Debug().Err(err).Msg("quote request failed")
		return Quote{}, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, &Error{Kind: KindTransport, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		a.logger.Debug().Int("status", resp.StatusCode).Msg("quote request rejected")
		return Quote{}, &Error{Kind: KindHTTPStatus, Status: resp.StatusCode}
	}

	var routes []avnuQuote
	if err := json.Unmarshal(payload, &routes); err != nil {
		return Quote{}, &Error{Kind: KindDecode, Err: err}
	}
	if len(routes) == 0 {
		return Quote{}, &Error{Kind: KindEmptyResponse}
	}

	return routes[0].toQuote()
}

type avnuQuote struct {
	SellAmount          string  `json:"sellAmount"`
	BuyAmount           string  `json:"buyAmount"`
	SellTokenPriceInUsd float64 `json:"sellTokenPriceInUsd"`
	BuyTokenPriceInUsd  float64 `json:"buyTokenPriceInUsd"`
	GasFeesInUsd        float64 `json:"gasFeesInUsd"`
	AvnuFeesInUsd       float64 `json:"avnuFeesInUsd"`
}

func (q avnuQuote) toQuote() (Quote, error) {
	sellRaw, err := parseRawAmount(q.SellAmount)
	if err != nil {
		return Quote{}, &Error{Kind: KindDecode, Err: fmt.Errorf("parse sellAmount: %w", err)}
	}
	buyRaw, err := parseRawAmount(q.BuyAmount)
	if err != nil {
		return Quote{}, &Error{Kind: KindDecode, Err: fmt.Errorf("parse buyAmount: %w", err)}
	}

	return Quote{
		SellAmountRaw: sellRaw,
		BuyAmountRaw:  buyRaw,
		SellPriceUSD:  decimal.NewFromFloat(q.SellTokenPriceInUsd),
		BuyPriceUSD:   decimal.NewFromFloat(q.BuyTokenPriceInUsd),
		FeesUSD:       decimal.NewFromFloat(q.GasFeesInUsd).Add(decimal.NewFromFloat(q.AvnuFeesInUsd)),
	}, nil
}

// parseRawAmount accepts the venue's amount encodings: 0x-prefixed base-16
// or plain base-10 digits.
func parseRawAmount(v string) (*big.Int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, fmt.Errorf("empty amount")
	}
	base := 10
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		v = v[2:]
		base = 16
	}
	amount, ok := new(big.Int).SetString(v, base)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", v)
	}
	return amount, nil
}

var _ Source = (*AVNU)(nil)
