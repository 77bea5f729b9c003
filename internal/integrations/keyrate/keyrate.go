package keyrate

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	"github.com/socertis/bnpl-simulator/internal/config"
)

const (
	soapNamespace = "http://www.w3.org/2003/05/soap-envelope"
	keyRateAction = "http://web.cbr.ru/KeyRate"

	// lookback bounds the requested series; the central bank publishes the
	// key rate far less often than daily.
	lookback = 30 * 24 * time.Hour
)

// Observation is one published key-rate value.
type Observation struct {
	Date time.Time
	Rate float64
}

// Client fetches the central bank key-rate series over SOAP. Merchants use
// the latest observation plus the configured margin as a suggested annual
// rate for new plans.
type Client struct {
	url    string
	margin float64
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new key rate client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url:    cfg.KeyRateURL,
		margin: cfg.KeyRateMargin,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// envelope builds the SOAP request asking for the key rate between two dates.
func envelope(from, to time.Time) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	env := doc.CreateElement("soap12:Envelope")
	env.CreateAttr("xmlns:soap12", soapNamespace)
	body := env.CreateElement("soap12:Body")
	req := body.CreateElement("KeyRate")
	req.CreateAttr("xmlns", "http://web.cbr.ru/")
	req.CreateElement("fromDate").SetText(from.Format("2006-01-02"))
	req.CreateElement("ToDate").SetText(to.Format("2006-01-02"))
	return doc.WriteToBytes()
}

// Series requests the key-rate observations published between from and to,
// newest first.
func (c *Client) Series(from, to time.Time) ([]Observation, error) {
	payload, err := envelope(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", keyRateAction)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debugf("Key rate XML response: %s", string(raw))

	return parseSeries(raw)
}

// parseSeries extracts dated observations from the diffgram rows of the SOAP
// response and sorts them newest first.
func parseSeries(raw []byte) ([]Observation, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	var series []Observation
	for _, row := range doc.FindElements("//diffgram/KeyRate/KR") {
		dateEl, rateEl := row.SelectElement("DT"), row.SelectElement("Rate")
		if dateEl == nil || rateEl == nil {
			continue
		}
		// DT carries a full timestamp with offset; the date part alone
		// orders the series.
		text := strings.TrimSpace(dateEl.Text())
		if len(text) > 10 {
			text = text[:10]
		}
		date, err := time.Parse("2006-01-02", text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse observation date %q: %w", dateEl.Text(), err)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(rateEl.Text()), 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rate %q: %w", rateEl.Text(), err)
		}
		series = append(series, Observation{Date: date, Rate: rate})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no key rate data found in response")
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.After(series[j].Date) })
	return series, nil
}

// SuggestedRate returns the most recently published key rate plus the
// configured margin.
func (c *Client) SuggestedRate() (float64, error) {
	to := time.Now()
	series, err := c.Series(to.Add(-lookback), to)
	if err != nil {
		return 0, err
	}

	latest := series[0]
	rate := latest.Rate + c.margin
	c.log.Infof("Key rate %.2f%% as of %s, suggesting %.2f%% with %.2f%% margin",
		latest.Rate, latest.Date.Format("2006-01-02"), rate, c.margin)
	return rate, nil
}
