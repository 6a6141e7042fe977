package sun

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// openMeteoTimeLayout matches the naive local datetimes Open-Meteo
// returns when a timezone parameter is supplied.
const openMeteoTimeLayout = "2006-01-02T15:04"

// OpenMeteo fetches daily sunrise/sunset from the Open-Meteo forecast
// API. No API key is required.
type OpenMeteo struct {
	baseURL string
	lat     float64
	lon     float64
	loc     *time.Location
	httpc   *http.Client
}

func NewOpenMeteo(baseURL string, lat, lon float64, loc *time.Location, timeout time.Duration) *OpenMeteo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenMeteo{
		baseURL: baseURL,
		lat:     lat,
		lon:     lon,
		loc:     loc,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (c *OpenMeteo) SunTimes(ctx context.Context, day time.Time) (Times, error) {
	d := day.In(c.loc).Format("2006-01-02")

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", c.lat))
	q.Set("longitude", fmt.Sprintf("%.4f", c.lon))
	q.Set("daily", "sunrise,sunset")
	q.Set("timezone", c.loc.String())
	q.Set("start_date", d)
	q.Set("end_date", d)

	u := c.baseURL + "/v1/forecast?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Times{}, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Times{}, fmt.Errorf("open-meteo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Times{}, fmt.Errorf("open-meteo: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Daily struct {
			Sunrise []string `json:"sunrise"`
			Sunset  []string `json:"sunset"`
		} `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Times{}, fmt.Errorf("open-meteo: decode: %w", err)
	}
	if len(body.Daily.Sunrise) == 0 || len(body.Daily.Sunset) == 0 {
		return Times{}, fmt.Errorf("open-meteo: no sun times for %s", d)
	}

	sunrise, err := time.ParseInLocation(openMeteoTimeLayout, body.Daily.Sunrise[0], c.loc)
	if err != nil {
		return Times{}, fmt.Errorf("open-meteo: sunrise %q: %w", body.Daily.Sunrise[0], err)
	}
	sunset, err := time.ParseInLocation(openMeteoTimeLayout, body.Daily.Sunset[0], c.loc)
	if err != nil {
		return Times{}, fmt.Errorf("open-meteo: sunset %q: %w", body.Daily.Sunset[0], err)
	}
	return Times{Sunrise: sunrise, Sunset: sunset}, nil
}
