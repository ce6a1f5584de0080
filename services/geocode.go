package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"shifttrack/config"
	"shifttrack/repository"
	"shifttrack/utils"
)

// Geocoder resolves coordinates through a Nominatim compatible reverse endpoint and
// caches every answer by its "lat,lng" key.
type Geocoder struct {
	client    *http.Client
	baseURL   string
	userAgent string
	cache     repository.GeoCache
}

func NewGeocoder(cfg config.GeocodeConfig, cache repository.GeoCache) *Geocoder {
	return &Geocoder{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.URL,
		userAgent: cfg.UserAgent,
		cache:     cache,
	}
}

func CacheKey(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}

func (g *Geocoder) Resolve(ctx context.Context, lat, lng float64) (string, error) {
	key := CacheKey(lat, lng)
	if g.cache != nil {
		name, found, err := g.cache.Lookup(ctx, key)
		if err != nil {
			utils.TrackError("geocode", "cache_read_failed")
		} else if found {
			return name, nil
		}
	}

	name, err := g.reverse(ctx, lat, lng)
	if err != nil {
		return "", err
	}

	if g.cache != nil {
		if err := g.cache.Store(ctx, key, name, g.baseURL); err != nil {
			utils.TrackError("geocode", "cache_write_failed")
		}
	}
	return name, nil
}

func (g *Geocoder) reverse(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		utils.TrackExternalCall("geocoder", start, err)
		return "", fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("geocode provider returned %d", resp.StatusCode)
		utils.TrackExternalCall("geocoder", start, err)
		return "", err
	}
	utils.TrackExternalCall("geocoder", start, nil)

	var result struct {
		DisplayName string            `json:"display_name"`
		Address     map[string]string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode geocode response: %w", err)
	}

	if result.DisplayName != "" {
		return result.DisplayName, nil
	}
	if len(result.Address) > 0 {
		keys := make([]string, 0, len(result.Address))
		for k := range result.Address {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, result.Address[k])
		}
		return strings.Join(parts, ", "), nil
	}
	return "", fmt.Errorf("geocode provider returned no name")
}
