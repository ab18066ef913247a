package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field ranges and the rules that span several fields.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if err := c.validateMap(); err != nil {
		return err
	}
	if err := c.validateTiles(); err != nil {
		return err
	}
	return c.validateStations()
}

func (c *Config) validateMap() error {
	m := c.Map
	if m.MinZoom > m.MaxZoom {
		return fmt.Errorf("map.min_zoom (%d) is above map.max_zoom (%d)", m.MinZoom, m.MaxZoom)
	}
	if m.DefaultZoom < m.MinZoom || m.DefaultZoom > m.MaxZoom {
		return fmt.Errorf("map.default_zoom (%d) is outside [%d, %d]", m.DefaultZoom, m.MinZoom, m.MaxZoom)
	}
	return nil
}

func (c *Config) validateTiles() error {
	if c.Tiles.FetchTimeout < c.Tiles.Timeout {
		return fmt.Errorf("tiles.fetch_timeout (%s) is shorter than tiles.timeout (%s)", c.Tiles.FetchTimeout, c.Tiles.Timeout)
	}
	if c.Tiles.Source != "http" {
		return nil
	}
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(c.Tiles.URL, p) {
			return fmt.Errorf("tiles.url %q lacks the %s placeholder", c.Tiles.URL, p)
		}
	}
	return validateHTTPURL("tiles.url", c.Tiles.URL)
}

func (c *Config) validateStations() error {
	switch c.Stations.Source {
	case "file":
		if c.Stations.Path == "" {
			return errors.New("stations.path is required when stations.source is file")
		}
	case "http":
		if c.Stations.URL == "" {
			return errors.New("stations.url is required when stations.source is http")
		}
		return validateHTTPURL("stations.url", c.Stations.URL)
	}
	return nil
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host", name)
	}
	return nil
}
