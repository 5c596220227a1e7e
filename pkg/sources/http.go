package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/qosmetric/pkg/curves"
)

// HTTPRepository fetches curves from a REST API and extracts them with gjson
// paths.
//
// URL, Body and header values are text/template strings rendered with:
//
//	{{.Kind}}      - "inventory" or "consumption"
//	{{.Location}}  - the requested location
//	{{.Week}}      - the week as DD.MM.YYYY
//	{{.WeekStart}} - the week start as YYYY-MM-DD
//
// plus any TemplateVars. In the URL every value is percent-encoded, so it is
// safe in both a path segment and a query parameter: "Example AG" renders as
// "Example%20AG" and "A&B" as "A%26B". {{.Raw.Location}} and the like give
// the unescaped value for URL parts that must not be encoded. Body and
// headers always get the raw values. A response such as
//
//	{"curves": [{"product": "p1", "x": [0, 60], "y": [3.5, 2]}]}
//
// is read with the default paths. Curves are returned ordered by product.
type HTTPRepository struct {
	// URL is the endpoint template (required).
	URL string

	// Method defaults to GET.
	Method string

	Headers map[string]string
	Body    string

	// CurvesPath selects the array of curve objects. Defaults to "curves".
	CurvesPath string

	// ProductPath, OffsetsPath and ValuesPath are relative to a curve
	// object. They default to "product", "x" and "y".
	ProductPath string
	OffsetsPath string
	ValuesPath  string

	// HealthURL, when set, is requested by Ping.
	HealthURL string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	TemplateVars map[string]string
}

// GetInventoryCurves implements curves.Repository.
func (h *HTTPRepository) GetInventoryCurves(ctx context.Context, location string, weekStart time.Time) ([]curves.Curve, error) {
	return h.fetch(ctx, "inventory", location, weekStart)
}

// GetConsumptionCurves implements curves.Repository.
func (h *HTTPRepository) GetConsumptionCurves(ctx context.Context, location string, weekStart time.Time) ([]curves.Curve, error) {
	return h.fetch(ctx, "consumption", location, weekStart)
}

// Ping sends a GET to HealthURL. Without one it always succeeds.
func (h *HTTPRepository) Ping(ctx context.Context) error {
	if h.HealthURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.HealthURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := h.client().Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned http status %d", resp.StatusCode)
	}
	return nil
}

// ValidateConfig checks that the repository can be used.
func (h *HTTPRepository) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	for name, tmpl := range map[string]string{"url": h.URL, "body": h.Body} {
		if _, err := template.New(name).Parse(tmpl); err != nil {
			return fmt.Errorf("invalid %s template: %w", name, err)
		}
	}
	return nil
}

func (h *HTTPRepository) client() *http.Client {
	if h.HTTPClient != nil {
		return h.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (h *HTTPRepository) fetch(ctx context.Context, kind, location string, weekStart time.Time) ([]curves.Curve, error) {
	if h.URL == "" {
		return nil, errors.New("http source: URL is required")
	}

	templateData := map[string]any{
		"Kind":      kind,
		"Location":  location,
		"Week":      curves.FormatWeek(weekStart),
		"WeekStart": weekStart.Format(time.DateOnly),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	target, err := renderTemplate(h.URL, escapeValues(templateData))
	if err != nil {
		return nil, fmt.Errorf("render url template: %w", err)
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := h.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(respBody) {
		return nil, errors.New("response is not valid JSON")
	}

	return h.parse(respBody, weekStart)
}

func (h *HTTPRepository) parse(body []byte, weekStart time.Time) ([]curves.Curve, error) {
	list := gjson.GetBytes(body, orDefault(h.CurvesPath, "curves"))
	if !list.Exists() {
		return nil, nil
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("curves path %q is not an array", orDefault(h.CurvesPath, "curves"))
	}

	productPath := orDefault(h.ProductPath, "product")
	offsetsPath := orDefault(h.OffsetsPath, "x")
	valuesPath := orDefault(h.ValuesPath, "y")

	items := list.Array()
	out := make([]curves.Curve, 0, len(items))
	for i, item := range items {
		product := item.Get(productPath).String()

		xs := item.Get(offsetsPath).Array()
		ys := item.Get(valuesPath).Array()

		offsets := make([]int, len(xs))
		for j, x := range xs {
			offsets[j] = int(x.Int())
		}
		values := make([]float64, len(ys))
		for j, y := range ys {
			values[j] = y.Float()
		}

		c, err := curves.New(product, weekStart, offsets, values)
		if err != nil {
			return nil, fmt.Errorf("curve[%d]: %w", i, err)
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Product < out[j].Product
	})

	return out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// escapeValues returns a copy of data with every string percent-encoded and
// the originals under "Raw".
func escapeValues(data map[string]any) map[string]any {
	escaped := make(map[string]any, len(data)+1)
	raw := make(map[string]any, len(data))
	for k, v := range data {
		raw[k] = v
		if s, ok := v.(string); ok {
			escaped[k] = escapeComponent(s)
			continue
		}
		escaped[k] = v
	}
	escaped["Raw"] = raw
	return escaped
}

// escapeComponent percent-encodes everything but unreserved characters.
// url.QueryEscape writes spaces as "+", which a path does not decode.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// renderTemplate renders a text template with the given data.
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
