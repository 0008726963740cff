package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"stairsync/internal/errs"
	"stairsync/internal/model"
)

// TokenSource provides the current auth token. Login/refresh is the
// external auth provider's job; a missing or expired token surfaces as
// errs.ErrAuth.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the reporting server: stair report submission, evidence
// image upload and catalog fetch.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *zap.SugaredLogger
}

// New builds a client for the given base URL.
func New(baseURL string, tokens TokenSource, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		tokens:  tokens,
		log:     log,
	}
}

// StairReport is the wire body for one stairway submission.
type StairReport struct {
	Stair             int64    `json:"stair"`
	CodeIdentifiers   []string `json:"code_identifiers"`
	RouteStart        string   `json:"route_start"`
	PathEnd           string   `json:"path_end"`
	MaintenanceStatus string   `json:"maintenance_status"`
	MaintenanceNote   string   `json:"maintenance_note,omitempty"`
	IsWorking         bool     `json:"is_working"`
	IsAligned         bool     `json:"is_aligned"`
	Notes             string   `json:"notes,omitempty"`
}

// ReportFromStair flattens a stair item into its wire form.
func ReportFromStair(st *model.StairItem) StairReport {
	rep := StairReport{
		Stair:             st.StairID,
		CodeIdentifiers:   st.CodeIdentifiers,
		RouteStart:        st.RouteStart,
		PathEnd:           st.PathEnd,
		MaintenanceStatus: string(st.Maintenance),
		MaintenanceNote:   st.MaintenanceNote,
		Notes:             st.Notes,
	}
	if st.IsWorking != nil {
		rep.IsWorking = *st.IsWorking
	}
	if st.IsAligned != nil {
		rep.IsAligned = *st.IsAligned
	}
	return rep
}

type reportResponse struct {
	ID int64 `json:"id"`
}

// SubmitStairReport posts one stairway's metadata and returns the
// server-assigned id.
func (c *Client) SubmitStairReport(ctx context.Context, rep StairReport) (int64, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/stair_report/", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errs.Network(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return 0, fmt.Errorf("%w: server rejected token", errs.ErrAuth)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, errs.NetworkStatus(resp.StatusCode)
	}

	var rr reportResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return 0, fmt.Errorf("decode report response: %w", err)
	}
	if rr.ID == 0 {
		return 0, fmt.Errorf("report response missing id")
	}
	return rr.ID, nil
}

type imageResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// UploadEvidenceImage posts one attachment for an already-submitted report
// as multipart form data and returns the remote key/URL pair. The call is
// idempotent on the server side, so retrying a previously-uploaded image
// is safe.
func (c *Client) UploadEvidenceImage(ctx context.Context, remoteID int64, img model.Image) (string, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", img.FileName)
	if err != nil {
		return "", "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return "", "", err
	}
	if err := w.Close(); err != nil {
		return "", "", err
	}

	url := fmt.Sprintf("%s/api/stair_report/%d/evidence_image/", c.baseURL, remoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := c.authorize(req); err != nil {
		return "", "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", errs.Network(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", "", fmt.Errorf("%w: server rejected token", errs.ErrAuth)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", errs.NetworkStatus(resp.StatusCode)
	}

	var ir imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return "", "", fmt.Errorf("decode image response: %w", err)
	}
	return ir.Key, ir.URL, nil
}

// Catalog is the relational payload of the catalog endpoint.
type Catalog struct {
	Routes   []CatalogRoute       `json:"routes"`
	Stops    []CatalogStop        `json:"stops"`
	Stations []CatalogStationData `json:"stations"`
	Stairs   []CatalogStairData   `json:"stairs"`
}

type CatalogRoute struct {
	ID         int64  `json:"id"`
	ShortName  string `json:"route_short_name"`
	RouteColor string `json:"route_color"`
}

type CatalogStop struct {
	ID        int64 `json:"id"`
	StationID int64 `json:"station"`
}

type CatalogStationData struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Routes []int64 `json:"routes"`
}

type CatalogStairData struct {
	ID        int64 `json:"id"`
	Number    int   `json:"number"`
	StationID int64 `json:"station"`
}

// FetchCatalog retrieves the relational station/route/stair catalog.
func (c *Client) FetchCatalog(ctx context.Context) (*Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/catalogs/all", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Network(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.NetworkStatus(resp.StatusCode)
	}

	var cat Catalog
	if err := json.NewDecoder(resp.Body).Decode(&cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &cat, nil
}

// Flatten derives the per-station display entries and the stairway
// catalog the client actually consumes from the relational payload.
func (cat *Catalog) Flatten() ([]model.Station, []model.CatalogStair) {
	routesByID := make(map[int64]CatalogRoute, len(cat.Routes))
	for _, r := range cat.Routes {
		routesByID[r.ID] = r
	}
	stairCount := make(map[int64]int)
	stairs := make([]model.CatalogStair, 0, len(cat.Stairs))
	for _, st := range cat.Stairs {
		stairCount[st.StationID]++
		stairs = append(stairs, model.CatalogStair{
			ID:        st.ID,
			StationID: st.StationID,
			Number:    st.Number,
		})
	}

	stations := make([]model.Station, 0, len(cat.Stations))
	for _, s := range cat.Stations {
		st := model.Station{
			StationID:   s.ID,
			Name:        s.Name,
			TotalStairs: stairCount[s.ID],
			LineColor:   "#000000",
		}
		if len(s.Routes) > 0 {
			if first, ok := routesByID[s.Routes[0]]; ok {
				st.Line = first.ShortName
				if first.RouteColor != "" {
					st.LineColor = "#" + first.RouteColor
				}
			}
		}
		stations = append(stations, st)
	}
	return stations, stairs
}

func (c *Client) authorize(req *http.Request) error {
	tok, err := c.tokens.Token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+tok)
	return nil
}

// ReadBody drains and returns a response body, for callers that need the
// raw error text.
func ReadBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return strings.TrimSpace(string(b))
}
