package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DisplayInfo is what the chat surface needs to render a user.
type DisplayInfo struct {
	UserID    int    `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Directory resolves user ids to display info. The user service owns the
// data; this service only decorates responses with it.
type Directory interface {
	GetDisplayInfo(ctx context.Context, userID int) (DisplayInfo, error)
	BulkDisplayInfo(ctx context.Context, userIDs []int) (map[int]DisplayInfo, error)
}

// HTTPDirectory talks to the user service's internal REST API.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory constructs an HTTPDirectory.
func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// GetDisplayInfo fetches one user's display info.
func (d *HTTPDirectory) GetDisplayInfo(ctx context.Context, userID int) (DisplayInfo, error) {
	var info DisplayInfo
	err := d.getJSON(ctx, fmt.Sprintf("%s/internal/users/%d", d.baseURL, userID), &info)
	return info, err
}

// BulkDisplayInfo fetches several users in one round trip.
func (d *HTTPDirectory) BulkDisplayInfo(ctx context.Context, userIDs []int) (map[int]DisplayInfo, error) {
	result := make(map[int]DisplayInfo, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, strconv.Itoa(id))
	}
	var infos []DisplayInfo
	url := fmt.Sprintf("%s/internal/users?ids=%s", d.baseURL, strings.Join(ids, ","))
	if err := d.getJSON(ctx, url, &infos); err != nil {
		return nil, err
	}
	for _, info := range infos {
		result[info.UserID] = info
	}
	return result, nil
}

func (d *HTTPDirectory) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
