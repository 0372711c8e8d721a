package api

import "context"

// HealthStatus is the backend health report
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Profile is the signed-in user as the backend knows them
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	h, err := Get[HealthStatus](ctx, c, "/health")
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Me returns the profile of the session owner. It fails with a 401 *Error
// when there is no session.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	p, err := Get[Profile](ctx, c, "/me")
	if err != nil {
		return nil, err
	}
	return &p, nil
}
