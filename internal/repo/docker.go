package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ComposeServiceLabel carries the logical service name on compose-managed
// containers; the container name is the fallback when it is absent.
const ComposeServiceLabel = "com.docker.compose.service"

// ContainerSummary is one row of the platform's container listing.
type ContainerSummary struct {
	ID     string            `json:"Id"`
	Names  []string          `json:"Names"`
	Image  string            `json:"Image"`
	State  string            `json:"State"`
	Labels map[string]string `json:"Labels"`
}

// ServiceLabel resolves the logical service label for the container.
func (c ContainerSummary) ServiceLabel() string {
	if name, ok := c.Labels[ComposeServiceLabel]; ok && name != "" {
		return name
	}
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	return c.ID
}

// ContainerDetail is the subset of the inspect payload the executor needs:
// the lifecycle state for anomaly detection and the restart policy so it can
// be put back after a chaos window.
type ContainerDetail struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Status string `json:"Status"`
	} `json:"State"`
	HostConfig struct {
		RestartPolicy struct {
			Name string `json:"Name"`
		} `json:"RestartPolicy"`
	} `json:"HostConfig"`
}

// PlatformClient talks to the container platform's Engine API over its unix
// socket. All operations are per-container and may fail independently.
type PlatformClient struct {
	httpClient *http.Client
}

// NewPlatformClient constructs a client dialing the given socket path.
func NewPlatformClient(socketPath string, timeout time.Duration) *PlatformClient {
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PlatformClient{httpClient: &http.Client{Transport: transport, Timeout: timeout}}
}

// ListContainers enumerates containers with their state and labels. With
// all=true, stopped containers are included so restoration can find them.
func (c *PlatformClient) ListContainers(ctx context.Context, all bool) ([]ContainerSummary, error) {
	path := "/containers/json"
	if all {
		path += "?all=1"
	}
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out []ContainerSummary
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode container list: %w", err)
	}
	return out, nil
}

// InspectContainer returns lifecycle state and restart policy for one container.
func (c *PlatformClient) InspectContainer(ctx context.Context, id string) (ContainerDetail, error) {
	body, err := c.do(ctx, http.MethodGet, "/containers/"+id+"/json", nil)
	if err != nil {
		return ContainerDetail{}, err
	}
	var out ContainerDetail
	if err := json.Unmarshal(body, &out); err != nil {
		return ContainerDetail{}, fmt.Errorf("decode inspect for %s: %w", id, err)
	}
	return out, nil
}

// StopContainer issues a stop with the given grace period (rounded up to a
// whole second, minimum one) before the platform sends SIGKILL.
func (c *PlatformClient) StopContainer(ctx context.Context, id string, grace time.Duration) error {
	secs := int(grace.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/containers/%s/stop?t=%d", id, secs), nil)
	return err
}

// StartContainer starts a stopped container. A 304 from the platform
// (already started) is not an error.
func (c *PlatformClient) StartContainer(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/containers/"+id+"/start", nil)
	return err
}

// SetRestartPolicy updates a container's restart policy. Victims get "no"
// before the stop so the platform cannot undermine the fail-stop assumption,
// and their original policy back on restore.
func (c *PlatformClient) SetRestartPolicy(ctx context.Context, id, policy string) error {
	if policy == "" {
		policy = "no"
	}
	payload, err := json.Marshal(map[string]any{
		"RestartPolicy": map[string]string{"Name": policy},
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/containers/"+id+"/update", payload)
	return err
}

func (c *PlatformClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	// 304 means the container is already in the requested state.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotModified {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("platform api %s %s failed: %s", method, path, msg)
	}
	return data, nil
}
