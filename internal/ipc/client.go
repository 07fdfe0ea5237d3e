package ipc

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"resty.dev/v3"
)

// Client talks to a running compositor over its control socket.
type Client struct {
	c *resty.Client
}

func NewClient(sockPath string) *Client {
	client := resty.NewWithClient(&http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sockPath)
			},
		},
	})

	client.SetBaseURL("http://drmcomp")
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "drmcomp")

	return &Client{c: client}
}

func (c *Client) Close() error {
	return c.c.Close()
}

func (c *Client) Status() (*StatusResponse, error) {
	result := StatusResponse{}

	response, err := c.c.R().SetResult(&result).Get("/status")
	if err != nil {
		return nil, err
	}
	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("error getting status: %s", response.Status())
	}
	return &result, nil
}

func (c *Client) Stop() error {
	_, err := c.post("/stop", nil)
	return err
}

func (c *Client) Snapshot(path string) (*Response, error) {
	return c.post("/snapshot", SnapshotRequest{Path: path})
}

func (c *Client) post(path string, body any) (*Response, error) {
	result := Response{}

	req := c.c.R().SetResult(&result).SetError(&result)
	if body != nil {
		req.SetBody(body)
	}
	response, err := req.Post(path)
	if err != nil {
		return nil, err
	}
	if response.StatusCode() != http.StatusOK {
		if result.Error != "" {
			return nil, fmt.Errorf("error sending %s: %s", path, result.Error)
		}
		return nil, fmt.Errorf("error sending %s: %s", path, response.Status())
	}
	return &result, nil
}

// SendStatus queries the compositor on the default control socket.
func SendStatus() (*StatusResponse, error) {
	c := NewClient(SocketPath())
	defer c.Close()
	return c.Status()
}

func SendStop() error {
	c := NewClient(SocketPath())
	defer c.Close()
	return c.Stop()
}

func SendSnapshot(path string) (*Response, error) {
	c := NewClient(SocketPath())
	defer c.Close()
	return c.Snapshot(path)
}
