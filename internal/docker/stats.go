package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/vitalis-app/dockdash/internal/derive"
)

// ErrNoStats is returned when the Engine closes the stats stream without a
// sample, which happens when the container stops mid-request.
var ErrNoStats = errors.New("no stats sample returned")

// ContainerStats fetches one non-streaming stats sample. With stream=false
// the Engine waits for a second reading and returns it together with the
// previous one in precpu_stats, so no sample pairing is kept here.
func (c *Client) ContainerStats(ctx context.Context, id string) (*derive.RawContainerStats, error) {
	resp, err := c.cli.ContainerStats(ctx, id, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeStats(resp.Body)
}

func decodeStats(r io.Reader) (*derive.RawContainerStats, error) {
	var raw derive.RawContainerStats
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoStats
		}
		return nil, fmt.Errorf("decoding stats: %w", err)
	}
	return &raw, nil
}
