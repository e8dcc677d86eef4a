// Package sources talks to the upstream mesh dashboard: feed fetching,
// export parsing, and the live event stream.
package sources

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/meshwatch/mesh-topo/pkg/topoengine"
)

// Dashboard exports arrive in three shapes: a bare JSON array, an envelope
// object keyed by feed name, and NDJSON (one record per line, also the
// capture replay format). The parsers sniff the shape instead of making the
// caller declare it.

func ParseNodes(r io.Reader) ([]topoengine.Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var nodes []topoengine.Node
		if err := json.Unmarshal(data, &nodes); err != nil {
			return nil, fmt.Errorf("node array: %w", err)
		}
		return nodes, nil
	}

	var envelope struct {
		Nodes []topoengine.Node `json:"nodes"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Nodes != nil {
		return envelope.Nodes, nil
	}

	return scanNodeLines(bytes.NewReader(data))
}

func ParseTraceroutes(r io.Reader) ([]topoengine.Traceroute, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var traceroutes []topoengine.Traceroute
		if err := json.Unmarshal(data, &traceroutes); err != nil {
			return nil, fmt.Errorf("traceroute array: %w", err)
		}
		return traceroutes, nil
	}

	var envelope struct {
		Traceroutes []topoengine.Traceroute `json:"traceroutes"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Traceroutes != nil {
		return envelope.Traceroutes, nil
	}

	return scanTracerouteLines(bytes.NewReader(data))
}

func scanNodeLines(r io.Reader) ([]topoengine.Node, error) {
	var nodes []topoengine.Node
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var n topoengine.Node
		if err := json.Unmarshal([]byte(line), &n); err != nil || n.Num == 0 {
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, scanner.Err()
}

func scanTracerouteLines(r io.Reader) ([]topoengine.Traceroute, error) {
	var traceroutes []topoengine.Traceroute
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var tr topoengine.Traceroute
		if err := json.Unmarshal([]byte(line), &tr); err != nil {
			continue
		}
		if len(tr.Route) == 0 && len(tr.RouteBack) == 0 {
			continue
		}
		traceroutes = append(traceroutes, tr)
	}
	return traceroutes, scanner.Err()
}
