// Package dockercloud is a cloud reader that inventories containers on a
// Docker (or Docker-compatible) engine, grounded on clouds/azvm.py's
// per-resource enumeration and the teacher's own Docker SDK usage.
package dockercloud

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/cloudwarden/cloudwarden/internal/plugin"
	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/dockercloud.DockerCloud", New)
}

// DockerCloud reads container inventory from a single Docker engine. host
// is a Docker endpoint (e.g. "unix:///var/run/docker.sock" or
// "tcp://host:2375"); an empty host defers to the engine's own
// environment-variable resolution (DOCKER_HOST and friends).
type DockerCloud struct {
	host    string
	maxRecs int
}

// New constructs a DockerCloud from its descriptor params: host (string,
// default ""), max_records (int, default 0 meaning unlimited; a positive
// value keeps only the first max_records containers listed).
func New(params map[string]interface{}) (interface{}, error) {
	d := &DockerCloud{}
	if v, ok := params["host"].(string); ok {
		d.host = v
	}
	if v, ok := params["max_records"].(int); ok {
		d.maxRecs = v
	} else if v, ok := params["max_records"].(float64); ok {
		d.maxRecs = int(v)
	}
	return d, nil
}

// Read implements plugin.CloudReader.
func (d *DockerCloud) Read(ctx context.Context) (plugin.RecordCursor, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if d.host != "" {
		opts = append(opts, client.WithHost(d.host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("dockercloud: connect: %w", err)
	}

	summaries, err := cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("dockercloud: list containers: %w", err)
	}
	cli.Close()

	if d.maxRecs > 0 && len(summaries) > d.maxRecs {
		summaries = summaries[:d.maxRecs]
	}

	recs := make([]record.Record, 0, len(summaries))
	for _, c := range summaries {
		recs = append(recs, toRecord(c))
	}
	return plugin.NewSliceCursor(recs), nil
}

// Done implements plugin.CloudReader.
func (d *DockerCloud) Done() {}

func toRecord(c container.Summary) record.Record {
	rec := record.New()
	rec.Raw["container_id"] = c.ID
	rec.Raw["image_id"] = c.ImageID

	name := ""
	if len(c.Names) > 0 {
		name = c.Names[0]
	}

	ports := make([]string, 0, len(c.Ports))
	for _, p := range c.Ports {
		ports = append(ports, fmt.Sprintf("%s:%d->%d/%s", p.IP, p.PublicPort, p.PrivatePort, p.Type))
	}

	rec.Ext["record_type"] = "docker_container"
	rec.Ext["cloud_type"] = "docker"
	rec.Ext["reference"] = name
	rec.Ext["name"] = name
	rec.Ext["image"] = c.Image
	rec.Ext["state"] = c.State
	rec.Ext["status"] = c.Status
	rec.Ext["labels"] = c.Labels
	rec.Ext["ports"] = ports
	rec.Ext["privileged"] = isPrivileged(c)
	return rec
}

func isPrivileged(c container.Summary) bool {
	if c.HostConfig.NetworkMode == "host" {
		return true
	}
	return false
}
