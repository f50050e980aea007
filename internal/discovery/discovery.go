// Package discovery sweeps a host list or CIDR for devices speaking the
// version protocol and registers every responder.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/dvp"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/fleetver/fleetver/internal/util"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout  = 800 * time.Millisecond
	DefaultMaxHosts = 1024
	DefaultPort     = 80

	// maxWorkers caps the sweep fan-out regardless of the configured poll
	// worker count.
	maxWorkers = 32
)

// ExpandCIDR lists the host addresses of a network, capped at maxHosts.
// The prefix is parsed non-strictly: host bits are masked off. For IPv4
// networks wider than /31 the network and broadcast addresses are
// excluded; for IPv6 the subnet-router anycast address is.
func ExpandCIDR(cidr string, maxHosts int) ([]string, error) {
	if maxHosts < 1 {
		maxHosts = DefaultMaxHosts
	}
	_, ipnet, err := net.ParseCIDR(strings.TrimSpace(cidr))
	if err != nil {
		return nil, err
	}
	ones, bits := ipnet.Mask.Size()

	ip := make(net.IP, len(ipnet.IP))
	copy(ip, ipnet.IP)

	skipFirst := (bits == 32 && ones < 31) || (bits == 128 && ones < 127)
	var broadcast net.IP
	if bits == 32 && ones < 31 {
		broadcast = make(net.IP, len(ipnet.IP))
		for i := range ipnet.IP {
			broadcast[i] = ipnet.IP[i] | ^ipnet.Mask[i]
		}
	}

	var hosts []string
	for current := ip; ipnet.Contains(current); incIP(current) {
		if skipFirst {
			skipFirst = false
			continue
		}
		if broadcast != nil && current.Equal(broadcast) {
			break
		}
		hosts = append(hosts, current.String())
		if len(hosts) >= maxHosts {
			break
		}
	}
	return hosts, nil
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}

// TrimHosts keeps the non-empty entries of an explicit host list.
func TrimHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// Params describes one sweep. Targets must already be expanded.
type Params struct {
	ClusterID       int64
	Targets         []string
	Port            int
	Path            string
	Protocol        string
	AuthType        string
	AuthToken       *string
	LineNo          *string
	DeviceKeyPrefix string
	Timeout         time.Duration
	Workers         int
}

type Discoverer struct {
	store  store.Store
	client *dvp.Client
	log    logrus.FieldLogger
}

func New(st store.Store, client *dvp.Client, log logrus.FieldLogger) *Discoverer {
	return &Discoverer{store: st, client: client, log: log}
}

// Run probes every target and upserts the responders whose payload
// identifies them. Each responder's probe is kept as its first success
// snapshot so the device is not "never_polled" after a sweep.
func (d *Discoverer) Run(ctx context.Context, params Params) *api.DiscoverResponse {
	if params.Port < 1 {
		params.Port = DefaultPort
	}
	if params.Path == "" {
		params.Path = dvp.DefaultPath
	}
	if params.Protocol == "" {
		params.Protocol = dvp.ProtocolDVP1HTTP
	}
	if params.AuthType == "" {
		params.AuthType = dvp.AuthNone
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultTimeout
	}
	workers := params.Workers
	if workers < 1 || workers > maxWorkers {
		workers = maxWorkers
	}

	startedAt := time.Now().UTC()
	items := make([]api.DiscoverItem, len(params.Targets))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i, ip := range params.Targets {
		i, ip := i, ip
		group.Go(func() error {
			items[i] = d.probe(groupCtx, ip, params)
			return nil
		})
	}
	_ = group.Wait()

	response := &api.DiscoverResponse{
		StartedAt:  util.TimeToStr(startedAt),
		FinishedAt: util.TimeToStr(time.Now().UTC()),
		Targets:    len(params.Targets),
		Items:      items,
	}
	for i := range items {
		switch items[i].Action {
		case store.DeviceActionCreated:
			response.Created++
		case store.DeviceActionUpdated:
			response.Updated++
		}
	}
	return response
}

func (d *Discoverer) probe(ctx context.Context, ip string, params Params) api.DiscoverItem {
	target := dvp.Target{
		IP:       ip,
		Port:     params.Port,
		Path:     params.Path,
		Protocol: params.Protocol,
		AuthType: params.AuthType,
	}
	if params.AuthToken != nil {
		target.AuthToken = *params.AuthToken
	}
	result := d.client.Poll(ctx, target, params.Timeout)
	if !result.Success || result.Payload == nil {
		errStr := ""
		if result.Error != nil {
			errStr = *result.Error
		}
		return api.DiscoverItem{IP: ip, Success: false, Error: errStr}
	}

	identity := dvp.InferIdentity(result.Payload)
	if !identity.Complete() {
		return api.DiscoverItem{IP: ip, Success: false, Error: "missing_device_fields"}
	}
	deviceKey := params.DeviceKeyPrefix + identity.DeviceSerial

	device := model.Device{
		ClusterID: params.ClusterID,
		DeviceKey: deviceKey,
		Vendor:    identity.Supplier,
		Model:     identity.DeviceType,
		LineNo:    params.LineNo,
		IP:        ip,
		Port:      params.Port,
		Protocol:  params.Protocol,
		Path:      params.Path,
		AuthType:  params.AuthType,
		AuthToken: params.AuthToken,
		Enabled:   true,
	}
	deviceID, action, err := d.store.Device().UpsertByKey(ctx, &device)
	if err != nil {
		d.log.Errorf("discover %s: upsert %s: %v", ip, deviceKey, err)
		return api.DiscoverItem{IP: ip, Success: false, Error: fmt.Sprintf("store_error:%v", err)}
	}

	snapshot := model.DeviceSnapshot{
		DeviceID:        deviceID,
		Success:         true,
		HTTPStatus:      result.HTTPStatus,
		LatencyMs:       result.LatencyMs,
		ProtocolVersion: result.ProtocolVersion,
		MainVersion:     result.MainVersion,
		FirmwareVersion: result.FirmwareVersion,
		Payload:         result.PayloadJSON(),
	}
	if _, err := d.store.Snapshot().Record(ctx, &snapshot); err != nil {
		d.log.Errorf("discover %s: recording snapshot: %v", ip, err)
	}

	item := api.DiscoverItem{
		IP:           ip,
		Success:      true,
		DeviceID:     deviceID,
		DeviceSerial: deviceKey,
		Supplier:     identity.Supplier,
		DeviceType:   identity.DeviceType,
		Action:       action,
	}
	if result.MainVersion != nil {
		item.MainVersion = *result.MainVersion
	}
	return item
}
