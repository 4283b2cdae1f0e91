package rpc

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/hashicorp/consul/api"
)

// PartitionPath is where a host serves the envelope endpoint of a partition.
func PartitionPath(partitionID int) string {
	return fmt.Sprintf("/partitions/%d/ws", partitionID)
}

// PartitionTag marks a consul service instance as hosting partitionID.
func PartitionTag(partitionID int) string {
	return "partition-" + strconv.Itoa(partitionID)
}

// StaticResolver serves every partition from one host.
type StaticResolver struct {
	BaseURL string
}

func NewStaticResolver(host, port string) *StaticResolver {
	return &StaticResolver{BaseURL: fmt.Sprintf("ws://%s:%s", host, port)}
}

func (r *StaticResolver) Resolve(_ context.Context, partitionID int) (string, error) {
	return r.BaseURL + PartitionPath(partitionID), nil
}

// ConsulResolver picks a random healthy instance tagged with the partition.
type ConsulResolver struct {
	client  *api.Client
	service string
}

func NewConsulClient(address string) (*api.Client, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	return client, nil
}

func NewConsulResolver(client *api.Client, service string) *ConsulResolver {
	return &ConsulResolver{client: client, service: service}
}

func (r *ConsulResolver) Resolve(ctx context.Context, partitionID int) (string, error) {
	opts := (&api.QueryOptions{}).WithContext(ctx)
	entries, _, err := r.client.Health().Service(r.service, PartitionTag(partitionID), true, opts)
	if err != nil {
		return "", fmt.Errorf("failed to query service: %w", err)
	}
	if len(entries) == 0 {
		return "", &StatusError{Status: http.StatusNotFound, Err: fmt.Errorf("no healthy instance of %s for partition %d", r.service, partitionID)}
	}

	instance := entries[rand.Intn(len(entries))]
	addr := instance.Service.Address
	if addr == "" {
		addr = instance.Node.Address
	}
	return fmt.Sprintf("ws://%s:%d%s", addr, instance.Service.Port, PartitionPath(partitionID)), nil
}

// Register announces this host as serving the given partitions. The health
// check polls /healthz on the same port.
func Register(client *api.Client, serviceID, service, host string, port int, partitions []int) error {
	tags := make([]string, 0, len(partitions))
	for _, id := range partitions {
		tags = append(tags, PartitionTag(id))
	}
	registration := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    service,
		Address: host,
		Port:    port,
		Tags:    tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/healthz", host, port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}
	return client.Agent().ServiceRegister(registration)
}

func Deregister(client *api.Client, serviceID string) error {
	return client.Agent().ServiceDeregister(serviceID)
}
