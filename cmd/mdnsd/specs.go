package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dep2p/go-mdnsd"
)

// parseServices 解析所有 -publish 参数
func parseServices(specs []string) ([]mdnsd.Service, error) {
	out := make([]mdnsd.Service, 0, len(specs))
	for _, spec := range specs {
		svc, err := parseService(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

// parseService 解析 instance/_svc._tcp/port[/k=v,...]
func parseService(spec string) (mdnsd.Service, error) {
	parts := strings.SplitN(spec, "/", 4)
	if len(parts) < 3 {
		return mdnsd.Service{}, fmt.Errorf("invalid -publish %q: want instance/_svc._tcp/port[/k=v,...]", spec)
	}

	port, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return mdnsd.Service{}, fmt.Errorf("invalid -publish %q: port: %w", spec, err)
	}

	svc := mdnsd.Service{
		Instance: parts[0],
		Service:  parts[1],
		Port:     uint16(port),
	}
	if len(parts) == 4 && parts[3] != "" {
		svc.Text = strings.Split(parts[3], ",")
	}
	return svc, nil
}
