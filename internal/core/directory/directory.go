package directory

import (
	"slices"
	"strings"
	"sync"

	"github.com/dep2p/go-mdnsd/internal/util/logger"
	"github.com/dep2p/go-mdnsd/pkg/interfaces"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

var log = logger.Logger("mdns.directory")

// Directory 内存中的本地服务目录
//
// 服务名与实例名按 DNS 规则不区分大小写。
type Directory struct {
	mu sync.RWMutex

	// services 服务名（小写）→ 实例名（小写）→ 实例
	services map[string]map[string]types.ServiceInstance
}

var _ interfaces.ServiceDirectory = (*Directory)(nil)

// New 创建空目录
func New() *Directory {
	return &Directory{
		services: make(map[string]map[string]types.ServiceInstance),
	}
}

// AddInstance 新增本地实例，已存在时覆盖
func (d *Directory) AddInstance(inst types.ServiceInstance) {
	d.put(inst)
	log.Debug("本地实例已加入目录", "service", inst.ServiceName, "instance", inst.InstanceName)
}

// ChangeInstance 更新本地实例
func (d *Directory) ChangeInstance(inst types.ServiceInstance) {
	d.put(inst)
	log.Debug("本地实例已更新", "service", inst.ServiceName, "instance", inst.InstanceName, "port", inst.Port)
}

// RemoveInstance 移除本地实例，不存在时忽略
func (d *Directory) RemoveInstance(serviceName, instanceName string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	svc := key(serviceName)
	instances, ok := d.services[svc]
	if !ok {
		return
	}
	delete(instances, key(instanceName))
	if len(instances) == 0 {
		delete(d.services, svc)
	}
	log.Debug("本地实例已移出目录", "service", serviceName, "instance", instanceName)
}

// Instances 返回服务的所有本地实例，按实例名排序
func (d *Directory) Instances(serviceName string) []types.ServiceInstance {
	d.mu.RLock()
	defer d.mu.RUnlock()

	instances := d.services[key(serviceName)]
	out := make([]types.ServiceInstance, 0, len(instances))
	for _, inst := range instances {
		out = append(out, clone(inst))
	}
	slices.SortFunc(out, func(a, b types.ServiceInstance) int {
		return strings.Compare(key(a.InstanceName), key(b.InstanceName))
	})
	return out
}

// Lookup 查找单个实例
func (d *Directory) Lookup(serviceName, instanceName string) (types.ServiceInstance, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	inst, ok := d.services[key(serviceName)][key(instanceName)]
	if !ok {
		return types.ServiceInstance{}, false
	}
	return clone(inst), true
}

// Services 返回有本地实例的服务名，按字母排序
func (d *Directory) Services() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.services))
	for _, instances := range d.services {
		for _, inst := range instances {
			out = append(out, inst.ServiceName)
			break
		}
	}
	slices.Sort(out)
	return out
}

// Len 返回实例总数
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, instances := range d.services {
		n += len(instances)
	}
	return n
}

func (d *Directory) put(inst types.ServiceInstance) {
	d.mu.Lock()
	defer d.mu.Unlock()

	svc := key(inst.ServiceName)
	if d.services[svc] == nil {
		d.services[svc] = make(map[string]types.ServiceInstance)
	}
	d.services[svc][key(inst.InstanceName)] = clone(inst)
}

func key(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

func clone(inst types.ServiceInstance) types.ServiceInstance {
	inst.Text = slices.Clone(inst.Text)
	return inst
}
